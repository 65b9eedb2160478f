// Package payments builds UPI collect links and wraps the Stripe card flow.
package payments

import (
	"errors"
	"fmt"
	"net/url"

	qrcode "github.com/skip2/go-qrcode"
)

var ErrBadUPIRequest = errors.New("invalid upi request")

// UPIRequest describes a collect request rendered as a deep link / QR code.
// The transfer itself happens out of band in the rider's UPI app; the ride's
// payment state is confirmed manually afterwards.
type UPIRequest struct {
	PayeeVPA  string  // pa
	PayeeName string  // pn
	Amount    float64 // am, rupees
	Note      string  // tn
	TxnRef    string  // tr
}

// Link renders the upi://pay deep link with escaped parameters.
func (r UPIRequest) Link() (string, error) {
	if r.PayeeVPA == "" || r.Amount <= 0 {
		return "", fmt.Errorf("%w: vpa=%q amount=%f", ErrBadUPIRequest, r.PayeeVPA, r.Amount)
	}
	v := url.Values{}
	v.Set("pa", r.PayeeVPA)
	if r.PayeeName != "" {
		v.Set("pn", r.PayeeName)
	}
	v.Set("am", fmt.Sprintf("%.2f", r.Amount))
	v.Set("cu", "INR")
	if r.Note != "" {
		v.Set("tn", r.Note)
	}
	if r.TxnRef != "" {
		v.Set("tr", r.TxnRef)
	}
	return "upi://pay?" + v.Encode(), nil
}

// QRPNG renders the deep link as a PNG of the given pixel size.
func (r UPIRequest) QRPNG(size int) ([]byte, error) {
	link, err := r.Link()
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(link, qrcode.Medium, size)
}
