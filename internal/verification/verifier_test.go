package verification

import (
	"errors"
	"testing"

	"github.com/abhijeeth-g/boots-backend/internal/models"
)

func fullSet() []Document {
	return []Document{
		{Type: DocLicense, Filename: "license.jpg", Size: 1024},
		{Type: DocRegistration, Filename: "rc.pdf", Size: 2048},
		{Type: DocIdentity, Filename: "aadhaar.png", Size: 4096},
		{Type: DocFace, Filename: "selfie.jpeg", Size: 512},
	}
}

func TestVerifyAllValid(t *testing.T) {
	results, err := NewRuleVerifier().Verify(fullSet())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range results {
		if !r.Passed {
			t.Fatalf("doc %s failed: %s", r.Type, r.Reason)
		}
	}
}

func TestVerifyInvalidFilenameFails(t *testing.T) {
	docs := fullSet()
	docs[0].Filename = "invalid_license.jpg"
	results, err := NewRuleVerifier().Verify(docs)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if results[0].Passed {
		t.Fatal("flagged document should fail")
	}
	if results[1].Passed != true {
		t.Fatal("other documents should still be checked")
	}
}

func TestVerifyMissingDocument(t *testing.T) {
	docs := fullSet()[:3] // no face snapshot
	results, err := NewRuleVerifier().Verify(docs)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	last := results[len(results)-1]
	if last.Type != DocFace || last.Passed || last.Reason != "missing document" {
		t.Fatalf("face result = %+v", last)
	}
}

func TestVerifyRejectsBadTypeAndSize(t *testing.T) {
	docs := fullSet()
	docs[1].Filename = "rc.exe"
	docs[2].Size = 0
	_, err := NewRuleVerifier().Verify(docs)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestStatusFor(t *testing.T) {
	if s := StatusFor(nil); s != models.VerificationApproved {
		t.Fatalf("nil -> %s", s)
	}
	if s := StatusFor(ErrRejected); s != models.VerificationRejected {
		t.Fatalf("rejected -> %s", s)
	}
	if s := StatusFor(ErrUnavailable); s != models.VerificationPending {
		t.Fatalf("unavailable -> %s", s)
	}
}
