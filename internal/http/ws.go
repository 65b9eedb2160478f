package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/abhijeeth-g/boots-backend/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWS upgrades a client session. Browsers cannot set an Authorization
// header on the upgrade request, so the JWT rides in the token query param.
// Captains receive ride offers on this socket; riders receive ride events
// and captain movement.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	claims, err := s.tokens.Verify(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	var reg = s.hub.Riders
	if claims.Role == auth.RoleCaptain {
		reg = s.hub.Captains
	}
	reg.Add(claims.Subject, conn)
	s.logger.Info("websocket connected", "subject", claims.Subject, "role", claims.Role)

	// The socket is push-only; the read loop exists to detect the close.
	go func() {
		defer reg.Remove(claims.Subject, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
