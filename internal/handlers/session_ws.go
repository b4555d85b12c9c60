package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kaitanna/kaitanna-backend/internal/auth"
	"github.com/kaitanna/kaitanna-backend/internal/middleware"
	"go.uber.org/zap"
)

const (
	wsPongWait     = 90 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteWait    = 10 * time.Second
	wsSendBuffer   = 16
)

var sessionUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is enforced on the HTTP routes; the token is what authorizes here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SessionSource authenticates tokens and publishes session changes.
type SessionSource interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
	OnSessionChange(fn func(auth.SessionEvent)) func()
}

type SessionSocketHandler struct {
	sessions SessionSource
	log      *zap.Logger
}

func NewSessionSocketHandler(sessions SessionSource, log *zap.Logger) *SessionSocketHandler {
	return &SessionSocketHandler{sessions: sessions, log: log}
}

// ServeHTTP handles GET /ws/session. The token comes from the Authorization
// header or the token query parameter. Only the caller's own events are
// sent; the socket closes once its session is gone.
func (h *SessionSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r)
	claims, err := h.sessions.Authenticate(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	conn, err := sessionUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	send := make(chan auth.SessionEvent, wsSendBuffer)
	unsubscribe := h.sessions.OnSessionChange(func(event auth.SessionEvent) {
		if event.UserID != claims.UserID {
			return
		}
		select {
		case send <- event:
		case <-ctx.Done():
		default:
			h.log.Warn("session socket too slow, dropping event",
				zap.String("user_id", claims.UserID),
				zap.String("type", string(event.Type)))
		}
	})
	defer unsubscribe()

	go h.writeLoop(ctx, cancel, conn, token, send)

	conn.SetReadLimit(4 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		// Clients never send anything meaningful; reading drives pongs and
		// detects disconnects.
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *SessionSocketHandler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, token string, send <-chan auth.SessionEvent) {
	defer cancel()
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
			// A sign-in elsewhere revokes this session too.
			if event.Type != auth.EventUserUpdated {
				if _, err := h.sessions.Authenticate(ctx, token); err != nil {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
						time.Now().Add(wsWriteWait))
					conn.Close()
					return
				}
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
