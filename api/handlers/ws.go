package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/linesmerrill/agendajur-api/api"
	"github.com/linesmerrill/agendajur-api/logging"
	"github.com/linesmerrill/agendajur-api/models"
	"github.com/linesmerrill/agendajur-api/session"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the bearer token, not the origin, authorizes the connection
	},
}

// Socket streams live snapshots to connected clients
type Socket struct {
	Svc *session.Service
}

// SocketEvent is one message pushed over the websocket
type SocketEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// SocketHandler upgrades the connection and pushes the caller's hearings,
// and for the administrator the audit log, every time they change. The
// connection closes when the session is signed out elsewhere.
func (s Socket) SocketHandler(w http.ResponseWriter, r *http.Request) {
	sess := api.SessionFrom(r.Context())
	if sess == nil {
		serviceError("failed to open websocket", w, session.ErrNotAuthenticated)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close()

	logger := logging.Named("ws").With("email", sess.Email, "requestId", api.RequestIDFrom(r.Context()))
	m := session.NewManager(r.Context(), s.Svc)
	defer m.Close()

	changes, stop := m.Changes()
	defer stop()
	if err := m.Resume(*sess); err != nil {
		logger.Errorw("failed to resume session", "error", err)
		return
	}
	logger.Debug("websocket connected")

	// Keep connection alive
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-disconnected:
			logger.Debug("websocket disconnected")
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Debugw("ping failed", "error", err)
				return
			}
		case <-changes:
			if m.State() != session.Authenticated {
				send(conn, SocketEvent{Event: "signedOut"})
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "signed out"), time.Now().Add(writeWait))
				return
			}
			if err := pushSnapshots(conn, m); err != nil {
				logger.Warnw("error sending snapshot", "error", err)
				return
			}
		}
	}
}

func pushSnapshots(conn *websocket.Conn, m *session.Manager) error {
	if err := send(conn, SocketEvent{Event: "hearings", Data: m.Hearings()}); err != nil {
		return err
	}
	if m.Role() != models.RoleAdmin {
		return nil
	}
	return send(conn, SocketEvent{Event: "logs", Data: m.Logs()})
}

func send(conn *websocket.Conn, ev SocketEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}
