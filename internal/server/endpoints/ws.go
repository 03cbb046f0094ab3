package endpoints

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/shelfscan/internal/api"
	"github.com/jackzampolin/shelfscan/internal/session"
	"github.com/jackzampolin/shelfscan/internal/svcctx"
)

// WSEndpoint handles GET /ws: the client's session channel. The connection
// registers in the connection registry on open; the client then sends a
// subscribe message naming its job.
type WSEndpoint struct {
	upgrader websocket.Upgrader
}

var _ api.Endpoint = (*WSEndpoint)(nil)

// NewWSEndpoint creates the WebSocket endpoint.
func NewWSEndpoint() *WSEndpoint {
	return &WSEndpoint{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The gateway fronts a phone app, not a browser origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (e *WSEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/ws", e.handler
}

func (e *WSEndpoint) RequiresInit() bool { return true }

func (e *WSEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	hub := svcctx.HubFrom(r.Context())
	connReg := svcctx.ConnRegistryFrom(r.Context())
	logger := svcctx.LoggerFrom(r.Context())
	if hub == nil || connReg == nil {
		writeError(w, http.StatusServiceUnavailable, "session services not initialized")
		return
	}

	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written its own error response.
		return
	}

	onSubscribe := func(ctx context.Context, sessionID, jobID string) error {
		_, err := connReg.Subscribe(ctx, sessionID, jobID)
		return err
	}
	client := session.NewClient(hub, conn, onSubscribe, logger)

	if _, err := connReg.Connect(r.Context(), client.ID()); err != nil {
		if logger != nil {
			logger.Error("failed to register connection", "error", err)
		}
		conn.Close()
		return
	}
	defer func() {
		// The request context is gone by now; cleanup gets its own.
		if err := connReg.Disconnect(context.Background(), client.ID()); err != nil && logger != nil {
			logger.Warn("failed to clean up connection record", "session_id", client.ID(), "error", err)
		}
	}()

	client.Run(r.Context())
}

func (e *WSEndpoint) Command(_ func() string) *cobra.Command {
	// Sessions are long-lived socket connections; no CLI equivalent.
	return nil
}
