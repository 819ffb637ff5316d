package handler

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	ws "github.com/johndosdos/duochat/internal/websocket"
)

// ServeWs handles the client's websocket connection upgrade. Origins outside
// allowedOrigins are refused during the handshake.
func ServeWs(h *ws.Hub, allowedOrigins []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: allowedOrigins,
		})
		if err != nil {
			slog.WarnContext(ctx, "failed to upgrade connection to websocket",
				"error", err,
				"remote_addr", r.RemoteAddr)
			return
		}

		if err := h.Serve(ctx, conn); err != nil {
			slog.ErrorContext(ctx, "websocket session ended with error", "error", err)
		}
	}
}
