package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/mizan/internal/auth"
	"github.com/dukerupert/mizan/internal/docstore"
	syncpkg "github.com/dukerupert/mizan/internal/sync"
)

// HandleWebSocket upgrades the connection and streams the viewer's scoped
// snapshot. Mount behind RequireAuth: the viewer comes from the request
// context.
func HandleWebSocket(hub *Hub, store *docstore.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := auth.Viewer(r.Context())

		conn, err := ws.Accept(w, r, nil)
		if err != nil {
			logger.Error("websocket accept", "error", err)
			return
		}

		manager := syncpkg.NewManager(r.Context(), store, logger)
		manager.SetViewer(viewer)

		client := NewClient(hub, conn, manager, logger)
		client.Run(r.Context())
	}
}
