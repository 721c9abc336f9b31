package websocket

import (
	"log/slog"
	"net/http"
	"strconv"

	ws "github.com/coder/websocket"
)

// HandleWebSocket upgrades requests to chore event streams. An optional
// ?assigned_to=N limits the stream to that user's chores. originPatterns lists
// extra hosts allowed to connect cross-origin.
func HandleWebSocket(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var assignedTo int64
		if v := r.URL.Query().Get("assigned_to"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil || id <= 0 {
				http.Error(w, "invalid assigned_to", http.StatusBadRequest)
				return
			}
			assignedTo = id
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.WarnContext(r.Context(), "websocket: accept", "error", err)
			return
		}
		defer conn.CloseNow()

		logger.DebugContext(r.Context(), "websocket: client connected",
			"remote", r.RemoteAddr, "assigned_to", assignedTo)
		NewClient(hub, conn, assignedTo).Run(r.Context())
	}
}
