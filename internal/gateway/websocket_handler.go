package gateway

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sigmateam/endurance/internal/httputil"
)

// WebSocketHandler handles websocket upgrade requests for race rooms.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new websocket handler.
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{connectionManager: cm}
}

// HandleRaceConnection upgrades the request and joins the race room
// named by the race_id query parameter. race_id is optional: a client
// may connect first and join with a join-race frame later.
func (h *WebSocketHandler) HandleRaceConnection(w http.ResponseWriter, r *http.Request) {
	raceID := uuid.Nil
	if v := r.URL.Query().Get("race_id"); v != "" {
		parsed, err := uuid.Parse(v)
		if err != nil {
			http.Error(w, "invalid race_id format", http.StatusBadRequest)
			return
		}
		raceID = parsed
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "anonymous"
	}

	if err := h.connectionManager.UpgradeConnection(w, r, userID, raceID); err != nil {
		log.Error().
			Err(err).
			Str("race_id", raceID.String()).
			Str("user_id", userID).
			Msg("failed to upgrade websocket connection")
		return
	}
}

// HandleConnectionStats returns statistics about active connections.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

// RegisterRoutes registers websocket routes on the mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/race", h.HandleRaceConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
