package gateway

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sigmateam/endurance/internal/httputil"
	"github.com/sigmateam/endurance/internal/races"
)

// StateHandler serves the race state snapshot over HTTP.
type StateHandler struct {
	provider StateProvider
}

// NewStateHandler creates a new state handler.
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{provider: provider}
}

// RegisterStateRoutes registers the state routes on the mux.
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/races/{id}/state", h.handleRaceState)
}

func (h *StateHandler) handleRaceState(w http.ResponseWriter, r *http.Request) {
	raceID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid race id")
		return
	}

	state, err := h.provider.GetRaceState(r.Context(), raceID)
	if err != nil {
		if errors.Is(err, races.ErrRaceNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "race not found")
			return
		}
		log.Error().Err(err).Str("race_id", raceID.String()).Msg("failed to build race state")
		httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, state)
}
