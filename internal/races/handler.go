package races

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sigmateam/endurance/internal/drivers"
	"github.com/sigmateam/endurance/internal/httputil"
	"github.com/sigmateam/endurance/internal/models"
)

// Handler exposes the race lifecycle over HTTP.
type Handler struct {
	app *App
}

// NewHandler creates a new races HTTP handler.
func NewHandler(app *App) *Handler {
	return &Handler{app: app}
}

// RegisterRoutes registers the race routes on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/races", h.handleList)
	mux.HandleFunc("POST /api/races", h.handleCreate)
	mux.HandleFunc("GET /api/races/{id}", h.handleGet)
	mux.HandleFunc("PUT /api/races/{id}", h.handleUpdate)
	mux.HandleFunc("DELETE /api/races/{id}", h.handleDelete)
	mux.HandleFunc("POST /api/races/{id}/start", h.handleStart)
	mux.HandleFunc("POST /api/races/{id}/pause", h.handlePause)
	mux.HandleFunc("POST /api/races/{id}/finish", h.handleFinish)
	mux.HandleFunc("POST /api/races/{id}/reset", h.handleReset)
	mux.HandleFunc("POST /api/races/{id}/change-driver", h.handleChangeDriver)
	mux.HandleFunc("PUT /api/races/{id}/settings", h.handleUpdateSettings)
	mux.HandleFunc("GET /api/races/{id}/stats", h.handleStats)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	races, err := h.app.ListRaces(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, races)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRaceRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	race, err := h.app.CreateRace(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, race)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.raceID(w, r)
	if !ok {
		return
	}
	race, err := h.app.GetRace(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, race)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.raceID(w, r)
	if !ok {
		return
	}
	var req UpdateRaceRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	race, err := h.app.UpdateRace(r.Context(), id, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, race)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.raceID(w, r)
	if !ok {
		return
	}
	if err := h.app.DeleteRace(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "race deleted"})
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.app.StartRace)
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.app.PauseRace)
}

func (h *Handler) handleFinish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.app.FinishRace)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.app.ResetRace)
}

func (h *Handler) handleChangeDriver(w http.ResponseWriter, r *http.Request) {
	id, ok := h.raceID(w, r)
	if !ok {
		return
	}
	var req ChangeDriverRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DriverID == uuid.Nil {
		httputil.WriteError(w, http.StatusBadRequest, "driverId is required")
		return
	}
	race, err := h.app.ChangeDriver(r.Context(), id, req.DriverID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, race)
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	id, ok := h.raceID(w, r)
	if !ok {
		return
	}
	var req UpdateSettingsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	race, err := h.app.UpdateSettings(r.Context(), id, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, race)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	id, ok := h.raceID(w, r)
	if !ok {
		return
	}
	result, err := h.app.RaceStats(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// transition runs one of the state-machine operations keyed by the race
// id in the path.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id uuid.UUID) (*models.Race, error)) {
	id, ok := h.raceID(w, r)
	if !ok {
		return
	}
	race, err := op(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, race)
}

func (h *Handler) raceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid race id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRaceNotFound):
		httputil.WriteError(w, http.StatusNotFound, "race not found")
	case errors.Is(err, drivers.ErrDriverNotFound):
		httputil.WriteError(w, http.StatusNotFound, "driver not found")
	case errors.Is(err, ErrInvalidTransition):
		httputil.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrOpenStint):
		httputil.WriteError(w, http.StatusConflict, "race has an open stint; end it before finishing")
	case errors.Is(err, ErrValidation):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("race request failed")
		httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
