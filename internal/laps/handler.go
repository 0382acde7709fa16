package laps

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sigmateam/endurance/internal/drivers"
	"github.com/sigmateam/endurance/internal/httputil"
	"github.com/sigmateam/endurance/internal/races"
)

// Handler exposes lap recording and lap history over HTTP.
type Handler struct {
	app *App
}

// NewHandler creates a new laps HTTP handler.
func NewHandler(app *App) *Handler {
	return &Handler{app: app}
}

// RegisterRoutes registers the lap routes on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/laps", h.handleList)
	mux.HandleFunc("POST /api/laps", h.handleCreate)
	mux.HandleFunc("POST /api/laps/record", h.handleRecord)
	mux.HandleFunc("GET /api/laps/{id}", h.handleGet)
	mux.HandleFunc("PUT /api/laps/{id}", h.handleAmend)
	mux.HandleFunc("DELETE /api/laps/{id}", h.handleDelete)
	mux.HandleFunc("GET /api/laps/race/{raceId}", h.handleByRace)
	mux.HandleFunc("GET /api/laps/driver/{driverId}", h.handleByDriver)
	mux.HandleFunc("GET /api/laps/best/overall", h.handleBestOverall)
	mux.HandleFunc("GET /api/laps/best/race/{raceId}", h.handleBestByRace)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.listFilter(w, r)
	if !ok {
		return
	}
	result, err := h.app.ListLaps(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateLapRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	lap, err := h.app.CreateLap(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, lap)
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req RecordStintRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	lap, err := h.app.RecordStint(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, lap)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id", "invalid lap id")
	if !ok {
		return
	}
	lap, err := h.app.GetLap(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lap)
}

func (h *Handler) handleAmend(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id", "invalid lap id")
	if !ok {
		return
	}
	var req AmendStintRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	lap, err := h.app.AmendStint(r.Context(), id, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lap)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id", "invalid lap id")
	if !ok {
		return
	}
	if err := h.app.DeleteStint(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "lap deleted"})
}

func (h *Handler) handleByRace(w http.ResponseWriter, r *http.Request) {
	raceID, ok := h.pathID(w, r, "raceId", "invalid race id")
	if !ok {
		return
	}
	result, err := h.app.ListByRace(r.Context(), raceID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleByDriver(w http.ResponseWriter, r *http.Request) {
	driverID, ok := h.pathID(w, r, "driverId", "invalid driver id")
	if !ok {
		return
	}
	result, err := h.app.ListByDriver(r.Context(), driverID, queryLimit(r, 0))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleBestOverall(w http.ResponseWriter, r *http.Request) {
	result, err := h.app.BestOverall(r.Context(), queryLimit(r, 10))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleBestByRace(w http.ResponseWriter, r *http.Request) {
	raceID, ok := h.pathID(w, r, "raceId", "invalid race id")
	if !ok {
		return
	}
	result, err := h.app.BestByRace(r.Context(), raceID, queryLimit(r, 10))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) listFilter(w http.ResponseWriter, r *http.Request) (ListFilter, bool) {
	filter := ListFilter{
		Sort:  r.URL.Query().Get("sort"),
		Limit: queryLimit(r, 0),
	}
	if v := r.URL.Query().Get("race_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid race_id filter")
			return ListFilter{}, false
		}
		filter.RaceID = &id
	}
	if v := r.URL.Query().Get("driver_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid driver_id filter")
			return ListFilter{}, false
		}
		filter.DriverID = &id
	}
	return filter, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, key, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(key))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return uuid.Nil, false
	}
	return id, true
}

func queryLimit(r *http.Request, fallback int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrLapNotFound):
		httputil.WriteError(w, http.StatusNotFound, "lap not found")
	case errors.Is(err, races.ErrRaceNotFound):
		httputil.WriteError(w, http.StatusNotFound, "race not found")
	case errors.Is(err, drivers.ErrDriverNotFound):
		httputil.WriteError(w, http.StatusNotFound, "driver not found")
	case errors.Is(err, ErrRaceNotRunning),
		errors.Is(err, ErrNoOpenStint),
		errors.Is(err, ErrInconsistentState):
		httputil.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidDuration), errors.Is(err, ErrValidation):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("lap request failed")
		httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
