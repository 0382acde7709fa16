package drivers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sigmateam/endurance/internal/httputil"
)

// Handler exposes the driver roster over HTTP.
type Handler struct {
	app *App
}

// NewHandler creates a new drivers HTTP handler.
func NewHandler(app *App) *Handler {
	return &Handler{app: app}
}

// RegisterRoutes registers the driver routes on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/drivers", h.handleList)
	mux.HandleFunc("POST /api/drivers", h.handleCreate)
	mux.HandleFunc("GET /api/drivers/{id}", h.handleGet)
	mux.HandleFunc("PUT /api/drivers/{id}", h.handleUpdate)
	mux.HandleFunc("DELETE /api/drivers/{id}", h.handleDelete)
	mux.HandleFunc("GET /api/drivers/{id}/stats", h.handleStats)
	mux.HandleFunc("POST /api/drivers/{id}/reset-stats", h.handleResetStats)
	mux.HandleFunc("GET /api/drivers/leaderboard/overall", h.handleLeaderboard)
	mux.HandleFunc("GET /api/drivers/stats/calculated", h.handleCalculatedStats)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	drivers, err := h.app.ListDrivers(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, drivers)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateDriverRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	driver, err := h.app.CreateDriver(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, driver)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.driverID(w, r)
	if !ok {
		return
	}
	driver, err := h.app.GetDriver(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, driver)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.driverID(w, r)
	if !ok {
		return
	}
	var req UpdateDriverRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	driver, err := h.app.UpdateDriver(r.Context(), id, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, driver)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.driverID(w, r)
	if !ok {
		return
	}
	if err := h.app.RemoveDriver(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "driver removed"})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	id, ok := h.driverID(w, r)
	if !ok {
		return
	}
	result, err := h.app.DriverStats(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleResetStats(w http.ResponseWriter, r *http.Request) {
	id, ok := h.driverID(w, r)
	if !ok {
		return
	}
	driver, err := h.app.ResetStats(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, driver)
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := h.app.Leaderboard(r.Context(), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleCalculatedStats(w http.ResponseWriter, r *http.Request) {
	calculated, err := h.app.CalculatedStats(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, calculated)
}

func (h *Handler) driverID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid driver id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDriverNotFound):
		httputil.WriteError(w, http.StatusNotFound, "driver not found")
	case errors.Is(err, ErrValidation):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("driver request failed")
		httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
