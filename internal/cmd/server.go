package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/sigmateam/endurance/clients/weather"
	"github.com/sigmateam/endurance/internal/httputil"
)

func setupServer(config *Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	registerServices(mux, config, services)
	setupHealthCheck(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", config.Server.Port),
		Handler: c.Handler(mux),
	}
}

func registerServices(mux *http.ServeMux, config *Config, services *Services) {
	services.Drivers.RegisterRoutes(mux)
	services.Races.RegisterRoutes(mux)
	services.Laps.RegisterRoutes(mux)
	services.Gateway.RegisterRoutes(mux)
	registerWeatherRoutes(mux, config, services.Weather)
}

func registerWeatherRoutes(mux *http.ServeMux, config *Config, client *weather.Client) {
	city := func(r *http.Request) string {
		if v := r.URL.Query().Get("city"); v != "" {
			return v
		}
		return config.Weather.DefaultCity
	}

	mux.HandleFunc("GET /api/weather", func(w http.ResponseWriter, r *http.Request) {
		current, err := client.GetCurrentWeather(r.Context(), city(r))
		if err != nil {
			respondWeatherError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, current)
	})

	mux.HandleFunc("GET /api/weather/forecast", func(w http.ResponseWriter, r *http.Request) {
		forecast, err := client.GetForecast(r.Context(), city(r))
		if err != nil {
			respondWeatherError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, forecast)
	})
}

func respondWeatherError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, weather.ErrCityNotFound):
		httputil.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, weather.ErrMissingAPIKey), errors.Is(err, weather.ErrInvalidAPIKey):
		httputil.WriteError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, weather.ErrRateLimited):
		httputil.WriteError(w, http.StatusTooManyRequests, err.Error())
	default:
		log.Error().Err(err).Msg("weather request failed")
		httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
		})
	})
	mux.HandleFunc("GET /api/test", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{
			"message": "API server is running",
		})
	})
}
