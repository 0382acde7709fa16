package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sigmateam/endurance/clients"
)

// Sentinel errors for the OpenWeatherMap failure modes callers care
// about.
var (
	ErrMissingAPIKey = errors.New("weather: API key not configured")
	ErrInvalidAPIKey = errors.New("weather: invalid API key")
	ErrCityNotFound  = errors.New("weather: city not found")
	ErrRateLimited   = errors.New("weather: API rate limit exceeded")
)

// Client fetches current conditions and forecasts from OpenWeatherMap.
type Client struct {
	*clients.BaseClient
	apiKey string
}

// NewClient creates a weather client for the given API key.
func NewClient(apiKey string) *Client {
	return &Client{
		BaseClient: clients.NewBaseClient(BaseURL),
		apiKey:     apiKey,
	}
}

// CurrentWeather is the current-conditions report for a city.
type CurrentWeather struct {
	City        string  `json:"city"`
	Temperature float64 `json:"temperature"` // Celsius
	FeelsLike   float64 `json:"feels_like"`
	Humidity    int     `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"` // m/s
	Conditions  string  `json:"conditions"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
}

// ForecastEntry is one step of the 5-day / 3-hour forecast.
type ForecastEntry struct {
	Timestamp   int64   `json:"timestamp"` // unix seconds
	Temperature float64 `json:"temperature"`
	Humidity    int     `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
	Conditions  string  `json:"conditions"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
}

// Forecast is the forecast report for a city.
type Forecast struct {
	City    string          `json:"city"`
	Entries []ForecastEntry `json:"entries"`
}

// owmConditions is the shared weather/wind/main shape of the OWM API.
type owmConditions struct {
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

// GetCurrentWeather fetches current conditions for a city, metric units.
func (c *Client) GetCurrentWeather(ctx context.Context, city string) (*CurrentWeather, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	body, err := c.Get(ctx, weatherQuery(WeatherEndpoint, city, c.apiKey))
	if err != nil {
		return nil, mapStatusError(err, city)
	}

	var resp struct {
		owmConditions
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("weather: decode current conditions: %w", err)
	}

	current := &CurrentWeather{
		City:        resp.Name,
		Temperature: resp.Main.Temp,
		FeelsLike:   resp.Main.FeelsLike,
		Humidity:    resp.Main.Humidity,
		WindSpeed:   resp.Wind.Speed,
	}
	if len(resp.Weather) > 0 {
		current.Conditions = resp.Weather[0].Main
		current.Description = resp.Weather[0].Description
		current.Icon = resp.Weather[0].Icon
	}
	return current, nil
}

// GetForecast fetches the 5-day / 3-hour forecast for a city.
func (c *Client) GetForecast(ctx context.Context, city string) (*Forecast, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	body, err := c.Get(ctx, weatherQuery(ForecastEndpoint, city, c.apiKey))
	if err != nil {
		return nil, mapStatusError(err, city)
	}

	var resp struct {
		List []struct {
			owmConditions
			Dt int64 `json:"dt"`
		} `json:"list"`
		City struct {
			Name string `json:"name"`
		} `json:"city"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("weather: decode forecast: %w", err)
	}

	forecast := &Forecast{City: resp.City.Name}
	for _, item := range resp.List {
		entry := ForecastEntry{
			Timestamp:   item.Dt,
			Temperature: item.Main.Temp,
			Humidity:    item.Main.Humidity,
			WindSpeed:   item.Wind.Speed,
		}
		if len(item.Weather) > 0 {
			entry.Conditions = item.Weather[0].Main
			entry.Description = item.Weather[0].Description
			entry.Icon = item.Weather[0].Icon
		}
		forecast.Entries = append(forecast.Entries, entry)
	}
	return forecast, nil
}

func weatherQuery(endpoint, city, apiKey string) string {
	params := url.Values{}
	params.Set("q", city)
	params.Set(APIKeyParam, apiKey)
	params.Set("units", UnitsMetric)
	return endpoint + "?" + params.Encode()
}

// mapStatusError translates OWM status codes into sentinel errors.
func mapStatusError(err error, city string) error {
	var statusErr *clients.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}
	switch statusErr.StatusCode {
	case http.StatusUnauthorized:
		return ErrInvalidAPIKey
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrCityNotFound, city)
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return err
	}
}
