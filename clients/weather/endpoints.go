package weather

const (
	BaseURL = "https://api.openweathermap.org/data/2.5"

	WeatherEndpoint  = "/weather"
	ForecastEndpoint = "/forecast"

	APIKeyParam = "appid"
	UnitsMetric = "metric"
)
