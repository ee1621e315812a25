// Package weather implements get_weather_forecast, get_pws_current_conditions,
// and get_home_weather (§4.1), grounded on the Python original's National
// Weather Service + WeatherFlow Tempest integrations.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// nominatimEndpoint and nwsPointsEndpoint are vars (not consts) so tests can
// point them at an httptest.Server. The forecast URL itself is returned by
// the points lookup and followed as-is.
var (
	nominatimEndpoint = "https://nominatim.openstreetmap.org/search"
	nwsPointsEndpoint = "https://api.weather.gov/points"
)

// ForecastTool implements get_weather_forecast: geocode the location, then
// fetch a multi-day forecast. §4.1 requires tolerating alternative location
// spellings by retrying an ordered list of variants (raw; +country;
// +state,country) when a plain query fails to geocode.
type ForecastTool struct {
	// Country and State are appended to the raw query as geocode-retry
	// variants when the UserProfile supplies them; both may be empty.
	Country string
	State   string
	Client  *http.Client
}

func (t *ForecastTool) Name() string { return "get_weather_forecast" }
func (t *ForecastTool) Description() string {
	return "Get a multi-day weather forecast for any worldwide location."
}

func (t *ForecastTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": t.Description(),
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"location": map[string]any{"type": "string", "description": "city name, optionally 'City, State' or 'City, Country'"},
				"days":     map[string]any{"type": "integer", "description": "number of days to forecast (1-7)"},
			},
			"required": []string{"location"},
		},
	}
}

type forecastArgs struct {
	Location string `json:"location"`
	Days     int    `json:"days"`
}

type geocodeResult struct {
	Lat, Lon string
}

// Call implements the forecast contract. Every failure mode — no geocode
// hit across all variants, an unreachable forecast endpoint, malformed
// payloads — is rendered as a human-readable string, never an error.
func (t *ForecastTool) Call(ctx context.Context, raw json.RawMessage) (string, error) {
	var args forecastArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return "", fmt.Errorf("get_weather_forecast: invalid arguments: %w", err)
		}
	}
	if args.Days <= 0 {
		args.Days = 3
	}
	if strings.TrimSpace(args.Location) == "" {
		return "Please specify a location to get the weather forecast.", nil
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	variants := t.locationVariants(args.Location)
	var geo geocodeResult
	var found bool
	for _, v := range variants {
		g, err := t.geocode(ctx, client, v)
		if err == nil {
			geo = g
			found = true
			break
		}
	}
	if !found {
		return fmt.Sprintf("Could not find location: %s. Please try being more specific (e.g., 'Boston, MA').", args.Location), nil
	}

	periods, err := t.forecastPeriods(ctx, client, geo, args.Days)
	if err != nil {
		return fmt.Sprintf("Sorry, I couldn't fetch the weather information: %v", err), nil
	}
	if len(periods) == 0 {
		return "Error: could not parse forecast data from the weather service.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Weather for %s:\n", args.Location)
	for _, p := range periods {
		umbrella := ""
		lower := strings.ToLower(p.ShortForecast)
		if strings.Contains(lower, "rain") || strings.Contains(lower, "shower") || strings.Contains(lower, "drizzle") {
			umbrella = " (bring an umbrella)"
		}
		fmt.Fprintf(&sb, "%s: %d°%s, %s, Wind: %s%s\n", p.Name, p.Temperature, p.TemperatureUnit, p.ShortForecast, p.WindSpeed, umbrella)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// locationVariants builds the geocode-retry list required by §4.1: the raw
// query, then with country appended, then with state+country appended.
func (t *ForecastTool) locationVariants(location string) []string {
	out := []string{location}
	if t.Country != "" {
		out = append(out, location+", "+t.Country)
	}
	if t.State != "" && t.Country != "" {
		out = append(out, location+", "+t.State+", "+t.Country)
	}
	return out
}

func (t *ForecastTool) geocode(ctx context.Context, client *http.Client, query string) (geocodeResult, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, nominatimEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return geocodeResult{}, err
	}
	req.Header.Set("User-Agent", "turncore-weather-tool/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return geocodeResult{}, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return geocodeResult{}, fmt.Errorf("geocoder returned %d", resp.StatusCode)
	}

	var hits []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.Unmarshal(body, &hits); err != nil || len(hits) == 0 {
		return geocodeResult{}, fmt.Errorf("no geocode hit for %q", query)
	}
	return geocodeResult{Lat: hits[0].Lat, Lon: hits[0].Lon}, nil
}

type forecastPeriod struct {
	Name            string
	Temperature     int
	TemperatureUnit string
	ShortForecast   string
	WindSpeed       string
}

func (t *ForecastTool) forecastPeriods(ctx context.Context, client *http.Client, geo geocodeResult, days int) ([]forecastPeriod, error) {
	pointsURL := fmt.Sprintf("%s/%s,%s", nwsPointsEndpoint, geo.Lat, geo.Lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pointsURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "turncore-weather-tool/1.0")
	req.Header.Set("Accept", "application/geo+json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather points endpoint returned %d", resp.StatusCode)
	}

	var points struct {
		Properties struct {
			Forecast string `json:"forecast"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(body, &points); err != nil || points.Properties.Forecast == "" {
		return nil, fmt.Errorf("could not resolve a forecast URL")
	}

	fReq, err := http.NewRequestWithContext(ctx, http.MethodGet, points.Properties.Forecast, nil)
	if err != nil {
		return nil, err
	}
	fReq.Header.Set("User-Agent", "turncore-weather-tool/1.0")
	fResp, err := client.Do(fReq)
	if err != nil {
		return nil, err
	}
	defer fResp.Body.Close()
	fBody, _ := io.ReadAll(fResp.Body)
	if fResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forecast endpoint returned %d", fResp.StatusCode)
	}

	var forecast struct {
		Properties struct {
			Periods []struct {
				Name            string `json:"name"`
				Temperature     int    `json:"temperature"`
				TemperatureUnit string `json:"temperatureUnit"`
				ShortForecast   string `json:"shortForecast"`
				WindSpeed       string `json:"windSpeed"`
			} `json:"periods"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(fBody, &forecast); err != nil {
		return nil, fmt.Errorf("malformed forecast payload: %w", err)
	}

	limit := days * 2
	periods := forecast.Properties.Periods
	if limit > 0 && len(periods) > limit {
		periods = periods[:limit]
	}
	out := make([]forecastPeriod, 0, len(periods))
	for _, p := range periods {
		out = append(out, forecastPeriod{
			Name:            p.Name,
			Temperature:     p.Temperature,
			TemperatureUnit: p.TemperatureUnit,
			ShortForecast:   p.ShortForecast,
			WindSpeed:       p.WindSpeed,
		})
	}
	return out, nil
}

