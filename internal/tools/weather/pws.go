package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// obsIndex mirrors the WeatherFlow Tempest observation array layout used by
// the Python original: [timestamp, wind_lull, wind_avg, wind_gust,
// wind_direction, wind_sample_interval, station_pressure, air_temperature,
// relative_humidity, illuminance, uv, solar_radiation, rain_prev_min, ...].
const (
	obsTimestamp      = 0
	obsWindAvg        = 2
	obsWindGust       = 3
	obsWindDirection  = 4
	obsStationPress   = 6
	obsAirTemperature = 7
	obsHumidity       = 8
	obsUV             = 10
	obsRainPrevMin    = 12
)

var compassPoints = []string{"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE", "S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW"}

// PWSTool implements get_pws_current_conditions and get_home_weather against
// a WeatherFlow Tempest personal station.
type PWSTool struct {
	Endpoint     string // defaults to https://swd.weatherflow.com/swd/rest
	Token        string
	StationID    string
	Client       *http.Client
	toolName     string
	toolForecast bool
	description  string
}

// NewCurrentConditionsTool builds the get_pws_current_conditions tool
// (no forecast).
func NewCurrentConditionsTool(endpoint, token, stationID string, client *http.Client) *PWSTool {
	return &PWSTool{
		Endpoint: defaultEndpoint(endpoint), Token: token, StationID: stationID, Client: client,
		toolName:    "get_pws_current_conditions",
		description: "Get current conditions (temperature, humidity, wind, pressure, UV) from your personal weather station.",
	}
}

// NewHomeWeatherTool builds the get_home_weather tool, which optionally
// includes a multi-day forecast.
func NewHomeWeatherTool(endpoint, token, stationID string, client *http.Client) *PWSTool {
	return &PWSTool{
		Endpoint: defaultEndpoint(endpoint), Token: token, StationID: stationID, Client: client,
		toolName:     "get_home_weather",
		toolForecast: true,
		description:  "Get current conditions from your personal weather station, with an optional multi-day forecast.",
	}
}

func defaultEndpoint(e string) string {
	if strings.TrimSpace(e) == "" {
		return "https://swd.weatherflow.com/swd/rest"
	}
	return e
}

func (t *PWSTool) Name() string        { return t.toolName }
func (t *PWSTool) Description() string { return t.description }

func (t *PWSTool) JSONSchema() map[string]any {
	props := map[string]any{}
	required := []string{}
	if t.toolForecast {
		props["include_forecast"] = map[string]any{"type": "boolean", "description": "whether to include a multi-day forecast"}
	}
	return map[string]any{
		"description": t.description,
		"parameters": map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}

type homeWeatherArgs struct {
	IncludeForecast bool `json:"include_forecast"`
}

func (t *PWSTool) Call(ctx context.Context, raw json.RawMessage) (string, error) {
	if strings.TrimSpace(t.Token) == "" || strings.TrimSpace(t.StationID) == "" {
		return "Your personal weather station is not configured.", nil
	}

	includeForecast := true
	if t.toolForecast {
		var args homeWeatherArgs
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", fmt.Errorf("%s: invalid arguments: %w", t.toolName, err)
			}
			includeForecast = args.IncludeForecast
		}
	} else {
		includeForecast = false
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	obsURL := fmt.Sprintf("%s/observations/station/%s", t.Endpoint, t.StationID)
	q := url.Values{}
	q.Set("token", t.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, obsURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Sprintf("WeatherFlow request failed: %v", err), nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return fmt.Sprintf("WeatherFlow API error %d: %s", resp.StatusCode, msg), nil
	}

	var data struct {
		Obs [][]*float64 `json:"obs"`
	}
	if err := json.Unmarshal(body, &data); err != nil || len(data.Obs) == 0 {
		return "No recent observations available from your home weather station.", nil
	}

	obs := data.Obs[0]
	get := func(i int) *float64 {
		if i < 0 || i >= len(obs) {
			return nil
		}
		return obs[i]
	}

	var sb strings.Builder
	if ts := get(obsTimestamp); ts != nil {
		fmt.Fprintf(&sb, "Home Weather Station (as of %s):\n", time.Unix(int64(*ts), 0).Format("3:04 PM"))
	} else {
		sb.WriteString("Home Weather Station:\n")
	}
	if c := get(obsAirTemperature); c != nil {
		f := (*c)*9/5 + 32
		fmt.Fprintf(&sb, "Temperature: %.0f°F (%.1f°C)\n", f, *c)
	}
	if h := get(obsHumidity); h != nil {
		fmt.Fprintf(&sb, "Humidity: %.0f%%\n", *h)
	}
	if w := get(obsWindAvg); w != nil {
		dir := "N/A"
		if d := get(obsWindDirection); d != nil {
			dir = compassPoints[int(*d/22.5+0.5)%16]
		}
		fmt.Fprintf(&sb, "Wind: %.1f mph from %s\n", *w, dir)
		if g := get(obsWindGust); g != nil && *g > *w {
			fmt.Fprintf(&sb, "Wind Gusts: %.1f mph\n", *g)
		}
	}
	if p := get(obsStationPress); p != nil {
		fmt.Fprintf(&sb, "Pressure: %.1f mb (%.2f inHg)\n", *p, *p*0.02953)
	}
	if uv := get(obsUV); uv != nil {
		fmt.Fprintf(&sb, "UV Index: %.1f%s\n", *uv, uvDescription(*uv))
	}
	if rain := get(obsRainPrevMin); rain != nil && *rain > 0 {
		fmt.Fprintf(&sb, "Rain: %.2f inches in the last minute\n", *rain)
	}

	if includeForecast {
		if forecast, err := t.fetchForecast(ctx, client); err == nil && forecast != "" {
			sb.WriteString("\n")
			sb.WriteString(forecast)
		}
	}

	return strings.TrimRight(sb.String(), "\n"), nil
}

func uvDescription(uv float64) string {
	switch {
	case uv <= 2:
		return " (Low)"
	case uv <= 5:
		return " (Moderate)"
	case uv <= 7:
		return " (High)"
	case uv <= 10:
		return " (Very High)"
	default:
		return " (Extreme)"
	}
}

func (t *PWSTool) fetchForecast(ctx context.Context, client *http.Client) (string, error) {
	stationURL := fmt.Sprintf("%s/stations/%s", t.Endpoint, t.StationID)
	q := url.Values{}
	q.Set("token", t.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, stationURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("station endpoint returned %d", resp.StatusCode)
	}

	var data struct {
		Forecast struct {
			Daily []struct {
				DayStartLocal int64   `json:"day_start_local"`
				AirTempHigh   float64 `json:"air_temp_high"`
				AirTempLow    float64 `json:"air_temp_low"`
				Conditions    string  `json:"conditions"`
			} `json:"daily"`
		} `json:"forecast"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return "", err
	}
	if len(data.Forecast.Daily) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("10-Day Forecast:\n")
	days := data.Forecast.Daily
	if len(days) > 5 {
		days = days[:5]
	}
	for _, d := range days {
		name := time.Unix(d.DayStartLocal, 0).Format("Monday")
		fmt.Fprintf(&sb, "%s: High %.0f°F / Low %.0f°F, %s\n", name, d.AirTempHigh, d.AirTempLow, d.Conditions)
	}
	return sb.String(), nil
}
