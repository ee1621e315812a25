package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func withNWSEndpoints(t *testing.T, nominatim, nwsPoints string) {
	t.Helper()
	origNominatim, origPoints := nominatimEndpoint, nwsPointsEndpoint
	if nominatim != "" {
		nominatimEndpoint = nominatim
	}
	if nwsPoints != "" {
		nwsPointsEndpoint = nwsPoints
	}
	t.Cleanup(func() {
		nominatimEndpoint = origNominatim
		nwsPointsEndpoint = origPoints
	})
}

func TestForecastTool_Call_ReturnsFormattedPeriods(t *testing.T) {
	var forecastURL string
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	forecastURL = srv.URL + "/forecast"

	mux.HandleFunc("/points/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"properties":{"forecast":%q}}`, forecastURL)
	})
	mux.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"properties":{"periods":[
			{"name":"Today","temperature":72,"temperatureUnit":"F","shortForecast":"Rain showers","windSpeed":"10 mph"},
			{"name":"Tonight","temperature":55,"temperatureUnit":"F","shortForecast":"Clear","windSpeed":"5 mph"}
		]}}`))
	})

	nominatim := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lat":"42.3","lon":"-71.0"}]`))
	}))
	t.Cleanup(nominatim.Close)

	withNWSEndpoints(t, nominatim.URL, srv.URL+"/points")

	tool := &ForecastTool{Client: http.DefaultClient}
	out, err := tool.Call(context.Background(), json.RawMessage(`{"location":"Boston","days":1}`))
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if out == "" {
		t.Fatalf("expected non-empty forecast")
	}
	if !strings.Contains(out, "Rain showers") || !strings.Contains(out, "bring an umbrella") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestForecastTool_Call_GeocodeMissAcrossVariants(t *testing.T) {
	nominatim := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(nominatim.Close)

	withNWSEndpoints(t, nominatim.URL, "")

	tool := &ForecastTool{Country: "US", State: "MA", Client: http.DefaultClient}
	out, err := tool.Call(context.Background(), json.RawMessage(`{"location":"Nowheresville"}`))
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if out != "Could not find location: Nowheresville. Please try being more specific (e.g., 'Boston, MA')." {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestForecastTool_Call_BlankLocationPrompts(t *testing.T) {
	tool := &ForecastTool{Client: http.DefaultClient}
	out, err := tool.Call(context.Background(), json.RawMessage(`{"location":""}`))
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if out != "Please specify a location to get the weather forecast." {
		t.Fatalf("unexpected output: %q", out)
	}
}
