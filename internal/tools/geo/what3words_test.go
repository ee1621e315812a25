package geo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func withEndpoints(t *testing.T, nominatim, w3w string) {
	t.Helper()
	origNominatim, origW3W := nominatimEndpoint, w3wEndpoint
	if nominatim != "" {
		nominatimEndpoint = nominatim
	}
	if w3w != "" {
		w3wEndpoint = w3w
	}
	t.Cleanup(func() {
		nominatimEndpoint = origNominatim
		w3wEndpoint = origW3W
	})
}

func TestCall_ConvertsAddressToThreeWords(t *testing.T) {
	nominatim := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lat":"51.5","lon":"-0.12"}]`))
	}))
	t.Cleanup(nominatim.Close)

	w3w := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"words":"index.home.raft"}`))
	}))
	t.Cleanup(w3w.Close)

	withEndpoints(t, nominatim.URL, w3w.URL)

	tool := &What3WordsTool{APIKey: "k", Client: http.DefaultClient}
	out, err := tool.Call(context.Background(), json.RawMessage(`{"address":"10 Downing St"}`))
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if out != "10 Downing St -> ///index.home.raft" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestCall_NoAPIKeyFallsBackToCoordinates(t *testing.T) {
	nominatim := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lat":"1.0","lon":"2.0"}]`))
	}))
	t.Cleanup(nominatim.Close)

	withEndpoints(t, nominatim.URL, "")

	tool := &What3WordsTool{Client: http.DefaultClient}
	out, err := tool.Call(context.Background(), json.RawMessage(`{"address":"somewhere"}`))
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if out != "somewhere -> 1.0, 2.0 (What3Words unavailable; map: https://www.google.com/maps?q=1.0,2.0)" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestCall_QuotaExceededFallsBackToCoordinates(t *testing.T) {
	nominatim := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lat":"1.0","lon":"2.0"}]`))
	}))
	t.Cleanup(nominatim.Close)

	w3w := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(w3w.Close)

	withEndpoints(t, nominatim.URL, w3w.URL)

	tool := &What3WordsTool{APIKey: "k", Client: http.DefaultClient}
	out, err := tool.Call(context.Background(), json.RawMessage(`{"address":"somewhere"}`))
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if out != "somewhere -> 1.0, 2.0 (What3Words unavailable; map: https://www.google.com/maps?q=1.0,2.0)" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestCall_GeocodeMissFallsBackToNotice(t *testing.T) {
	nominatim := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(nominatim.Close)

	withEndpoints(t, nominatim.URL, "")

	tool := &What3WordsTool{APIKey: "k", Client: http.DefaultClient}
	out, err := tool.Call(context.Background(), json.RawMessage(`{"address":"nowhere"}`))
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if out != "Could not find address: nowhere." {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestCall_BlankAddressPromptsForOne(t *testing.T) {
	tool := &What3WordsTool{Client: http.DefaultClient}
	out, err := tool.Call(context.Background(), json.RawMessage(`{"address":"  "}`))
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if out != "Please specify an address to convert." {
		t.Fatalf("unexpected output: %q", out)
	}
}
