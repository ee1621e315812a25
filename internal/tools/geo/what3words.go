// Package geo implements get_what3words_address (§4.1): geocode an address
// then convert to a three-word address, with a quota-exhaustion fallback to
// raw coordinates plus a map URL. Not present in the Python original capture;
// built fresh in the same tool idiom (a Tool returning a formatted string,
// never erroring across the registry boundary).
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// nominatimEndpoint and w3wEndpoint are vars (not consts) so tests can point
// them at an httptest.Server.
var (
	nominatimEndpoint = "https://nominatim.openstreetmap.org/search"
	w3wEndpoint       = "https://api.what3words.com/v3/convert-to-3wa"
)

// What3WordsTool implements get_what3words_address.
type What3WordsTool struct {
	APIKey string
	Client *http.Client
}

func (t *What3WordsTool) Name() string { return "get_what3words_address" }
func (t *What3WordsTool) Description() string {
	return "Convert a street address into its What3Words three-word address."
}

func (t *What3WordsTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": t.Description(),
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"address": map[string]any{"type": "string", "description": "street address to convert"},
			},
			"required": []string{"address"},
		},
	}
}

type w3wArgs struct {
	Address string `json:"address"`
}

func (t *What3WordsTool) Call(ctx context.Context, raw json.RawMessage) (string, error) {
	var args w3wArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return "", fmt.Errorf("get_what3words_address: invalid arguments: %w", err)
		}
	}
	if strings.TrimSpace(args.Address) == "" {
		return "Please specify an address to convert.", nil
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	lat, lon, err := geocode(ctx, client, args.Address)
	if err != nil {
		return fmt.Sprintf("Could not find address: %s.", args.Address), nil
	}

	if strings.TrimSpace(t.APIKey) == "" {
		return coordinateFallback(args.Address, lat, lon), nil
	}

	q := url.Values{}
	q.Set("coordinates", fmt.Sprintf("%s,%s", lat, lon))
	q.Set("key", t.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w3wEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return coordinateFallback(args.Address, lat, lon), nil
	}
	resp, err := client.Do(req)
	if err != nil {
		return coordinateFallback(args.Address, lat, lon), nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	// Quota exhaustion (429, or W3W's own QuotaExceeded error code) falls
	// back to coordinates + a map URL rather than surfacing an error.
	if resp.StatusCode == http.StatusTooManyRequests {
		return coordinateFallback(args.Address, lat, lon), nil
	}
	if resp.StatusCode != http.StatusOK {
		return coordinateFallback(args.Address, lat, lon), nil
	}

	var data struct {
		Words string `json:"words"`
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &data); err != nil || data.Words == "" || data.Error.Code != "" {
		return coordinateFallback(args.Address, lat, lon), nil
	}

	return fmt.Sprintf("%s -> ///%s", args.Address, data.Words), nil
}

func coordinateFallback(address, lat, lon string) string {
	return fmt.Sprintf(
		"%s -> %s, %s (What3Words unavailable; map: https://www.google.com/maps?q=%s,%s)",
		address, lat, lon, lat, lon,
	)
}

func geocode(ctx context.Context, client *http.Client, address string) (lat, lon string, err error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, nominatimEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", "turncore-geo-tool/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("geocoder returned %d", resp.StatusCode)
	}

	var hits []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.Unmarshal(body, &hits); err != nil || len(hits) == 0 {
		return "", "", fmt.Errorf("no geocode hit for %q", address)
	}
	return hits[0].Lat, hits[0].Lon, nil
}
