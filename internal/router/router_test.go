package router

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestRuleFallback_Idempotent(t *testing.T) {
	q := "What's the weather in London?"
	a := RuleFallback(q)
	b := RuleFallback(q)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("rule router must be idempotent on identical input: %+v vs %+v", a, b)
	}
}

func TestRuleFallback_DirectWeatherTool(t *testing.T) {
	d := RuleFallback("What's the weather in London?")
	if d.Route != RouteToolDirect {
		t.Fatalf("expected tool_direct, got %s", d.Route)
	}
	if d.PrimaryTool != "get_weather_forecast" {
		t.Fatalf("expected get_weather_forecast, got %s", d.PrimaryTool)
	}
	if d.Confidence < 0.8 {
		t.Fatalf("expected confidence >= 0.8, got %f", d.Confidence)
	}
}

func TestRuleFallback_PersonalStation(t *testing.T) {
	d := RuleFallback("What's my PWS showing?")
	if d.Route != RouteToolDirect || d.PrimaryTool != "get_pws_current_conditions" {
		t.Fatalf("expected tool_direct/get_pws_current_conditions, got %+v", d)
	}
}

func TestRuleFallback_SearchOnly(t *testing.T) {
	d := RuleFallback("What happened at the latest Apple event?")
	if d.Route != RouteSearchOnly {
		t.Fatalf("expected search_only, got %+v", d)
	}
	if d.SearchEngine == "" {
		t.Fatalf("invariant I4: search_only must set a search engine")
	}
}

func TestRuleFallback_ModelKnowledge(t *testing.T) {
	d := RuleFallback("What is the capital of France?")
	if d.Route != RouteModelKnowledge {
		t.Fatalf("expected model_knowledge, got %+v", d)
	}
}

func TestRoute_EmptyUtterance(t *testing.T) {
	r := New(nil, nil, nil, nil, time.Second)
	d := r.Route(context.Background(), "   ")
	if d.Route != RouteModelKnowledge || d.Confidence > 0.5 {
		t.Fatalf("0-token utterance must route to model_knowledge with confidence <= 0.5, got %+v", d)
	}
}

type failingDecisionClient struct{}

func (failingDecisionClient) Complete(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("simulated LLM outage")
}

func TestRoute_FallsBackOnLLMOutage(t *testing.T) {
	usage := NewUsageCounter()
	r := New(failingDecisionClient{}, nil, usage, nil, time.Second)
	d := r.Route(context.Background(), "weather in Tokyo")
	if d.Route != RouteToolDirect || d.PrimaryTool != "get_weather_forecast" {
		t.Fatalf("expected rule fallback to still route correctly, got %+v", d)
	}
	stats := usage.Snapshot()
	if stats.FallbackCount != 1 {
		t.Fatalf("expected one fallback recorded, got %d", stats.FallbackCount)
	}
}

type malformedDecisionClient struct{}

func (malformedDecisionClient) Complete(ctx context.Context, prompt string) (string, error) {
	return "not json", nil
}

func TestRoute_FallsBackOnMalformedJSON(t *testing.T) {
	usage := NewUsageCounter()
	r := New(malformedDecisionClient{}, nil, usage, nil, time.Second)
	d := r.Route(context.Background(), "weather in Tokyo")
	if d.Method != "fallback" {
		t.Fatalf("expected fallback method, got %+v", d)
	}
	if usage.Snapshot().RecentFallbackReasons[0] == "" {
		t.Fatalf("expected a recorded fallback reason")
	}
}
