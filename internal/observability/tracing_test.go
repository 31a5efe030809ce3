package observability

import (
	"context"
	"errors"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	got := parseHeaders(" a=1, b = two ,broken, =x, c=")
	if len(got) != 2 || got["a"] != "1" || got["b"] != "two" {
		t.Errorf("unexpected headers %v", got)
	}
	if len(parseHeaders("")) != 0 {
		t.Error("Expected empty map for empty input")
	}
}

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("POTOK_OTEL_EXPORTER", " STDOUT ")
	t.Setenv("POTOK_OTEL_INSECURE", "no")
	t.Setenv("POTOK_OTEL_SAMPLER_RATIO", "0.25")
	t.Setenv("POTOK_OTEL_HEADERS", "x-api-key=abc")

	cfg := TracingConfigFromEnv()
	if cfg.Exporter != "stdout" {
		t.Errorf("Expected exporter stdout, got %q", cfg.Exporter)
	}
	if cfg.Insecure {
		t.Error("Expected insecure to be false")
	}
	if cfg.SampleRatio != 0.25 {
		t.Errorf("Expected ratio 0.25, got %v", cfg.SampleRatio)
	}
	if cfg.Headers["x-api-key"] != "abc" {
		t.Errorf("unexpected headers %v", cfg.Headers)
	}
}

func TestGetenvFallbacks(t *testing.T) {
	t.Setenv("POTOK_TEST_BOOL", "maybe")
	t.Setenv("POTOK_TEST_FLOAT", "nan-ish")
	if !getenvBool("POTOK_TEST_BOOL", true) {
		t.Error("Expected fallback for unparsable bool")
	}
	if getenvFloat("POTOK_TEST_FLOAT", 0.5) != 0.5 {
		t.Error("Expected fallback for unparsable float")
	}
}

func TestInitTracing_NoneAndSpans(t *testing.T) {
	shutdown, err := InitTracing("potok-test", TracingConfig{Exporter: "none"})
	if err != nil {
		t.Fatalf("InitTracing failed: %v", err)
	}
	defer shutdown(context.Background())

	ctx, span := StartSpan(context.Background(), "test.span")
	if ctx == nil || span == nil {
		t.Fatal("Expected a context and span")
	}
	EndSpan(span, errors.New("recorded"))
}
