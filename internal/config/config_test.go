package config

import (
	"testing"
	"time"

	"github.com/iliyamo/queue-token-service/internal/model"
)

func TestParseServices(t *testing.T) {
	got := parseServices(" library, canteen ,LIBRARY,,gym")
	want := []model.Service{"LIBRARY", "CANTEEN", "GYM"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_BOOL", "off")
	t.Setenv("X_INT", "nope")
	t.Setenv("X_DUR", "250ms")

	if envBool("X_BOOL", true) {
		t.Error("envBool off")
	}
	if envInt("X_INT", 7) != 7 {
		t.Error("envInt fallback")
	}
	if envDur("X_DUR", time.Second) != 250*time.Millisecond {
		t.Error("envDur")
	}
	if envStr("X_MISSING", "d") != "d" {
		t.Error("envStr default")
	}
}

func TestLoadRateLimitConfig_Clamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "1m")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()
	if cfg.Capacity != 1 {
		t.Errorf("capacity = %d", cfg.Capacity)
	}
	if cfg.TTL != 5*time.Minute {
		t.Errorf("ttl = %s", cfg.TTL)
	}
}

func TestLoadQueueConfig_AMQPFallback(t *testing.T) {
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "amqp://u:p@mq:5672/")
	if got := LoadQueueConfig().URL; got != "amqp://u:p@mq:5672/" {
		t.Fatalf("url = %q", got)
	}
}
