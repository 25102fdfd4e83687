package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GRPCAddr() != "0.0.0.0:50051" {
		t.Fatalf("GRPCAddr = %q", cfg.GRPCAddr())
	}
	if cfg.StorageDriver != StorageDriverPostgres {
		t.Fatalf("StorageDriver = %q", cfg.StorageDriver)
	}
	if cfg.OutboxPollEvery != 2*time.Second || cfg.OutboxMaxAttempts != 8 {
		t.Fatalf("outbox = %v/%d", cfg.OutboxPollEvery, cfg.OutboxMaxAttempts)
	}
	if cfg.Timezone != time.UTC || cfg.MaxOccurrences != 366 {
		t.Fatalf("scheduling = %v/%d", cfg.Timezone, cfg.MaxOccurrences)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CLINICSCHED_GRPC_ADDR", "127.0.0.1:6000")
	t.Setenv("CLINICSCHED_STORAGE_DRIVER", "memory")
	t.Setenv("CLINICSCHED_DIRECTORY_STATIC", "loc-1=dr-house")
	t.Setenv("CLINICSCHED_SCHEDULING_TIMEZONE", "Europe/Berlin")
	t.Setenv("KAFKA_BROKERS", "kafka:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GRPCAddr() != "127.0.0.1:6000" {
		t.Fatalf("GRPCAddr = %q", cfg.GRPCAddr())
	}
	if cfg.StorageDriver != StorageDriverMemory || cfg.StaticDirectory != "loc-1=dr-house" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Timezone.String() != "Europe/Berlin" {
		t.Fatalf("Timezone = %v", cfg.Timezone)
	}
	if cfg.KafkaBrokers != "kafka:9092" {
		t.Fatalf("KafkaBrokers = %q", cfg.KafkaBrokers)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"CLINICSCHED_STORAGE_DRIVER":      "mongo",
		"CLINICSCHED_OUTBOX_BACKOFF":      "soon",
		"CLINICSCHED_SCHEDULING_TIMEZONE": "Mars/Olympus",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}
