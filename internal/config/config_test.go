package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.ASR.Mode != "stub" {
		t.Fatalf("expected default asr mode stub, got %q", cfg.ASR.Mode)
	}
	if cfg.ASR.Threads != 4 || cfg.ASR.BeamWidth != 5 || cfg.ASR.BestOf != 5 {
		t.Fatalf("unexpected default decode parameters: %+v", cfg.ASR)
	}
	if cfg.JobStore.RetentionMode != "session" {
		t.Fatalf("expected retention mode session, got %q", cfg.JobStore.RetentionMode)
	}
	if !cfg.Transcribe.Enabled {
		t.Fatal("expected transcribe enabled by default")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SCRIBE_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("SCRIBE_BUS_USERNAME", "alice")
	t.Setenv("SCRIBE_BUS_PASSWORD", "secret")
	t.Setenv("SCRIBE_BUS_TLS_INSECURE", "true")
	t.Setenv("SCRIBE_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("SCRIBE_ASR_MODE", "exec")
	t.Setenv("SCRIBE_ASR_COMMAND", "whisper-cli --output-json")
	t.Setenv("SCRIBE_ASR_LANGUAGE", "de")
	t.Setenv("SCRIBE_ASR_THREADS", "8")
	t.Setenv("SCRIBE_ASR_MAX_SEGMENT_LENGTH", "120")
	t.Setenv("SCRIBE_ASR_ENTROPY_THRESHOLD", "3.1")
	t.Setenv("SCRIBE_ASR_LOGPROB_THRESHOLD", "-0.5")
	t.Setenv("SCRIBE_JOB_STORE_PATH", "./tmp.db")
	t.Setenv("SCRIBE_JOB_STORE_RETENTION_MODE", "persistent")
	t.Setenv("SCRIBE_JOB_STORE_RETENTION_DAYS", "7")
	t.Setenv("SCRIBE_JOB_STORE_MAX_JOBS", "123")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatal("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.ASR.Mode != "exec" || cfg.ASR.Command != "whisper-cli --output-json" {
		t.Fatalf("expected asr exec override, got %+v", cfg.ASR)
	}
	if cfg.ASR.Language != "de" || cfg.ASR.Threads != 8 || cfg.ASR.MaxSegmentLength != 120 {
		t.Fatalf("expected asr decode overrides, got %+v", cfg.ASR)
	}
	if cfg.ASR.EntropyThreshold != 3.1 || cfg.ASR.LogProbThreshold != -0.5 {
		t.Fatalf("expected asr threshold overrides, got %+v", cfg.ASR)
	}
	if cfg.JobStore.Path != "./tmp.db" || cfg.JobStore.RetentionMode != "persistent" {
		t.Fatalf("expected job store overrides, got %+v", cfg.JobStore)
	}
	if cfg.JobStore.RetentionDays != 7 || cfg.JobStore.MaxJobs != 123 {
		t.Fatalf("expected retention overrides, got %+v", cfg.JobStore)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scribe.yaml")
	body := `
runtime_name: test-runtime
asr:
  mode: whispercpp
  model_path: /models/ggml-base.en.bin
  language: en
  threads: 2
job_store:
  retention_mode: ephemeral
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RuntimeName != "test-runtime" {
		t.Fatalf("expected runtime name override, got %q", cfg.RuntimeName)
	}
	if cfg.ASR.Mode != "whispercpp" || cfg.ASR.ModelPath != "/models/ggml-base.en.bin" {
		t.Fatalf("expected asr file values, got %+v", cfg.ASR)
	}
	if cfg.ASR.Threads != 2 {
		t.Fatalf("expected 2 threads, got %d", cfg.ASR.Threads)
	}
	if cfg.JobStore.RetentionMode != "ephemeral" {
		t.Fatalf("expected ephemeral retention, got %q", cfg.JobStore.RetentionMode)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad asr mode", func(c *Config) { c.ASR.Mode = "bogus" }},
		{"exec without command", func(c *Config) { c.ASR.Mode = "exec" }},
		{"whispercpp without model", func(c *Config) { c.ASR.Mode = "whispercpp" }},
		{"zero threads", func(c *Config) { c.ASR.Threads = 0 }},
		{"bad retention", func(c *Config) { c.JobStore.RetentionMode = "bogus" }},
		{"bad http port", func(c *Config) { c.HTTP.Port = 0 }},
		{"no servers external bus", func(c *Config) { c.Bus.Embedded = false; c.Bus.Servers = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
