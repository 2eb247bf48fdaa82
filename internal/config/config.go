package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	JobStore    JobStoreConfig   `yaml:"job_store"`
	ASR         ASRConfig        `yaml:"asr"`
	Transcribe  TranscribeConfig `yaml:"transcribe"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type JobStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxJobs       int    `yaml:"max_jobs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// ASRConfig selects and tunes the transcription backend. The decode
// parameters are defaults; a job may override them within the same ranges.
type ASRConfig struct {
	Mode             string  `yaml:"mode"` // stub, exec, whispercpp
	ModelPath        string  `yaml:"model_path"`
	Command          string  `yaml:"command"`
	Language         string  `yaml:"language"`
	Threads          int     `yaml:"threads"`
	BeamWidth        int     `yaml:"beam_width"`
	BestOf           int     `yaml:"best_of"`
	EntropyThreshold float32 `yaml:"entropy_threshold"`
	LogProbThreshold float32 `yaml:"logprob_threshold"`
	MaxSegmentLength int     `yaml:"max_segment_length"`
	InitialPrompt    string  `yaml:"initial_prompt"`
}

type TranscribeConfig struct {
	Enabled bool `yaml:"enabled"`
}

func Default() Config {
	return Config{
		RuntimeName: "scribe-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		JobStore: JobStoreConfig{
			Path:          "./data/scribe-jobs.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxJobs:       10000,
		},
		ASR: ASRConfig{
			Mode:             "stub",
			Language:         "auto",
			Threads:          4,
			BeamWidth:        5,
			BestOf:           5,
			EntropyThreshold: 2.4,
			LogProbThreshold: -1.0,
		},
		Transcribe: TranscribeConfig{
			Enabled: true,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "SCRIBE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "SCRIBE_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "SCRIBE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "SCRIBE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "SCRIBE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SCRIBE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SCRIBE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "SCRIBE_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "SCRIBE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "SCRIBE_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "SCRIBE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "SCRIBE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "SCRIBE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "SCRIBE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "SCRIBE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "SCRIBE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.JobStore.Path, "SCRIBE_JOB_STORE_PATH")
	overrideString(&cfg.JobStore.RetentionMode, "SCRIBE_JOB_STORE_RETENTION_MODE")
	overrideInt(&cfg.JobStore.RetentionDays, "SCRIBE_JOB_STORE_RETENTION_DAYS")
	overrideInt(&cfg.JobStore.MaxJobs, "SCRIBE_JOB_STORE_MAX_JOBS")
	overrideBool(&cfg.JobStore.VacuumOnStart, "SCRIBE_JOB_STORE_VACUUM_ON_START")
	overrideString(&cfg.ASR.Mode, "SCRIBE_ASR_MODE")
	overrideString(&cfg.ASR.ModelPath, "SCRIBE_ASR_MODEL_PATH")
	overrideString(&cfg.ASR.Command, "SCRIBE_ASR_COMMAND")
	overrideString(&cfg.ASR.Language, "SCRIBE_ASR_LANGUAGE")
	overrideInt(&cfg.ASR.Threads, "SCRIBE_ASR_THREADS")
	overrideInt(&cfg.ASR.BeamWidth, "SCRIBE_ASR_BEAM_WIDTH")
	overrideInt(&cfg.ASR.BestOf, "SCRIBE_ASR_BEST_OF")
	overrideFloat32(&cfg.ASR.EntropyThreshold, "SCRIBE_ASR_ENTROPY_THRESHOLD")
	overrideFloat32(&cfg.ASR.LogProbThreshold, "SCRIBE_ASR_LOGPROB_THRESHOLD")
	overrideInt(&cfg.ASR.MaxSegmentLength, "SCRIBE_ASR_MAX_SEGMENT_LENGTH")
	overrideString(&cfg.ASR.InitialPrompt, "SCRIBE_ASR_INITIAL_PROMPT")
	overrideBool(&cfg.Transcribe.Enabled, "SCRIBE_TRANSCRIBE_ENABLED")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat32(target *float32, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 32); err == nil {
			*target = float32(parsed)
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.JobStore.Path == "" {
		return errors.New("job_store.path must not be empty")
	}
	switch cfg.JobStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("job_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.JobStore.RetentionDays < 0 {
		return errors.New("job_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.ASR.Mode {
	case "stub", "exec", "whispercpp":
	default:
		return errors.New("asr.mode must be one of stub|exec|whispercpp")
	}
	if cfg.ASR.Mode == "exec" && cfg.ASR.Command == "" {
		return errors.New("asr.command must be set when mode=exec")
	}
	if cfg.ASR.Mode == "whispercpp" && cfg.ASR.ModelPath == "" {
		return errors.New("asr.model_path must be set when mode=whispercpp")
	}
	if cfg.ASR.Threads < 1 {
		return errors.New("asr.threads must be >= 1")
	}
	if cfg.ASR.BeamWidth < 1 {
		return errors.New("asr.beam_width must be >= 1")
	}
	if cfg.ASR.BestOf < 1 {
		return errors.New("asr.best_of must be >= 1")
	}
	if cfg.ASR.MaxSegmentLength < 0 {
		return errors.New("asr.max_segment_length must be >= 0")
	}
	if cfg.ASR.Language == "" {
		return errors.New("asr.language must not be empty (use \"auto\" for detection)")
	}
	return nil
}
