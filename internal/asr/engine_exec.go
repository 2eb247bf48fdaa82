package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/mattn/go-shellwords"

	"github.com/scribelabs/scribe-core/internal/audio"
	"github.com/scribelabs/scribe-core/internal/config"
)

// execEngine shells out to an external recognizer command. The command gets
// a temporary WAV file and must print {"text": ..., "confidence": ...} on
// stdout. The whole buffer comes back as a single segment, so the only
// cancellation checkpoint is before the process is spawned.
type execEngine struct {
	argv []string
	cfg  config.ASRConfig
	log  *slog.Logger
}

type execOutput struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

func newExecEngine(cfg config.ASRConfig, log *slog.Logger) (*execEngine, error) {
	parser := shellwords.NewParser()
	argv, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("%w: parse asr command: %v", ErrModelLoad, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: asr command is empty", ErrModelLoad)
	}
	return &execEngine{argv: argv, cfg: cfg, log: log.With(slog.String("engine", "exec"))}, nil
}

func (e *execEngine) Decode(ctx context.Context, samples []float32, cfg DecodeConfig, hooks DecodeHooks) (string, error) {
	if hooks.EncoderBegin != nil && !hooks.EncoderBegin() {
		return "", errDecodeAborted
	}

	file, err := os.CreateTemp("", "scribe_asr_*.wav")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := audio.WriteFloat32Wav(file, samples, SampleRate); err != nil {
		return "", err
	}

	args := append([]string{}, e.argv[1:]...)
	args = append(args, "--audio", file.Name())
	if e.cfg.ModelPath != "" {
		args = append(args, "--model", e.cfg.ModelPath)
	}
	if cfg.Language != "" && cfg.Language != "auto" {
		args = append(args, "--language", cfg.Language)
	}
	if cfg.Threads > 0 {
		args = append(args, "--threads", fmt.Sprint(cfg.Threads))
	}

	command := exec.CommandContext(ctx, e.argv[0], args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		if ctx.Err() != nil {
			return "", errDecodeAborted
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &InferenceError{
				Code: exitErr.ExitCode(),
				Err:  fmt.Errorf("%s: %s", err, stderr.String()),
			}
		}
		return "", fmt.Errorf("asr command failed: %w: %s", err, stderr.String())
	}

	var out execOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return "", fmt.Errorf("decode asr command output: %w", err)
	}

	if hooks.Progress != nil {
		hooks.Progress(100)
	}
	if out.Text != "" && hooks.Segments != nil {
		hooks.Segments([]Segment{{
			Start: 0,
			End:   sampleOffset(len(samples)),
			Text:  out.Text,
		}})
	}

	lang := out.Language
	if lang == "" {
		lang = cfg.Language
	}
	return lang, nil
}

func (e *execEngine) Close() error { return nil }
