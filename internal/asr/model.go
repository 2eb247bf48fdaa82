package asr

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/scribelabs/scribe-core/internal/config"
)

// Model owns a loaded acoustic-model resource through its backend engine.
// Whether the underlying engine tolerates concurrent decodes is not
// guaranteed, so runs against one handle are serialized.
type Model struct {
	engine Engine
	log    *slog.Logger

	runMu  sync.Mutex
	closed atomic.Bool
}

// Open resolves the configured backend and loads the model. A missing or
// unloadable model file fails with ErrModelLoad; nothing is left
// half-constructed on failure.
func Open(cfg config.ASRConfig, log *slog.Logger) (*Model, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "asr"))

	var (
		engine Engine
		err    error
	)
	switch cfg.Mode {
	case "stub", "":
		engine = newStubEngine(log)
	case "exec":
		engine, err = newExecEngine(cfg, log)
	case "whispercpp":
		if cfg.ModelPath == "" {
			return nil, fmt.Errorf("%w: model path is empty", ErrModelLoad)
		}
		if _, statErr := os.Stat(cfg.ModelPath); statErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrModelLoad, statErr)
		}
		if !NativeAvailable() {
			return nil, ErrEngineUnavailable
		}
		engine, err = newNativeEngine(cfg.ModelPath, log)
	default:
		return nil, fmt.Errorf("%w: unknown asr mode %q", ErrModelLoad, cfg.Mode)
	}
	if err != nil {
		return nil, err
	}

	log.Info("model opened", slog.String("mode", cfg.Mode), slog.String("model_path", cfg.ModelPath))
	return &Model{engine: engine, log: log}, nil
}

// NewModel wraps an already constructed engine. Used by tests to install
// fake backends.
func NewModel(engine Engine, log *slog.Logger) *Model {
	if log == nil {
		log = slog.Default()
	}
	return &Model{engine: engine, log: log}
}

// NewSession returns a fresh single-use session borrowing this handle.
func (m *Model) NewSession() (*Session, error) {
	if m.closed.Load() {
		return nil, ErrModelClosed
	}
	return &Session{model: m}, nil
}

// Close releases the engine exactly once. Session operations started after
// Close fail with ErrModelClosed.
func (m *Model) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	// Wait out an in-flight run so the engine is not freed under it.
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.engine.Close()
}
