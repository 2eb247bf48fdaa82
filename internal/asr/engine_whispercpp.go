//go:build whisper_cpp

package asr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	whisperpkg "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// NativeAvailable reports whether the whispercpp backend is compiled in.
func NativeAvailable() bool { return true }

// nativeEngine wraps the whisper.cpp Go bindings. The bindings expose the
// encoder-begin and progress callbacks directly, so the session's checkpoint
// closures plug in without any unsafe user-data plumbing.
type nativeEngine struct {
	model whisperpkg.Model
	log   *slog.Logger
}

func newNativeEngine(modelPath string, log *slog.Logger) (Engine, error) {
	model, err := whisperpkg.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	return &nativeEngine{
		model: model,
		log:   log.With(slog.String("engine", "whispercpp")),
	}, nil
}

func (e *nativeEngine) Decode(ctx context.Context, samples []float32, cfg DecodeConfig, hooks DecodeHooks) (string, error) {
	wctx, err := e.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("create whisper context: %w", err)
	}

	wctx.SetThreads(uint(cfg.Threads))
	wctx.SetTranslate(cfg.Translate)
	wctx.SetBeamSize(cfg.BeamWidth)
	wctx.SetEntropyThold(cfg.EntropyThreshold)
	wctx.SetTokenTimestamps(true)
	if err := wctx.SetLanguage(cfg.Language); err != nil {
		return "", fmt.Errorf("%w: language %q: %v", ErrInvalidConfig, cfg.Language, err)
	}
	if cfg.InitialPrompt != "" {
		wctx.SetInitialPrompt(cfg.InitialPrompt)
	}
	if cfg.MaxSegmentLength > 0 {
		wctx.SetMaxSegmentLength(uint(cfg.MaxSegmentLength))
		wctx.SetSplitOnWord(true)
	}
	if cfg.OffsetMS > 0 {
		wctx.SetOffset(time.Duration(cfg.OffsetMS) * time.Millisecond)
	}
	if cfg.DurationMS > 0 {
		wctx.SetDuration(time.Duration(cfg.DurationMS) * time.Millisecond)
	}

	encoderBegin := func() bool {
		if hooks.EncoderBegin != nil && !hooks.EncoderBegin() {
			return false
		}
		return true
	}
	onSegment := func(seg whisperpkg.Segment) {
		if hooks.Segments == nil {
			return
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			return
		}
		hooks.Segments([]Segment{{Start: seg.Start, End: seg.End, Text: text}})
	}
	onProgress := func(percent int) {
		if hooks.Progress != nil {
			hooks.Progress(percent)
		}
	}

	if err := wctx.Process(samples, encoderBegin, onSegment, onProgress); err != nil {
		// An abort surfaces as a processing failure; the checkpoint hooks
		// tell the two apart.
		if ctx.Err() != nil || (hooks.Abort != nil && hooks.Abort()) {
			return "", errDecodeAborted
		}
		return "", &InferenceError{Code: -1, Err: err}
	}

	lang := wctx.Language()
	if lang == "" || lang == "auto" {
		if detected := wctx.DetectedLanguage(); detected != "" {
			lang = detected
		}
	}
	return lang, nil
}

func (e *nativeEngine) Close() error {
	if e.model != nil {
		err := e.model.Close()
		e.model = nil
		return err
	}
	return nil
}
