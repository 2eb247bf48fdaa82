package asr

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// stubEngine produces deterministic transcripts without loading a model.
// It walks the buffer in one-second steps and drives every hook the way the
// native backend would, which is what the session tests rely on.
type stubEngine struct {
	log *slog.Logger
}

func newStubEngine(log *slog.Logger) *stubEngine {
	return &stubEngine{log: log.With(slog.String("engine", "stub"))}
}

const stubStepSamples = SampleRate // 1 s per decode iteration

func (e *stubEngine) Decode(_ context.Context, samples []float32, cfg DecodeConfig, hooks DecodeHooks) (string, error) {
	if hooks.EncoderBegin != nil && !hooks.EncoderBegin() {
		return "", errDecodeAborted
	}

	total := len(samples)
	index := 0
	for start := 0; start < total; start += stubStepSamples {
		if hooks.Abort != nil && hooks.Abort() {
			return "", errDecodeAborted
		}
		end := start + stubStepSamples
		if end > total {
			end = total
		}
		if hooks.Progress != nil {
			hooks.Progress(end * 100 / total)
		}
		// Silence produces no segment, like the real decoder skipping
		// blank audio.
		if isSilence(samples[start:end]) {
			continue
		}
		index++
		if hooks.Segments != nil {
			hooks.Segments([]Segment{{
				Start: sampleOffset(start),
				End:   sampleOffset(end),
				Text:  fmt.Sprintf("[stub segment %d, %d samples]", index, end-start),
			}})
		}
	}

	lang := cfg.Language
	if lang == "" || lang == "auto" {
		lang = "en"
	}
	e.log.Debug("stub decode finished",
		slog.Int("samples", total),
		slog.Int("segments", index),
	)
	return lang, nil
}

func (e *stubEngine) Close() error { return nil }

func isSilence(samples []float32) bool {
	const threshold = 1e-4
	for _, s := range samples {
		if s > threshold || s < -threshold {
			return false
		}
	}
	return true
}

func sampleOffset(n int) time.Duration {
	return time.Duration(n) * time.Second / SampleRate
}
