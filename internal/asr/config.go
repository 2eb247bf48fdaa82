package asr

import "fmt"

// DecodeConfig carries per-run decode parameters. Values are validated up
// front; out-of-range values fail the run with ErrInvalidConfig instead of
// being clamped. The config is not touched again once a run has started.
type DecodeConfig struct {
	// Language is an ISO 639-1 hint, or "auto" for detection.
	Language string
	// InitialPrompt biases decoding toward the given vocabulary.
	InitialPrompt string
	// BeamWidth is the beam-search width. Must be >= 1.
	BeamWidth int
	// BestOf is the number of candidates kept with greedy sampling. Must be >= 1.
	BestOf int
	// EntropyThreshold triggers a decoder fallback on low-confidence windows.
	EntropyThreshold float32
	// LogProbThreshold rejects decodes whose mean token log-probability is lower.
	LogProbThreshold float32
	// MaxSegmentLength caps segment length in characters. 0 means unlimited.
	MaxSegmentLength int
	// Threads is the engine worker count. Must be >= 1.
	Threads int
	// OffsetMS skips the first OffsetMS milliseconds of audio.
	OffsetMS int
	// DurationMS limits decoding to DurationMS milliseconds. 0 means all.
	DurationMS int
	// Translate requests translation to English instead of transcription.
	Translate bool
}

// DefaultDecodeConfig mirrors the engine defaults used across the project.
func DefaultDecodeConfig() DecodeConfig {
	return DecodeConfig{
		Language:         "auto",
		BeamWidth:        5,
		BestOf:           5,
		EntropyThreshold: 2.4,
		LogProbThreshold: -1.0,
		Threads:          4,
	}
}

// Validate rejects out-of-range parameters.
func (c DecodeConfig) Validate() error {
	if c.Threads < 1 {
		return fmt.Errorf("%w: threads must be >= 1, got %d", ErrInvalidConfig, c.Threads)
	}
	if c.BeamWidth < 1 {
		return fmt.Errorf("%w: beam_width must be >= 1, got %d", ErrInvalidConfig, c.BeamWidth)
	}
	if c.BestOf < 1 {
		return fmt.Errorf("%w: best_of must be >= 1, got %d", ErrInvalidConfig, c.BestOf)
	}
	if c.MaxSegmentLength < 0 {
		return fmt.Errorf("%w: max_segment_length must be >= 0, got %d", ErrInvalidConfig, c.MaxSegmentLength)
	}
	if c.OffsetMS < 0 {
		return fmt.Errorf("%w: offset_ms must be >= 0, got %d", ErrInvalidConfig, c.OffsetMS)
	}
	if c.DurationMS < 0 {
		return fmt.Errorf("%w: duration_ms must be >= 0, got %d", ErrInvalidConfig, c.DurationMS)
	}
	if c.Language == "" {
		return fmt.Errorf("%w: language must be set (use \"auto\" for detection)", ErrInvalidConfig)
	}
	return nil
}
