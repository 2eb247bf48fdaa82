package asr

import "context"

// SampleRate is the sample rate every engine expects. Resampling is the
// caller's responsibility.
const SampleRate = 16000

// DecodeHooks are typed closures the session installs around a decode pass.
// They replace the native callback-with-opaque-user-data pattern, so no raw
// pointers cross the engine boundary.
type DecodeHooks struct {
	// EncoderBegin runs before each encoder sub-step; returning false stops
	// the decode there.
	EncoderBegin func() bool
	// Abort runs before each decoding iteration; returning true stops the
	// decode there.
	Abort func() bool
	// Progress receives cumulative percent complete as reported by the engine.
	Progress func(percent int)
	// Segments receives each batch of newly finalized segments in time order.
	Segments func(segments []Segment)
}

// Engine is a transcription backend. Implementations are the whispercpp
// binding (build tag whisper_cpp), an external recognizer command, and a
// deterministic stub.
type Engine interface {
	// Decode runs one blocking pass over the samples and reports the
	// detected language. It returns errDecodeAborted when a hook stopped it.
	Decode(ctx context.Context, samples []float32, cfg DecodeConfig, hooks DecodeHooks) (string, error)
	// Close releases backend resources.
	Close() error
}
