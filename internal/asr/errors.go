package asr

import (
	"errors"
	"fmt"
)

var (
	// ErrModelLoad indicates the model file could not be resolved or loaded.
	ErrModelLoad = errors.New("asr: model load failed")

	// ErrModelClosed indicates an operation on a handle after Close.
	ErrModelClosed = errors.New("asr: model handle is closed")

	// ErrInvalidConfig indicates an out-of-range decode parameter. The run
	// fails before any engine work starts.
	ErrInvalidConfig = errors.New("asr: invalid decode config")

	// ErrEmptyAudio indicates a run was attempted with no samples.
	ErrEmptyAudio = errors.New("asr: audio buffer is empty")

	// ErrTokenReused indicates a cancellation token was carried over from an
	// earlier session. Tokens are single-use so a stale cancellation can
	// never abort an unrelated run.
	ErrTokenReused = errors.New("asr: cancellation token already bound to another session")

	// ErrSessionReused indicates Run was invoked twice on one session.
	ErrSessionReused = errors.New("asr: session is single-use")

	// ErrEngineUnavailable indicates the whispercpp backend was not compiled
	// in (build tag whisper_cpp).
	ErrEngineUnavailable = errors.New("asr: whispercpp backend not built")

	// errDecodeAborted is returned by engines when a checkpoint hook asked
	// them to stop. The session translates it into StatusCancelled.
	errDecodeAborted = errors.New("asr: decode aborted at checkpoint")
)

// InferenceError reports an unrecoverable engine failure. The handle stays
// usable; retrying with a fresh session is the caller's decision.
type InferenceError struct {
	Code int
	Err  error
}

func (e *InferenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("asr: inference failed with code %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("asr: inference failed with code %d", e.Code)
}

func (e *InferenceError) Unwrap() error { return e.Err }
