//go:build !whisper_cpp

package asr

import "log/slog"

// NativeAvailable reports whether the whispercpp backend is compiled in.
func NativeAvailable() bool { return false }

func newNativeEngine(string, *slog.Logger) (Engine, error) {
	return nil, ErrEngineUnavailable
}
