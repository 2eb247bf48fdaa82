package asr

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newStubModel(t *testing.T) *Model {
	t.Helper()
	m := NewModel(newStubEngine(newLogger()), newLogger())
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// tone returns n seconds of clearly non-silent audio.
func tone(seconds int) []float32 {
	samples := make([]float32, seconds*SampleRate)
	for i := range samples {
		samples[i] = 0.5
	}
	return samples
}

// recordingSink collects every notification for later assertions.
type recordingSink struct {
	progress   []int
	segments   []Segment
	onSegments func([]Segment)
}

func (r *recordingSink) OnProgress(percent int) {
	r.progress = append(r.progress, percent)
}

func (r *recordingSink) OnSegments(batch []Segment) {
	r.segments = append(r.segments, batch...)
	if r.onSegments != nil {
		r.onSegments(batch)
	}
}

func TestRunCompletes(t *testing.T) {
	m := newStubModel(t)
	s, err := m.NewSession()
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	sink := &recordingSink{}
	result, err := s.Run(context.Background(), tone(3), DefaultDecodeConfig(), sink, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", result.Status)
	}
	if result.SegmentCount != len(result.Segments) {
		t.Fatalf("segment count %d does not match %d segments", result.SegmentCount, len(result.Segments))
	}
	if result.SegmentCount == 0 {
		t.Fatal("expected segments from a non-silent buffer")
	}
	if result.Language != "en" {
		t.Fatalf("expected detected language en, got %q", result.Language)
	}
	for i, seg := range result.Segments {
		if seg.End < seg.Start {
			t.Fatalf("segment %d ends before it starts: %v > %v", i, seg.Start, seg.End)
		}
		if i > 0 && seg.Start < result.Segments[i-1].Start {
			t.Fatalf("segment %d start %v precedes previous start %v", i, seg.Start, result.Segments[i-1].Start)
		}
	}
}

func TestRunProgressMonotonic(t *testing.T) {
	m := newStubModel(t)
	s, _ := m.NewSession()

	sink := &recordingSink{}
	if _, err := s.Run(context.Background(), tone(12), DefaultDecodeConfig(), sink, nil); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(sink.progress) == 0 {
		t.Fatal("expected progress reports")
	}
	prev := -1
	for _, p := range sink.progress {
		if p < 0 || p > 100 {
			t.Fatalf("progress %d out of range", p)
		}
		if p <= prev {
			t.Fatalf("progress not strictly increasing: %v", sink.progress)
		}
		if prev >= 0 && p != 100 && p < prev+minProgressStep {
			t.Fatalf("progress advanced by less than %d points: %v", minProgressStep, sink.progress)
		}
		prev = p
	}
	if prev != 100 {
		t.Fatalf("final progress %d, want 100", prev)
	}
}

func TestRunSilentBuffer(t *testing.T) {
	m := newStubModel(t)
	s, _ := m.NewSession()

	result, err := s.Run(context.Background(), make([]float32, SampleRate), DefaultDecodeConfig(), nil, nil)
	if err != nil {
		t.Fatalf("silent audio must not fail: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", result.Status)
	}
	if result.SegmentCount != 0 {
		t.Fatalf("expected no segments for silence, got %d", result.SegmentCount)
	}
}

func TestRunEmptyAudio(t *testing.T) {
	m := newStubModel(t)
	s, _ := m.NewSession()

	if _, err := s.Run(context.Background(), nil, DefaultDecodeConfig(), nil, nil); !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestRunInvalidConfig(t *testing.T) {
	m := newStubModel(t)
	s, _ := m.NewSession()

	cfg := DefaultDecodeConfig()
	cfg.Threads = 0
	sink := &recordingSink{}
	if _, err := s.Run(context.Background(), tone(1), cfg, sink, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if len(sink.progress) != 0 || len(sink.segments) != 0 {
		t.Fatal("validation failure must precede any engine work")
	}
}

func TestRunSessionSingleUse(t *testing.T) {
	m := newStubModel(t)
	s, _ := m.NewSession()

	if _, err := s.Run(context.Background(), tone(1), DefaultDecodeConfig(), nil, nil); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if _, err := s.Run(context.Background(), tone(1), DefaultDecodeConfig(), nil, nil); !errors.Is(err, ErrSessionReused) {
		t.Fatalf("expected ErrSessionReused, got %v", err)
	}
}

func TestRunTokenReuse(t *testing.T) {
	m := newStubModel(t)
	token := NewCancelToken()

	s1, _ := m.NewSession()
	if _, err := s1.Run(context.Background(), tone(1), DefaultDecodeConfig(), nil, token); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	s2, _ := m.NewSession()
	if _, err := s2.Run(context.Background(), tone(1), DefaultDecodeConfig(), nil, token); !errors.Is(err, ErrTokenReused) {
		t.Fatalf("expected ErrTokenReused, got %v", err)
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	m := newStubModel(t)
	s, _ := m.NewSession()

	token := NewCancelToken()
	token.Request()

	result, err := s.Run(context.Background(), tone(3), DefaultDecodeConfig(), nil, token)
	if err != nil {
		t.Fatalf("cancellation is not an error: %v", err)
	}
	if result.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %q", result.Status)
	}
	if result.SegmentCount != 0 {
		t.Fatalf("expected no segments before the first checkpoint, got %d", result.SegmentCount)
	}
}

func TestRunCancelledMidDecode(t *testing.T) {
	m := newStubModel(t)
	s, _ := m.NewSession()

	token := NewCancelToken()
	sink := &recordingSink{}
	sink.onSegments = func([]Segment) { token.Request() }

	result, err := s.Run(context.Background(), tone(5), DefaultDecodeConfig(), sink, token)
	if err != nil {
		t.Fatalf("cancellation is not an error: %v", err)
	}
	if result.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %q", result.Status)
	}
	if result.SegmentCount == 0 || result.SegmentCount >= 5 {
		t.Fatalf("expected a partial transcript, got %d segments", result.SegmentCount)
	}
	if result.SegmentCount != len(result.Segments) {
		t.Fatalf("segment count %d does not match %d segments", result.SegmentCount, len(result.Segments))
	}
}

func TestRunContextCancelled(t *testing.T) {
	m := newStubModel(t)
	s, _ := m.NewSession()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.Run(ctx, tone(3), DefaultDecodeConfig(), nil, nil)
	if err != nil {
		t.Fatalf("context cancellation is not an error: %v", err)
	}
	if result.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %q", result.Status)
	}
}

func TestRunAfterClose(t *testing.T) {
	m := NewModel(newStubEngine(newLogger()), newLogger())
	s, err := m.NewSession()
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := m.NewSession(); !errors.Is(err, ErrModelClosed) {
		t.Fatalf("expected ErrModelClosed from NewSession, got %v", err)
	}
	if _, err := s.Run(context.Background(), tone(1), DefaultDecodeConfig(), nil, nil); !errors.Is(err, ErrModelClosed) {
		t.Fatalf("expected ErrModelClosed from Run, got %v", err)
	}
}

type failingEngine struct {
	code int
}

func (e *failingEngine) Decode(context.Context, []float32, DecodeConfig, DecodeHooks) (string, error) {
	return "", &InferenceError{Code: e.code}
}

func (e *failingEngine) Close() error { return nil }

func TestRunEngineFailure(t *testing.T) {
	m := NewModel(&failingEngine{code: 3}, newLogger())
	t.Cleanup(func() { _ = m.Close() })
	s, _ := m.NewSession()

	_, err := s.Run(context.Background(), tone(1), DefaultDecodeConfig(), nil, nil)
	var infErr *InferenceError
	if !errors.As(err, &infErr) {
		t.Fatalf("expected InferenceError, got %v", err)
	}
	if infErr.Code != 3 {
		t.Fatalf("expected code 3, got %d", infErr.Code)
	}

	// The handle survives an inference failure.
	s2, err := m.NewSession()
	if err != nil {
		t.Fatalf("handle should remain usable: %v", err)
	}
	_ = s2
}

func TestProgressReporterThrottle(t *testing.T) {
	sink := &recordingSink{}
	r := newProgressReporter(sink)

	for _, p := range []int{3, 9, 10, 14, 19, 20, 55, 57, 110} {
		r.report(p)
	}
	want := []int{10, 20, 55, 100}
	if len(sink.progress) != len(want) {
		t.Fatalf("got %v, want %v", sink.progress, want)
	}
	for i := range want {
		if sink.progress[i] != want[i] {
			t.Fatalf("got %v, want %v", sink.progress, want)
		}
	}

	// finish is a no-op once 100 has been reported.
	r.finish()
	if len(sink.progress) != len(want) {
		t.Fatalf("finish after 100 must not re-emit: %v", sink.progress)
	}
}
