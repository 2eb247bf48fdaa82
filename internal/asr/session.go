package asr

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

const (
	stateCreated int32 = iota
	stateRunning
	stateCompleted
	stateCancelled
	stateFailed
)

// Session wraps one blocking decode pass against a Model. It is single-use:
// Created -> Running -> {Completed, Cancelled, Failed}, with no transitions
// out of a terminal state. A session must not outlive the handle it borrows.
type Session struct {
	model *Model
	state atomic.Int32
}

// Run performs the decode on the calling goroutine. samples must be
// non-empty mono 32-bit float PCM at SampleRate.
//
// Cancellation is cooperative: the token and ctx are consulted before each
// encoder sub-step and each decoding iteration. A cancelled run is a partial
// success, not a failure — it returns the segments finalized so far with
// StatusCancelled and a nil error. Engine failures return InferenceError;
// the handle stays usable for a fresh session.
func (s *Session) Run(ctx context.Context, samples []float32, cfg DecodeConfig, sink Sink, token *CancelToken) (Result, error) {
	if !s.state.CompareAndSwap(stateCreated, stateRunning) {
		return Result{}, ErrSessionReused
	}
	if s.model.closed.Load() {
		s.state.Store(stateFailed)
		return Result{}, ErrModelClosed
	}
	if len(samples) == 0 {
		s.state.Store(stateFailed)
		return Result{}, ErrEmptyAudio
	}
	if err := cfg.Validate(); err != nil {
		s.state.Store(stateFailed)
		return Result{}, err
	}
	if token == nil {
		token = NewCancelToken()
	}
	if err := token.bind(s); err != nil {
		s.state.Store(stateFailed)
		return Result{}, err
	}
	if sink == nil {
		sink = NopSink{}
	}

	s.model.runMu.Lock()
	defer s.model.runMu.Unlock()

	// Close may have won the race for the lock.
	if s.model.closed.Load() {
		s.state.Store(stateFailed)
		return Result{}, ErrModelClosed
	}

	cancelled := func() bool {
		return token.Requested() || ctx.Err() != nil
	}

	reporter := newProgressReporter(sink)
	var segments []Segment
	hooks := DecodeHooks{
		EncoderBegin: func() bool { return !cancelled() },
		Abort:        cancelled,
		Progress:     reporter.report,
		Segments: func(batch []Segment) {
			if len(batch) == 0 {
				return
			}
			segments = append(segments, batch...)
			sink.OnSegments(batch)
		},
	}

	lang, err := s.model.engine.Decode(ctx, samples, cfg, hooks)

	if cancelled() {
		// Aborted at a checkpoint, or the engine surfaced the abort as its
		// own failure. Either way the finalized segments are kept.
		s.state.Store(stateCancelled)
		return Result{
			Segments:     segments,
			SegmentCount: len(segments),
			Status:       StatusCancelled,
			Language:     lang,
		}, nil
	}
	if err != nil && !errors.Is(err, errDecodeAborted) {
		s.state.Store(stateFailed)
		var infErr *InferenceError
		if errors.As(err, &infErr) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("asr: decode: %w", err)
	}

	reporter.finish()
	s.state.Store(stateCompleted)
	return Result{
		Segments:     segments,
		SegmentCount: len(segments),
		Status:       StatusCompleted,
		Language:     lang,
	}, nil
}

// progressReporter throttles engine progress ticks: a percent is forwarded
// to the sink only once it has advanced at least minProgressStep points past
// the last reported value. Reports are strictly increasing and capped at 100.
type progressReporter struct {
	sink Sink
	last int
}

const minProgressStep = 10

func newProgressReporter(sink Sink) *progressReporter {
	return &progressReporter{sink: sink}
}

func (r *progressReporter) report(percent int) {
	if percent > 100 {
		percent = 100
	}
	if percent < r.last+minProgressStep {
		return
	}
	r.last = percent
	r.sink.OnProgress(percent)
}

// finish emits the final 100 on successful completion, even when the last
// tick landed less than a full step below it.
func (r *progressReporter) finish() {
	if r.last >= 100 {
		return
	}
	r.last = 100
	r.sink.OnProgress(100)
}
