package asr

import "time"

// Segment is a contiguous span of transcribed text with timestamps
// relative to the start of the audio buffer.
type Segment struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

// Status is the terminal state of a finished session.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Result is the outcome of a session run. A cancelled run still carries
// every segment that was finalized before the cancellation checkpoint.
type Result struct {
	Segments     []Segment
	SegmentCount int
	Status       Status
	Language     string
}

// Sink receives push-style notifications while a session runs. Both
// methods are invoked synchronously on the goroutine executing Run, so
// a slow sink stalls the decode; sinks that need to do real work should
// hand the event off and return.
type Sink interface {
	OnProgress(percent int)
	OnSegments(segments []Segment)
}

// NopSink discards all notifications.
type NopSink struct{}

func (NopSink) OnProgress(int)       {}
func (NopSink) OnSegments([]Segment) {}
