package protocol

import (
	"time"

	"github.com/scribelabs/scribe-core/internal/asr"
)

// AudioJob is a request to transcribe one audio buffer. Exactly one of WAV
// or PCM must be set; PCM is little-endian signed 16-bit mono at SampleRate.
type AudioJob struct {
	JobID      string `json:"job_id,omitempty"`
	WAV        []byte `json:"wav,omitempty"`
	PCM        []byte `json:"pcm,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`

	// Optional decode overrides; zero values fall back to the daemon config.
	Language         string `json:"language,omitempty"`
	InitialPrompt    string `json:"initial_prompt,omitempty"`
	Translate        bool   `json:"translate,omitempty"`
	OffsetMS         int    `json:"offset_ms,omitempty"`
	DurationMS       int    `json:"duration_ms,omitempty"`
	MaxSegmentLength int    `json:"max_segment_length,omitempty"`
}

// Progress reports decode advancement for a job, in whole percent.
type Progress struct {
	JobID     string    `json:"job_id"`
	Percent   int       `json:"percent"`
	Timestamp time.Time `json:"timestamp"`
}

// SegmentEvent carries newly finalized segments, in time order.
type SegmentEvent struct {
	JobID    string        `json:"job_id"`
	Segments []asr.Segment `json:"segments"`
}

// ResultEvent is the terminal message for a job.
type ResultEvent struct {
	JobID        string        `json:"job_id"`
	Status       string        `json:"status"` // completed, cancelled, failed
	Segments     []asr.Segment `json:"segments,omitempty"`
	SegmentCount int           `json:"segment_count"`
	Language     string        `json:"language,omitempty"`
	Error        string        `json:"error,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

const (
	SubjectJobPrefix      = "transcribe.job"
	SubjectCancelPrefix   = "transcribe.cancel"
	SubjectProgressPrefix = "transcribe.progress"
	SubjectSegmentPrefix  = "transcribe.segment"
	SubjectResultPrefix   = "transcribe.result"

	StatusFailed = "failed"
)

func JobSubject(id string) string      { return SubjectJobPrefix + "." + id }
func CancelSubject(id string) string   { return SubjectCancelPrefix + "." + id }
func ProgressSubject(id string) string { return SubjectProgressPrefix + "." + id }
func SegmentSubject(id string) string  { return SubjectSegmentPrefix + "." + id }
func ResultSubject(id string) string   { return SubjectResultPrefix + "." + id }
