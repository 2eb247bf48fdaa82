package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/scribelabs/scribe-core/internal/asr"
	"github.com/scribelabs/scribe-core/internal/audio"
	"github.com/scribelabs/scribe-core/internal/bus"
	"github.com/scribelabs/scribe-core/internal/config"
	"github.com/scribelabs/scribe-core/internal/jobstore"
	"github.com/scribelabs/scribe-core/internal/protocol"
)

// Service consumes transcription jobs from the bus, runs one asr session per
// job, and republishes progress, segments, and the final result. Sessions
// against the shared model handle run one at a time; jobs queue up on the
// handle's internal lock.
type Service struct {
	cfg    config.Config
	bus    *bus.Client
	model  *asr.Model
	store  *jobstore.Store
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	subs   []*nats.Subscription
	wg     sync.WaitGroup

	mu     sync.Mutex
	tokens map[string]*asr.CancelToken

	meter         metric.Meter
	jobsFinished  metric.Int64Counter
	decodeSeconds metric.Float64Histogram
}

func NewService(parent context.Context, cfg config.Config, busClient *bus.Client, model *asr.Model, store *jobstore.Store) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:    cfg,
		bus:    busClient,
		model:  model,
		store:  store,
		log:    busClient.Logger().With(slog.String("component", "transcribe")),
		ctx:    ctx,
		cancel: cancel,
		tokens: make(map[string]*asr.CancelToken),
		meter:  otel.Meter("github.com/scribelabs/scribe-core/transcribe"),
	}
	if err := s.initMetrics(); err != nil {
		s.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return s
}

func (s *Service) initMetrics() error {
	var err error
	s.jobsFinished, err = s.meter.Int64Counter("scribe_jobs_finished_total",
		metric.WithDescription("Transcription jobs finished, by status"))
	if err != nil {
		return err
	}
	s.decodeSeconds, err = s.meter.Float64Histogram("scribe_decode_duration_seconds",
		metric.WithDescription("Wall-clock duration of decode runs"))
	return err
}

func (s *Service) Start() error {
	if !s.cfg.Transcribe.Enabled {
		return nil
	}
	jobSub, err := s.bus.Conn().Subscribe(protocol.SubjectJobPrefix+".>", s.handleJob)
	if err != nil {
		return fmt.Errorf("subscribe jobs: %w", err)
	}
	s.subs = append(s.subs, jobSub)

	cancelSub, err := s.bus.Conn().Subscribe(protocol.SubjectCancelPrefix+".>", s.handleCancel)
	if err != nil {
		jobSub.Drain()
		return fmt.Errorf("subscribe cancels: %w", err)
	}
	s.subs = append(s.subs, cancelSub)
	return nil
}

func (s *Service) Close() {
	s.cancel()
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Transcribe.Enabled || len(s.subs) == 2
}

func (s *Service) handleJob(msg *nats.Msg) {
	var job protocol.AudioJob
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		s.log.Warn("failed to decode audio job", slog.String("error", err.Error()))
		return
	}
	if job.JobID == "" {
		if suffix := strings.TrimPrefix(msg.Subject, protocol.SubjectJobPrefix+"."); suffix != "" && !strings.Contains(suffix, ".") {
			job.JobID = suffix
		} else {
			job.JobID = uuid.NewString()
		}
	}

	samples, err := s.decodeAudio(job)
	if err != nil {
		s.log.Warn("rejecting job with bad audio",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()))
		s.finishJob(job.JobID, asr.Result{}, err)
		return
	}

	token, ok := s.registerToken(job.JobID)
	if !ok {
		s.log.Warn("dropping job with an id that is already running", slog.String("job_id", job.JobID))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.unregisterToken(job.JobID)
		s.runJob(job, samples, token)
	}()
}

// registerToken claims a job id for the duration of its run. A second job
// arriving under an id that is still running is refused, so a cancel for
// the first can never land on the second.
func (s *Service) registerToken(jobID string) (*asr.CancelToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, active := s.tokens[jobID]; active {
		return nil, false
	}
	token := asr.NewCancelToken()
	s.tokens[jobID] = token
	return token, true
}

func (s *Service) unregisterToken(jobID string) {
	s.mu.Lock()
	delete(s.tokens, jobID)
	s.mu.Unlock()
}

func (s *Service) handleCancel(msg *nats.Msg) {
	jobID := strings.TrimPrefix(msg.Subject, protocol.SubjectCancelPrefix+".")
	s.mu.Lock()
	token := s.tokens[jobID]
	s.mu.Unlock()
	if token == nil {
		s.log.Debug("cancel for unknown job", slog.String("job_id", jobID))
		return
	}
	token.Request()
	s.log.Info("cancellation requested", slog.String("job_id", jobID))
}

func (s *Service) decodeAudio(job protocol.AudioJob) ([]float32, error) {
	switch {
	case len(job.WAV) > 0:
		samples, rate, err := audio.DecodeWAV(job.WAV)
		if err != nil {
			return nil, err
		}
		return audio.ResampleLinear(samples, rate, asr.SampleRate), nil
	case len(job.PCM) > 0:
		samples, err := audio.PCM16ToFloat32(job.PCM)
		if err != nil {
			return nil, err
		}
		rate := job.SampleRate
		if rate == 0 {
			rate = asr.SampleRate
		}
		return audio.ResampleLinear(samples, rate, asr.SampleRate), nil
	default:
		return nil, errors.New("job carries no audio payload")
	}
}

func (s *Service) decodeConfig(job protocol.AudioJob) asr.DecodeConfig {
	cfg := asr.DecodeConfig{
		Language:         s.cfg.ASR.Language,
		InitialPrompt:    s.cfg.ASR.InitialPrompt,
		BeamWidth:        s.cfg.ASR.BeamWidth,
		BestOf:           s.cfg.ASR.BestOf,
		EntropyThreshold: s.cfg.ASR.EntropyThreshold,
		LogProbThreshold: s.cfg.ASR.LogProbThreshold,
		MaxSegmentLength: s.cfg.ASR.MaxSegmentLength,
		Threads:          s.cfg.ASR.Threads,
	}
	if job.Language != "" {
		cfg.Language = job.Language
	}
	if job.InitialPrompt != "" {
		cfg.InitialPrompt = job.InitialPrompt
	}
	if job.MaxSegmentLength > 0 {
		cfg.MaxSegmentLength = job.MaxSegmentLength
	}
	cfg.Translate = job.Translate
	cfg.OffsetMS = job.OffsetMS
	cfg.DurationMS = job.DurationMS
	return cfg
}

func (s *Service) runJob(job protocol.AudioJob, samples []float32, token *asr.CancelToken) {
	session, err := s.model.NewSession()
	if err != nil {
		s.finishJob(job.JobID, asr.Result{}, err)
		return
	}

	sink := &busSink{svc: s, jobID: job.JobID}
	start := time.Now()
	result, err := session.Run(s.ctx, samples, s.decodeConfig(job), sink, token)
	elapsed := time.Since(start)

	if s.decodeSeconds != nil {
		s.decodeSeconds.Record(s.ctx, elapsed.Seconds())
	}
	s.finishJob(job.JobID, result, err)
}

func (s *Service) finishJob(jobID string, result asr.Result, runErr error) {
	status := string(result.Status)
	errMsg := ""
	if runErr != nil {
		status = protocol.StatusFailed
		errMsg = runErr.Error()
	}

	event := protocol.ResultEvent{
		JobID:        jobID,
		Status:       status,
		Segments:     result.Segments,
		SegmentCount: result.SegmentCount,
		Language:     result.Language,
		Error:        errMsg,
		Timestamp:    time.Now().UTC(),
	}
	if err := s.bus.PublishJSON(protocol.ResultSubject(jobID), event); err != nil {
		s.log.Warn("failed to publish result", slog.String("job_id", jobID), slog.String("error", err.Error()))
	}

	if s.store != nil {
		if err := s.store.SaveResult(s.ctx, jobID, status, result.Language, errMsg, result.Segments); err != nil {
			s.log.Warn("failed to persist job", slog.String("job_id", jobID), slog.String("error", err.Error()))
		}
	}

	if s.jobsFinished != nil {
		s.jobsFinished.Add(s.ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}

	if runErr != nil {
		s.log.Warn("job failed",
			slog.String("job_id", jobID),
			slog.String("error", errMsg))
		return
	}
	s.log.Info("job finished",
		slog.String("job_id", jobID),
		slog.String("status", status),
		slog.Int("segments", result.SegmentCount),
		slog.String("language", result.Language))
}

// busSink forwards session notifications to the bus. It runs on the decode
// goroutine, so it only marshals and publishes; subscribers do the real work.
type busSink struct {
	svc   *Service
	jobID string
}

func (b *busSink) OnProgress(percent int) {
	event := protocol.Progress{
		JobID:     b.jobID,
		Percent:   percent,
		Timestamp: time.Now().UTC(),
	}
	if err := b.svc.bus.PublishJSON(protocol.ProgressSubject(b.jobID), event); err != nil {
		b.svc.log.Warn("failed to publish progress", slog.String("job_id", b.jobID), slog.String("error", err.Error()))
	}
}

func (b *busSink) OnSegments(segments []asr.Segment) {
	event := protocol.SegmentEvent{
		JobID:    b.jobID,
		Segments: segments,
	}
	if err := b.svc.bus.PublishJSON(protocol.SegmentSubject(b.jobID), event); err != nil {
		b.svc.log.Warn("failed to publish segments", slog.String("job_id", b.jobID), slog.String("error", err.Error()))
	}
}
