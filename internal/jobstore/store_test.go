package jobstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/scribelabs/scribe-core/internal/asr"
	"github.com/scribelabs/scribe-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T, cfg config.JobStoreConfig) *Store {
	t.Helper()
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open job store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenEphemeral(t *testing.T) {
	s := openStore(t, config.JobStoreConfig{RetentionMode: "ephemeral"})
	if err := s.SaveResult(context.Background(), "job-1", "completed", "en", "", nil); err != nil {
		t.Fatalf("ephemeral save must be a no-op: %v", err)
	}
	if _, err := s.GetJob(context.Background(), "job-1"); err == nil {
		t.Fatal("ephemeral store must not retain jobs")
	}
}

func TestSaveAndGet(t *testing.T) {
	cfg := config.JobStoreConfig{
		Path:          filepath.Join(t.TempDir(), "jobs.db"),
		RetentionMode: "session",
	}
	s := openStore(t, cfg)

	segments := []asr.Segment{
		{Start: 0, End: time.Second, Text: "hello"},
		{Start: time.Second, End: 2 * time.Second, Text: "world"},
	}
	if err := s.SaveResult(context.Background(), "job-1", "completed", "en", "", segments); err != nil {
		t.Fatalf("save result: %v", err)
	}

	job, err := s.GetJob(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != "completed" || job.Language != "en" {
		t.Fatalf("unexpected job record: %+v", job)
	}
	if job.SegmentCount != 2 {
		t.Fatalf("expected 2 segments recorded, got %d", job.SegmentCount)
	}

	got, err := s.ListJobSegments(context.Background(), "job-1", 10)
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(got))
	}
	if got[0].Text != "hello" || got[1].Text != "world" {
		t.Fatalf("segments out of order: %+v", got)
	}
	if got[1].Start != time.Second {
		t.Fatalf("expected second segment to start at 1s, got %v", got[1].Start)
	}
}

func TestSaveResultUpsert(t *testing.T) {
	cfg := config.JobStoreConfig{
		Path:          filepath.Join(t.TempDir(), "jobs.db"),
		RetentionMode: "session",
	}
	s := openStore(t, cfg)

	if err := s.SaveResult(context.Background(), "job-1", "failed", "", "boom", nil); err != nil {
		t.Fatalf("save result: %v", err)
	}
	if err := s.SaveResult(context.Background(), "job-1", "completed", "en", "", nil); err != nil {
		t.Fatalf("second save must upsert: %v", err)
	}

	job, err := s.GetJob(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != "completed" || job.Error != "" {
		t.Fatalf("expected upserted record, got %+v", job)
	}
}

func TestPruneMaxJobs(t *testing.T) {
	cfg := config.JobStoreConfig{
		Path:          filepath.Join(t.TempDir(), "jobs.db"),
		RetentionMode: "persistent",
		MaxJobs:       2,
	}
	s := openStore(t, cfg)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"job-a", "job-b", "job-c"} {
		ts := base.Add(time.Duration(i) * time.Hour)
		s.clock = func() time.Time { return ts }
		if err := s.SaveResult(context.Background(), id, "completed", "en", "", nil); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	if err := s.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	if _, err := s.GetJob(context.Background(), "job-a"); err == nil {
		t.Fatal("expected oldest job to be pruned")
	}
	if _, err := s.GetJob(context.Background(), "job-c"); err != nil {
		t.Fatalf("newest job must survive prune: %v", err)
	}
}
