package jobstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/scribelabs/scribe-core/internal/asr"
	"github.com/scribelabs/scribe-core/internal/config"
)

// Job is a recorded transcription job.
type Job struct {
	JobID        string
	Status       string
	Language     string
	SegmentCount int
	Error        string
	CreatedAt    time.Time
}

// Store persists finished jobs and their segments in SQLite.
type Store struct {
	db    *sql.DB
	cfg   config.JobStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the job store according to config. In ephemeral mode the
// store keeps no database and every write is a no-op.
func Open(ctx context.Context, cfg config.JobStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("job store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("job store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS jobs (
    job_id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    language TEXT,
    segment_count INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS segments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id TEXT NOT NULL,
    start_ms INTEGER NOT NULL,
    end_ms INTEGER NOT NULL,
    text TEXT NOT NULL,
    FOREIGN KEY(job_id) REFERENCES jobs(job_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_segments_job_start ON segments(job_id, start_ms);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveResult records a finished job and its segments in one transaction.
func (s *Store) SaveResult(ctx context.Context, jobID, status, language, errMsg string, segments []asr.Segment) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO jobs(job_id, status, language, segment_count, error, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(job_id) DO UPDATE SET
		   status=excluded.status, language=excluded.language,
		   segment_count=excluded.segment_count, error=excluded.error`,
		jobID, status, language, len(segments), errMsg, s.clock().UTC()); err != nil {
		return err
	}
	for _, seg := range segments {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO segments(job_id, start_ms, end_ms, text) VALUES(?, ?, ?, ?)`,
			jobID, seg.Start.Milliseconds(), seg.End.Milliseconds(), seg.Text); err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// GetJob retrieves one job record.
func (s *Store) GetJob(ctx context.Context, jobID string) (Job, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return Job{}, sql.ErrNoRows
	}
	var (
		j       Job
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT job_id, status, language, segment_count, error, created_at
		 FROM jobs WHERE job_id = ?`, jobID).
		Scan(&j.JobID, &j.Status, &j.Language, &j.SegmentCount, &j.Error, &created)
	if err != nil {
		return Job{}, err
	}
	if ts, perr := time.Parse(time.RFC3339Nano, created); perr == nil {
		j.CreatedAt = ts
	}
	return j, nil
}

// ListJobSegments retrieves up to limit segments for a job in time order.
func (s *Store) ListJobSegments(ctx context.Context, jobID string, limit int) ([]asr.Segment, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT start_ms, end_ms, text FROM segments
		 WHERE job_id = ? ORDER BY start_ms ASC, id ASC LIMIT ?`, jobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var segments []asr.Segment
	for rows.Next() {
		var (
			seg            asr.Segment
			startMS, endMS int64
		)
		if err := rows.Scan(&startMS, &endMS, &seg.Text); err != nil {
			return nil, err
		}
		seg.Start = time.Duration(startMS) * time.Millisecond
		seg.End = time.Duration(endMS) * time.Millisecond
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM jobs WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxJobs > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM jobs WHERE job_id IN (
			SELECT job_id FROM jobs ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxJobs)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
