package sync

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/username/spendsync/src/api"
	"github.com/username/spendsync/src/logger"
	"github.com/username/spendsync/src/models"
	"golang.org/x/time/rate"
)

// ImportQueue is the durable at-least-once queue of CSV files awaiting
// upload. Payloads live in a pending-uploads directory keyed by job ID;
// attempt metadata lives in the pending_imports table. A job is removed
// only after a confirmed successful upload.
type ImportQueue struct {
	db      *sql.DB
	remote  *api.ExpenseAPI
	dir     string
	limiter *rate.Limiter

	initialBackoff time.Duration
	maxBackoff     time.Duration

	now func() time.Time
}

// NewImportQueue creates the pending-uploads directory if needed.
// drainMinInterval bounds how often whole drains may run, so flapping
// connectivity cannot hammer the backend; zero disables the throttle.
func NewImportQueue(db *sql.DB, remote *api.ExpenseAPI, dir string, drainMinInterval, maxBackoff time.Duration) (*ImportQueue, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create pending uploads dir: %w", err)
	}
	limit := rate.Inf
	if drainMinInterval > 0 {
		limit = rate.Every(drainMinInterval)
	}
	return &ImportQueue{
		db:             db,
		remote:         remote,
		dir:            dir,
		limiter:        rate.NewLimiter(limit, 1),
		initialBackoff: 500 * time.Millisecond,
		maxBackoff:     maxBackoff,
		now:            time.Now,
	}, nil
}

func (q *ImportQueue) payloadPath(id string) string {
	return filepath.Join(q.dir, id+".csv")
}

// Queue copies the payload into the durable pending-uploads location and
// immediately attempts the upload.
func (q *ImportQueue) Queue(ctx context.Context, filename string, payload []byte) (models.PendingImport, error) {
	job := models.PendingImport{
		ID:            uuid.NewString(),
		Filename:      filename,
		NextAttemptAt: q.now().UTC(),
		CreatedAt:     q.now().UTC(),
	}

	if err := os.WriteFile(q.payloadPath(job.ID), payload, 0o600); err != nil {
		return models.PendingImport{}, fmt.Errorf("persist import payload: %w", err)
	}
	if err := job.Insert(q.db); err != nil {
		os.Remove(q.payloadPath(job.ID))
		return models.PendingImport{}, err
	}
	logger.L.Info("Import queued", "importID", job.ID, "filename", filename)

	if err := q.attempt(ctx, &job); err != nil {
		// Stays queued; the next drain retries it.
		logger.L.Warn("Immediate import upload failed, left queued", "importID", job.ID, "error", err)
	}
	return job, nil
}

// List returns the queued jobs, oldest first.
func (q *ImportQueue) List() ([]models.PendingImport, error) {
	return models.ListPendingImports(q.db)
}

// Drain attempts every due queued file once. Failures leave the file
// queued with an incremented attempt count and a backed-off next-attempt
// time. Invoked on connectivity-restored events and opportunistically at
// the end of each reconciliation cycle.
func (q *ImportQueue) Drain(ctx context.Context) error {
	if !q.limiter.Allow() {
		logger.L.Debug("Import drain throttled")
		return nil
	}

	jobs, err := models.ListPendingImports(q.db)
	if err != nil {
		return fmt.Errorf("list pending imports: %w", err)
	}

	now := q.now()
	for i := range jobs {
		job := &jobs[i]
		if job.NextAttemptAt.After(now) {
			continue
		}
		if err := q.attempt(ctx, job); err != nil {
			logger.L.Warn("Import upload failed, left queued",
				"importID", job.ID, "attempts", job.Attempts, "error", err)
		}
	}
	return nil
}

// attempt uploads one file. Success removes payload and metadata;
// failure records the attempt and reschedules.
func (q *ImportQueue) attempt(ctx context.Context, job *models.PendingImport) error {
	content, err := os.ReadFile(q.payloadPath(job.ID))
	if err != nil {
		return fmt.Errorf("read import payload: %w", err)
	}

	if err := q.remote.Import(ctx, job.Filename, content); err != nil {
		// Keep the in-memory job in step with the row so callers holding
		// it (Queue's return value) see the recorded attempt.
		job.Attempts++
		job.NextAttemptAt = q.now().Add(q.retryDelay(job.Attempts))
		if dbErr := models.RecordImportAttempt(q.db, job.ID, job.NextAttemptAt); dbErr != nil {
			logger.L.Error("Failed to record import attempt", "importID", job.ID, "error", dbErr)
		}
		return err
	}

	if err := models.DeleteImport(q.db, job.ID); err != nil {
		return fmt.Errorf("dequeue import %s: %w", job.ID, err)
	}
	if err := os.Remove(q.payloadPath(job.ID)); err != nil {
		logger.L.Warn("Failed to remove uploaded import payload", "importID", job.ID, "error", err)
	}
	logger.L.Info("Import uploaded", "importID", job.ID, "filename", job.Filename, "attempts", job.Attempts+1)
	return nil
}

// retryDelay walks the exponential schedule to the given attempt number.
func (q *ImportQueue) retryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.initialBackoff
	b.MaxInterval = q.maxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	d := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}
