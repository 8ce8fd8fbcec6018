package models

import (
	"database/sql"
	"fmt"
	"time"
)

// PendingImport is the metadata row for a queued CSV upload. The file
// payload itself lives in the pending-uploads directory under ID.
// A row is removed only after a confirmed successful upload.
type PendingImport struct {
	ID            string    `json:"id"`
	Filename      string    `json:"filename"`
	Attempts      int       `json:"attempts"`
	NextAttemptAt time.Time `json:"nextAttemptAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Insert queues a new import job.
func (p *PendingImport) Insert(db *sql.DB) error {
	_, err := db.Exec(`
		INSERT INTO pending_imports (id, filename, attempts, next_attempt_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Filename, p.Attempts, p.NextAttemptAt.UTC(), p.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert pending import %s: %w", p.ID, err)
	}
	return nil
}

// ListPendingImports returns every queued job, oldest first.
func ListPendingImports(db *sql.DB) ([]PendingImport, error) {
	rows, err := db.Query(`
		SELECT id, filename, attempts, next_attempt_at, created_at
		FROM pending_imports ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var imports []PendingImport
	for rows.Next() {
		var p PendingImport
		if err := rows.Scan(&p.ID, &p.Filename, &p.Attempts, &p.NextAttemptAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		imports = append(imports, p)
	}
	return imports, rows.Err()
}

// RecordImportAttempt increments the attempt counter and schedules the
// next retry. Called after a failed upload; the row stays queued.
func RecordImportAttempt(db *sql.DB, id string, nextAttemptAt time.Time) error {
	_, err := db.Exec(`UPDATE pending_imports
		SET attempts = attempts + 1, next_attempt_at = ?
		WHERE id = ?`, nextAttemptAt.UTC(), id)
	return err
}

// DeleteImport removes a job after a confirmed successful upload.
func DeleteImport(db *sql.DB, id string) error {
	_, err := db.Exec(`DELETE FROM pending_imports WHERE id = ?`, id)
	return err
}
