package models

import (
	"database/sql"
	"fmt"
	"sort"
)

const expenseColumns = `local_id, remote_id, type, product, description, amount, fee, currency, state, category, started_date, completed_date, sync_status`

func scanExpense(row interface{ Scan(dest ...any) error }) (Expense, error) {
	var e Expense
	var remoteID, currency, state, category, startedDate, completedDate sql.NullString
	var fee sql.NullFloat64
	err := row.Scan(
		&e.LocalID, &remoteID, &e.Type, &e.Product, &e.Description,
		&e.Amount, &fee, &currency, &state, &category,
		&startedDate, &completedDate, &e.SyncStatus,
	)
	if err != nil {
		return Expense{}, err
	}
	e.RemoteID = remoteID.String
	e.Fee = fee.Float64
	e.Currency = currency.String
	e.State = state.String
	e.Category = category.String
	e.StartedDate = startedDate.String
	e.CompletedDate = completedDate.String
	return e, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Insert writes a new expense row.
func (e *Expense) Insert(db *sql.DB) error {
	_, err := db.Exec(`
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.LocalID, nullIfEmpty(e.RemoteID), e.Type, e.Product, e.Description,
		e.Amount, e.Fee, nullIfEmpty(e.Currency), nullIfEmpty(e.State), nullIfEmpty(e.Category),
		nullIfEmpty(e.StartedDate), nullIfEmpty(e.CompletedDate), e.SyncStatus,
	)
	if err != nil {
		return fmt.Errorf("insert expense %s: %w", e.LocalID, err)
	}
	return nil
}

// GetExpenseByLocalID fetches a single row by its client-generated ID.
func GetExpenseByLocalID(db *sql.DB, localID string) (Expense, error) {
	row := db.QueryRow(`SELECT `+expenseColumns+` FROM expenses WHERE local_id = ?`, localID)
	return scanExpense(row)
}

// ListVisibleExpenses returns every row except those pending deletion,
// newest started date first. This is the read path the UI sees. Dates
// are loosely-typed strings in mixed encodings, so ordering happens on
// the parsed timestamp rather than lexicographically; rows whose date
// matches no accepted layout sort last, newest created first.
func ListVisibleExpenses(db *sql.DB) ([]Expense, error) {
	expenses, err := listExpenses(db, `SELECT `+expenseColumns+` FROM expenses
		WHERE sync_status != ? ORDER BY created_at DESC`, StatusPendingDelete)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(expenses, func(i, j int) bool {
		return expenses[i].OccurredAt().After(expenses[j].OccurredAt())
	})
	return expenses, nil
}

// ListPendingExpenses returns rows awaiting a push, oldest first so
// creates and deletes replay in the order the user made them.
func ListPendingExpenses(db *sql.DB) ([]Expense, error) {
	return listExpenses(db, `SELECT `+expenseColumns+` FROM expenses
		WHERE sync_status != ? ORDER BY created_at ASC`, StatusSynced)
}

func listExpenses(db *sql.DB, query string, args ...any) ([]Expense, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expenses []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// MarkExpenseSynced records the server acknowledgment of a create:
// stores the returned remote ID and flips the row to Synced.
func MarkExpenseSynced(db *sql.DB, localID, remoteID string) error {
	_, err := db.Exec(`UPDATE expenses
		SET remote_id = ?, sync_status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE local_id = ?`,
		nullIfEmpty(remoteID), StatusSynced, localID)
	return err
}

// MarkExpensePendingDelete flips a row to PendingDelete. This overrides
// any prior PendingCreate without a round trip.
func MarkExpensePendingDelete(db *sql.DB, localID string) error {
	_, err := db.Exec(`UPDATE expenses
		SET sync_status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE local_id = ?`, StatusPendingDelete, localID)
	return err
}

// UpdateExpenseFields overwrites the user-editable fields of a row.
func UpdateExpenseFields(db *sql.DB, e *Expense) error {
	_, err := db.Exec(`UPDATE expenses
		SET type = ?, product = ?, description = ?, amount = ?, fee = ?,
		    currency = ?, state = ?, category = ?, started_date = ?, completed_date = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE local_id = ?`,
		e.Type, e.Product, e.Description, e.Amount, e.Fee,
		nullIfEmpty(e.Currency), nullIfEmpty(e.State), nullIfEmpty(e.Category),
		nullIfEmpty(e.StartedDate), nullIfEmpty(e.CompletedDate), e.LocalID)
	return err
}

// PurgeExpense removes a row outright. Used for never-synced deletes and
// for acknowledged remote deletes.
func PurgeExpense(db *sql.DB, localID string) error {
	_, err := db.Exec(`DELETE FROM expenses WHERE local_id = ?`, localID)
	return err
}

// DeleteAllExpenses wipes the local record store.
func DeleteAllExpenses(db *sql.DB) error {
	_, err := db.Exec(`DELETE FROM expenses`)
	return err
}

// ApplyRemoteSnapshot reconciles the authoritative remote list into the
// local store in a single transaction, so readers never observe a
// partially-applied pull. Per remote record: a matching Synced row is
// overwritten, an unknown remote ID is inserted as Synced, and rows with
// pending local changes are left untouched. Synced rows whose remote ID
// is absent from the snapshot are deleted (full-replace semantics).
// newLocalID supplies client-generated IDs for inserted rows.
func ApplyRemoteSnapshot(db *sql.DB, remote []ExpenseDTO, newLocalID func() string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin pull transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT local_id, remote_id, sync_status FROM expenses WHERE remote_id IS NOT NULL`)
	if err != nil {
		return err
	}
	type localRef struct {
		localID string
		status  SyncStatus
	}
	byRemoteID := make(map[string]localRef)
	for rows.Next() {
		var ref localRef
		var remoteID string
		if err := rows.Scan(&ref.localID, &remoteID, &ref.status); err != nil {
			rows.Close()
			return err
		}
		byRemoteID[remoteID] = ref
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(remote))
	for _, dto := range remote {
		if dto.ID == "" {
			continue
		}
		seen[dto.ID] = true

		ref, exists := byRemoteID[dto.ID]
		if !exists {
			e := dto.ToExpense(newLocalID())
			if _, err := tx.Exec(`
				INSERT INTO expenses (`+expenseColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				e.LocalID, e.RemoteID, e.Type, e.Product, e.Description,
				e.Amount, e.Fee, nullIfEmpty(e.Currency), nullIfEmpty(e.State), nullIfEmpty(e.Category),
				nullIfEmpty(e.StartedDate), nullIfEmpty(e.CompletedDate), e.SyncStatus,
			); err != nil {
				return fmt.Errorf("insert remote expense %s: %w", dto.ID, err)
			}
			continue
		}

		// Never overwrite a row with pending local changes; that would
		// silently discard an unsynced edit.
		if ref.status != StatusSynced {
			continue
		}
		if _, err := tx.Exec(`UPDATE expenses
			SET type = ?, product = ?, description = ?, amount = ?, fee = ?,
			    currency = ?, state = ?, category = ?, started_date = ?, completed_date = ?,
			    updated_at = CURRENT_TIMESTAMP
			WHERE local_id = ?`,
			dto.Type, dto.Product, dto.Description, dto.Amount, dto.Fee,
			nullIfEmpty(dto.Currency), nullIfEmpty(dto.State), nullIfEmpty(dto.Category),
			nullIfEmpty(dto.StartedDate), nullIfEmpty(dto.CompletedDate), ref.localID,
		); err != nil {
			return fmt.Errorf("overwrite expense %s: %w", ref.localID, err)
		}
	}

	// The remote list is authoritative for everything already synced.
	for remoteID, ref := range byRemoteID {
		if seen[remoteID] || ref.status != StatusSynced {
			continue
		}
		if _, err := tx.Exec(`DELETE FROM expenses WHERE local_id = ?`, ref.localID); err != nil {
			return fmt.Errorf("purge stale expense %s: %w", ref.localID, err)
		}
	}

	return tx.Commit()
}
