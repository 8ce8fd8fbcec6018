// Package sync keeps the local record store eventually consistent with
// the remote backend while keeping reads immediate and local.
package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	gosync "sync"

	"github.com/google/uuid"
	"github.com/username/spendsync/src/api"
	"github.com/username/spendsync/src/logger"
	"github.com/username/spendsync/src/models"
	"github.com/username/spendsync/src/security/validation"
	"github.com/username/spendsync/src/session"
)

// EventType classifies engine notifications delivered to subscribers.
type EventType int

const (
	// EventRecordsChanged means the visible record list may have changed.
	EventRecordsChanged EventType = iota
	// EventSyncFailed means a background cycle hit an error. The local
	// optimistic state is still valid; the cycle will be retried.
	EventSyncFailed
)

// Event is delivered to engine subscribers.
type Event struct {
	Type EventType
	Err  error
}

// RecordInput carries the user-entered fields of a new or edited record.
type RecordInput struct {
	Type          string  `json:"type"`
	Product       string  `json:"product"`
	Description   string  `json:"description"`
	Amount        float64 `json:"amount"`
	Fee           float64 `json:"fee"`
	Currency      string  `json:"currency"`
	State         string  `json:"state"`
	Category      string  `json:"category"`
	StartedDate   string  `json:"startedDate"`
	CompletedDate string  `json:"completedDate"`
}

// Engine owns reconciliation between the local record store and the
// backend, and the durable CSV import queue. The store is mutated only
// here; the UI reads through FetchRecords.
type Engine struct {
	db      *sql.DB
	remote  *api.ExpenseAPI
	imports *ImportQueue

	// trigger has capacity 1: a cycle in flight absorbs any number of
	// further triggers into at most one queued rerun.
	trigger chan struct{}

	mu          gosync.Mutex
	subscribers []func(Event)
}

func NewEngine(db *sql.DB, remote *api.ExpenseAPI, imports *ImportQueue) *Engine {
	return &Engine{
		db:      db,
		remote:  remote,
		imports: imports,
		trigger: make(chan struct{}, 1),
	}
}

// Subscribe registers a callback for record-list and sync-error events.
func (e *Engine) Subscribe(fn func(Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, fn)
}

func (e *Engine) notify(ev Event) {
	e.mu.Lock()
	subs := make([]func(Event), len(e.subscribers))
	copy(subs, e.subscribers)
	e.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// BindConnectivity schedules a reconciliation whenever reachability is
// restored.
func (e *Engine) BindConnectivity(c Connectivity) {
	c.Subscribe(func() {
		logger.L.Info("Connectivity restored, scheduling sync")
		e.TriggerSync()
	})
}

// TriggerSync schedules a reconciliation cycle without blocking.
// Triggers arriving while a cycle runs coalesce into one trailing run.
func (e *Engine) TriggerSync() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Start runs the reconciliation loop until ctx is cancelled. Cycles are
// strictly serialized; an in-flight cycle is never run in parallel with
// another.
func (e *Engine) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.trigger:
				if err := e.Reconcile(ctx); err != nil {
					// Background failure: the UI already has the
					// optimistic local state. Logged, not surfaced.
					logger.L.Warn("Reconciliation cycle failed", "error", err)
					e.notify(Event{Type: EventSyncFailed, Err: err})
				}
			}
		}
	}()
}

// FetchRecords returns the current local store contents immediately
// (excluding rows pending deletion) and schedules a reconciliation.
// The caller never blocks on network I/O for a read.
func (e *Engine) FetchRecords() ([]models.Expense, error) {
	records, err := models.ListVisibleExpenses(e.db)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	e.TriggerSync()
	return records, nil
}

func cleanInput(in RecordInput) (RecordInput, error) {
	in.Type = validation.CleanField(in.Type)
	in.Product = validation.CleanField(in.Product)
	in.Description = validation.CleanField(in.Description)
	in.State = validation.CleanField(in.State)
	in.Category = validation.CleanField(in.Category)

	if err := validation.ValidateAmount(in.Amount); err != nil {
		return in, err
	}
	if err := validation.ValidateCurrencyCode(in.Currency); err != nil {
		return in, err
	}
	if err := validation.ValidateStringMaxLength(in.Description, 500, "description"); err != nil {
		return in, err
	}
	return in, nil
}

// AddRecord inserts a PendingCreate row, commits, and schedules
// reconciliation. The optimistic local write is what the UI shows.
func (e *Engine) AddRecord(in RecordInput) (models.Expense, error) {
	in, err := cleanInput(in)
	if err != nil {
		return models.Expense{}, err
	}

	record := models.Expense{
		LocalID:       uuid.NewString(),
		Type:          in.Type,
		Product:       in.Product,
		Description:   in.Description,
		Amount:        in.Amount,
		Fee:           in.Fee,
		Currency:      in.Currency,
		State:         in.State,
		Category:      in.Category,
		StartedDate:   in.StartedDate,
		CompletedDate: in.CompletedDate,
		SyncStatus:    models.StatusPendingCreate,
	}
	if err := record.Insert(e.db); err != nil {
		return models.Expense{}, err
	}

	e.notify(Event{Type: EventRecordsChanged})
	e.TriggerSync()
	return record, nil
}

// DeleteRecord deletes locally and, for rows the server knows about,
// queues the remote delete. A record with no remote ID is purged with
// no network call, ever.
func (e *Engine) DeleteRecord(localID string) error {
	record, err := models.GetExpenseByLocalID(e.db, localID)
	if err != nil {
		return fmt.Errorf("load record %s: %w", localID, err)
	}

	if record.RemoteID == "" {
		if err := models.PurgeExpense(e.db, localID); err != nil {
			return err
		}
		e.notify(Event{Type: EventRecordsChanged})
		return nil
	}

	if err := models.MarkExpensePendingDelete(e.db, localID); err != nil {
		return err
	}
	e.notify(Event{Type: EventRecordsChanged})
	e.TriggerSync()
	return nil
}

// UpdateRecord overwrites the editable fields locally and, when the row
// is already synced, pushes the edit immediately. Failure of the remote
// call is surfaced to the caller (user-initiated action); the local
// overwrite stands either way. Rows still pending creation carry the
// new fields with their eventual push.
func (e *Engine) UpdateRecord(ctx context.Context, localID string, in RecordInput) (models.Expense, error) {
	in, err := cleanInput(in)
	if err != nil {
		return models.Expense{}, err
	}

	record, err := models.GetExpenseByLocalID(e.db, localID)
	if err != nil {
		return models.Expense{}, fmt.Errorf("load record %s: %w", localID, err)
	}

	record.Type = in.Type
	record.Product = in.Product
	record.Description = in.Description
	record.Amount = in.Amount
	record.Fee = in.Fee
	record.Currency = in.Currency
	record.State = in.State
	record.Category = in.Category
	record.StartedDate = in.StartedDate
	record.CompletedDate = in.CompletedDate

	if err := models.UpdateExpenseFields(e.db, &record); err != nil {
		return models.Expense{}, err
	}
	e.notify(Event{Type: EventRecordsChanged})

	if record.SyncStatus == models.StatusSynced && record.RemoteID != "" {
		if err := e.remote.Update(ctx, &record); err != nil {
			return record, err
		}
	}
	return record, nil
}

// DeleteAllRecords wipes the backend first, then the local store.
// User-initiated, so remote failure is surfaced before anything local
// is touched.
func (e *Engine) DeleteAllRecords(ctx context.Context) error {
	if err := e.remote.DeleteAll(ctx); err != nil {
		return err
	}
	if err := models.DeleteAllExpenses(e.db); err != nil {
		return err
	}
	e.notify(Event{Type: EventRecordsChanged})
	return nil
}

// QueueImport validates and queues a CSV payload for upload.
func (e *Engine) QueueImport(ctx context.Context, filename string, payload []byte, maxSizeBytes int64) (models.PendingImport, error) {
	if err := validation.ValidateImportPayload(payload, maxSizeBytes); err != nil {
		return models.PendingImport{}, err
	}
	return e.imports.Queue(ctx, filename, payload)
}

// PendingImports lists the queued CSV uploads.
func (e *Engine) PendingImports() ([]models.PendingImport, error) {
	return e.imports.List()
}

// isAuthTerminal reports an auth failure that cannot be retried within
// this cycle: the session manager has already forced a logout.
func isAuthTerminal(err error) bool {
	return errors.Is(err, session.ErrRefreshFailed) || errors.Is(err, session.ErrSessionExpired)
}

// Reconcile runs one push-then-pull cycle, then drains the import
// queue. Per-record failures are logged and left queued for the next
// cycle; a terminal auth failure abandons the rest of the cycle.
func (e *Engine) Reconcile(ctx context.Context) error {
	if err := e.push(ctx); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	// Push completes before pull begins, so a just-created local record
	// is never misread as remote-only and deleted.
	if err := e.pull(ctx); err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	if err := e.imports.Drain(ctx); err != nil {
		logger.L.Warn("Import drain failed", "error", err)
	}
	e.notify(Event{Type: EventRecordsChanged})
	return nil
}

func (e *Engine) push(ctx context.Context) error {
	pending, err := models.ListPendingExpenses(e.db)
	if err != nil {
		return err
	}

	for i := range pending {
		record := &pending[i]
		switch record.SyncStatus {
		case models.StatusPendingCreate:
			dto, err := e.remote.Add(ctx, record)
			if err != nil {
				if isAuthTerminal(err) {
					return err
				}
				logger.L.Warn("Push create failed, will retry", "localID", record.LocalID, "error", err)
				continue
			}
			if err := models.MarkExpenseSynced(e.db, record.LocalID, dto.ID); err != nil {
				return err
			}

		case models.StatusPendingDelete:
			if record.RemoteID == "" {
				// Never synced: purge locally, no network call.
				if err := models.PurgeExpense(e.db, record.LocalID); err != nil {
					return err
				}
				continue
			}
			if err := e.remote.Delete(ctx, record.RemoteID); err != nil {
				if isAuthTerminal(err) {
					return err
				}
				logger.L.Warn("Push delete failed, will retry", "localID", record.LocalID, "error", err)
				continue
			}
			if err := models.PurgeExpense(e.db, record.LocalID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) pull(ctx context.Context) error {
	remote, err := e.remote.List(ctx)
	if err != nil {
		return err
	}
	return models.ApplyRemoteSnapshot(e.db, remote, uuid.NewString)
}
