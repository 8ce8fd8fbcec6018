package models

import (
	"time"
)

// SyncStatus tracks how a local row relates to the remote backend.
type SyncStatus int

const (
	// StatusSynced means the row matches the server's copy.
	StatusSynced SyncStatus = 0
	// StatusPendingCreate means the row was created locally and not yet
	// acknowledged by the server.
	StatusPendingCreate SyncStatus = 1
	// StatusPendingDelete means the row is deleted locally and the delete
	// has not yet been acknowledged by the server. Rows in this state are
	// hidden from readers.
	StatusPendingDelete SyncStatus = 2
)

// Expense is a single financial entry in the local record store.
// RemoteID is empty until the server acknowledges the first create.
// Dates are kept as the loosely-typed strings the backend uses; see
// ParseFlexibleDate for the accepted encodings.
type Expense struct {
	LocalID       string     `json:"localId"`
	RemoteID      string     `json:"remoteId,omitempty"`
	Type          string     `json:"type"`
	Product       string     `json:"product"`
	Description   string     `json:"description"`
	Amount        float64    `json:"amount"`
	Fee           float64    `json:"fee,omitempty"`
	Currency      string     `json:"currency,omitempty"`
	State         string     `json:"state,omitempty"`
	Category      string     `json:"category,omitempty"`
	StartedDate   string     `json:"startedDate,omitempty"`
	CompletedDate string     `json:"completedDate,omitempty"`
	SyncStatus    SyncStatus `json:"syncStatus"`
}

// OccurredAt derives a timestamp from the started date string.
// Returns the zero time when the string matches no accepted layout.
func (e *Expense) OccurredAt() time.Time {
	t, _ := ParseFlexibleDate(e.StartedDate)
	return t
}

// ExpenseDTO is the backend's JSON shape for an expense. Field names and
// optionality follow the server, not the local store.
type ExpenseDTO struct {
	ID            string  `json:"id,omitempty"`
	Type          string  `json:"type"`
	Product       string  `json:"product"`
	StartedDate   string  `json:"startedDate,omitempty"`
	CompletedDate string  `json:"completedDate,omitempty"`
	Description   string  `json:"description"`
	Amount        float64 `json:"amount"`
	Fee           float64 `json:"fee,omitempty"`
	Currency      string  `json:"currency,omitempty"`
	State         string  `json:"state,omitempty"`
	Category      string  `json:"category,omitempty"`
}

// ToExpense converts a remote DTO into a local Synced row.
func (d ExpenseDTO) ToExpense(localID string) Expense {
	return Expense{
		LocalID:       localID,
		RemoteID:      d.ID,
		Type:          d.Type,
		Product:       d.Product,
		Description:   d.Description,
		Amount:        d.Amount,
		Fee:           d.Fee,
		Currency:      d.Currency,
		State:         d.State,
		Category:      d.Category,
		StartedDate:   d.StartedDate,
		CompletedDate: d.CompletedDate,
		SyncStatus:    StatusSynced,
	}
}

// ToDTO converts a local row into the backend's JSON shape.
func (e *Expense) ToDTO() ExpenseDTO {
	return ExpenseDTO{
		ID:            e.RemoteID,
		Type:          e.Type,
		Product:       e.Product,
		StartedDate:   e.StartedDate,
		CompletedDate: e.CompletedDate,
		Description:   e.Description,
		Amount:        e.Amount,
		Fee:           e.Fee,
		Currency:      e.Currency,
		State:         e.State,
		Category:      e.Category,
	}
}

// flexibleDateLayouts lists the date encodings the backend has been
// observed to emit, tried in order.
var flexibleDateLayouts = []string{
	"2006-01-02T15:04:05.000Z0700",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
}

// ParseFlexibleDate parses a loosely-typed date string against the
// accepted layouts. An empty string or an unrecognized encoding yields
// a zero time and false.
func ParseFlexibleDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range flexibleDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
