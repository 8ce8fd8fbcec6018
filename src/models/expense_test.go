package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseFlexibleDate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
		ok    bool
	}{
		{"rfc3339 with millis", "2024-03-15T10:30:00.000Z", time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), true},
		{"rfc3339", "2024-03-15T10:30:00Z", time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), true},
		{"no zone", "2024-03-15T10:30:00", time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), true},
		{"space separated", "2024-03-15 10:30:00", time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), true},
		{"date only", "2024-03-15", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"slash dmy", "15/03/2024", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"dash dmy", "15-03-2024", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"empty", "", time.Time{}, false},
		{"garbage", "not-a-date", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseFlexibleDate(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, got.Equal(tt.want), "got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestExpenseDTORoundTrip(t *testing.T) {
	dto := ExpenseDTO{
		ID:          "r-42",
		Type:        "EXPENSE",
		Product:     "Groceries",
		Description: "weekly shop",
		Amount:      -53.20,
		Currency:    "EUR",
		StartedDate: "2024-03-15",
	}

	e := dto.ToExpense("local-1")
	assert.Equal(t, "local-1", e.LocalID)
	assert.Equal(t, "r-42", e.RemoteID)
	assert.Equal(t, StatusSynced, e.SyncStatus)
	assert.Equal(t, -53.20, e.Amount)

	back := e.ToDTO()
	assert.Equal(t, dto, back)
}

func TestOccurredAt(t *testing.T) {
	e := Expense{StartedDate: "2024-03-15"}
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), e.OccurredAt())

	e = Expense{}
	assert.True(t, e.OccurredAt().IsZero())
}
