package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/spendsync/src/models"
)

// stubExec records the last spec and replays a canned response.
type stubExec struct {
	spec RequestSpec
	resp *Response
	err  error
}

func (s *stubExec) Do(ctx context.Context, spec RequestSpec) (*Response, error) {
	s.spec = spec
	return s.resp, s.err
}

func TestAddEncodesLegacyStringBody(t *testing.T) {
	exec := &stubExec{resp: &Response{Status: http.StatusOK, Body: []byte(`{"id":"r-9"}`)}}
	a := NewExpenseAPI(exec)

	dto, err := a.Add(context.Background(), &models.Expense{
		Type:    "EXPENSE",
		Product: "Groceries",
		Amount:  -53.2,
		Fee:     0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "r-9", dto.ID)

	body, ok := exec.spec.Body.(map[string]string)
	require.True(t, ok, "legacy backend wants every field as a string")
	assert.Equal(t, "-53.2", body["amount"])
	assert.Equal(t, "0.5", body["fee"])
	assert.Equal(t, "/expense/addExpense", exec.spec.Path)
}

func TestDeleteTreats404AsSuccess(t *testing.T) {
	exec := &stubExec{resp: &Response{Status: http.StatusNotFound}}
	a := NewExpenseAPI(exec)

	assert.NoError(t, a.Delete(context.Background(), "r-gone"))
}

func TestDeleteSurfacesOtherErrors(t *testing.T) {
	exec := &stubExec{resp: &Response{Status: http.StatusInternalServerError}}
	a := NewExpenseAPI(exec)

	err := a.Delete(context.Background(), "r-1")
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusInternalServerError, serverErr.Status)
}

func TestListDecodesEmptyBodyAsNoExpenses(t *testing.T) {
	exec := &stubExec{resp: &Response{Status: http.StatusOK}}
	a := NewExpenseAPI(exec)

	list, err := a.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMonthlyTotalsSendsYearAsString(t *testing.T) {
	totals := map[string]float64{"1": -120.5, "2": -98}
	body, _ := json.Marshal(totals)
	exec := &stubExec{resp: &Response{Status: http.StatusOK, Body: body}}
	a := NewExpenseAPI(exec)

	got, err := a.MonthlyTotals(context.Background(), 2024)
	require.NoError(t, err)
	assert.Equal(t, totals, got)

	sent, ok := exec.spec.Body.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "2024", sent["year"])
}
