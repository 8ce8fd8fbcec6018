package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/username/spendsync/src/models"
)

// Executor runs a RequestSpec with credentials attached. The session
// manager implements it; every authenticated call funnels through that
// single choke point for token injection and 401 handling.
type Executor interface {
	Do(ctx context.Context, spec RequestSpec) (*Response, error)
}

// ExpenseAPI wraps the authenticated expense endpoints.
type ExpenseAPI struct {
	exec Executor
}

func NewExpenseAPI(exec Executor) *ExpenseAPI {
	return &ExpenseAPI{exec: exec}
}

// List fetches the full remote expense list.
func (a *ExpenseAPI) List(ctx context.Context) ([]models.ExpenseDTO, error) {
	resp, err := a.exec.Do(ctx, RequestSpec{Method: http.MethodGet, Path: "/expense/getExpenses"})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &ServerError{Status: resp.Status}
	}
	var list []models.ExpenseDTO
	if err := DecodeJSON(resp.Body, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Add creates an expense remotely and returns the server's copy,
// including the assigned remote ID. The legacy backend expects every
// field as a string, amounts included.
func (a *ExpenseAPI) Add(ctx context.Context, e *models.Expense) (models.ExpenseDTO, error) {
	body := map[string]string{
		"type":          e.Type,
		"product":       e.Product,
		"startedDate":   e.StartedDate,
		"completedDate": e.CompletedDate,
		"description":   e.Description,
		"amount":        strconv.FormatFloat(e.Amount, 'f', -1, 64),
		"fee":           strconv.FormatFloat(e.Fee, 'f', -1, 64),
		"currency":      e.Currency,
		"state":         e.State,
		"category":      e.Category,
	}
	resp, err := a.exec.Do(ctx, RequestSpec{Method: http.MethodPost, Path: "/expense/addExpense", Body: body})
	if err != nil {
		return models.ExpenseDTO{}, err
	}
	if !resp.OK() {
		return models.ExpenseDTO{}, &ServerError{Status: resp.Status}
	}
	var dto models.ExpenseDTO
	if err := DecodeJSON(resp.Body, &dto); err != nil {
		return models.ExpenseDTO{}, err
	}
	return dto, nil
}

// Update edits an existing remote expense.
func (a *ExpenseAPI) Update(ctx context.Context, e *models.Expense) error {
	body := map[string]any{
		"id":            e.RemoteID,
		"type":          e.Type,
		"startedDate":   e.StartedDate,
		"completedDate": e.CompletedDate,
		"description":   e.Description,
		"amount":        e.Amount,
	}
	resp, err := a.exec.Do(ctx, RequestSpec{Method: http.MethodPost, Path: "/expense/updateExpense", Body: body})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &ServerError{Status: resp.Status}
	}
	return nil
}

// Delete removes a remote expense. A 404 is treated as success: the
// record is already gone, which is the outcome the caller wanted.
func (a *ExpenseAPI) Delete(ctx context.Context, remoteID string) error {
	body := map[string]string{"expenseId": remoteID}
	resp, err := a.exec.Do(ctx, RequestSpec{Method: http.MethodDelete, Path: "/expense/deleteExpense", Body: body})
	if err != nil {
		return err
	}
	if resp.OK() || resp.Status == http.StatusNotFound {
		return nil
	}
	return &ServerError{Status: resp.Status}
}

// DeleteAll wipes every remote expense.
func (a *ExpenseAPI) DeleteAll(ctx context.Context) error {
	resp, err := a.exec.Do(ctx, RequestSpec{Method: http.MethodDelete, Path: "/expense/deleteAllExpenses"})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &ServerError{Status: resp.Status}
	}
	return nil
}

// Import uploads a CSV payload as multipart form data, field "file".
func (a *ExpenseAPI) Import(ctx context.Context, filename string, content []byte) error {
	resp, err := a.exec.Do(ctx, RequestSpec{
		Method: http.MethodPost,
		Path:   "/expense/import",
		File:   &FilePart{Filename: filename, ContentType: "text/csv", Content: content},
	})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &ServerError{Status: resp.Status}
	}
	return nil
}

// MonthlyTotals fetches the per-month amount aggregation for a year.
func (a *ExpenseAPI) MonthlyTotals(ctx context.Context, year int) (map[string]float64, error) {
	body := map[string]string{"year": strconv.Itoa(year)}
	resp, err := a.exec.Do(ctx, RequestSpec{Method: http.MethodPost, Path: "/expense/getMonthlyAmountOfYear", Body: body})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &ServerError{Status: resp.Status}
	}
	totals := make(map[string]float64)
	if err := DecodeJSON(resp.Body, &totals); err != nil {
		return nil, err
	}
	return totals, nil
}
