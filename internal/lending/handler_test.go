package lending

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"libralend/internal/catalog"
)

func newTestHandler(t *testing.T) (*Handler, fixture) {
	t.Helper()
	f := newFixture(nil)
	return NewHandler(f.svc, nil), f
}

func postJSON(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHandleAddBook(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := postJSON(t, h.HandleAddBook, `{"id":"B1","title":"Dune","author":"Herbert","copies":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var book catalog.Book
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&book))
	assert.Equal(t, "B1", book.ID)
	assert.Equal(t, 2, book.AvailableCopies)
}

func TestHandleAddBookDuplicate(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := postJSON(t, h.HandleAddBook, `{"id":"B1","title":"Dune","author":"Herbert","copies":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, h.HandleAddBook, `{"id":"B1","title":"Dune","author":"Herbert","copies":2}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleIssueAndReturn(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := postJSON(t, h.HandleAddBook, `{"id":"B1","title":"Dune","author":"Herbert","copies":1}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, h.HandleIssue, `{"book_id":"B1","borrower":"alice","date":"2024-01-01"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var issued map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&issued))
	assert.Equal(t, "2024-01-15", issued["due_date"])

	rec = postJSON(t, h.HandleReturn, `{"book_id":"B1","borrower":"alice","date":"2024-01-20"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var returned map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&returned))
	assert.Equal(t, 10, returned["fine"])
}

func TestHandleIssueErrors(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := postJSON(t, h.HandleAddBook, `{"id":"B1","title":"Dune","author":"Herbert","copies":0}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"unknown book", `{"book_id":"missing","borrower":"alice","date":"2024-01-01"}`, http.StatusNotFound},
		{"no copies", `{"book_id":"B1","borrower":"alice","date":"2024-01-01"}`, http.StatusConflict},
		{"malformed date", `{"book_id":"B1","borrower":"alice","date":"01/01/2024"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h.HandleIssue, tt.body)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestHandleReturnNoActiveLoan(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := postJSON(t, h.HandleAddBook, `{"id":"B2","title":"Foo","author":"Bar","copies":1}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, h.HandleReturn, `{"book_id":"B2","borrower":"dave","date":"2024-01-01"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListBooks(t *testing.T) {
	h, f := newTestHandler(t)

	_, err := f.svc.AddBook(context.Background(), "B1", "Dune", "Herbert", 2)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/books", nil)
	rec := httptest.NewRecorder()
	h.HandleListBooks(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var books []catalog.Book
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&books))
	require.Len(t, books, 1)
	assert.Equal(t, "Dune", books[0].Title)
}

func TestHandleMostBorrowed(t *testing.T) {
	h, f := newTestHandler(t)
	ctx := context.Background()

	_, err := f.svc.AddBook(ctx, "B1", "Dune", "Herbert", 2)
	require.NoError(t, err)
	_, err = f.svc.IssueBook(ctx, "B1", "alice", date("2024-01-01"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/reports/most-borrowed?top=1", nil)
	rec := httptest.NewRecorder()
	h.HandleMostBorrowed(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var report []BookCount
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	require.Len(t, report, 1)
	assert.Equal(t, BookCount{BookID: "B1", Count: 1}, report[0])
}

func TestHandleExportLog(t *testing.T) {
	h, f := newTestHandler(t)
	ctx := context.Background()

	_, err := f.svc.AddBook(ctx, "B1", "Dune", "Herbert", 2)
	require.NoError(t, err)
	_, err = f.svc.IssueBook(ctx, "B1", "alice", date("2024-01-01"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/log/export", nil)
	rec := httptest.NewRecorder()
	h.HandleExportLog(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "alice,B1,Issue")
}

func TestRateLimitedHandler(t *testing.T) {
	f := newFixture(nil)
	h := NewHandler(f.svc, rate.NewLimiter(rate.Limit(0), 1)) // one request, no refill

	rec := postJSON(t, h.HandleAddBook, `{"id":"B1","title":"Dune","author":"Herbert","copies":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, h.HandleAddBook, `{"id":"B2","title":"Foo","author":"Bar","copies":1}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
