// internal/lending/handler.go
package lending

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"libralend/internal/catalog"
	"libralend/internal/ledger"
	"libralend/internal/storage"
)

// Handler exposes the lending service over HTTP. The limiter guards
// mutating endpoints; pass nil to disable rate limiting.
type Handler struct {
	service Service
	limiter *rate.Limiter
}

func NewHandler(service Service, limiter *rate.Limiter) *Handler {
	return &Handler{service: service, limiter: limiter}
}

func (h *Handler) allow(w http.ResponseWriter) bool {
	if h.limiter == nil || h.limiter.Allow() {
		return true
	}
	w.Header().Set("Retry-After", "1")
	http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	return false
}

func (h *Handler) HandleAddBook(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w) {
		return
	}

	var req struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Author string `json:"author"`
		Copies int    `json:"copies"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	book, err := h.service.AddBook(r.Context(), req.ID, req.Title, req.Author, req.Copies)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(book)
}

func (h *Handler) HandleListBooks(w http.ResponseWriter, r *http.Request) {
	books := h.service.ListInventory(r.Context())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(books)
}

type loanRequest struct {
	BookID   string `json:"book_id"`
	Borrower string `json:"borrower"`
	Date     string `json:"date"`
}

func decodeLoanRequest(w http.ResponseWriter, r *http.Request) (loanRequest, time.Time, bool) {
	var req loanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return req, time.Time{}, false
	}
	today, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return req, time.Time{}, false
	}
	return req, today, true
}

func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w) {
		return
	}

	req, today, ok := decodeLoanRequest(w, r)
	if !ok {
		return
	}

	dueDate, err := h.service.IssueBook(r.Context(), req.BookID, req.Borrower, today)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"book_id":  req.BookID,
		"borrower": req.Borrower,
		"due_date": dueDate.Format(time.DateOnly),
	})
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w) {
		return
	}

	req, today, ok := decodeLoanRequest(w, r)
	if !ok {
		return
	}

	fine, err := h.service.ReturnBook(r.Context(), req.BookID, req.Borrower, today)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"fine": fine})
}

func (h *Handler) HandleMostBorrowed(w http.ResponseWriter, r *http.Request) {
	topN := 5
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid top parameter", http.StatusBadRequest)
			return
		}
		topN = n
	}

	report := h.service.MostBorrowedReport(r.Context(), topN)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

func (h *Handler) HandleExportLog(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="user_log.csv"`)
	if err := h.service.ExportLog(r.Context(), w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, ledger.ErrNoActiveLoan):
		status = http.StatusNotFound
	case errors.Is(err, catalog.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, catalog.ErrDuplicateBook), errors.Is(err, ledger.ErrDuplicateLoan), errors.Is(err, ErrBookUnavailable):
		status = http.StatusConflict
	case errors.Is(err, storage.ErrStorage):
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}
