// internal/lending/service.go
package lending

import (
	"context"
	"errors"
	"io"
	"time"

	"libralend/internal/catalog"
)

// FinePerDay is the fixed late-fee policy: currency units charged per
// whole day past the due date at return time.
const FinePerDay = 2

// ErrBookUnavailable signals that every copy of the book is out.
var ErrBookUnavailable = errors.New("book unavailable: no copies left")

// BookCount is one row of the most-borrowed report.
type BookCount struct {
	BookID string `json:"book_id"`
	Count  int    `json:"count"`
}

// Service orchestrates the lending workflows across the catalog, the
// issuance ledger, and the audit log. It is the only component external
// callers invoke directly.
type Service interface {
	AddBook(ctx context.Context, id, title, author string, copies int) (catalog.Book, error)
	IssueBook(ctx context.Context, bookID, borrower string, today time.Time) (time.Time, error)
	ReturnBook(ctx context.Context, bookID, borrower string, today time.Time) (int, error)
	ListInventory(ctx context.Context) []catalog.Book
	MostBorrowedReport(ctx context.Context, topN int) []BookCount
	ExportLog(ctx context.Context, w io.Writer) error
}
