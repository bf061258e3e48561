// internal/lending/implementation.go
package lending

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libralend/internal/audit"
	"libralend/internal/catalog"
	"libralend/internal/ledger"
)

// Storage is the persistence collaborator. Mutating service calls flush
// the collections they touched through it before returning; a failed
// flush means the mutation is not committed.
type Storage interface {
	SaveBook(ctx context.Context, b catalog.Book) error
	FlushIssue(ctx context.Context, b catalog.Book, iss ledger.Issuance, e audit.Entry) error
	FlushReturn(ctx context.Context, b catalog.Book, closed ledger.Issuance, e audit.Entry) error
}

// Metrics receives operation counts. Implemented by metrics.Collector.
type Metrics interface {
	RecordIssue()
	RecordReturn(fine int)
}

// service implements the Service interface.
type service struct {
	catalog *catalog.Store
	ledger  *ledger.Ledger
	audit   *audit.Log
	store   Storage
	metrics Metrics
	tracer  trace.Tracer

	// bookLocks serializes issue/return per book id so two concurrent
	// issues cannot both observe the last copy. Operations on different
	// books proceed in parallel.
	mu        sync.Mutex
	bookLocks map[string]*sync.Mutex
}

// NewService creates a lending service over the three stores. store and
// collector may be nil: a nil store keeps state in memory only (tests),
// a nil collector disables metrics.
func NewService(cat *catalog.Store, led *ledger.Ledger, log *audit.Log, store Storage, collector Metrics) Service {
	return &service{
		catalog:   cat,
		ledger:    led,
		audit:     log,
		store:     store,
		metrics:   collector,
		tracer:    otel.Tracer("libralend/lending"),
		bookLocks: make(map[string]*sync.Mutex),
	}
}

func (s *service) bookLock(bookID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, exists := s.bookLocks[bookID]
	if !exists {
		l = &sync.Mutex{}
		s.bookLocks[bookID] = l
	}
	return l
}

// AddBook creates a book and persists it before reporting success.
func (s *service) AddBook(ctx context.Context, id, title, author string, copies int) (catalog.Book, error) {
	ctx, span := s.tracer.Start(ctx, "lending.add_book",
		trace.WithAttributes(
			attribute.String("book.id", id),
			attribute.Int("book.copies", copies),
		),
	)
	defer span.End()

	b, err := s.catalog.AddBook(id, title, author, copies)
	if err != nil {
		return catalog.Book{}, err
	}

	if s.store != nil {
		if err := s.store.SaveBook(ctx, b); err != nil {
			s.catalog.Forget(id)
			return catalog.Book{}, fmt.Errorf("persist book: %w", err)
		}
	}

	slog.Info("book added",
		slog.String("book_id", b.ID),
		slog.String("title", b.Title),
		slog.Int("copies", b.TotalCopies),
	)
	return b, nil
}

// IssueBook reserves a copy, opens the loan, and records the issue. Any
// failure after the reservation releases the copy again, so no partial
// state is ever visible.
func (s *service) IssueBook(ctx context.Context, bookID, borrower string, today time.Time) (time.Time, error) {
	ctx, span := s.tracer.Start(ctx, "lending.issue_book",
		trace.WithAttributes(
			attribute.String("book.id", bookID),
			attribute.String("borrower", borrower),
		),
	)
	defer span.End()

	lock := s.bookLock(bookID)
	lock.Lock()
	defer lock.Unlock()

	reserved, err := s.catalog.TryReserveCopy(bookID)
	if err != nil {
		return time.Time{}, err
	}
	if !reserved {
		return time.Time{}, fmt.Errorf("%w: %s", ErrBookUnavailable, bookID)
	}

	iss, err := s.ledger.Open(bookID, borrower, today)
	if err != nil {
		// Hand the reserved copy back before surfacing the error.
		if relErr := s.catalog.ReleaseCopy(bookID); relErr != nil {
			slog.Error("failed to release copy after open failure",
				slog.String("book_id", bookID),
				slog.String("error", relErr.Error()),
			)
		}
		return time.Time{}, err
	}

	entry := s.audit.NewEntry(borrower, bookID, audit.ActionIssue, iss.IssueDate, 0)

	if s.store != nil {
		b, getErr := s.catalog.Get(bookID)
		if getErr == nil {
			getErr = s.store.FlushIssue(ctx, b, iss, entry)
		}
		if getErr != nil {
			s.compensateIssue(iss)
			return time.Time{}, fmt.Errorf("persist issue: %w", getErr)
		}
	}

	s.audit.Append(entry)
	if s.metrics != nil {
		s.metrics.RecordIssue()
	}

	span.SetAttributes(attribute.String("loan.due_date", iss.DueDate.Format(time.DateOnly)))
	slog.Info("book issued",
		slog.String("book_id", bookID),
		slog.String("borrower", borrower),
		slog.String("due_date", iss.DueDate.Format(time.DateOnly)),
	)
	return iss.DueDate, nil
}

// compensateIssue undoes an opened loan and its reservation after the
// flush failed.
func (s *service) compensateIssue(iss ledger.Issuance) {
	if _, _, err := s.ledger.Close(iss.BookID, iss.Borrower, iss.IssueDate); err != nil {
		slog.Error("failed to close loan during issue rollback",
			slog.String("book_id", iss.BookID),
			slog.String("borrower", iss.Borrower),
			slog.String("error", err.Error()),
		)
	}
	if err := s.catalog.ReleaseCopy(iss.BookID); err != nil {
		slog.Error("failed to release copy during issue rollback",
			slog.String("book_id", iss.BookID),
			slog.String("error", err.Error()),
		)
	}
}

// ReturnBook closes the loan, releases the copy, and records the return
// with the computed fine. Zero fine means on time.
func (s *service) ReturnBook(ctx context.Context, bookID, borrower string, today time.Time) (int, error) {
	ctx, span := s.tracer.Start(ctx, "lending.return_book",
		trace.WithAttributes(
			attribute.String("book.id", bookID),
			attribute.String("borrower", borrower),
		),
	)
	defer span.End()

	lock := s.bookLock(bookID)
	lock.Lock()
	defer lock.Unlock()

	closed, daysLate, err := s.ledger.Close(bookID, borrower, today)
	if err != nil {
		return 0, err
	}

	if err := s.catalog.ReleaseCopy(bookID); err != nil {
		// Consistency error: put the loan back and report.
		if reErr := s.ledger.Reinstate(closed); reErr != nil {
			slog.Error("failed to reinstate loan during return rollback",
				slog.String("book_id", bookID),
				slog.String("error", reErr.Error()),
			)
		}
		return 0, err
	}

	fine := daysLate * FinePerDay
	entry := s.audit.NewEntry(borrower, bookID, audit.ActionReturn, dayOf(today), fine)

	if s.store != nil {
		b, getErr := s.catalog.Get(bookID)
		if getErr == nil {
			getErr = s.store.FlushReturn(ctx, b, closed, entry)
		}
		if getErr != nil {
			s.compensateReturn(closed)
			return 0, fmt.Errorf("persist return: %w", getErr)
		}
	}

	s.audit.Append(entry)
	if s.metrics != nil {
		s.metrics.RecordReturn(fine)
	}

	span.SetAttributes(
		attribute.Int("loan.days_late", daysLate),
		attribute.Int("loan.fine", fine),
	)
	slog.Info("book returned",
		slog.String("book_id", bookID),
		slog.String("borrower", borrower),
		slog.Int("days_late", daysLate),
		slog.Int("fine", fine),
	)
	return fine, nil
}

// compensateReturn re-reserves the released copy and reinstates the
// closed loan after the flush failed.
func (s *service) compensateReturn(closed ledger.Issuance) {
	if _, err := s.catalog.TryReserveCopy(closed.BookID); err != nil {
		slog.Error("failed to re-reserve copy during return rollback",
			slog.String("book_id", closed.BookID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.ledger.Reinstate(closed); err != nil {
		slog.Error("failed to reinstate loan during return rollback",
			slog.String("book_id", closed.BookID),
			slog.String("borrower", closed.Borrower),
			slog.String("error", err.Error()),
		)
	}
}

// ListInventory returns a snapshot of the catalog sorted by book id.
func (s *service) ListInventory(ctx context.Context) []catalog.Book {
	_, span := s.tracer.Start(ctx, "lending.list_inventory")
	defer span.End()
	return s.catalog.List()
}

// MostBorrowedReport ranks books by issue count, descending, ties broken
// by ascending book id, truncated to topN. A negative topN means no
// truncation: the full ranking comes back.
func (s *service) MostBorrowedReport(ctx context.Context, topN int) []BookCount {
	_, span := s.tracer.Start(ctx, "lending.most_borrowed_report",
		trace.WithAttributes(attribute.Int("report.top_n", topN)),
	)
	defer span.End()

	counts := s.audit.CountByBook(audit.ActionIssue)
	report := make([]BookCount, 0, len(counts))
	for bookID, count := range counts {
		report = append(report, BookCount{BookID: bookID, Count: count})
	}
	sort.Slice(report, func(i, j int) bool {
		if report[i].Count != report[j].Count {
			return report[i].Count > report[j].Count
		}
		return report[i].BookID < report[j].BookID
	})
	if topN >= 0 && topN < len(report) {
		report = report[:topN]
	}
	return report
}

// ExportLog writes the audit log as CSV.
func (s *service) ExportLog(ctx context.Context, w io.Writer) error {
	_, span := s.tracer.Start(ctx, "lending.export_log")
	defer span.End()
	return s.audit.ExportCSV(w)
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
