// internal/storage/storage.go

// Package storage persists the lending engine's collections. The engine
// is authoritative in memory; every mutating service call flushes the
// collections it touched through one transaction here before returning.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libralend/internal/audit"
	"libralend/internal/catalog"
	"libralend/internal/ledger"
)

// ErrStorage marks any persistence failure. Callers treat the mutation
// as uncommitted when they see it.
var ErrStorage = errors.New("storage failure")

const schema = `
CREATE TABLE IF NOT EXISTS books (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	author           TEXT NOT NULL,
	total_copies     INTEGER NOT NULL,
	available_copies INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS issuances (
	book_id    TEXT NOT NULL,
	borrower   TEXT NOT NULL,
	issue_date TEXT NOT NULL,
	due_date   TEXT NOT NULL,
	PRIMARY KEY (book_id, borrower)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id       TEXT PRIMARY KEY,
	seq      INTEGER NOT NULL,
	borrower TEXT NOT NULL,
	book_id  TEXT NOT NULL,
	action   TEXT NOT NULL,
	date     TEXT NOT NULL,
	fine     INTEGER NOT NULL
);
`

// Store is a SQL-backed persistence handle. Queries use ? placeholders
// and are rebound per driver, so the same store runs on a local SQLite
// file (modernc.org/sqlite, driver name "sqlite") or Postgres (lib/pq,
// driver name "postgres").
type Store struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

// Open connects, verifies the connection, and creates the schema.
func Open(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %v", ErrStorage, driver, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: create schema: %v", ErrStorage, err)
	}
	return &Store{
		db:     db,
		tracer: otel.Tracer("libralend/storage"),
	}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

type bookRow struct {
	ID              string `db:"id"`
	Title           string `db:"title"`
	Author          string `db:"author"`
	TotalCopies     int    `db:"total_copies"`
	AvailableCopies int    `db:"available_copies"`
}

type issuanceRow struct {
	BookID    string `db:"book_id"`
	Borrower  string `db:"borrower"`
	IssueDate string `db:"issue_date"`
	DueDate   string `db:"due_date"`
}

type entryRow struct {
	ID       string `db:"id"`
	Seq      int64  `db:"seq"`
	Borrower string `db:"borrower"`
	BookID   string `db:"book_id"`
	Action   string `db:"action"`
	Date     string `db:"date"`
	Fine     int    `db:"fine"`
}

// LoadAll reads the previous run's state. Empty collections come back
// when nothing has been persisted yet.
func (s *Store) LoadAll(ctx context.Context) ([]catalog.Book, []ledger.Issuance, []audit.Entry, error) {
	ctx, span := s.tracer.Start(ctx, "storage.load_all")
	defer span.End()

	var bookRows []bookRow
	if err := s.db.SelectContext(ctx, &bookRows, `SELECT id, title, author, total_copies, available_copies FROM books ORDER BY id`); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: load books: %v", ErrStorage, err)
	}
	books := make([]catalog.Book, 0, len(bookRows))
	for _, r := range bookRows {
		books = append(books, catalog.Book{
			ID:              r.ID,
			Title:           r.Title,
			Author:          r.Author,
			TotalCopies:     r.TotalCopies,
			AvailableCopies: r.AvailableCopies,
		})
	}

	var issRows []issuanceRow
	if err := s.db.SelectContext(ctx, &issRows, `SELECT book_id, borrower, issue_date, due_date FROM issuances ORDER BY book_id, borrower`); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: load issuances: %v", ErrStorage, err)
	}
	issuances := make([]ledger.Issuance, 0, len(issRows))
	for _, r := range issRows {
		issueDate, err := parseDate(r.IssueDate)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%w: issuance %s/%s: %v", ErrStorage, r.BookID, r.Borrower, err)
		}
		dueDate, err := parseDate(r.DueDate)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%w: issuance %s/%s: %v", ErrStorage, r.BookID, r.Borrower, err)
		}
		issuances = append(issuances, ledger.Issuance{
			BookID:    r.BookID,
			Borrower:  r.Borrower,
			IssueDate: issueDate,
			DueDate:   dueDate,
		})
	}

	var entryRows []entryRow
	if err := s.db.SelectContext(ctx, &entryRows, `SELECT id, seq, borrower, book_id, action, date, fine FROM audit_log ORDER BY seq`); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: load audit log: %v", ErrStorage, err)
	}
	entries := make([]audit.Entry, 0, len(entryRows))
	for _, r := range entryRows {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%w: audit entry %s: %v", ErrStorage, r.ID, err)
		}
		date, err := parseDate(r.Date)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%w: audit entry %s: %v", ErrStorage, r.ID, err)
		}
		entries = append(entries, audit.Entry{
			ID:       id,
			Seq:      r.Seq,
			Borrower: r.Borrower,
			BookID:   r.BookID,
			Action:   audit.Action(r.Action),
			Date:     date,
			Fine:     r.Fine,
		})
	}

	span.SetAttributes(
		attribute.Int("books.loaded", len(books)),
		attribute.Int("issuances.loaded", len(issuances)),
		attribute.Int("entries.loaded", len(entries)),
	)
	return books, issuances, entries, nil
}

// SaveBook persists a newly added book.
func (s *Store) SaveBook(ctx context.Context, b catalog.Book) error {
	ctx, span := s.tracer.Start(ctx, "storage.save_book",
		trace.WithAttributes(attribute.String("book.id", b.ID)),
	)
	defer span.End()

	query := s.db.Rebind(`INSERT INTO books (id, title, author, total_copies, available_copies) VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, b.ID, b.Title, b.Author, b.TotalCopies, b.AvailableCopies); err != nil {
		return fmt.Errorf("%w: insert book %s: %v", ErrStorage, b.ID, err)
	}
	return nil
}

// FlushIssue persists the outcome of an issue atomically: the updated
// copy counter, the new issuance, and the audit entry.
func (s *Store) FlushIssue(ctx context.Context, b catalog.Book, iss ledger.Issuance, e audit.Entry) error {
	ctx, span := s.tracer.Start(ctx, "storage.flush_issue",
		trace.WithAttributes(
			attribute.String("book.id", b.ID),
			attribute.String("borrower", iss.Borrower),
		),
	)
	defer span.End()

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE books SET available_copies = ? WHERE id = ?`), b.AvailableCopies, b.ID); err != nil {
			return fmt.Errorf("update book %s: %w", b.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			tx.Rebind(`INSERT INTO issuances (book_id, borrower, issue_date, due_date) VALUES (?, ?, ?, ?)`),
			iss.BookID, iss.Borrower, formatDate(iss.IssueDate), formatDate(iss.DueDate),
		); err != nil {
			return fmt.Errorf("insert issuance %s/%s: %w", iss.BookID, iss.Borrower, err)
		}
		return insertEntry(ctx, tx, e)
	})
}

// FlushReturn persists the outcome of a return atomically: the updated
// copy counter, the issuance removal, and the audit entry.
func (s *Store) FlushReturn(ctx context.Context, b catalog.Book, closed ledger.Issuance, e audit.Entry) error {
	ctx, span := s.tracer.Start(ctx, "storage.flush_return",
		trace.WithAttributes(
			attribute.String("book.id", b.ID),
			attribute.String("borrower", closed.Borrower),
		),
	)
	defer span.End()

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE books SET available_copies = ? WHERE id = ?`), b.AvailableCopies, b.ID); err != nil {
			return fmt.Errorf("update book %s: %w", b.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			tx.Rebind(`DELETE FROM issuances WHERE book_id = ? AND borrower = ?`),
			closed.BookID, closed.Borrower,
		); err != nil {
			return fmt.Errorf("delete issuance %s/%s: %w", closed.BookID, closed.Borrower, err)
		}
		return insertEntry(ctx, tx, e)
	})
}

func insertEntry(ctx context.Context, tx *sqlx.Tx, e audit.Entry) error {
	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`INSERT INTO audit_log (id, seq, borrower, book_id, action, date, fine) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		e.ID.String(), e.Seq, e.Borrower, e.BookID, string(e.Action), formatDate(e.Date), e.Fine,
	); err != nil {
		return fmt.Errorf("insert audit entry %s: %w", e.ID, err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", ErrStorage, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit transaction: %v", ErrStorage, err)
	}
	return nil
}

func formatDate(t time.Time) string {
	return t.Format(time.DateOnly)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}
