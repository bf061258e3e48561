// internal/audit/audit.go
package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Action distinguishes the two kinds of audit entries.
type Action string

const (
	ActionIssue  Action = "Issue"
	ActionReturn Action = "Return"
)

// Entry is one immutable record in the audit log. Fine is zero for
// issues and the computed amount for returns.
type Entry struct {
	ID       uuid.UUID `json:"id" db:"id"`
	Seq      int64     `json:"seq" db:"seq"`
	Borrower string    `json:"borrower" db:"borrower"`
	BookID   string    `json:"book_id" db:"book_id"`
	Action   Action    `json:"action" db:"action"`
	Date     time.Time `json:"date" db:"date"`
	Fine     int       `json:"fine" db:"fine"`
}

// Log is an append-only sequence of entries in chronological order.
// Entries are never mutated or deleted once appended.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	seq     atomic.Int64
}

// NewLog creates an empty audit log.
func NewLog() *Log {
	return &Log{}
}

// NewEntry builds an entry with a fresh id and the next sequence number.
// The entry is not part of the log until Append is called.
func (l *Log) NewEntry(borrower, bookID string, action Action, date time.Time, fine int) Entry {
	return Entry{
		ID:       uuid.New(),
		Seq:      l.seq.Add(1),
		Borrower: borrower,
		BookID:   bookID,
		Action:   action,
		Date:     date,
		Fine:     fine,
	}
}

// Append adds an entry to the log.
func (l *Log) Append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// Entries returns a fresh traversal over the log in insertion order,
// filtered to one action when action is non-empty. The traversal sees a
// consistent snapshot taken when Entries is called.
func (l *Log) Entries(action Action) iter.Seq[Entry] {
	l.mu.RLock()
	snapshot := make([]Entry, len(l.entries))
	copy(snapshot, l.entries)
	l.mu.RUnlock()

	return func(yield func(Entry) bool) {
		for _, e := range snapshot {
			if action != "" && e.Action != action {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

// CountByBook maps book id to the number of entries with the given action.
func (l *Log) CountByBook(action Action) map[string]int {
	counts := make(map[string]int)
	for e := range l.Entries(action) {
		counts[e.BookID]++
	}
	return counts
}

// Len reports the number of entries appended so far.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// ExportCSV writes the full log as CSV with a header row.
func (l *Log) ExportCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"User", "Book_ID", "Action", "Date", "Fine"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for e := range l.Entries("") {
		record := []string{
			e.Borrower,
			e.BookID,
			string(e.Action),
			e.Date.Format(time.DateOnly),
			strconv.Itoa(e.Fine),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Restore replaces the log contents with a previously persisted
// snapshot, ordered by sequence number. Called once at startup before
// the log is shared.
func (l *Log) Restore(entries []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make([]Entry, len(entries))
	copy(l.entries, entries)
	sort.Slice(l.entries, func(i, j int) bool { return l.entries[i].Seq < l.entries[j].Seq })

	var max int64
	for _, e := range l.entries {
		if e.Seq > max {
			max = e.Seq
		}
	}
	l.seq.Store(max)
}
