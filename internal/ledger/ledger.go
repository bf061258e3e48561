// internal/ledger/ledger.go
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

type loanKey struct {
	bookID   string
	borrower string
}

// Ledger owns the set of active issuances. Presence or absence of a
// (book, borrower) pair is the loan state; there is no status field.
// The ledger is policy-agnostic: it reports days late and leaves fine
// computation to the caller.
type Ledger struct {
	mu     sync.RWMutex
	active map[loanKey]Issuance
}

// NewLedger creates an empty issuance ledger.
func NewLedger() *Ledger {
	return &Ledger{active: make(map[loanKey]Issuance)}
}

// Open creates an active issuance due LoanPeriodDays after the issue date.
func (l *Ledger) Open(bookID, borrower string, issueDate time.Time) (Issuance, error) {
	issueDate = day(issueDate)

	l.mu.Lock()
	defer l.mu.Unlock()

	key := loanKey{bookID: bookID, borrower: borrower}
	if _, exists := l.active[key]; exists {
		return Issuance{}, fmt.Errorf("%w: %s/%s", ErrDuplicateLoan, bookID, borrower)
	}

	iss := Issuance{
		BookID:    bookID,
		Borrower:  borrower,
		IssueDate: issueDate,
		DueDate:   issueDate.AddDate(0, 0, LoanPeriodDays),
	}
	l.active[key] = iss
	return iss, nil
}

// Close removes the matching active issuance and reports how many whole
// days past due the return is (zero when on time or early).
func (l *Ledger) Close(bookID, borrower string, returnDate time.Time) (Issuance, int, error) {
	returnDate = day(returnDate)

	l.mu.Lock()
	defer l.mu.Unlock()

	key := loanKey{bookID: bookID, borrower: borrower}
	iss, exists := l.active[key]
	if !exists {
		return Issuance{}, 0, fmt.Errorf("%w: %s/%s", ErrNoActiveLoan, bookID, borrower)
	}
	delete(l.active, key)

	daysLate := int(returnDate.Sub(iss.DueDate).Hours() / 24)
	if daysLate < 0 {
		daysLate = 0
	}
	return iss, daysLate, nil
}

// ActiveLoans returns a snapshot of active issuances, filtered to one
// book when bookID is non-empty, sorted for determinism.
func (l *Ledger) ActiveLoans(bookID string) []Issuance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Issuance
	for _, iss := range l.active {
		if bookID != "" && iss.BookID != bookID {
			continue
		}
		out = append(out, iss)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BookID != out[j].BookID {
			return out[i].BookID < out[j].BookID
		}
		return out[i].Borrower < out[j].Borrower
	})
	return out
}

// Reinstate puts a closed issuance back, restoring consistency after a
// later step of a return failed.
func (l *Ledger) Reinstate(iss Issuance) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := loanKey{bookID: iss.BookID, borrower: iss.Borrower}
	if _, exists := l.active[key]; exists {
		return fmt.Errorf("%w: %s/%s", ErrDuplicateLoan, iss.BookID, iss.Borrower)
	}
	l.active[key] = iss
	return nil
}

// Restore replaces the ledger contents with a previously persisted
// snapshot. Called once at startup before the ledger is shared.
func (l *Ledger) Restore(issuances []Issuance) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.active = make(map[loanKey]Issuance, len(issuances))
	for _, iss := range issuances {
		l.active[loanKey{bookID: iss.BookID, borrower: iss.Borrower}] = iss
	}
}

// day truncates to a calendar date: midnight UTC, no time-of-day.
func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
