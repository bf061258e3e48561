// internal/ledger/domain.go
package ledger

import (
	"errors"
	"time"
)

// LoanPeriodDays is the fixed lending period: every due date is the
// issue date plus fourteen days.
const LoanPeriodDays = 14

var (
	ErrDuplicateLoan = errors.New("loan already active for this book and borrower")
	ErrNoActiveLoan  = errors.New("no active loan for this book and borrower")
)

// Issuance records that one copy of a book is out with a borrower until
// the due date. It exists only while the copy is out.
type Issuance struct {
	BookID    string    `json:"book_id" db:"book_id"`
	Borrower  string    `json:"borrower" db:"borrower"`
	IssueDate time.Time `json:"issue_date" db:"issue_date"`
	DueDate   time.Time `json:"due_date" db:"due_date"`
}
