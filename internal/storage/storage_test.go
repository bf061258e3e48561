package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"libralend/internal/audit"
	"libralend/internal/catalog"
	"libralend/internal/ledger"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "libralend_test.db")
	s, err := Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestOpenCreatesSchema(t *testing.T) {
	s := openTestStore(t)

	books, issuances, entries, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, books)
	assert.Empty(t, issuances)
	assert.Empty(t, entries)
}

func TestSaveBookRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveBook(ctx, catalog.Book{
		ID: "B1", Title: "Dune", Author: "Herbert", TotalCopies: 2, AvailableCopies: 2,
	}))

	books, _, _, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "Dune", books[0].Title)
	assert.Equal(t, 2, books[0].AvailableCopies)
}

func TestSaveBookDuplicateFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	b := catalog.Book{ID: "B1", Title: "Dune", Author: "Herbert", TotalCopies: 2, AvailableCopies: 2}
	require.NoError(t, s.SaveBook(ctx, b))

	err := s.SaveBook(ctx, b)
	assert.ErrorIs(t, err, ErrStorage)
}

func TestFlushIssueAndReturn(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	log := audit.NewLog()

	require.NoError(t, s.SaveBook(ctx, catalog.Book{
		ID: "B1", Title: "Dune", Author: "Herbert", TotalCopies: 2, AvailableCopies: 2,
	}))

	iss := ledger.Issuance{
		BookID:    "B1",
		Borrower:  "alice",
		IssueDate: date("2024-01-01"),
		DueDate:   date("2024-01-15"),
	}
	issueEntry := log.NewEntry("alice", "B1", audit.ActionIssue, date("2024-01-01"), 0)

	require.NoError(t, s.FlushIssue(ctx,
		catalog.Book{ID: "B1", Title: "Dune", Author: "Herbert", TotalCopies: 2, AvailableCopies: 1},
		iss, issueEntry,
	))

	books, issuances, entries, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, 1, books[0].AvailableCopies)
	require.Len(t, issuances, 1)
	assert.Equal(t, date("2024-01-15"), issuances[0].DueDate)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionIssue, entries[0].Action)
	assert.Equal(t, issueEntry.ID, entries[0].ID)

	returnEntry := log.NewEntry("alice", "B1", audit.ActionReturn, date("2024-01-20"), 10)
	require.NoError(t, s.FlushReturn(ctx,
		catalog.Book{ID: "B1", Title: "Dune", Author: "Herbert", TotalCopies: 2, AvailableCopies: 2},
		iss, returnEntry,
	))

	books, issuances, entries, err = s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, books[0].AvailableCopies)
	assert.Empty(t, issuances)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionReturn, entries[1].Action)
	assert.Equal(t, 10, entries[1].Fine)
}

func TestFlushIssueDuplicateLoanRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	log := audit.NewLog()

	require.NoError(t, s.SaveBook(ctx, catalog.Book{
		ID: "B1", Title: "Dune", Author: "Herbert", TotalCopies: 2, AvailableCopies: 2,
	}))

	iss := ledger.Issuance{
		BookID:    "B1",
		Borrower:  "alice",
		IssueDate: date("2024-01-01"),
		DueDate:   date("2024-01-15"),
	}
	b := catalog.Book{ID: "B1", Title: "Dune", Author: "Herbert", TotalCopies: 2, AvailableCopies: 1}
	require.NoError(t, s.FlushIssue(ctx, b, iss, log.NewEntry("alice", "B1", audit.ActionIssue, iss.IssueDate, 0)))

	// Same (book, borrower) primary key: the whole transaction must fail
	// and leave the first flush untouched.
	b.AvailableCopies = 0
	err := s.FlushIssue(ctx, b, iss, log.NewEntry("alice", "B1", audit.ActionIssue, iss.IssueDate, 0))
	require.ErrorIs(t, err, ErrStorage)

	books, issuances, entries, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, books[0].AvailableCopies)
	assert.Len(t, issuances, 1)
	assert.Len(t, entries, 1)
}

func TestLoadAllOrdersEntriesBySeq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	log := audit.NewLog()

	require.NoError(t, s.SaveBook(ctx, catalog.Book{
		ID: "B1", Title: "Dune", Author: "Herbert", TotalCopies: 3, AvailableCopies: 3,
	}))

	for i, borrower := range []string{"alice", "bob", "carol"} {
		iss := ledger.Issuance{
			BookID:    "B1",
			Borrower:  borrower,
			IssueDate: date("2024-01-01"),
			DueDate:   date("2024-01-15"),
		}
		b := catalog.Book{ID: "B1", Title: "Dune", Author: "Herbert", TotalCopies: 3, AvailableCopies: 2 - i}
		require.NoError(t, s.FlushIssue(ctx, b, iss, log.NewEntry(borrower, "B1", audit.ActionIssue, iss.IssueDate, 0)))
	}

	_, _, entries, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "alice", entries[0].Borrower)
	assert.Equal(t, "bob", entries[1].Borrower)
	assert.Equal(t, "carol", entries[2].Borrower)
}

func TestOpenBadDriver(t *testing.T) {
	_, err := Open("nosuchdriver", "dsn")
	assert.ErrorIs(t, err, ErrStorage)
}
