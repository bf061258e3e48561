package lending

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"libralend/internal/audit"
	"libralend/internal/catalog"
	"libralend/internal/ledger"
	"libralend/internal/storage"
)

// TestStateSurvivesRestart runs the lending workflows against a real
// SQLite file, then rebuilds the stores from it as a fresh process
// start would.
func TestStateSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "libralend.db")

	store, err := storage.Open("sqlite", path)
	require.NoError(t, err)

	f := newFixture(store)
	_, err = f.svc.AddBook(ctx, "B1", "Dune", "Herbert", 2)
	require.NoError(t, err)
	_, err = f.svc.AddBook(ctx, "B2", "Foo", "Bar", 1)
	require.NoError(t, err)

	_, err = f.svc.IssueBook(ctx, "B1", "alice", date("2024-01-01"))
	require.NoError(t, err)
	_, err = f.svc.IssueBook(ctx, "B2", "bob", date("2024-01-02"))
	require.NoError(t, err)

	fine, err := f.svc.ReturnBook(ctx, "B2", "bob", date("2024-01-03"))
	require.NoError(t, err)
	assert.Zero(t, fine)

	require.NoError(t, store.Close())

	// Restart: reload everything from the file.
	store, err = storage.Open("sqlite", path)
	require.NoError(t, err)
	defer store.Close()

	books, issuances, entries, err := store.LoadAll(ctx)
	require.NoError(t, err)

	cat := catalog.NewStore()
	cat.Restore(books)
	led := ledger.NewLedger()
	led.Restore(issuances)
	auditLog := audit.NewLog()
	auditLog.Restore(entries)
	svc := NewService(cat, led, auditLog, store, nil)

	b1, err := cat.Get("B1")
	require.NoError(t, err)
	assert.Equal(t, 1, b1.AvailableCopies, "alice's loan is still out")

	b2, err := cat.Get("B2")
	require.NoError(t, err)
	assert.Equal(t, 1, b2.AvailableCopies)

	require.Len(t, led.ActiveLoans(""), 1)
	assert.Equal(t, 3, auditLog.Len())

	// The reloaded engine keeps working: alice returns late.
	fine, err = svc.ReturnBook(ctx, "B1", "alice", date("2024-01-20"))
	require.NoError(t, err)
	assert.Equal(t, 10, fine)

	report := svc.MostBorrowedReport(ctx, 5)
	require.Len(t, report, 2)
	assert.Equal(t, BookCount{BookID: "B1", Count: 1}, report[0])
	assert.Equal(t, BookCount{BookID: "B2", Count: 1}, report[1])
}
