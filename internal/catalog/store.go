// internal/catalog/store.go
package catalog

import (
	"fmt"
	"sort"
	"sync"
)

// Store owns the set of Book records and their copy counters.
// All copy-count mutation goes through TryReserveCopy and ReleaseCopy so
// the availability invariant has a single enforcement point.
type Store struct {
	mu    sync.RWMutex
	books map[string]*Book
}

// NewStore creates an empty catalog store.
func NewStore() *Store {
	return &Store{books: make(map[string]*Book)}
}

// AddBook creates a new book with all copies available.
func (s *Store) AddBook(id, title, author string, copies int) (Book, error) {
	if id == "" {
		return Book{}, fmt.Errorf("%w: book id must not be empty", ErrInvalidArgument)
	}
	if copies < 0 {
		return Book{}, fmt.Errorf("%w: copies must be non-negative, got %d", ErrInvalidArgument, copies)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.books[id]; exists {
		return Book{}, fmt.Errorf("%w: %s", ErrDuplicateBook, id)
	}

	b := &Book{
		ID:              id,
		Title:           title,
		Author:          author,
		TotalCopies:     copies,
		AvailableCopies: copies,
	}
	s.books[id] = b
	return *b, nil
}

// TryReserveCopy atomically checks availability and decrements the counter.
// A false result means no copies are left; that is the normal
// "unavailable" signal, not an error.
func (s *Store) TryReserveCopy(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, exists := s.books[id]
	if !exists {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if b.AvailableCopies <= 0 {
		return false, nil
	}
	b.AvailableCopies--
	return true, nil
}

// ReleaseCopy returns a reserved copy to the pool. Exceeding the total
// copy count signals a bookkeeping error and is reported, not clamped.
func (s *Store) ReleaseCopy(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, exists := s.books[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if b.AvailableCopies >= b.TotalCopies {
		return fmt.Errorf("%w: %s has %d of %d copies", ErrCopyOverflow, id, b.AvailableCopies, b.TotalCopies)
	}
	b.AvailableCopies++
	return nil
}

// Get returns a snapshot of a single book.
func (s *Store) Get(id string) (Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, exists := s.books[id]
	if !exists {
		return Book{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *b, nil
}

// List returns a snapshot of all books, sorted by id.
func (s *Store) List() []Book {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Book, 0, len(s.books))
	for _, b := range s.books {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Restore replaces the store contents with a previously persisted
// snapshot. Called once at startup before the store is shared.
func (s *Store) Restore(books []Book) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.books = make(map[string]*Book, len(books))
	for _, b := range books {
		book := b
		s.books[b.ID] = &book
	}
}

// Forget backs out a book whose initial persist failed, restoring the
// pre-AddBook state. It must not be used on a committed book.
func (s *Store) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.books, id)
}
