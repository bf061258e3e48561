// internal/catalog/domain.go
package catalog

import "errors"

var (
	ErrNotFound        = errors.New("book not found")
	ErrDuplicateBook   = errors.New("book id already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrCopyOverflow    = errors.New("available copies would exceed total copies")
)

// Book represents a lendable title in the catalog.
// The ID is assigned by the caller and immutable after creation.
type Book struct {
	ID              string `json:"id" db:"id"`
	Title           string `json:"title" db:"title"`
	Author          string `json:"author" db:"author"`
	TotalCopies     int    `json:"total_copies" db:"total_copies"`
	AvailableCopies int    `json:"available_copies" db:"available_copies"`
}
