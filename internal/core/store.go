package core

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by point reads when no row exists for the key.
	ErrNotFound = errors.New("item not found")

	// ErrConditionFailed is returned when a conditional write was rejected:
	// Put on an existing row, Update or Replace on a missing row.
	ErrConditionFailed = errors.New("conditional write failed")

	// ErrCorruptRecord marks a stored row that cannot be decoded into its entry type.
	ErrCorruptRecord = errors.New("corrupt record")

	// ErrRevisionMismatch is returned by UpdateIf and DeleteIf when the row was
	// written by someone else since its revision was read.
	ErrRevisionMismatch = errors.New("row revision moved")

	// ErrCreateCollision marks a conditional create that found the row already present.
	// The version guard runs before every create, so this is never a retry path.
	ErrCreateCollision = errors.New("entry unexpectedly exists")
)

// Item is a single stored row. Keys are attribute names, see the Attr constants.
type Item map[string]any

// PK returns the primary key attribute of the item.
func (i Item) PK() string {
	pk, _ := i[AttrPK].(string)
	return pk
}

// Query addresses a secondary index.
type Query struct {
	// Index is the index name as configured for the table.
	Index string
	// Key is the partition value the index attribute must equal.
	Key string
	// Cursor continues a previous query; empty starts from the beginning.
	Cursor string
	// Limit is the page size. Zero means the table default.
	Limit int
	// Descending reverses the index sort order.
	Descending bool
}

// Page is one page of query results. Next is empty once the index is exhausted.
type Page struct {
	Items []Item
	Next  string
}

// Table is a key-value table with conditional writes and secondary indexes.
type Table interface {
	// Get reads a row by primary key, ErrNotFound if absent.
	Get(ctx context.Context, pk string) (Item, error)

	// Put creates a row, ErrConditionFailed if a row with that key exists.
	Put(ctx context.Context, item Item) error

	// Update merges attrs into an existing row, ErrConditionFailed if absent.
	Update(ctx context.Context, pk string, attrs Item) error

	// Delete removes a row. Deleting a missing row is not an error.
	Delete(ctx context.Context, pk string) error

	// UpdateIf merges attrs into an existing row and increments its revision,
	// provided the stored revision still equals revision. A row that never went
	// through UpdateIf is at revision zero.
	// ErrConditionFailed if absent, ErrRevisionMismatch if the revision moved.
	UpdateIf(ctx context.Context, pk string, attrs Item, revision int64) error

	// DeleteIf removes a row whose stored revision still equals revision.
	// ErrConditionFailed if absent, ErrRevisionMismatch if the revision moved.
	DeleteIf(ctx context.Context, pk string, revision int64) error

	// Replace writes item and deletes oldPK in one atomic step.
	// ErrConditionFailed if oldPK no longer exists.
	Replace(ctx context.Context, item Item, oldPK string) error

	// Query returns one page of rows matching an index key.
	Query(ctx context.Context, q Query) (Page, error)
}

// IndexDefinition describes a secondary index of a table.
type IndexDefinition struct {
	Name string
	// PartitionAttr is the attribute matched against Query.Key.
	PartitionAttr string
	// SortAttr orders rows within a partition. Rows fall back to pk order.
	SortAttr string
}

// IntegrityError wraps a data-integrity fault: the projection is corrupt or a
// logic invariant was broken. It must stop processing of the current event.
type IntegrityError struct {
	Op  string
	PK  string
	Err error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity fault during %s on '%s': %v", e.Op, e.PK, e.Err)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// Integrity wraps err as an IntegrityError for the given operation and key.
func Integrity(op, pk string, err error) error {
	return &IntegrityError{Op: op, PK: pk, Err: err}
}

// IsIntegrityError reports whether err is a data-integrity fault.
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
