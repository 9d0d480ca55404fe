package ledger

import (
	"context"
)

// =============================================================================
// STORE - Persistence contract for the ledger
// =============================================================================

// Query filters ledger entries. Zero-valued fields do not filter.
// Results are always ordered newest first: date descending, then id descending.
type Query struct {
	CollaboratorID CollaboratorID
	Type           RecordType
	Origin         Origin
	Window         Window
	BulkID         BulkID
	Limit          int
}

// Matches reports whether e satisfies every set filter.
func (q Query) Matches(e Entry) bool {
	if q.CollaboratorID != 0 && e.CollaboratorID != q.CollaboratorID {
		return false
	}
	if q.Type != "" && e.Type != q.Type {
		return false
	}
	if q.Origin != "" && e.Origin != q.Origin {
		return false
	}
	if q.BulkID != 0 && e.BulkID != q.BulkID {
		return false
	}
	return q.Window.Contains(e.Date)
}

// Store persists entries, bulk operations and audit records.
//
// Implementations must assign strictly increasing EntryIDs so that, among
// entries sharing a date, the higher id is the newer one.
type Store interface {
	Insert(ctx context.Context, e Entry) (EntryID, error)
	Update(ctx context.Context, e Entry) error
	Delete(ctx context.Context, id EntryID) error
	Get(ctx context.Context, id EntryID) (Entry, error)
	Query(ctx context.Context, q Query) ([]Entry, error)

	Collaborator(ctx context.Context, id CollaboratorID) (Collaborator, error)
	Collaborators(ctx context.Context) ([]Collaborator, error)

	InsertBulk(ctx context.Context, op BulkOperation) (BulkID, error)
	GetBulk(ctx context.Context, id BulkID) (BulkOperation, error)
	ListBulkCorrections(ctx context.Context, id BulkID) ([]BulkOperation, error)

	RecordChange(ctx context.Context, c EntryChange) error
	Changes(ctx context.Context, id EntryID) ([]EntryChange, error)

	HolidaysBetween(ctx context.Context, from, to Date) ([]Holiday, error)
}

// TxStore runs fn atomically: either every write made through the Store handed
// to fn is kept, or none is.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

// RunRecorder is implemented by stores that keep a reconciliation run log.
// Stores without it simply skip run recording.
type RunRecorder interface {
	RecordRun(ctx context.Context, r Run) error
}
