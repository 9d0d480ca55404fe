/*
Package ledger implements the hour bank: a per-collaborator record of extra
hours worked and days off credited, used or converted to cash.

PURPOSE:
  Collaborators accumulate overtime as hours entries. Every full block of
  8 positive hours becomes one automatic day credit, paired with a -8h
  system adjustment so the same hours cannot be granted twice. Days can
  also be credited manually, used as time off, or converted to payment.

KEY CONCEPTS IN THIS FILE (types.go):
  - Entry: one row of the ledger (hours, day_credit, day_usage, conversion)
  - RecordType / Origin: closed enums; unknown tags are rejected at parse time
  - BulkOperation: one administrative action fanned out to many collaborators
  - Collaborator: the person owning a ledger

INVARIANTS:
  1. Every automatic credit has a paired -8h system_adjustment debit
  2. The number of automatic credits equals floor(positive hours / 8)
  3. Entries created by reconciliation are never appended by callers
  4. A bulk correction never modifies the original bulk's entries

SEE ALSO:
  - balance.go: Pure balance calculation over a set of entries
  - reconcile.go: The engine that keeps invariants 1 and 2
  - service.go: The mutation/query surface used by transports
*/
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntryID int64

type CollaboratorID int64

type BulkID int64

// =============================================================================
// RECORD TYPE - What an entry counts
// =============================================================================

type RecordType string

const (
	RecordHours      RecordType = "hours"
	RecordDayCredit  RecordType = "day_credit"
	RecordDayUsage   RecordType = "day_usage"
	RecordConversion RecordType = "conversion"
)

var recordTypes = []RecordType{RecordHours, RecordDayCredit, RecordDayUsage, RecordConversion}

// ParseRecordType accepts only the four known tags.
func ParseRecordType(s string) (RecordType, error) {
	for _, rt := range recordTypes {
		if strings.EqualFold(s, string(rt)) {
			return rt, nil
		}
	}
	return "", &ValidationError{Field: "record_type", Reason: fmt.Sprintf("unknown record type %q", s)}
}

func (rt RecordType) Valid() bool {
	for _, known := range recordTypes {
		if rt == known {
			return true
		}
	}
	return false
}

// =============================================================================
// ORIGIN - Who wrote an entry
// =============================================================================

type Origin string

const (
	OriginManual                  Origin = "manual"
	OriginAutomaticReconciliation Origin = "automatic_reconciliation"
	OriginSystemAdjustment        Origin = "system_adjustment"
	OriginImport                  Origin = "import"
)

var origins = []Origin{OriginManual, OriginAutomaticReconciliation, OriginSystemAdjustment, OriginImport}

func ParseOrigin(s string) (Origin, error) {
	if s == "" {
		return OriginManual, nil
	}
	for _, o := range origins {
		if strings.EqualFold(s, string(o)) {
			return o, nil
		}
	}
	return "", &ValidationError{Field: "origin", Reason: fmt.Sprintf("unknown origin %q", s)}
}

func (o Origin) Valid() bool {
	for _, known := range origins {
		if o == known {
			return true
		}
	}
	return false
}

// Automatic reports whether the row is owned by the reconciliation engine.
func (o Origin) Automatic() bool {
	return o == OriginAutomaticReconciliation || o == OriginSystemAdjustment
}

// =============================================================================
// ENTRY
// =============================================================================

// Entry is a single ledger row. Which payload fields are meaningful depends on
// Type: Hours for hours rows, Days for the three day-based rows, and
// AmountPaid/RatePerDay for conversions only.
type Entry struct {
	ID             EntryID
	CollaboratorID CollaboratorID
	Date           Date
	Type           RecordType
	Hours          decimal.Decimal
	Days           int
	AmountPaid     decimal.Decimal
	RatePerDay     decimal.Decimal
	Origin         Origin
	Notes          string
	CreatedBy      string
	CreatedAt      time.Time
	BulkID         BulkID // 0 when not part of a bulk operation
}

// IsAutoCredit reports whether the entry is a day credit granted by reconciliation.
func (e Entry) IsAutoCredit() bool {
	return e.Type == RecordDayCredit && e.Origin == OriginAutomaticReconciliation
}

// IsAdjustmentDebit reports whether the entry is a negative hours row written
// by reconciliation to consume 8 converted hours.
func (e Entry) IsAdjustmentDebit() bool {
	return e.Type == RecordHours && e.Origin == OriginSystemAdjustment && e.Hours.IsNegative()
}

// EntryInput is the caller-provided shape for a new entry.
type EntryInput struct {
	CollaboratorID CollaboratorID
	Date           Date
	Type           RecordType
	Hours          decimal.Decimal
	Days           int
	AmountPaid     *decimal.Decimal
	RatePerDay     *decimal.Decimal
	Origin         Origin
	Notes          string
	CreatedBy      string
	BulkID         BulkID
}

// EntryPatch carries the fields an edit may change. Nil fields are left alone.
// The record type is immutable; changing it means delete and re-create.
type EntryPatch struct {
	CollaboratorID *CollaboratorID
	Date           *Date
	Type           *RecordType
	Hours          *decimal.Decimal
	Days           *int
	AmountPaid     *decimal.Decimal
	RatePerDay     *decimal.Decimal
	Notes          *string
	ChangedBy      string
}

// EntryChange is one audit record of an edit or a delete.
type EntryChange struct {
	EntryID   EntryID
	Action    string // "edit" or "delete"
	Before    Entry
	After     *Entry
	ChangedBy string
	ChangedAt time.Time
}

// =============================================================================
// COLLABORATOR
// =============================================================================

type Collaborator struct {
	ID     CollaboratorID
	Name   string
	Role   string
	Active bool
}

// =============================================================================
// BULK OPERATIONS
// =============================================================================

type BulkKind string

const (
	BulkAddition BulkKind = "addition"
	BulkDiscount BulkKind = "discount"
)

func ParseBulkKind(s string) (BulkKind, error) {
	switch BulkKind(strings.ToLower(s)) {
	case BulkAddition:
		return BulkAddition, nil
	case BulkDiscount:
		return BulkDiscount, nil
	}
	return "", &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown bulk kind %q", s)}
}

// BulkOperation is the header row of a bulk action. CorrectionOf links a
// correction to the bulk it amends; it is 0 for an original operation.
type BulkOperation struct {
	ID                 BulkID
	Kind               BulkKind
	Type               RecordType
	Hours              decimal.Decimal
	Days               int
	Date               Date
	Notes              string
	CreatedBy          string
	CreatedAt          time.Time
	TotalCollaborators int
	CorrectionOf       BulkID
}

// BulkRequest describes a bulk action before it is applied.
type BulkRequest struct {
	Kind            BulkKind
	Type            RecordType // hours or day_credit
	Hours           decimal.Decimal
	Days            int
	Date            Date
	CollaboratorIDs []CollaboratorID
	Notes           string
	CreatedBy       string
}

// =============================================================================
// RECONCILIATION RUNS
// =============================================================================

type RunTrigger string

const (
	TriggerSweep  RunTrigger = "sweep"
	TriggerVerify RunTrigger = "verify"
)

// Run is the audit record of one reconciliation that wrote something, or
// failed.
type Run struct {
	ID             string
	CollaboratorID CollaboratorID
	Trigger        RunTrigger
	Granted        int
	CreditsRemoved int
	DebitsRemoved  int
	Compensations  int
	ForfeitedDays  int
	Error          string
	StartedAt      time.Time
	FinishedAt     time.Time
}
