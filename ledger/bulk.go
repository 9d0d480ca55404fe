/*
bulk.go - One administrative action applied to many collaborators

A bulk operation writes one manual entry per collaborator through the same
path as AppendEntry, so every entry is validated and reconciled on its own.
All of them share one transaction: one failing collaborator aborts the lot.

Bulks are never edited. A mistake is fixed by a correction: a new bulk whose
CorrectionOf points at the original. The original's entries stay untouched
and the chain can be walked back with BulkLineage.

  addition on hours      -> +hours entry each
  discount on hours      -> -hours entry each
  addition on day_credit -> day_credit entry each
  discount on day_credit -> day_usage entry each
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/multimax/hourbank/metrics"
)

// CreateBulk records and applies a new bulk operation.
func (s *Service) CreateBulk(ctx context.Context, req BulkRequest) (BulkOperation, error) {
	return s.applyBulk(ctx, req, 0)
}

// CorrectBulk records a correction of original. The original bulk and its
// entries are left as they are.
func (s *Service) CorrectBulk(ctx context.Context, original BulkID, req BulkRequest) (BulkOperation, error) {
	if original <= 0 {
		return BulkOperation{}, &ValidationError{Field: "correction_of_id", Reason: "is required"}
	}
	return s.applyBulk(ctx, req, original)
}

// BulkLineage walks from id back to the operation it ultimately corrects.
// The first element is id itself; the last is the root.
func (s *Service) BulkLineage(ctx context.Context, id BulkID) ([]BulkOperation, error) {
	var chain []BulkOperation
	seen := make(map[BulkID]bool)
	for cur := id; cur != 0; {
		if seen[cur] {
			return nil, fmt.Errorf("bulk operation %d: correction chain loops", cur)
		}
		seen[cur] = true
		op, err := s.store.GetBulk(ctx, cur)
		if err != nil {
			return nil, err
		}
		chain = append(chain, op)
		cur = op.CorrectionOf
	}
	return chain, nil
}

// BulkCorrections lists the direct corrections of id.
func (s *Service) BulkCorrections(ctx context.Context, id BulkID) ([]BulkOperation, error) {
	if _, err := s.store.GetBulk(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListBulkCorrections(ctx, id)
}

func (s *Service) applyBulk(ctx context.Context, req BulkRequest, correctionOf BulkID) (BulkOperation, error) {
	ids, err := validateBulk(req)
	if err != nil {
		return BulkOperation{}, err
	}
	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = actorFrom(ctx)
	}

	op := BulkOperation{
		Kind:               req.Kind,
		Type:               req.Type,
		Hours:              req.Hours,
		Days:               req.Days,
		Date:               req.Date,
		Notes:              req.Notes,
		CreatedBy:          createdBy,
		CreatedAt:          s.clock.Now(),
		TotalCollaborators: len(ids),
		CorrectionOf:       correctionOf,
	}

	err = s.store.WithTx(ctx, func(tx Store) error {
		if correctionOf != 0 {
			if _, err := tx.GetBulk(ctx, correctionOf); err != nil {
				return err
			}
		}
		for _, id := range ids {
			if _, err := s.activeCollaborator(ctx, tx, id); err != nil {
				return err
			}
		}

		bulkID, err := tx.InsertBulk(ctx, op)
		if err != nil {
			return fmt.Errorf("insert bulk operation: %w", err)
		}
		op.ID = bulkID

		for _, id := range ids {
			in := bulkEntry(op, id)
			if _, err := s.appendTx(ctx, tx, in); err != nil {
				return fmt.Errorf("collaborator %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return BulkOperation{}, err
	}

	metrics.BulkOperations.WithLabelValues(string(op.Kind), string(op.Type)).Inc()
	s.logger.Info("bulk operation applied",
		zap.Int64("bulk_id", int64(op.ID)),
		zap.String("kind", string(op.Kind)),
		zap.String("record_type", string(op.Type)),
		zap.Int("collaborators", op.TotalCollaborators),
		zap.Int64("correction_of", int64(op.CorrectionOf)),
	)
	return op, nil
}

func bulkEntry(op BulkOperation, collaboratorID CollaboratorID) EntryInput {
	in := EntryInput{
		CollaboratorID: collaboratorID,
		Date:           op.Date,
		Origin:         OriginManual,
		Notes:          op.Notes,
		CreatedBy:      op.CreatedBy,
		BulkID:         op.ID,
	}
	switch {
	case op.Type == RecordHours && op.Kind == BulkDiscount:
		in.Type, in.Hours = RecordHours, op.Hours.Neg()
	case op.Type == RecordHours:
		in.Type, in.Hours = RecordHours, op.Hours
	case op.Kind == BulkDiscount:
		in.Type, in.Days = RecordDayUsage, op.Days
	default:
		in.Type, in.Days = RecordDayCredit, op.Days
	}
	return in
}

// validateBulk checks the request shape and returns the deduplicated
// collaborator ids in request order.
func validateBulk(req BulkRequest) ([]CollaboratorID, error) {
	if req.Kind != BulkAddition && req.Kind != BulkDiscount {
		return nil, &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown bulk kind %q", req.Kind)}
	}
	switch req.Type {
	case RecordHours:
		if !req.Hours.IsPositive() {
			return nil, &ValidationError{Field: "hours", Reason: "must be positive; use kind=discount to subtract"}
		}
		if req.Days != 0 {
			return nil, &ValidationError{Field: "days", Reason: "not allowed on hours bulks"}
		}
	case RecordDayCredit:
		if req.Days < 1 {
			return nil, &ValidationError{Field: "days", Reason: "must be at least 1"}
		}
		if !req.Hours.IsZero() {
			return nil, &ValidationError{Field: "hours", Reason: "not allowed on day bulks"}
		}
	default:
		return nil, &ValidationError{Field: "record_type", Reason: "bulk operations support hours or day_credit"}
	}
	if req.Date.IsZero() {
		return nil, &ValidationError{Field: "date", Reason: "is required"}
	}
	if len(req.CollaboratorIDs) == 0 {
		return nil, &ValidationError{Field: "collaborator_ids", Reason: "at least one collaborator is required"}
	}

	seen := make(map[CollaboratorID]bool, len(req.CollaboratorIDs))
	ids := make([]CollaboratorID, 0, len(req.CollaboratorIDs))
	for _, id := range req.CollaboratorIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// BulkHours is a convenience for building hours bulk requests.
func BulkHours(kind BulkKind, hours decimal.Decimal, date Date, ids ...CollaboratorID) BulkRequest {
	return BulkRequest{Kind: kind, Type: RecordHours, Hours: hours, Date: date, CollaboratorIDs: ids}
}
