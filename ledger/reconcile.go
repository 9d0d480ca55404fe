/*
reconcile.go - Automatic day credits from accumulated hours

PURPOSE:
  Keeps the number of automatic day credits equal to floor(H / 8), where H
  is the sum of positive hours a collaborator has logged. Runs after every
  mutation that can change H, inside the mutation's own transaction, so an
  out-of-order edit or delete self-heals before it is committed.

ALGORITHM:
  desired = floor(H / 8)
  actual  = count(day_credit, origin = automatic_reconciliation)

  desired > actual:
    grant (desired - actual) credits dated today, each paired with a -8h
    system_adjustment debit. A debit left unpaired by an earlier credit
    removal is reused instead of writing a new one.

  desired < actual:
    delete the newest (actual - desired) automatic credits and as many of
    the newest -8h debits; each debit that cannot be found is offset with a
    +8h system_adjustment compensation.

  H ignores system_adjustment rows, so compensations never feed back into
  the next run: a second run without intervening changes writes nothing.
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const autoGrantNote = "automatic grant: 8h converted"

// Outcome reports what one reconciliation did.
type Outcome struct {
	CollaboratorID CollaboratorID
	Desired        int
	Actual         int
	Granted        int
	DebitsWritten  int
	CreditsRemoved int
	DebitsRemoved  int
	Compensations  int
}

// Writes is the number of rows inserted or deleted.
func (o Outcome) Writes() int {
	return o.Granted + o.DebitsWritten + o.CreditsRemoved + o.DebitsRemoved + o.Compensations
}

// Plan is the pure decision taken from a collaborator's rows.
type Plan struct {
	Desired         int
	Actual          int
	Grants          int
	DebitsToWrite   int
	CreditsToRemove []EntryID
	DebitsToRemove  []EntryID
	Compensations   int
}

// Empty reports whether the plan needs no writes.
func (p Plan) Empty() bool {
	return p.Grants == 0 && p.DebitsToWrite == 0 && len(p.CreditsToRemove) == 0 &&
		len(p.DebitsToRemove) == 0 && p.Compensations == 0
}

// PlanReconciliation decides the writes for one collaborator. entries must be
// all of the collaborator's rows ordered newest first (date desc, id desc).
func PlanReconciliation(entries []Entry) Plan {
	positive, adjusted := decimal.Zero, decimal.Zero
	var credits, debits []EntryID
	for _, e := range entries {
		switch {
		case e.IsAutoCredit():
			credits = append(credits, e.ID)
		case e.Type == RecordHours && e.Origin == OriginSystemAdjustment:
			adjusted = adjusted.Add(e.Hours)
			if e.IsAdjustmentDebit() {
				debits = append(debits, e.ID)
			}
		case e.Type == RecordHours && e.Hours.IsPositive():
			positive = positive.Add(e.Hours)
		}
	}

	p := Plan{Desired: wholeDays(positive), Actual: len(credits)}

	switch {
	case p.Desired > p.Actual:
		p.Grants = p.Desired - p.Actual
		// Net debited days not matched by a credit are reused.
		unpaired := wholeDays(adjusted.Neg()) - len(credits)
		if unpaired < 0 {
			unpaired = 0
		}
		p.DebitsToWrite = p.Grants - unpaired
		if p.DebitsToWrite < 0 {
			p.DebitsToWrite = 0
		}
	case p.Desired < p.Actual:
		excess := p.Actual - p.Desired
		p.CreditsToRemove = credits[:excess]
		n := excess
		if n > len(debits) {
			n = len(debits)
		}
		p.DebitsToRemove = debits[:n]
		p.Compensations = excess - n
	}
	return p
}

// =============================================================================
// RECONCILER
// =============================================================================

type Reconciler struct {
	clock  Clock
	logger *zap.Logger
}

func NewReconciler(clock Clock, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{clock: clock, logger: logger}
}

// Reconcile brings one collaborator back to the invariant using s, which is
// expected to be the caller's transactional view. Any failure is returned as a
// *ReconciliationFailure and the caller must roll back.
func (r *Reconciler) Reconcile(ctx context.Context, s Store, collaboratorID CollaboratorID) (Outcome, error) {
	out := Outcome{CollaboratorID: collaboratorID}

	entries, err := s.Query(ctx, Query{CollaboratorID: collaboratorID})
	if err != nil {
		return out, r.fail(collaboratorID, fmt.Errorf("load entries: %w", err))
	}

	plan := PlanReconciliation(entries)
	out.Desired, out.Actual = plan.Desired, plan.Actual
	if plan.Empty() {
		return out, nil
	}

	today := r.clock.Today()
	now := r.clock.Now()

	for i := 0; i < plan.Grants; i++ {
		credit := Entry{
			CollaboratorID: collaboratorID,
			Date:           today,
			Type:           RecordDayCredit,
			Days:           1,
			Origin:         OriginAutomaticReconciliation,
			Notes:          autoGrantNote,
			CreatedBy:      "system",
			CreatedAt:      now,
		}
		if _, err := s.Insert(ctx, credit); err != nil {
			return out, r.fail(collaboratorID, fmt.Errorf("insert credit: %w", err))
		}
		out.Granted++
	}
	for i := 0; i < plan.DebitsToWrite; i++ {
		if _, err := s.Insert(ctx, adjustmentRow(collaboratorID, today, now, -HoursPerDay, "automatic grant: 8h debited")); err != nil {
			return out, r.fail(collaboratorID, fmt.Errorf("insert debit: %w", err))
		}
		out.DebitsWritten++
	}

	for _, id := range plan.CreditsToRemove {
		if err := s.Delete(ctx, id); err != nil {
			return out, r.fail(collaboratorID, fmt.Errorf("delete credit %d: %w", id, err))
		}
		out.CreditsRemoved++
	}
	for _, id := range plan.DebitsToRemove {
		if err := s.Delete(ctx, id); err != nil {
			return out, r.fail(collaboratorID, fmt.Errorf("delete debit %d: %w", id, err))
		}
		out.DebitsRemoved++
	}
	for i := 0; i < plan.Compensations; i++ {
		if _, err := s.Insert(ctx, adjustmentRow(collaboratorID, today, now, HoursPerDay, "reversal: 8h returned")); err != nil {
			return out, r.fail(collaboratorID, fmt.Errorf("insert compensation: %w", err))
		}
		out.Compensations++
	}

	r.logger.Debug("reconciled",
		zap.Int64("collaborator_id", int64(collaboratorID)),
		zap.Int("desired", out.Desired),
		zap.Int("actual", out.Actual),
		zap.Int("granted", out.Granted),
		zap.Int("debits_written", out.DebitsWritten),
		zap.Int("credits_removed", out.CreditsRemoved),
		zap.Int("debits_removed", out.DebitsRemoved),
		zap.Int("compensations", out.Compensations),
	)
	return out, nil
}

func (r *Reconciler) fail(collaboratorID CollaboratorID, err error) error {
	return &ReconciliationFailure{CollaboratorID: collaboratorID, Err: err}
}

func adjustmentRow(collaboratorID CollaboratorID, date Date, now time.Time, hours int64, note string) Entry {
	return Entry{
		CollaboratorID: collaboratorID,
		Date:           date,
		Type:           RecordHours,
		Hours:          decimal.NewFromInt(hours),
		Origin:         OriginSystemAdjustment,
		Notes:          note,
		CreatedBy:      "system",
		CreatedAt:      now,
	}
}
