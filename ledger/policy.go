package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/multimax/hourbank/metrics"
)

// =============================================================================
// CONVERSION POLICY - Constants shared by every collaborator
// =============================================================================

const (
	// HoursPerDay is the size of one convertible block of hours.
	HoursPerDay = 8

	// BalanceCeilingDays caps the balance reachable through verify-and-convert.
	BalanceCeilingDays = 30

	MaxHoursPerEntry = 24
	MaxDaysPerEntry  = 365
)

var (
	hoursPerDay = decimal.NewFromInt(HoursPerDay)

	// DefaultRatePerDay is used for a conversion when the caller gives no rate.
	DefaultRatePerDay = decimal.NewFromInt(65)
)

const ceilingNote = "ceiling forfeiture"

// ConversionOutcome is the result of VerifyAndConvert.
type ConversionOutcome struct {
	CollaboratorID CollaboratorID
	ConvertedDays  int
	Capped         bool
	Shortfall      int
	NewBalance     int
}

// VerifyAndConvert grants every pending 8-hour block as a day credit. When the
// grant pushes the balance over BalanceCeilingDays, the days granted above the
// ceiling are forfeited with a zero-paid conversion so the net grant equals
// the room that was left.
func (s *Service) VerifyAndConvert(ctx context.Context, collaboratorID CollaboratorID) (ConversionOutcome, error) {
	result := ConversionOutcome{CollaboratorID: collaboratorID}
	started := s.clock.Now()

	err := s.store.WithTx(ctx, func(tx Store) error {
		if _, err := s.activeCollaborator(ctx, tx, collaboratorID); err != nil {
			return err
		}

		entries, err := tx.Query(ctx, Query{CollaboratorID: collaboratorID})
		if err != nil {
			return fmt.Errorf("load entries: %w", err)
		}
		plan := PlanReconciliation(entries)
		pending := plan.Grants

		out, err := s.reconcile(ctx, tx, collaboratorID)
		if err != nil {
			return err
		}

		after, err := tx.Query(ctx, Query{CollaboratorID: collaboratorID})
		if err != nil {
			return fmt.Errorf("load entries: %w", err)
		}
		balance := Calculate(collaboratorID, after, Window{}).BalanceDays

		result.ConvertedDays = pending
		if balance > BalanceCeilingDays && pending > 0 {
			over := balance - BalanceCeilingDays
			if over > pending {
				over = pending
			}
			forfeit := Entry{
				CollaboratorID: collaboratorID,
				Date:           s.clock.Today(),
				Type:           RecordConversion,
				Days:           over,
				AmountPaid:     decimal.Zero,
				RatePerDay:     decimal.Zero,
				Origin:         OriginSystemAdjustment,
				Notes:          ceilingNote,
				CreatedBy:      "system",
				CreatedAt:      s.clock.Now(),
			}
			if _, err := tx.Insert(ctx, forfeit); err != nil {
				return &ReconciliationFailure{CollaboratorID: collaboratorID, Err: fmt.Errorf("insert forfeiture: %w", err)}
			}
			result.ConvertedDays = pending - over
			result.Capped = true
			result.Shortfall = over
			balance = Calculate(collaboratorID, append(after, forfeit), Window{}).BalanceDays
			metrics.CeilingForfeitedDays.Add(float64(over))
		}
		result.NewBalance = balance

		return s.recordRun(ctx, tx, Run{
			CollaboratorID: collaboratorID,
			Trigger:        TriggerVerify,
			Granted:        out.Granted,
			CreditsRemoved: out.CreditsRemoved,
			DebitsRemoved:  out.DebitsRemoved,
			Compensations:  out.Compensations,
			ForfeitedDays:  result.Shortfall,
			StartedAt:      started,
			FinishedAt:     s.clock.Now(),
		})
	})
	if err != nil {
		return ConversionOutcome{}, err
	}

	s.logger.Info("verify and convert",
		zap.Int64("collaborator_id", int64(collaboratorID)),
		zap.Int("converted_days", result.ConvertedDays),
		zap.Bool("capped", result.Capped),
		zap.Int("new_balance", result.NewBalance),
	)
	return result, nil
}

// recordRun stores r when the store keeps a run log.
func (s *Service) recordRun(ctx context.Context, st Store, r Run) error {
	rec, ok := st.(RunRecorder)
	if !ok {
		return nil
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}
	if err := rec.RecordRun(ctx, r); err != nil {
		return fmt.Errorf("record reconciliation run: %w", err)
	}
	return nil
}

// conversionAmount fills in rate and amount defaults for a conversion.
func conversionAmount(days int, rate, amount *decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	r := DefaultRatePerDay
	if rate != nil {
		r = *rate
	}
	if amount != nil {
		return r, *amount
	}
	return r, r.Mul(decimal.NewFromInt(int64(days)))
}
