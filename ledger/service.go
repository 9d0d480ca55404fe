/*
service.go - Mutations and queries over the hour bank

PURPOSE:
  The single entry point for transports (HTTP, CLI, scheduler). Every
  mutation runs in one store transaction together with the reconciliation
  it triggers; if either fails, nothing is kept.

WHEN RECONCILIATION RUNS:
  - an hours entry is appended, edited or deleted
  - an automatic credit is deleted
  An edit that moves an hours entry to another collaborator reconciles both.

USAGE:
  svc := ledger.NewService(store, ledger.WithLogger(log))
  id, err := svc.AppendEntry(ctx, ledger.EntryInput{
      CollaboratorID: 7,
      Date:           ledger.MustParseDate("2024-03-01"),
      Type:           ledger.RecordHours,
      Hours:          decimal.NewFromInt(9),
  })
*/
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/multimax/hourbank/metrics"
)

type Service struct {
	store      TxStore
	reconciler *Reconciler
	clock      Clock
	logger     *zap.Logger
}

type Option func(*Service)

func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(store TxStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		clock:  SystemClock{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reconciler = NewReconciler(s.clock, s.logger)
	return s
}

// =============================================================================
// ACTOR - who is making the change
// =============================================================================

type actorKey struct{}

// WithActor attaches the name recorded as created_by / changed_by.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return "system"
}

// =============================================================================
// MUTATIONS
// =============================================================================

// AppendEntry validates and stores a new entry, then reconciles when the entry
// can change the collaborator's automatic credits.
func (s *Service) AppendEntry(ctx context.Context, in EntryInput) (EntryID, error) {
	var id EntryID
	err := s.store.WithTx(ctx, func(tx Store) error {
		var err error
		id, err = s.appendTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return 0, err
	}
	metrics.EntryMutations.WithLabelValues("append", string(in.Type)).Inc()
	return id, nil
}

func (s *Service) appendTx(ctx context.Context, tx Store, in EntryInput) (EntryID, error) {
	if _, err := s.activeCollaborator(ctx, tx, in.CollaboratorID); err != nil {
		return 0, err
	}
	e, err := s.entryFromInput(in)
	if err != nil {
		return 0, err
	}
	if e.CreatedBy == "" {
		e.CreatedBy = actorFrom(ctx)
	}

	if e.Type == RecordDayUsage {
		e.Days, err = s.workingDays(ctx, tx, e.Date, e.Days)
		if err != nil {
			return 0, err
		}
		if e.Origin == OriginManual {
			if err := s.checkUsage(ctx, tx, e.CollaboratorID, e.Days, 0); err != nil {
				return 0, err
			}
		}
	}

	id, err := tx.Insert(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("insert entry: %w", err)
	}
	if needsReconciliation(e) {
		if _, err := s.reconcile(ctx, tx, e.CollaboratorID); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// EditEntry applies patch to an existing entry. The record type is immutable
// and engine-owned rows cannot be edited.
func (s *Service) EditEntry(ctx context.Context, id EntryID, patch EntryPatch) error {
	var rt RecordType
	err := s.store.WithTx(ctx, func(tx Store) error {
		old, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		rt = old.Type

		updated, err := s.applyPatch(old, patch)
		if err != nil {
			return err
		}
		moved := updated.CollaboratorID != old.CollaboratorID
		if moved {
			if _, err := s.activeCollaborator(ctx, tx, updated.CollaboratorID); err != nil {
				return err
			}
		}
		if updated.Type == RecordDayUsage && updated.Origin == OriginManual && (moved || updated.Days > old.Days) {
			if err := s.checkUsage(ctx, tx, updated.CollaboratorID, updated.Days, id); err != nil {
				return err
			}
		}

		if err := tx.Update(ctx, updated); err != nil {
			return fmt.Errorf("update entry %d: %w", id, err)
		}
		changedBy := patch.ChangedBy
		if changedBy == "" {
			changedBy = actorFrom(ctx)
		}
		if err := tx.RecordChange(ctx, EntryChange{
			EntryID:   id,
			Action:    "edit",
			Before:    old,
			After:     &updated,
			ChangedBy: changedBy,
			ChangedAt: s.clock.Now(),
		}); err != nil {
			return fmt.Errorf("record change: %w", err)
		}

		if !needsReconciliation(old) {
			return nil
		}
		if _, err := s.reconcile(ctx, tx, old.CollaboratorID); err != nil {
			return err
		}
		if moved {
			if _, err := s.reconcile(ctx, tx, updated.CollaboratorID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.EntryMutations.WithLabelValues("edit", string(rt)).Inc()
	return nil
}

// DeleteEntry removes an entry. Deleting an hours row or an automatic credit
// reconciles the collaborator in the same transaction.
func (s *Service) DeleteEntry(ctx context.Context, id EntryID) error {
	var rt RecordType
	err := s.store.WithTx(ctx, func(tx Store) error {
		old, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		rt = old.Type

		if err := tx.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete entry %d: %w", id, err)
		}
		if err := tx.RecordChange(ctx, EntryChange{
			EntryID:   id,
			Action:    "delete",
			Before:    old,
			ChangedBy: actorFrom(ctx),
			ChangedAt: s.clock.Now(),
		}); err != nil {
			return fmt.Errorf("record change: %w", err)
		}

		if needsReconciliation(old) {
			if _, err := s.reconcile(ctx, tx, old.CollaboratorID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.EntryMutations.WithLabelValues("delete", string(rt)).Inc()
	return nil
}

// Reconcile runs the engine on its own for one collaborator. Runs that wrote
// something or failed are recorded when the store keeps a run log.
func (s *Service) Reconcile(ctx context.Context, collaboratorID CollaboratorID) (Outcome, error) {
	started := s.clock.Now()
	var out Outcome
	err := s.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.Collaborator(ctx, collaboratorID); err != nil {
			return err
		}
		var err error
		out, err = s.reconcile(ctx, tx, collaboratorID)
		if err != nil {
			return err
		}
		if out.Writes() == 0 {
			return nil
		}
		return s.recordRun(ctx, tx, runFromOutcome(out, TriggerSweep, started, s.clock.Now()))
	})
	if err != nil {
		if !IsNotFound(err) {
			run := runFromOutcome(Outcome{CollaboratorID: collaboratorID}, TriggerSweep, started, s.clock.Now())
			run.Error = err.Error()
			if recErr := s.recordRun(ctx, s.store, run); recErr != nil {
				s.logger.Warn("failed to record reconciliation run", zap.Error(recErr))
			}
		}
		return Outcome{}, err
	}
	return out, nil
}

func (s *Service) reconcile(ctx context.Context, tx Store, collaboratorID CollaboratorID) (Outcome, error) {
	start := time.Now()
	out, err := s.reconciler.Reconcile(ctx, tx, collaboratorID)
	metrics.ReconciliationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ReconciliationFailures.Inc()
		s.logger.Error("reconciliation failed",
			zap.Int64("collaborator_id", int64(collaboratorID)),
			zap.Error(err),
		)
		return out, err
	}
	metrics.ReconciliationWrites.WithLabelValues("credit_granted").Add(float64(out.Granted))
	metrics.ReconciliationWrites.WithLabelValues("debit_written").Add(float64(out.DebitsWritten))
	metrics.ReconciliationWrites.WithLabelValues("credit_removed").Add(float64(out.CreditsRemoved))
	metrics.ReconciliationWrites.WithLabelValues("debit_removed").Add(float64(out.DebitsRemoved))
	metrics.ReconciliationWrites.WithLabelValues("compensation").Add(float64(out.Compensations))
	return out, nil
}

func needsReconciliation(e Entry) bool {
	return e.Type == RecordHours || e.IsAutoCredit()
}

func runFromOutcome(out Outcome, trigger RunTrigger, started, finished time.Time) Run {
	return Run{
		CollaboratorID: out.CollaboratorID,
		Trigger:        trigger,
		Granted:        out.Granted,
		CreditsRemoved: out.CreditsRemoved,
		DebitsRemoved:  out.DebitsRemoved,
		Compensations:  out.Compensations,
		StartedAt:      started,
		FinishedAt:     finished,
	}
}

// =============================================================================
// USAGE RULES
// =============================================================================

// workingDays drops holidays from a usage span starting at start.
func (s *Service) workingDays(ctx context.Context, st Store, start Date, days int) (int, error) {
	holidays, err := st.HolidaysBetween(ctx, start, start.AddDays(days-1))
	if err != nil {
		return 0, fmt.Errorf("load holidays: %w", err)
	}
	return workingDaysAfterHolidays(start, days, holidays), nil
}

// checkUsage rejects a usage of days when it exceeds the current balance.
// exclude leaves one entry out of the balance, for edits.
func (s *Service) checkUsage(ctx context.Context, st Store, collaboratorID CollaboratorID, days int, exclude EntryID) error {
	entries, err := st.Query(ctx, Query{CollaboratorID: collaboratorID})
	if err != nil {
		return fmt.Errorf("load entries: %w", err)
	}
	if exclude != 0 {
		kept := entries[:0:0]
		for _, e := range entries {
			if e.ID != exclude {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	snap := Calculate(collaboratorID, entries, Window{})
	if days > snap.BalanceDays {
		return &InsufficientBalanceError{
			CollaboratorID: collaboratorID,
			Available:      snap.BalanceDays,
			Requested:      days,
		}
	}
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

// GetBalance computes the balance over window. Inactive collaborators can
// still be read.
func (s *Service) GetBalance(ctx context.Context, collaboratorID CollaboratorID, window Window) (BalanceSnapshot, error) {
	if err := window.Validate(); err != nil {
		return BalanceSnapshot{}, err
	}
	if _, err := s.store.Collaborator(ctx, collaboratorID); err != nil {
		return BalanceSnapshot{}, err
	}
	entries, err := s.store.Query(ctx, Query{CollaboratorID: collaboratorID, Window: window})
	if err != nil {
		return BalanceSnapshot{}, fmt.Errorf("load entries: %w", err)
	}
	return Calculate(collaboratorID, entries, window), nil
}

// Entries lists rows newest first.
func (s *Service) Entries(ctx context.Context, q Query) ([]Entry, error) {
	if q.CollaboratorID == 0 && q.BulkID == 0 {
		return nil, &ValidationError{Field: "collaborator_id", Reason: "is required"}
	}
	if err := q.Window.Validate(); err != nil {
		return nil, err
	}
	if q.CollaboratorID != 0 {
		if _, err := s.store.Collaborator(ctx, q.CollaboratorID); err != nil {
			return nil, err
		}
	}
	return s.store.Query(ctx, q)
}

// History returns the audit trail of an entry, oldest change first. A deleted
// entry keeps its history.
func (s *Service) History(ctx context.Context, id EntryID) ([]EntryChange, error) {
	changes, err := s.store.Changes(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		if _, err := s.store.Get(ctx, id); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].ChangedAt.Before(changes[j].ChangedAt)
	})
	return changes, nil
}

// ActiveCollaborators lists collaborators that can still receive entries.
func (s *Service) ActiveCollaborators(ctx context.Context) ([]Collaborator, error) {
	all, err := s.store.Collaborators(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]Collaborator, 0, len(all))
	for _, c := range all {
		if c.Active {
			active = append(active, c)
		}
	}
	return active, nil
}

// Collaborator returns one collaborator, active or not.
func (s *Service) Collaborator(ctx context.Context, id CollaboratorID) (Collaborator, error) {
	return s.store.Collaborator(ctx, id)
}
