/*
balance.go - Balance calculation over ledger rows

PURPOSE:
  Answers "how many days off does this collaborator have?" from the rows of
  the ledger alone. Nothing is cached: the snapshot is recomputed on demand.

FORMULA:
  total_hours      = sum(hours rows), excluding system_adjustment bookkeeping
  days_from_hours  = floor(total_hours / 8)   (0 when total_hours < 0)
  residual_hours   = total_hours mod 8        (0 when total_hours < 0)
  available        = manual credits + days_from_hours
  applied_convs    = min(raw conversions, available)
  balance          = available - used - applied_convs

  Automatic credits and their -8h debits describe the same 8 hours twice, so
  both are left out; the hours are counted once through days_from_hours.

EXAMPLE:
  20h overtime, 1 manual credit, 2 days used, 5 days converted:
    days_from_hours = 2, residual = 4, available = 3
    applied = min(5, 3) = 3, balance = 3 - 2 - 3 = -2
*/
package ledger

import (
	"github.com/shopspring/decimal"
)

// BalanceSnapshot is the derived state of one collaborator's hour bank.
type BalanceSnapshot struct {
	CollaboratorID     CollaboratorID
	Window             Window
	TotalHours         decimal.Decimal
	DaysFromHours      int
	ResidualHours      decimal.Decimal
	ManualCredits      int
	AutoCredits        int
	AvailableCredits   int
	UsedDays           int
	RawConversions     int
	AppliedConversions int
	BalanceDays        int
	AmountPaid         decimal.Decimal
}

// Calculate derives the snapshot for entries dated inside window. Entries of
// other collaborators are ignored.
func Calculate(collaboratorID CollaboratorID, entries []Entry, window Window) BalanceSnapshot {
	snap := BalanceSnapshot{
		CollaboratorID: collaboratorID,
		Window:         window,
		TotalHours:     decimal.Zero,
		ResidualHours:  decimal.Zero,
		AmountPaid:     decimal.Zero,
	}

	for _, e := range entries {
		if e.CollaboratorID != collaboratorID || !window.Contains(e.Date) {
			continue
		}
		switch e.Type {
		case RecordHours:
			if e.Origin == OriginSystemAdjustment {
				continue
			}
			snap.TotalHours = snap.TotalHours.Add(e.Hours)
		case RecordDayCredit:
			if e.Origin == OriginAutomaticReconciliation {
				snap.AutoCredits++
				continue
			}
			snap.ManualCredits += e.Days
		case RecordDayUsage:
			snap.UsedDays += e.Days
		case RecordConversion:
			snap.RawConversions += e.Days
			snap.AmountPaid = snap.AmountPaid.Add(e.AmountPaid)
		}
	}

	if !snap.TotalHours.IsNegative() {
		snap.DaysFromHours = wholeDays(snap.TotalHours)
		snap.ResidualHours = snap.TotalHours.Mod(hoursPerDay)
	}

	snap.AvailableCredits = snap.ManualCredits + snap.DaysFromHours
	snap.AppliedConversions = snap.RawConversions
	if snap.AppliedConversions > snap.AvailableCredits {
		snap.AppliedConversions = snap.AvailableCredits
	}
	if snap.AppliedConversions < 0 {
		snap.AppliedConversions = 0
	}
	snap.BalanceDays = snap.AvailableCredits - snap.UsedDays - snap.AppliedConversions
	return snap
}

// wholeDays returns floor(hours / 8) for non-negative hours.
func wholeDays(hours decimal.Decimal) int {
	if !hours.IsPositive() {
		return 0
	}
	return int(hours.Div(hoursPerDay).Floor().IntPart())
}
