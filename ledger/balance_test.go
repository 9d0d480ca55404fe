package ledger_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/multimax/hourbank/ledger"
)

// =============================================================================
// HELPERS
// =============================================================================

func hoursRow(id ledger.EntryID, date string, h string) ledger.Entry {
	return ledger.Entry{
		ID:             id,
		CollaboratorID: 1,
		Date:           ledger.MustParseDate(date),
		Type:           ledger.RecordHours,
		Hours:          decimal.RequireFromString(h),
		Origin:         ledger.OriginManual,
	}
}

func daysRow(id ledger.EntryID, date string, rt ledger.RecordType, days int, origin ledger.Origin) ledger.Entry {
	return ledger.Entry{
		ID:             id,
		CollaboratorID: 1,
		Date:           ledger.MustParseDate(date),
		Type:           rt,
		Days:           days,
		Origin:         origin,
	}
}

// =============================================================================
// HOURS TO DAYS
// =============================================================================

func TestCalculate_ExactlyEightHours(t *testing.T) {
	// GIVEN: one 8.0h entry
	// THEN: one day from hours, nothing left over
	snap := ledger.Calculate(1, []ledger.Entry{hoursRow(1, "2024-05-02", "8.0")}, ledger.Window{})

	assert.Equal(t, 1, snap.DaysFromHours)
	assert.True(t, snap.ResidualHours.IsZero(), "residual should be 0, got %s", snap.ResidualHours)
}

func TestCalculate_JustBelowEightHours(t *testing.T) {
	snap := ledger.Calculate(1, []ledger.Entry{hoursRow(1, "2024-05-02", "7.999")}, ledger.Window{})

	assert.Equal(t, 0, snap.DaysFromHours)
	assert.True(t, snap.ResidualHours.Equal(decimal.RequireFromString("7.999")))
}

func TestCalculate_NegativeTotalClampsToZero(t *testing.T) {
	// GIVEN: only a -5h entry
	// THEN: no days and no residual, but the total keeps its sign
	snap := ledger.Calculate(1, []ledger.Entry{hoursRow(1, "2024-05-02", "-5")}, ledger.Window{})

	assert.Equal(t, 0, snap.DaysFromHours)
	assert.True(t, snap.ResidualHours.IsZero())
	assert.True(t, snap.TotalHours.Equal(decimal.NewFromInt(-5)))
	assert.Equal(t, 0, snap.BalanceDays)
}

func TestCalculate_MixedHoursWithResidual(t *testing.T) {
	entries := []ledger.Entry{
		hoursRow(1, "2024-05-01", "9.5"),
		hoursRow(2, "2024-05-02", "10"),
		hoursRow(3, "2024-05-03", "-2"),
	}
	snap := ledger.Calculate(1, entries, ledger.Window{})

	assert.True(t, snap.TotalHours.Equal(decimal.RequireFromString("17.5")))
	assert.Equal(t, 2, snap.DaysFromHours)
	assert.True(t, snap.ResidualHours.Equal(decimal.RequireFromString("1.5")))
}

// =============================================================================
// ENGINE ROWS
// =============================================================================

func TestCalculate_IgnoresReconciliationBookkeeping(t *testing.T) {
	// GIVEN: 16h plus the two credits and two -8h debits the engine writes
	// THEN: the hours are counted once, as 2 days
	entries := []ledger.Entry{
		hoursRow(1, "2024-05-01", "16"),
		daysRow(2, "2024-05-01", ledger.RecordDayCredit, 1, ledger.OriginAutomaticReconciliation),
		{ID: 3, CollaboratorID: 1, Date: ledger.MustParseDate("2024-05-01"), Type: ledger.RecordHours, Hours: decimal.NewFromInt(-8), Origin: ledger.OriginSystemAdjustment},
		daysRow(4, "2024-05-01", ledger.RecordDayCredit, 1, ledger.OriginAutomaticReconciliation),
		{ID: 5, CollaboratorID: 1, Date: ledger.MustParseDate("2024-05-01"), Type: ledger.RecordHours, Hours: decimal.NewFromInt(-8), Origin: ledger.OriginSystemAdjustment},
	}
	snap := ledger.Calculate(1, entries, ledger.Window{})

	assert.True(t, snap.TotalHours.Equal(decimal.NewFromInt(16)))
	assert.Equal(t, 2, snap.DaysFromHours)
	assert.Equal(t, 2, snap.AutoCredits)
	assert.Equal(t, 0, snap.ManualCredits)
	assert.Equal(t, 2, snap.BalanceDays)
}

// =============================================================================
// CREDITS, USAGE, CONVERSIONS
// =============================================================================

func TestCalculate_ConversionsCappedAtAvailable(t *testing.T) {
	// GIVEN: 3 manual credit days and 5 converted days
	// THEN: only 3 conversions apply and the balance is 0
	entries := []ledger.Entry{
		daysRow(1, "2024-05-01", ledger.RecordDayCredit, 3, ledger.OriginManual),
		daysRow(2, "2024-05-02", ledger.RecordConversion, 5, ledger.OriginManual),
	}
	snap := ledger.Calculate(1, entries, ledger.Window{})

	assert.Equal(t, 5, snap.RawConversions)
	assert.Equal(t, 3, snap.AppliedConversions)
	assert.Equal(t, 0, snap.BalanceDays)
}

func TestCalculate_FullFormula(t *testing.T) {
	conv := daysRow(5, "2024-05-04", ledger.RecordConversion, 1, ledger.OriginManual)
	conv.AmountPaid = decimal.NewFromInt(65)
	entries := []ledger.Entry{
		hoursRow(1, "2024-05-01", "20"),
		daysRow(2, "2024-05-01", ledger.RecordDayCredit, 4, ledger.OriginManual),
		daysRow(3, "2024-05-02", ledger.RecordDayCredit, 2, ledger.OriginImport),
		daysRow(4, "2024-05-03", ledger.RecordDayUsage, 3, ledger.OriginManual),
		conv,
	}
	snap := ledger.Calculate(1, entries, ledger.Window{})

	assert.Equal(t, 6, snap.ManualCredits)
	assert.Equal(t, 2, snap.DaysFromHours)
	assert.Equal(t, 8, snap.AvailableCredits)
	assert.Equal(t, 3, snap.UsedDays)
	assert.Equal(t, 1, snap.AppliedConversions)
	assert.Equal(t, 4, snap.BalanceDays)
	assert.True(t, snap.AmountPaid.Equal(decimal.NewFromInt(65)))
}

func TestCalculate_WindowAndCollaboratorFilter(t *testing.T) {
	other := hoursRow(9, "2024-05-10", "8")
	other.CollaboratorID = 2
	entries := []ledger.Entry{
		hoursRow(1, "2024-04-30", "8"),
		hoursRow(2, "2024-05-10", "8"),
		hoursRow(3, "2024-06-01", "8"),
		other,
	}
	window := ledger.Window{Start: ledger.MustParseDate("2024-05-01"), End: ledger.MustParseDate("2024-05-31")}
	snap := ledger.Calculate(1, entries, window)

	assert.True(t, snap.TotalHours.Equal(decimal.NewFromInt(8)))
	assert.Equal(t, 1, snap.BalanceDays)
}
