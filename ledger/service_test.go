package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multimax/hourbank/ledger"
	"github.com/multimax/hourbank/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2024, time.June, 14, 10, 30, 0, 0, time.UTC)

const (
	ana      ledger.CollaboratorID = 1
	bruno    ledger.CollaboratorID = 2
	inactive ledger.CollaboratorID = 3
)

func newTestService(t *testing.T) (*ledger.Service, *store.TxMemory) {
	t.Helper()
	mem := store.NewTxMemory()
	mem.PutCollaborator(ledger.Collaborator{ID: ana, Name: "Ana", Role: "butcher", Active: true})
	mem.PutCollaborator(ledger.Collaborator{ID: bruno, Name: "Bruno", Role: "cashier", Active: true})
	mem.PutCollaborator(ledger.Collaborator{ID: inactive, Name: "Carla", Role: "stock", Active: false})

	svc := ledger.NewService(mem, ledger.WithClock(ledger.FixedClock{At: testNow}))
	return svc, mem
}

func appendHours(t *testing.T, svc *ledger.Service, c ledger.CollaboratorID, date, h string) ledger.EntryID {
	t.Helper()
	id, err := svc.AppendEntry(context.Background(), ledger.EntryInput{
		CollaboratorID: c,
		Date:           ledger.MustParseDate(date),
		Type:           ledger.RecordHours,
		Hours:          decimal.RequireFromString(h),
	})
	require.NoError(t, err)
	return id
}

func appendDays(t *testing.T, svc *ledger.Service, c ledger.CollaboratorID, date string, rt ledger.RecordType, days int) ledger.EntryID {
	t.Helper()
	id, err := svc.AppendEntry(context.Background(), ledger.EntryInput{
		CollaboratorID: c,
		Date:           ledger.MustParseDate(date),
		Type:           rt,
		Days:           days,
	})
	require.NoError(t, err)
	return id
}

func balanceOf(t *testing.T, svc *ledger.Service, c ledger.CollaboratorID) ledger.BalanceSnapshot {
	t.Helper()
	snap, err := svc.GetBalance(context.Background(), c, ledger.Window{})
	require.NoError(t, err)
	return snap
}

func countRows(t *testing.T, mem *store.TxMemory, q ledger.Query) int {
	t.Helper()
	rows, err := mem.Query(context.Background(), q)
	require.NoError(t, err)
	return len(rows)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestAppendEntry_Validation(t *testing.T) {
	amount := decimal.NewFromInt(10)
	tests := []struct {
		name  string
		in    ledger.EntryInput
		field string
	}{
		{
			name:  "future date",
			in:    ledger.EntryInput{CollaboratorID: ana, Date: ledger.MustParseDate("2024-06-15"), Type: ledger.RecordHours, Hours: decimal.NewFromInt(2)},
			field: "date",
		},
		{
			name:  "missing date",
			in:    ledger.EntryInput{CollaboratorID: ana, Type: ledger.RecordHours, Hours: decimal.NewFromInt(2)},
			field: "date",
		},
		{
			name:  "zero hours",
			in:    ledger.EntryInput{CollaboratorID: ana, Date: ledger.MustParseDate("2024-06-01"), Type: ledger.RecordHours},
			field: "hours",
		},
		{
			name:  "more than a day of hours",
			in:    ledger.EntryInput{CollaboratorID: ana, Date: ledger.MustParseDate("2024-06-01"), Type: ledger.RecordHours, Hours: decimal.RequireFromString("24.5")},
			field: "hours",
		},
		{
			name:  "days on an hours entry",
			in:    ledger.EntryInput{CollaboratorID: ana, Date: ledger.MustParseDate("2024-06-01"), Type: ledger.RecordHours, Hours: decimal.NewFromInt(2), Days: 1},
			field: "days",
		},
		{
			name:  "hours on a credit",
			in:    ledger.EntryInput{CollaboratorID: ana, Date: ledger.MustParseDate("2024-06-01"), Type: ledger.RecordDayCredit, Days: 1, Hours: decimal.NewFromInt(1)},
			field: "hours",
		},
		{
			name:  "amount on a usage",
			in:    ledger.EntryInput{CollaboratorID: ana, Date: ledger.MustParseDate("2024-06-01"), Type: ledger.RecordDayUsage, Days: 1, AmountPaid: &amount},
			field: "amount_paid",
		},
		{
			name:  "zero credit days",
			in:    ledger.EntryInput{CollaboratorID: ana, Date: ledger.MustParseDate("2024-06-01"), Type: ledger.RecordDayCredit},
			field: "days",
		},
		{
			name:  "unknown record type",
			in:    ledger.EntryInput{CollaboratorID: ana, Date: ledger.MustParseDate("2024-06-01"), Type: "overtime", Hours: decimal.NewFromInt(1)},
			field: "record_type",
		},
		{
			name:  "engine origin",
			in:    ledger.EntryInput{CollaboratorID: ana, Date: ledger.MustParseDate("2024-06-01"), Type: ledger.RecordDayCredit, Days: 1, Origin: ledger.OriginAutomaticReconciliation},
			field: "origin",
		},
		{
			name:  "inactive collaborator",
			in:    ledger.EntryInput{CollaboratorID: inactive, Date: ledger.MustParseDate("2024-06-01"), Type: ledger.RecordHours, Hours: decimal.NewFromInt(2)},
			field: "collaborator_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mem := newTestService(t)

			_, err := svc.AppendEntry(context.Background(), tt.in)

			require.Error(t, err)
			assert.True(t, ledger.IsValidation(err), "expected validation error, got %v", err)
			var vErr *ledger.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.Zero(t, countRows(t, mem, ledger.Query{}), "nothing should be written")
		})
	}
}

func TestAppendEntry_UnknownCollaborator(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AppendEntry(context.Background(), ledger.EntryInput{
		CollaboratorID: 99,
		Date:           ledger.MustParseDate("2024-06-01"),
		Type:           ledger.RecordHours,
		Hours:          decimal.NewFromInt(3),
	})

	assert.ErrorIs(t, err, ledger.ErrCollaboratorNotFound)
	assert.True(t, ledger.IsNotFound(err))
}

func TestParseRecordType_RejectsUnknownTags(t *testing.T) {
	rt, err := ledger.ParseRecordType("DAY_CREDIT")
	require.NoError(t, err)
	assert.Equal(t, ledger.RecordDayCredit, rt)

	_, err = ledger.ParseRecordType("bonus")
	assert.True(t, ledger.IsValidation(err))

	_, err = ledger.ParseOrigin("robot")
	assert.True(t, ledger.IsValidation(err))
}

// =============================================================================
// DAY USAGE
// =============================================================================

func TestAppendEntry_UsageBeyondBalanceRejected(t *testing.T) {
	// GIVEN: 2 credited days
	svc, _ := newTestService(t)
	appendDays(t, svc, ana, "2024-06-01", ledger.RecordDayCredit, 2)

	// WHEN: 3 days are taken
	_, err := svc.AppendEntry(context.Background(), ledger.EntryInput{
		CollaboratorID: ana,
		Date:           ledger.MustParseDate("2024-06-03"),
		Type:           ledger.RecordDayUsage,
		Days:           3,
	})

	// THEN: rejected as a validation error with the numbers attached
	var balErr *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &balErr)
	assert.True(t, ledger.IsValidation(err))
	assert.Equal(t, 2, balErr.Available)
	assert.Equal(t, 3, balErr.Requested)
}

func TestAppendEntry_ImportedUsageSkipsBalanceCheck(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AppendEntry(context.Background(), ledger.EntryInput{
		CollaboratorID: ana,
		Date:           ledger.MustParseDate("2024-06-03"),
		Type:           ledger.RecordDayUsage,
		Days:           2,
		Origin:         ledger.OriginImport,
	})

	require.NoError(t, err)
	assert.Equal(t, -2, balanceOf(t, svc, ana).BalanceDays)
}

func TestAppendEntry_UsageSkipsHolidays(t *testing.T) {
	// GIVEN: a holiday in the middle of a 3-day leave
	svc, mem := newTestService(t)
	mem.AddHoliday(ledger.Holiday{Date: ledger.MustParseDate("2024-05-30"), Name: "Corpus Christi"})
	mem.AddHoliday(ledger.Holiday{Date: ledger.MustParseDate("2024-06-10"), Name: "outside the span"})
	appendDays(t, svc, ana, "2024-05-01", ledger.RecordDayCredit, 5)

	// WHEN
	id := appendDays(t, svc, ana, "2024-05-29", ledger.RecordDayUsage, 3)

	// THEN: only 2 days are charged
	e, err := mem.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Days)
	assert.Equal(t, 3, balanceOf(t, svc, ana).BalanceDays)
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func TestAppendEntry_ConversionDefaultsAmount(t *testing.T) {
	svc, mem := newTestService(t)
	appendDays(t, svc, ana, "2024-06-01", ledger.RecordDayCredit, 3)

	id := appendDays(t, svc, ana, "2024-06-02", ledger.RecordConversion, 2)

	e, err := mem.Get(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, e.RatePerDay.Equal(ledger.DefaultRatePerDay))
	assert.True(t, e.AmountPaid.Equal(decimal.NewFromInt(130)), "got %s", e.AmountPaid)
	assert.Equal(t, 1, balanceOf(t, svc, ana).BalanceDays)
}

func TestAppendEntry_ConversionAcceptedBeyondBalance(t *testing.T) {
	// Conversions are capped when read, never rejected when written.
	svc, _ := newTestService(t)
	appendDays(t, svc, ana, "2024-06-01", ledger.RecordDayCredit, 3)
	appendDays(t, svc, ana, "2024-06-02", ledger.RecordConversion, 5)

	snap := balanceOf(t, svc, ana)
	assert.Equal(t, 3, snap.AppliedConversions)
	assert.Equal(t, 0, snap.BalanceDays)
}

// =============================================================================
// EDIT / DELETE / HISTORY
// =============================================================================

func TestEditEntry_TypeIsImmutable(t *testing.T) {
	svc, _ := newTestService(t)
	id := appendHours(t, svc, ana, "2024-06-01", "4")

	rt := ledger.RecordDayCredit
	err := svc.EditEntry(context.Background(), id, ledger.EntryPatch{Type: &rt})

	var vErr *ledger.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "record_type", vErr.Field)
}

func TestEditEntry_AutomaticCreditRejected(t *testing.T) {
	svc, mem := newTestService(t)
	appendHours(t, svc, ana, "2024-06-01", "8")
	credits, err := mem.Query(context.Background(), ledger.Query{CollaboratorID: ana, Origin: ledger.OriginAutomaticReconciliation})
	require.NoError(t, err)
	require.Len(t, credits, 1)

	days := 3
	err = svc.EditEntry(context.Background(), credits[0].ID, ledger.EntryPatch{Days: &days})

	assert.True(t, ledger.IsValidation(err))
}

func TestEditEntry_MissingEntry(t *testing.T) {
	svc, _ := newTestService(t)

	notes := "x"
	err := svc.EditEntry(context.Background(), 404, ledger.EntryPatch{Notes: &notes})

	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)
}

func TestDeleteEntry_MissingEntry(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.DeleteEntry(context.Background(), 404)

	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)
}

func TestHistory_RecordsEditsAndDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := ledger.WithActor(context.Background(), "rh@multimax")
	id := appendHours(t, svc, ana, "2024-06-01", "3")

	h := decimal.NewFromInt(5)
	require.NoError(t, svc.EditEntry(ctx, id, ledger.EntryPatch{Hours: &h}))
	require.NoError(t, svc.DeleteEntry(ctx, id))

	changes, err := svc.History(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	assert.Equal(t, "edit", changes[0].Action)
	assert.True(t, changes[0].Before.Hours.Equal(decimal.NewFromInt(3)))
	require.NotNil(t, changes[0].After)
	assert.True(t, changes[0].After.Hours.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, "rh@multimax", changes[0].ChangedBy)

	assert.Equal(t, "delete", changes[1].Action)
	assert.Nil(t, changes[1].After)
}

func TestHistory_UnknownEntry(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.History(context.Background(), 12)

	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)
}

// =============================================================================
// QUERIES
// =============================================================================

func TestGetBalance_Window(t *testing.T) {
	svc, _ := newTestService(t)
	appendHours(t, svc, ana, "2024-04-10", "8")
	appendHours(t, svc, ana, "2024-05-10", "6")

	snap, err := svc.GetBalance(context.Background(), ana, ledger.Window{
		Start: ledger.MustParseDate("2024-05-01"),
		End:   ledger.MustParseDate("2024-05-31"),
	})

	require.NoError(t, err)
	assert.True(t, snap.TotalHours.Equal(decimal.NewFromInt(6)))
	assert.Equal(t, 0, snap.DaysFromHours)
}

func TestGetBalance_InvertedWindow(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetBalance(context.Background(), ana, ledger.Window{
		Start: ledger.MustParseDate("2024-05-31"),
		End:   ledger.MustParseDate("2024-05-01"),
	})

	assert.True(t, ledger.IsValidation(err))
}

func TestEntries_OrderedNewestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	first := appendHours(t, svc, ana, "2024-06-01", "1")
	second := appendHours(t, svc, ana, "2024-06-01", "2")
	older := appendHours(t, svc, ana, "2024-05-01", "3")

	rows, err := svc.Entries(context.Background(), ledger.Query{CollaboratorID: ana, Type: ledger.RecordHours})

	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []ledger.EntryID{second, first, older}, []ledger.EntryID{rows[0].ID, rows[1].ID, rows[2].ID})
}

func TestActiveCollaborators(t *testing.T) {
	svc, _ := newTestService(t)

	active, err := svc.ActiveCollaborators(context.Background())

	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, ana, active[0].ID)
	assert.Equal(t, bruno, active[1].ID)
}
