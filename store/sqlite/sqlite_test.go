package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multimax/hourbank/ledger"
	"github.com/multimax/hourbank/store/sqlite"
)

var testNow = time.Date(2024, time.June, 14, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.SaveCollaborator(ctx, ledger.Collaborator{ID: 1, Name: "Ana", Role: "butcher", Active: true}))
	require.NoError(t, s.SaveCollaborator(ctx, ledger.Collaborator{ID: 2, Name: "Bruno", Role: "cashier", Active: true}))
	return s
}

func hours(date string, h string) ledger.Entry {
	return ledger.Entry{
		CollaboratorID: 1,
		Date:           ledger.MustParseDate(date),
		Type:           ledger.RecordHours,
		Hours:          decimal.RequireFromString(h),
		Origin:         ledger.OriginManual,
		Notes:          "overtime",
		CreatedBy:      "rh",
		CreatedAt:      testNow,
	}
}

// =============================================================================
// ENTRIES
// =============================================================================

func TestStore_EntryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, hours("2024-06-03", "2.75"))
	require.NoError(t, err)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "2024-06-03", got.Date.String())
	assert.True(t, got.Hours.Equal(decimal.RequireFromString("2.75")))
	assert.Equal(t, ledger.OriginManual, got.Origin)
	assert.Equal(t, "overtime", got.Notes)
	assert.Equal(t, 0, got.Days)
	assert.True(t, got.CreatedAt.Equal(testNow))
}

func TestStore_ConversionColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, ledger.Entry{
		CollaboratorID: 1,
		Date:           ledger.MustParseDate("2024-06-10"),
		Type:           ledger.RecordConversion,
		Days:           2,
		AmountPaid:     decimal.NewFromInt(130),
		RatePerDay:     decimal.NewFromInt(65),
		Origin:         ledger.OriginManual,
		CreatedAt:      testNow,
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Days)
	assert.True(t, got.AmountPaid.Equal(decimal.NewFromInt(130)))
	assert.True(t, got.RatePerDay.Equal(decimal.NewFromInt(65)))
	assert.True(t, got.Hours.IsZero())
}

func TestStore_QueryFiltersAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := s.Insert(ctx, hours("2024-05-01", "1"))
	b, _ := s.Insert(ctx, hours("2024-06-02", "2"))
	c, _ := s.Insert(ctx, hours("2024-05-01", "3"))
	other := hours("2024-06-02", "4")
	other.CollaboratorID = 2
	_, err := s.Insert(ctx, other)
	require.NoError(t, err)

	rows, err := s.Query(ctx, ledger.Query{CollaboratorID: 1})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []ledger.EntryID{b, c, a}, []ledger.EntryID{rows[0].ID, rows[1].ID, rows[2].ID})

	rows, err = s.Query(ctx, ledger.Query{
		CollaboratorID: 1,
		Window:         ledger.Window{End: ledger.MustParseDate("2024-05-31")},
		Limit:          1,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, c, rows[0].ID)
}

func TestStore_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, 99)
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)
	assert.ErrorIs(t, s.Delete(ctx, 99), ledger.ErrEntryNotFound)
	assert.ErrorIs(t, s.Update(ctx, ledger.Entry{ID: 99, CollaboratorID: 1, Type: ledger.RecordHours}), ledger.ErrEntryNotFound)
	_, err = s.Collaborator(ctx, 7)
	assert.ErrorIs(t, err, ledger.ErrCollaboratorNotFound)
	_, err = s.GetBulk(ctx, 3)
	assert.ErrorIs(t, err, ledger.ErrBulkNotFound)
}

func TestStore_DeletedIDsAreNotReused(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Insert(ctx, hours("2024-06-01", "1"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, first))

	second, err := s.Insert(ctx, hours("2024-06-01", "1"))
	require.NoError(t, err)
	assert.Greater(t, second, first)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx ledger.Store) error {
		id, err := tx.Insert(ctx, hours("2024-06-01", "5"))
		if err != nil {
			return err
		}
		// reads inside the transaction see its own writes
		if _, err := tx.Get(ctx, id); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	rows, err := s.Query(ctx, ledger.Query{CollaboratorID: 1})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_ServiceReconcilesInOneTransaction(t *testing.T) {
	// GIVEN: the ledger service on top of SQLite
	s := newTestStore(t)
	svc := ledger.NewService(s, ledger.WithClock(ledger.FixedClock{At: testNow}))
	ctx := context.Background()

	// WHEN: 16h are logged and one row is deleted afterwards
	first, err := svc.AppendEntry(ctx, ledger.EntryInput{
		CollaboratorID: 1, Date: ledger.MustParseDate("2024-06-03"), Type: ledger.RecordHours, Hours: decimal.NewFromInt(8),
	})
	require.NoError(t, err)
	_, err = svc.AppendEntry(ctx, ledger.EntryInput{
		CollaboratorID: 1, Date: ledger.MustParseDate("2024-06-04"), Type: ledger.RecordHours, Hours: decimal.NewFromInt(8),
	})
	require.NoError(t, err)

	snap, err := svc.GetBalance(ctx, 1, ledger.Window{})
	require.NoError(t, err)
	assert.Equal(t, 2, snap.AutoCredits)
	assert.Equal(t, 2, snap.BalanceDays)

	require.NoError(t, svc.DeleteEntry(ctx, first))

	// THEN: one automatic credit remains and the audit trail holds the delete
	snap, err = svc.GetBalance(ctx, 1, ledger.Window{})
	require.NoError(t, err)
	assert.Equal(t, 1, snap.AutoCredits)
	assert.Equal(t, 1, snap.BalanceDays)

	history, err := svc.History(ctx, first)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "delete", history[0].Action)
	assert.True(t, history[0].Before.Hours.Equal(decimal.NewFromInt(8)))
	assert.Nil(t, history[0].After)
}

// =============================================================================
// BULKS, HOLIDAYS, RUNS
// =============================================================================

func TestStore_BulkCorrections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	date := ledger.MustParseDate("2024-06-08")

	original, err := s.InsertBulk(ctx, ledger.BulkOperation{
		Kind: ledger.BulkAddition, Type: ledger.RecordHours, Hours: decimal.NewFromInt(4),
		Date: date, TotalCollaborators: 2, CreatedAt: testNow,
	})
	require.NoError(t, err)
	correction, err := s.InsertBulk(ctx, ledger.BulkOperation{
		Kind: ledger.BulkDiscount, Type: ledger.RecordHours, Hours: decimal.NewFromInt(2),
		Date: date, TotalCollaborators: 2, CorrectionOf: original, CreatedAt: testNow,
	})
	require.NoError(t, err)

	got, err := s.GetBulk(ctx, correction)
	require.NoError(t, err)
	assert.Equal(t, original, got.CorrectionOf)
	assert.True(t, got.Hours.Equal(decimal.NewFromInt(2)))

	list, err := s.ListBulkCorrections(ctx, original)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, correction, list[0].ID)
}

func TestStore_Holidays(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveHoliday(ctx, ledger.Holiday{Date: ledger.MustParseDate("2020-12-25"), Name: "Christmas", Recurring: true}))
	require.NoError(t, s.SaveHoliday(ctx, ledger.Holiday{Date: ledger.MustParseDate("2024-11-20"), Name: "Consciencia Negra"}))
	require.NoError(t, s.SaveHoliday(ctx, ledger.Holiday{Date: ledger.MustParseDate("2023-11-20"), Name: "Consciencia Negra"}))

	got, err := s.HolidaysBetween(ctx, ledger.MustParseDate("2024-11-01"), ledger.MustParseDate("2024-12-31"))
	require.NoError(t, err)
	require.Len(t, got, 2)

	dates := []string{got[0].Date.String(), got[1].Date.String()}
	assert.ElementsMatch(t, []string{"2024-11-20", "2024-12-25"}, dates)

	require.NoError(t, s.DeleteHoliday(ctx, ledger.MustParseDate("2024-11-20")))
	all, err := s.ListHolidays(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_ReconciliationRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"run-a", "run-b"} {
		started := testNow.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.RecordRun(ctx, ledger.Run{
			ID: id, CollaboratorID: 1, Trigger: ledger.TriggerSweep, Granted: i + 1,
			StartedAt: started, FinishedAt: started.Add(time.Second),
		}))
	}

	runs, err := s.ReconciliationRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].ID)
	assert.Equal(t, 2, runs[0].Granted)
	assert.Equal(t, ledger.TriggerSweep, runs[0].Trigger)
}
