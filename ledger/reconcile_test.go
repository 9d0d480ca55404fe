package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multimax/hourbank/ledger"
)

func autoCredits(t *testing.T, svc *ledger.Service, c ledger.CollaboratorID) []ledger.Entry {
	t.Helper()
	rows, err := svc.Entries(context.Background(), ledger.Query{
		CollaboratorID: c,
		Type:           ledger.RecordDayCredit,
		Origin:         ledger.OriginAutomaticReconciliation,
	})
	require.NoError(t, err)
	return rows
}

func adjustments(t *testing.T, svc *ledger.Service, c ledger.CollaboratorID) []ledger.Entry {
	t.Helper()
	rows, err := svc.Entries(context.Background(), ledger.Query{
		CollaboratorID: c,
		Type:           ledger.RecordHours,
		Origin:         ledger.OriginSystemAdjustment,
	})
	require.NoError(t, err)
	return rows
}

// assertInvariant checks credits == floor(positive human hours / 8).
func assertInvariant(t *testing.T, svc *ledger.Service, c ledger.CollaboratorID) {
	t.Helper()
	rows, err := svc.Entries(context.Background(), ledger.Query{CollaboratorID: c, Type: ledger.RecordHours})
	require.NoError(t, err)
	positive := decimal.Zero
	for _, e := range rows {
		if e.Origin != ledger.OriginSystemAdjustment && e.Hours.IsPositive() {
			positive = positive.Add(e.Hours)
		}
	}
	want := int(positive.Div(decimal.NewFromInt(8)).Floor().IntPart())
	assert.Len(t, autoCredits(t, svc, c), want, "automatic credits should match floor(%s/8)", positive)
}

// =============================================================================
// PLAN
// =============================================================================

func TestPlanReconciliation_GrantsMissingCredits(t *testing.T) {
	plan := ledger.PlanReconciliation([]ledger.Entry{hoursRow(1, "2024-05-01", "17")})

	assert.Equal(t, 2, plan.Desired)
	assert.Equal(t, 0, plan.Actual)
	assert.Equal(t, 2, plan.Grants)
	assert.Equal(t, 2, plan.DebitsToWrite)
}

func TestPlanReconciliation_RemovesNewestCreditsFirst(t *testing.T) {
	debit := func(id ledger.EntryID, date string) ledger.Entry {
		return ledger.Entry{ID: id, CollaboratorID: 1, Date: ledger.MustParseDate(date), Type: ledger.RecordHours, Hours: decimal.NewFromInt(-8), Origin: ledger.OriginSystemAdjustment}
	}
	// newest first, as the store returns them
	entries := []ledger.Entry{
		daysRow(6, "2024-05-03", ledger.RecordDayCredit, 1, ledger.OriginAutomaticReconciliation),
		debit(7, "2024-05-03"),
		daysRow(4, "2024-05-02", ledger.RecordDayCredit, 1, ledger.OriginAutomaticReconciliation),
		debit(5, "2024-05-02"),
		hoursRow(1, "2024-05-01", "9"),
	}
	// ordering inside a date is id desc
	entries[0], entries[1] = entries[1], entries[0]
	entries[2], entries[3] = entries[3], entries[2]

	plan := ledger.PlanReconciliation(entries)

	assert.Equal(t, 1, plan.Desired)
	assert.Equal(t, []ledger.EntryID{6}, plan.CreditsToRemove)
	assert.Equal(t, []ledger.EntryID{7}, plan.DebitsToRemove)
	assert.Zero(t, plan.Compensations)
}

func TestPlanReconciliation_CompensatesMissingDebits(t *testing.T) {
	entries := []ledger.Entry{
		daysRow(2, "2024-05-02", ledger.RecordDayCredit, 1, ledger.OriginAutomaticReconciliation),
	}

	plan := ledger.PlanReconciliation(entries)

	assert.Equal(t, []ledger.EntryID{2}, plan.CreditsToRemove)
	assert.Empty(t, plan.DebitsToRemove)
	assert.Equal(t, 1, plan.Compensations)
}

func TestPlanReconciliation_BalancedIsEmpty(t *testing.T) {
	assert.True(t, ledger.PlanReconciliation(nil).Empty())
	assert.True(t, ledger.PlanReconciliation([]ledger.Entry{hoursRow(1, "2024-05-01", "7.5")}).Empty())
}

// =============================================================================
// ENGINE THROUGH THE SERVICE
// =============================================================================

func TestReconcile_SixteenHoursThenDelete(t *testing.T) {
	// GIVEN: a 16h entry
	svc, mem := newTestService(t)
	id := appendHours(t, svc, ana, "2024-06-03", "16")

	// THEN: two credits and two paired debits exist
	assert.Len(t, autoCredits(t, svc, ana), 2)
	assert.Len(t, adjustments(t, svc, ana), 2)
	for _, c := range autoCredits(t, svc, ana) {
		assert.Equal(t, ledger.MustParseDate("2024-06-14"), c.Date, "credits are dated on the run day")
		assert.Equal(t, 1, c.Days)
	}

	// WHEN: the hours entry is deleted
	require.NoError(t, svc.DeleteEntry(context.Background(), id))

	// THEN: everything the engine wrote is gone
	assert.Empty(t, autoCredits(t, svc, ana))
	assert.Empty(t, adjustments(t, svc, ana))
	assert.Zero(t, countRows(t, mem, ledger.Query{CollaboratorID: ana}))
	snap := balanceOf(t, svc, ana)
	assert.True(t, snap.TotalHours.IsZero())
	assert.Equal(t, 0, snap.BalanceDays)
}

func TestReconcile_IdempotentSecondRun(t *testing.T) {
	svc, _ := newTestService(t)
	appendHours(t, svc, ana, "2024-06-03", "20")

	out, err := svc.Reconcile(context.Background(), ana)

	require.NoError(t, err)
	assert.Zero(t, out.Writes())
	assert.Equal(t, 2, out.Desired)
	assert.Equal(t, 2, out.Actual)
}

func TestReconcile_AccumulatesAcrossEntries(t *testing.T) {
	svc, _ := newTestService(t)
	appendHours(t, svc, ana, "2024-06-03", "5")
	assert.Empty(t, autoCredits(t, svc, ana))

	appendHours(t, svc, ana, "2024-06-04", "3.5")
	assert.Len(t, autoCredits(t, svc, ana), 1)

	// negative human entries do not remove credits
	appendHours(t, svc, ana, "2024-06-05", "-4")
	assert.Len(t, autoCredits(t, svc, ana), 1)
	assertInvariant(t, svc, ana)
}

func TestReconcile_EditDownRemovesCredit(t *testing.T) {
	svc, _ := newTestService(t)
	id := appendHours(t, svc, ana, "2024-06-03", "12")
	require.Len(t, autoCredits(t, svc, ana), 1)

	h := decimal.NewFromInt(6)
	require.NoError(t, svc.EditEntry(context.Background(), id, ledger.EntryPatch{Hours: &h}))

	assert.Empty(t, autoCredits(t, svc, ana))
	assert.Empty(t, adjustments(t, svc, ana))
	assertInvariant(t, svc, ana)
}

func TestReconcile_EditMovesHoursBetweenCollaborators(t *testing.T) {
	// GIVEN: 8h logged on the wrong collaborator
	svc, _ := newTestService(t)
	id := appendHours(t, svc, ana, "2024-06-03", "8")

	// WHEN: the entry is reassigned
	to := bruno
	require.NoError(t, svc.EditEntry(context.Background(), id, ledger.EntryPatch{CollaboratorID: &to}))

	// THEN: both sides are reconciled
	assert.Empty(t, autoCredits(t, svc, ana))
	assert.Len(t, autoCredits(t, svc, bruno), 1)
	assertInvariant(t, svc, ana)
	assertInvariant(t, svc, bruno)
}

func TestReconcile_DeletedCreditIsRegrantedWithoutExtraDebit(t *testing.T) {
	svc, _ := newTestService(t)
	appendHours(t, svc, ana, "2024-06-03", "8")
	credits := autoCredits(t, svc, ana)
	require.Len(t, credits, 1)

	require.NoError(t, svc.DeleteEntry(context.Background(), credits[0].ID))

	assert.Len(t, autoCredits(t, svc, ana), 1)
	assert.Len(t, adjustments(t, svc, ana), 1, "the orphaned debit is reused")
	assert.Equal(t, 1, balanceOf(t, svc, ana).BalanceDays)
}

func TestReconcile_MissingDebitIsCompensated(t *testing.T) {
	// GIVEN: 8h with its credit, and the paired debit removed by hand
	svc, _ := newTestService(t)
	id := appendHours(t, svc, ana, "2024-06-03", "8")
	debits := adjustments(t, svc, ana)
	require.Len(t, debits, 1)
	require.NoError(t, svc.DeleteEntry(context.Background(), debits[0].ID))

	// WHEN: the hours go away
	require.NoError(t, svc.DeleteEntry(context.Background(), id))

	// THEN: the credit is removed and a +8h compensation stands in for the debit
	assert.Empty(t, autoCredits(t, svc, ana))
	adj := adjustments(t, svc, ana)
	require.Len(t, adj, 1)
	assert.True(t, adj[0].Hours.Equal(decimal.NewFromInt(8)))

	out, err := svc.Reconcile(context.Background(), ana)
	require.NoError(t, err)
	assert.Zero(t, out.Writes(), "compensations must not trigger new grants")
}

func TestReconcile_FailureRollsBackMutation(t *testing.T) {
	// GIVEN: the store fails on the second insert (the credit)
	svc, mem := newTestService(t)
	mem.FailInsertAfter(2, errors.New("disk I/O error"))

	// WHEN
	_, err := svc.AppendEntry(context.Background(), ledger.EntryInput{
		CollaboratorID: ana,
		Date:           ledger.MustParseDate("2024-06-03"),
		Type:           ledger.RecordHours,
		Hours:          decimal.NewFromInt(9),
	})

	// THEN: the hours entry is rolled back with the failed grant
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrReconciliation)
	var rf *ledger.ReconciliationFailure
	require.ErrorAs(t, err, &rf)
	assert.Equal(t, ana, rf.CollaboratorID)
	assert.Zero(t, countRows(t, mem, ledger.Query{}))
}

func TestReconcile_SweepRecordsOnlyRunsWithWrites(t *testing.T) {
	// GIVEN: 16h imported straight into the store, bypassing the service
	svc, mem := newTestService(t)
	_, err := mem.Insert(context.Background(), hoursRow(0, "2024-06-01", "16"))
	require.NoError(t, err)

	out, err := svc.Reconcile(context.Background(), ana)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Granted)

	_, err = svc.Reconcile(context.Background(), ana)
	require.NoError(t, err)

	runs := mem.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, ledger.TriggerSweep, runs[0].Trigger)
	assert.Equal(t, 2, runs[0].Granted)
	assert.NotEmpty(t, runs[0].ID)
}

func TestReconcile_UnknownCollaborator(t *testing.T) {
	svc, mem := newTestService(t)

	_, err := svc.Reconcile(context.Background(), 77)

	assert.True(t, ledger.IsNotFound(err))
	assert.Empty(t, mem.Runs())
}
