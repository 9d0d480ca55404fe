package report_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multimax/hourbank/ledger"
	"github.com/multimax/hourbank/ledger/store"
	"github.com/multimax/hourbank/report"
)

func TestBuild_SortedBalancesOfActiveCollaborators(t *testing.T) {
	// GIVEN: three collaborators, one inactive, with some hours logged
	mem := store.NewTxMemory()
	mem.PutCollaborator(ledger.Collaborator{ID: 1, Name: "Zeca", Active: true})
	mem.PutCollaborator(ledger.Collaborator{ID: 2, Name: "Ana", Active: true})
	mem.PutCollaborator(ledger.Collaborator{ID: 3, Name: "Bia", Active: false})
	svc := ledger.NewService(mem, ledger.WithClock(ledger.FixedClock{
		At: time.Date(2024, time.June, 14, 12, 0, 0, 0, time.UTC),
	}))
	ctx := context.Background()

	for _, id := range []ledger.CollaboratorID{1, 1, 2} {
		_, err := svc.AppendEntry(ctx, ledger.EntryInput{
			CollaboratorID: id,
			Date:           ledger.MustParseDate("2024-06-03"),
			Type:           ledger.RecordHours,
			Hours:          decimal.NewFromInt(8),
		})
		require.NoError(t, err)
	}

	b, err := report.NewBuilder(svc, 2, nil)
	require.NoError(t, err)
	defer b.Release()

	// WHEN
	r, err := b.Build(ctx, ledger.Window{})

	// THEN: Ana first, Zeca second, Bia left out
	require.NoError(t, err)
	require.Len(t, r.Lines, 2)
	assert.Equal(t, "Ana", r.Lines[0].Collaborator.Name)
	assert.Equal(t, 1, r.Lines[0].Balance.BalanceDays)
	assert.Equal(t, "Zeca", r.Lines[1].Collaborator.Name)
	assert.Equal(t, 2, r.Lines[1].Balance.BalanceDays)
	assert.Equal(t, 3, r.TotalBalanceDays)
	assert.True(t, r.TotalAmountPaid.IsZero())
}

type failingSource struct{}

func (failingSource) ActiveCollaborators(context.Context) ([]ledger.Collaborator, error) {
	return []ledger.Collaborator{{ID: 1, Name: "Ana", Active: true}}, nil
}

func (failingSource) GetBalance(context.Context, ledger.CollaboratorID, ledger.Window) (ledger.BalanceSnapshot, error) {
	return ledger.BalanceSnapshot{}, errors.New("disk gone")
}

func TestBuild_PropagatesFailure(t *testing.T) {
	b, err := report.NewBuilder(failingSource{}, 1, nil)
	require.NoError(t, err)
	defer b.Release()

	_, err = b.Build(context.Background(), ledger.Window{})

	assert.ErrorContains(t, err, "disk gone")
}

func TestBuild_RejectsInvertedWindow(t *testing.T) {
	b, err := report.NewBuilder(failingSource{}, 1, nil)
	require.NoError(t, err)
	defer b.Release()

	_, err = b.Build(context.Background(), ledger.Window{
		Start: ledger.MustParseDate("2024-06-10"),
		End:   ledger.MustParseDate("2024-06-01"),
	})

	assert.True(t, ledger.IsValidation(err))
}
