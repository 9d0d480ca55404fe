/*
Package report builds the all-collaborator balance report read by payroll.

Balances are independent per collaborator, so the builder computes them on a
bounded ants worker pool and joins the results in name order. Nothing here
writes to the ledger.
*/
package report

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/multimax/hourbank/ledger"
	"github.com/multimax/hourbank/metrics"
)

// BalanceSource is the read side of ledger.Service used by the report.
type BalanceSource interface {
	ActiveCollaborators(ctx context.Context) ([]ledger.Collaborator, error)
	GetBalance(ctx context.Context, id ledger.CollaboratorID, window ledger.Window) (ledger.BalanceSnapshot, error)
}

type Line struct {
	Collaborator ledger.Collaborator
	Balance      ledger.BalanceSnapshot
}

type Report struct {
	Window           ledger.Window
	Lines            []Line
	TotalBalanceDays int
	TotalAmountPaid  decimal.Decimal
}

type Builder struct {
	source BalanceSource
	pool   *ants.Pool
	logger *zap.Logger
}

// NewBuilder creates a builder running at most workers balance computations
// at once. Call Release when done.
func NewBuilder(source BalanceSource, workers int, logger *zap.Logger) (*Builder, error) {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create report pool: %w", err)
	}
	return &Builder{source: source, pool: pool, logger: logger}, nil
}

// Release stops the worker pool.
func (b *Builder) Release() {
	b.pool.Release()
}

// Build returns the balance of every active collaborator inside window.
// The first failing collaborator aborts the report.
func (b *Builder) Build(ctx context.Context, window ledger.Window) (Report, error) {
	if err := window.Validate(); err != nil {
		return Report{}, err
	}
	start := time.Now()
	defer func() { metrics.ReportDuration.Observe(time.Since(start).Seconds()) }()

	collaborators, err := b.source.ActiveCollaborators(ctx)
	if err != nil {
		return Report{}, err
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		lines    = make([]Line, 0, len(collaborators))
	)
	for _, c := range collaborators {
		c := c
		wg.Add(1)
		err := b.pool.Submit(func() {
			defer wg.Done()
			snap, err := b.source.GetBalance(ctx, c.ID, window)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("balance of collaborator %d: %w", c.ID, err)
				}
				return
			}
			lines = append(lines, Line{Collaborator: c, Balance: snap})
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to submit report task: %w", err)
			}
			mu.Unlock()
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		b.logger.Error("balance report failed", zap.Error(firstErr))
		return Report{}, firstErr
	}

	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Collaborator.Name != lines[j].Collaborator.Name {
			return lines[i].Collaborator.Name < lines[j].Collaborator.Name
		}
		return lines[i].Collaborator.ID < lines[j].Collaborator.ID
	})

	r := Report{Window: window, Lines: lines}
	r.TotalAmountPaid = decimal.Zero
	for _, l := range lines {
		r.TotalBalanceDays += l.Balance.BalanceDays
		r.TotalAmountPaid = r.TotalAmountPaid.Add(l.Balance.AmountPaid)
	}

	b.logger.Info("balance report built",
		zap.Int("collaborators", len(lines)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return r, nil
}
