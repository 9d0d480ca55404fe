// Package store provides an in-memory ledger.Store for tests and local runs.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/multimax/hourbank/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu            sync.RWMutex
	entries       map[ledger.EntryID]ledger.Entry
	collaborators map[ledger.CollaboratorID]ledger.Collaborator
	bulks         map[ledger.BulkID]ledger.BulkOperation
	changes       map[ledger.EntryID][]ledger.EntryChange
	holidays      []ledger.Holiday
	runs          []ledger.Run
	nextEntry     ledger.EntryID
	nextBulk      ledger.BulkID

	// failInsertAfter makes the n-th Insert from now fail; 0 disables it.
	failInsertAfter int
	failErr         error
}

func NewMemory() *Memory {
	return &Memory{
		entries:       make(map[ledger.EntryID]ledger.Entry),
		collaborators: make(map[ledger.CollaboratorID]ledger.Collaborator),
		bulks:         make(map[ledger.BulkID]ledger.BulkOperation),
		changes:       make(map[ledger.EntryID][]ledger.EntryChange),
	}
}

// PutCollaborator adds or replaces a collaborator.
func (m *Memory) PutCollaborator(c ledger.Collaborator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collaborators[c.ID] = c
}

func (m *Memory) AddHoliday(h ledger.Holiday) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holidays = append(m.holidays, h)
}

// FailInsertAfter makes the n-th next Insert return err. Used to exercise
// rollback paths.
func (m *Memory) FailInsertAfter(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failInsertAfter, m.failErr = n, err
}

// Runs returns the recorded reconciliation runs.
func (m *Memory) Runs() []ledger.Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ledger.Run(nil), m.runs...)
}

func (m *Memory) Insert(_ context.Context, e ledger.Entry) (ledger.EntryID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(e)
}

func (m *Memory) Update(_ context.Context, e ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(e)
}

func (m *Memory) Delete(_ context.Context, id ledger.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(id)
}

func (m *Memory) Get(_ context.Context, id ledger.EntryID) (ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id)
}

func (m *Memory) Query(_ context.Context, q ledger.Query) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queryLocked(q), nil
}

func (m *Memory) Collaborator(_ context.Context, id ledger.CollaboratorID) (ledger.Collaborator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collaboratorLocked(id)
}

func (m *Memory) Collaborators(_ context.Context) ([]ledger.Collaborator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collaboratorsLocked(), nil
}

func (m *Memory) InsertBulk(_ context.Context, op ledger.BulkOperation) (ledger.BulkID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertBulkLocked(op), nil
}

func (m *Memory) GetBulk(_ context.Context, id ledger.BulkID) (ledger.BulkOperation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBulkLocked(id)
}

func (m *Memory) ListBulkCorrections(_ context.Context, id ledger.BulkID) ([]ledger.BulkOperation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.correctionsLocked(id), nil
}

func (m *Memory) RecordChange(_ context.Context, c ledger.EntryChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes[c.EntryID] = append(m.changes[c.EntryID], c)
	return nil
}

func (m *Memory) Changes(_ context.Context, id ledger.EntryID) ([]ledger.EntryChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ledger.EntryChange(nil), m.changes[id]...), nil
}

func (m *Memory) HolidaysBetween(_ context.Context, from, to ledger.Date) ([]ledger.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.holidaysLocked(from, to), nil
}

func (m *Memory) RecordRun(_ context.Context, r ledger.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
	return nil
}

// -----------------------------------------------------------------------------
// locked helpers, shared with the transactional view
// -----------------------------------------------------------------------------

func (m *Memory) insertLocked(e ledger.Entry) (ledger.EntryID, error) {
	if m.failInsertAfter > 0 {
		m.failInsertAfter--
		if m.failInsertAfter == 0 {
			return 0, m.failErr
		}
	}
	m.nextEntry++
	e.ID = m.nextEntry
	m.entries[e.ID] = e
	return e.ID, nil
}

func (m *Memory) updateLocked(e ledger.Entry) error {
	if _, ok := m.entries[e.ID]; !ok {
		return ledger.EntryNotFound(e.ID)
	}
	m.entries[e.ID] = e
	return nil
}

func (m *Memory) deleteLocked(id ledger.EntryID) error {
	if _, ok := m.entries[id]; !ok {
		return ledger.EntryNotFound(id)
	}
	delete(m.entries, id)
	return nil
}

func (m *Memory) getLocked(id ledger.EntryID) (ledger.Entry, error) {
	e, ok := m.entries[id]
	if !ok {
		return ledger.Entry{}, ledger.EntryNotFound(id)
	}
	return e, nil
}

func (m *Memory) queryLocked(q ledger.Query) []ledger.Entry {
	var result []ledger.Entry
	for _, e := range m.entries {
		if q.Matches(e) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.After(result[j].Date)
		}
		return result[i].ID > result[j].ID
	})
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result
}

func (m *Memory) collaboratorLocked(id ledger.CollaboratorID) (ledger.Collaborator, error) {
	c, ok := m.collaborators[id]
	if !ok {
		return ledger.Collaborator{}, ledger.CollaboratorNotFound(id)
	}
	return c, nil
}

func (m *Memory) collaboratorsLocked() []ledger.Collaborator {
	result := make([]ledger.Collaborator, 0, len(m.collaborators))
	for _, c := range m.collaborators {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (m *Memory) insertBulkLocked(op ledger.BulkOperation) ledger.BulkID {
	m.nextBulk++
	op.ID = m.nextBulk
	m.bulks[op.ID] = op
	return op.ID
}

func (m *Memory) getBulkLocked(id ledger.BulkID) (ledger.BulkOperation, error) {
	op, ok := m.bulks[id]
	if !ok {
		return ledger.BulkOperation{}, ledger.BulkNotFound(id)
	}
	return op, nil
}

func (m *Memory) correctionsLocked(id ledger.BulkID) []ledger.BulkOperation {
	var result []ledger.BulkOperation
	for _, op := range m.bulks {
		if op.CorrectionOf == id {
			result = append(result, op)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (m *Memory) holidaysLocked(from, to ledger.Date) []ledger.Holiday {
	return ledger.HolidaysBetween(m.holidays, from, to)
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	entries   map[ledger.EntryID]ledger.Entry
	bulks     map[ledger.BulkID]ledger.BulkOperation
	changes   map[ledger.EntryID][]ledger.EntryChange
	runs      []ledger.Run
	nextEntry ledger.EntryID
	nextBulk  ledger.BulkID
}

// snapshot copies the mutable state. Ids are restored too, matching a
// database rollback of an autoincrement counter.
func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		entries:   make(map[ledger.EntryID]ledger.Entry, len(tm.entries)),
		bulks:     make(map[ledger.BulkID]ledger.BulkOperation, len(tm.bulks)),
		changes:   make(map[ledger.EntryID][]ledger.EntryChange, len(tm.changes)),
		runs:      append([]ledger.Run(nil), tm.runs...),
		nextEntry: tm.nextEntry,
		nextBulk:  tm.nextBulk,
	}
	for k, v := range tm.entries {
		s.entries[k] = v
	}
	for k, v := range tm.bulks {
		s.bulks[k] = v
	}
	for k, v := range tm.changes {
		s.changes[k] = append([]ledger.EntryChange(nil), v...)
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.entries = s.entries
	tm.bulks = s.bulks
	tm.changes = s.changes
	tm.runs = s.runs
	tm.nextEntry = s.nextEntry
	tm.nextBulk = s.nextBulk
}

// txMemoryView runs against the parent while WithTx holds its lock.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) Insert(_ context.Context, e ledger.Entry) (ledger.EntryID, error) {
	return tv.parent.insertLocked(e)
}

func (tv *txMemoryView) Update(_ context.Context, e ledger.Entry) error {
	return tv.parent.updateLocked(e)
}

func (tv *txMemoryView) Delete(_ context.Context, id ledger.EntryID) error {
	return tv.parent.deleteLocked(id)
}

func (tv *txMemoryView) Get(_ context.Context, id ledger.EntryID) (ledger.Entry, error) {
	return tv.parent.getLocked(id)
}

func (tv *txMemoryView) Query(_ context.Context, q ledger.Query) ([]ledger.Entry, error) {
	return tv.parent.queryLocked(q), nil
}

func (tv *txMemoryView) Collaborator(_ context.Context, id ledger.CollaboratorID) (ledger.Collaborator, error) {
	return tv.parent.collaboratorLocked(id)
}

func (tv *txMemoryView) Collaborators(_ context.Context) ([]ledger.Collaborator, error) {
	return tv.parent.collaboratorsLocked(), nil
}

func (tv *txMemoryView) InsertBulk(_ context.Context, op ledger.BulkOperation) (ledger.BulkID, error) {
	return tv.parent.insertBulkLocked(op), nil
}

func (tv *txMemoryView) GetBulk(_ context.Context, id ledger.BulkID) (ledger.BulkOperation, error) {
	return tv.parent.getBulkLocked(id)
}

func (tv *txMemoryView) ListBulkCorrections(_ context.Context, id ledger.BulkID) ([]ledger.BulkOperation, error) {
	return tv.parent.correctionsLocked(id), nil
}

func (tv *txMemoryView) RecordChange(_ context.Context, c ledger.EntryChange) error {
	tv.parent.changes[c.EntryID] = append(tv.parent.changes[c.EntryID], c)
	return nil
}

func (tv *txMemoryView) Changes(_ context.Context, id ledger.EntryID) ([]ledger.EntryChange, error) {
	return append([]ledger.EntryChange(nil), tv.parent.changes[id]...), nil
}

func (tv *txMemoryView) HolidaysBetween(_ context.Context, from, to ledger.Date) ([]ledger.Holiday, error) {
	return tv.parent.holidaysLocked(from, to), nil
}

func (tv *txMemoryView) RecordRun(_ context.Context, r ledger.Run) error {
	tv.parent.runs = append(tv.parent.runs, r)
	return nil
}
