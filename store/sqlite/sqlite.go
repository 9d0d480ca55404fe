/*
Package sqlite provides the SQLite-backed ledger.Store used in production.

PURPOSE:
  Persists ledger entries, bulk operations, the edit audit trail, holidays
  and the reconciliation run log in one SQLite file. Every mutation and the
  reconciliation it triggers share one BEGIN ... COMMIT through WithTx.

INTERFACES IMPLEMENTED:
  ledger.Store:       entries, collaborators, bulks, changes, holidays
  ledger.TxStore:     WithTx
  ledger.RunRecorder: reconciliation_run

KEY TABLES:
  ledger_entry:        one row per entry; id is AUTOINCREMENT, never reused
  bulk_operation:      bulk headers, correction_of_id chain
  ledger_entry_change: JSON before/after images of edits and deletes
  collaborator:        read by the ledger, written by admin endpoints
  holiday:             discounted from day usage spans
  reconciliation_run:  sweeps and verify-and-convert runs

CONCURRENCY:
  A single connection serialises writers; sync.RWMutex keeps readers from
  queueing behind a transaction on that connection. WAL and busy_timeout
  keep external readers (backup job) from failing.

MIGRATION:
  Schema lives in migrations/*.sql, embedded and applied on New() with
  golang-migrate.

USAGE:
  store, err := sqlite.New("./data/hourbank.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := ledger.NewService(store)
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/multimax/hourbank/ledger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const timeLayout = time.RFC3339Nano

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens the database at dbPath and applies pending migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: every caller sees the same (possibly in-memory) database
	// and writers are serialised.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	defer src.Close()

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// m.Close would close db as well; only the source is released.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// LEDGER STORE (ledger.Store interface)
// =============================================================================

func (s *Store) Insert(ctx context.Context, e ledger.Entry) (ledger.EntryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertEntry(ctx, s.db, e)
}

func (s *Store) Update(ctx context.Context, e ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateEntry(ctx, s.db, e)
}

func (s *Store) Delete(ctx context.Context, id ledger.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteEntry(ctx, s.db, id)
}

func (s *Store) Get(ctx context.Context, id ledger.EntryID) (ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEntry(ctx, s.db, id)
}

func (s *Store) Query(ctx context.Context, q ledger.Query) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryEntries(ctx, s.db, q)
}

func (s *Store) Collaborator(ctx context.Context, id ledger.CollaboratorID) (ledger.Collaborator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCollaborator(ctx, s.db, id)
}

func (s *Store) Collaborators(ctx context.Context) ([]ledger.Collaborator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCollaborators(ctx, s.db)
}

func (s *Store) InsertBulk(ctx context.Context, op ledger.BulkOperation) (ledger.BulkID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertBulk(ctx, s.db, op)
}

func (s *Store) GetBulk(ctx context.Context, id ledger.BulkID) (ledger.BulkOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getBulk(ctx, s.db, id)
}

func (s *Store) ListBulkCorrections(ctx context.Context, id ledger.BulkID) ([]ledger.BulkOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCorrections(ctx, s.db, id)
}

func (s *Store) RecordChange(ctx context.Context, c ledger.EntryChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return recordChange(ctx, s.db, c)
}

func (s *Store) Changes(ctx context.Context, id ledger.EntryID) ([]ledger.EntryChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listChanges(ctx, s.db, id)
}

func (s *Store) HolidaysBetween(ctx context.Context, from, to ledger.Date) ([]ledger.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return holidaysBetween(ctx, s.db, from, to)
}

func (s *Store) RecordRun(ctx context.Context, r ledger.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return recordRun(ctx, s.db, r)
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. Reads made through the
// store handed to fn see the transaction's own writes.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Insert(ctx context.Context, e ledger.Entry) (ledger.EntryID, error) {
	return insertEntry(ctx, ts.tx, e)
}

func (ts *txStore) Update(ctx context.Context, e ledger.Entry) error {
	return updateEntry(ctx, ts.tx, e)
}

func (ts *txStore) Delete(ctx context.Context, id ledger.EntryID) error {
	return deleteEntry(ctx, ts.tx, id)
}

func (ts *txStore) Get(ctx context.Context, id ledger.EntryID) (ledger.Entry, error) {
	return getEntry(ctx, ts.tx, id)
}

func (ts *txStore) Query(ctx context.Context, q ledger.Query) ([]ledger.Entry, error) {
	return queryEntries(ctx, ts.tx, q)
}

func (ts *txStore) Collaborator(ctx context.Context, id ledger.CollaboratorID) (ledger.Collaborator, error) {
	return getCollaborator(ctx, ts.tx, id)
}

func (ts *txStore) Collaborators(ctx context.Context) ([]ledger.Collaborator, error) {
	return listCollaborators(ctx, ts.tx)
}

func (ts *txStore) InsertBulk(ctx context.Context, op ledger.BulkOperation) (ledger.BulkID, error) {
	return insertBulk(ctx, ts.tx, op)
}

func (ts *txStore) GetBulk(ctx context.Context, id ledger.BulkID) (ledger.BulkOperation, error) {
	return getBulk(ctx, ts.tx, id)
}

func (ts *txStore) ListBulkCorrections(ctx context.Context, id ledger.BulkID) ([]ledger.BulkOperation, error) {
	return listCorrections(ctx, ts.tx, id)
}

func (ts *txStore) RecordChange(ctx context.Context, c ledger.EntryChange) error {
	return recordChange(ctx, ts.tx, c)
}

func (ts *txStore) Changes(ctx context.Context, id ledger.EntryID) ([]ledger.EntryChange, error) {
	return listChanges(ctx, ts.tx, id)
}

func (ts *txStore) HolidaysBetween(ctx context.Context, from, to ledger.Date) ([]ledger.Holiday, error) {
	return holidaysBetween(ctx, ts.tx, from, to)
}

func (ts *txStore) RecordRun(ctx context.Context, r ledger.Run) error {
	return recordRun(ctx, ts.tx, r)
}

// =============================================================================
// ENTRIES
// =============================================================================

const entryColumns = `id, collaborator_id, date, record_type, hours, days, amount_paid,
	rate_per_day, origin, notes, created_by, created_at, bulk_id`

func insertEntry(ctx context.Context, db querier, e ledger.Entry) (ledger.EntryID, error) {
	hours, days, amount, rate := payloadColumns(e)
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO ledger_entry
		(collaborator_id, date, record_type, hours, days, amount_paid, rate_per_day,
		 origin, notes, created_by, created_at, bulk_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		int64(e.CollaboratorID),
		e.Date.String(),
		string(e.Type),
		hours, days, amount, rate,
		string(e.Origin),
		e.Notes,
		e.CreatedBy,
		createdAt.UTC().Format(timeLayout),
		nullBulk(e.BulkID),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read entry id: %w", err)
	}
	return ledger.EntryID(id), nil
}

func updateEntry(ctx context.Context, db querier, e ledger.Entry) error {
	hours, days, amount, rate := payloadColumns(e)
	res, err := db.ExecContext(ctx, `
		UPDATE ledger_entry SET
			collaborator_id = ?, date = ?, hours = ?, days = ?, amount_paid = ?,
			rate_per_day = ?, notes = ?
		WHERE id = ?
	`,
		int64(e.CollaboratorID), e.Date.String(), hours, days, amount, rate, e.Notes, int64(e.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	return requireAffected(res, ledger.EntryNotFound(e.ID))
}

func deleteEntry(ctx context.Context, db querier, id ledger.EntryID) error {
	res, err := db.ExecContext(ctx, "DELETE FROM ledger_entry WHERE id = ?", int64(id))
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return requireAffected(res, ledger.EntryNotFound(id))
}

func getEntry(ctx context.Context, db querier, id ledger.EntryID) (ledger.Entry, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+entryColumns+" FROM ledger_entry WHERE id = ?", int64(id))
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("failed to load entry: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return ledger.Entry{}, err
		}
		return ledger.Entry{}, ledger.EntryNotFound(id)
	}
	return scanEntry(rows)
}

func queryEntries(ctx context.Context, db querier, q ledger.Query) ([]ledger.Entry, error) {
	var (
		where []string
		args  []any
	)
	if q.CollaboratorID != 0 {
		where = append(where, "collaborator_id = ?")
		args = append(args, int64(q.CollaboratorID))
	}
	if q.Type != "" {
		where = append(where, "record_type = ?")
		args = append(args, string(q.Type))
	}
	if q.Origin != "" {
		where = append(where, "origin = ?")
		args = append(args, string(q.Origin))
	}
	if q.BulkID != 0 {
		where = append(where, "bulk_id = ?")
		args = append(args, int64(q.BulkID))
	}
	if !q.Window.Start.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, q.Window.Start.String())
	}
	if !q.Window.End.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, q.Window.End.String())
	}

	query := "SELECT " + entryColumns + " FROM ledger_entry"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, id DESC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (ledger.Entry, error) {
	var (
		e                        ledger.Entry
		id, collaboratorID       int64
		date, recordType, origin string
		createdAt                string
		hours, amount, rate      sql.NullString
		days, bulkID             sql.NullInt64
	)
	if err := rows.Scan(&id, &collaboratorID, &date, &recordType, &hours, &days, &amount,
		&rate, &origin, &e.Notes, &e.CreatedBy, &createdAt, &bulkID); err != nil {
		return ledger.Entry{}, fmt.Errorf("failed to scan entry: %w", err)
	}

	d, err := ledger.ParseDate(date)
	if err != nil {
		return ledger.Entry{}, err
	}
	rt, err := ledger.ParseRecordType(recordType)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("entry %d: %w", id, err)
	}
	o, err := ledger.ParseOrigin(origin)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("entry %d: %w", id, err)
	}

	e.ID = ledger.EntryID(id)
	e.CollaboratorID = ledger.CollaboratorID(collaboratorID)
	e.Date = d
	e.Type = rt
	e.Origin = o
	e.Days = int(days.Int64)
	e.BulkID = ledger.BulkID(bulkID.Int64)
	e.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	if e.Hours, err = parseDecimal(hours); err != nil {
		return ledger.Entry{}, err
	}
	if e.AmountPaid, err = parseDecimal(amount); err != nil {
		return ledger.Entry{}, err
	}
	if e.RatePerDay, err = parseDecimal(rate); err != nil {
		return ledger.Entry{}, err
	}
	return e, nil
}

// payloadColumns stores only the fields that belong to the record type;
// the rest are NULL.
func payloadColumns(e ledger.Entry) (hours, days, amount, rate any) {
	switch e.Type {
	case ledger.RecordHours:
		return e.Hours.String(), nil, nil, nil
	case ledger.RecordConversion:
		return nil, e.Days, e.AmountPaid.String(), e.RatePerDay.String()
	default:
		return nil, e.Days, nil, nil
	}
}

// =============================================================================
// COLLABORATORS
// =============================================================================

func getCollaborator(ctx context.Context, db querier, id ledger.CollaboratorID) (ledger.Collaborator, error) {
	var c ledger.Collaborator
	var rawID int64
	err := db.QueryRowContext(ctx,
		"SELECT id, name, role, active FROM collaborator WHERE id = ?", int64(id),
	).Scan(&rawID, &c.Name, &c.Role, &c.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Collaborator{}, ledger.CollaboratorNotFound(id)
	}
	if err != nil {
		return ledger.Collaborator{}, fmt.Errorf("failed to load collaborator: %w", err)
	}
	c.ID = ledger.CollaboratorID(rawID)
	return c, nil
}

func listCollaborators(ctx context.Context, db querier) ([]ledger.Collaborator, error) {
	rows, err := db.QueryContext(ctx, "SELECT id, name, role, active FROM collaborator ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list collaborators: %w", err)
	}
	defer rows.Close()

	var result []ledger.Collaborator
	for rows.Next() {
		var c ledger.Collaborator
		var id int64
		if err := rows.Scan(&id, &c.Name, &c.Role, &c.Active); err != nil {
			return nil, err
		}
		c.ID = ledger.CollaboratorID(id)
		result = append(result, c)
	}
	return result, rows.Err()
}

// SaveCollaborator inserts or updates a collaborator.
func (s *Store) SaveCollaborator(ctx context.Context, c ledger.Collaborator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collaborator (id, name, role, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			active = excluded.active
	`, int64(c.ID), c.Name, c.Role, c.Active, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to save collaborator: %w", err)
	}
	return nil
}

// =============================================================================
// BULK OPERATIONS
// =============================================================================

const bulkColumns = `id, kind, record_type, hours, days, custom_date, notes, created_by,
	created_at, total_collaborators, correction_of_id`

func insertBulk(ctx context.Context, db querier, op ledger.BulkOperation) (ledger.BulkID, error) {
	var hours, days any
	if op.Type == ledger.RecordHours {
		hours = op.Hours.String()
	} else {
		days = op.Days
	}
	createdAt := op.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO bulk_operation
		(kind, record_type, hours, days, custom_date, notes, created_by, created_at,
		 total_collaborators, correction_of_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(op.Kind), string(op.Type), hours, days, op.Date.String(), op.Notes, op.CreatedBy,
		createdAt.UTC().Format(timeLayout), op.TotalCollaborators, nullBulk(op.CorrectionOf),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert bulk operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read bulk id: %w", err)
	}
	return ledger.BulkID(id), nil
}

func getBulk(ctx context.Context, db querier, id ledger.BulkID) (ledger.BulkOperation, error) {
	ops, err := queryBulks(ctx, db, "SELECT "+bulkColumns+" FROM bulk_operation WHERE id = ?", int64(id))
	if err != nil {
		return ledger.BulkOperation{}, err
	}
	if len(ops) == 0 {
		return ledger.BulkOperation{}, ledger.BulkNotFound(id)
	}
	return ops[0], nil
}

func listCorrections(ctx context.Context, db querier, id ledger.BulkID) ([]ledger.BulkOperation, error) {
	return queryBulks(ctx, db,
		"SELECT "+bulkColumns+" FROM bulk_operation WHERE correction_of_id = ? ORDER BY id", int64(id))
}

func queryBulks(ctx context.Context, db querier, query string, args ...any) ([]ledger.BulkOperation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bulk operations: %w", err)
	}
	defer rows.Close()

	var ops []ledger.BulkOperation
	for rows.Next() {
		var (
			op                                ledger.BulkOperation
			id                                int64
			kind, recordType, date, createdAt string
			hours                             sql.NullString
			days, correctionOf                sql.NullInt64
		)
		if err := rows.Scan(&id, &kind, &recordType, &hours, &days, &date, &op.Notes, &op.CreatedBy,
			&createdAt, &op.TotalCollaborators, &correctionOf); err != nil {
			return nil, fmt.Errorf("failed to scan bulk operation: %w", err)
		}
		op.ID = ledger.BulkID(id)
		op.Kind = ledger.BulkKind(kind)
		op.Type = ledger.RecordType(recordType)
		op.Days = int(days.Int64)
		op.CorrectionOf = ledger.BulkID(correctionOf.Int64)
		op.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		if op.Date, err = ledger.ParseDate(date); err != nil {
			return nil, err
		}
		if op.Hours, err = parseDecimal(hours); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

// entryImage is the JSON shape of an entry in ledger_entry_change.
type entryImage struct {
	ID             int64           `json:"id"`
	CollaboratorID int64           `json:"collaborator_id"`
	Date           string          `json:"date"`
	RecordType     string          `json:"record_type"`
	Hours          decimal.Decimal `json:"hours"`
	Days           int             `json:"days"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	RatePerDay     decimal.Decimal `json:"rate_per_day"`
	Origin         string          `json:"origin"`
	Notes          string          `json:"notes"`
	CreatedBy      string          `json:"created_by"`
	BulkID         int64           `json:"bulk_id,omitempty"`
}

func toImage(e ledger.Entry) entryImage {
	return entryImage{
		ID:             int64(e.ID),
		CollaboratorID: int64(e.CollaboratorID),
		Date:           e.Date.String(),
		RecordType:     string(e.Type),
		Hours:          e.Hours,
		Days:           e.Days,
		AmountPaid:     e.AmountPaid,
		RatePerDay:     e.RatePerDay,
		Origin:         string(e.Origin),
		Notes:          e.Notes,
		CreatedBy:      e.CreatedBy,
		BulkID:         int64(e.BulkID),
	}
}

func fromImage(img entryImage) (ledger.Entry, error) {
	d, err := ledger.ParseDate(img.Date)
	if err != nil {
		return ledger.Entry{}, err
	}
	return ledger.Entry{
		ID:             ledger.EntryID(img.ID),
		CollaboratorID: ledger.CollaboratorID(img.CollaboratorID),
		Date:           d,
		Type:           ledger.RecordType(img.RecordType),
		Hours:          img.Hours,
		Days:           img.Days,
		AmountPaid:     img.AmountPaid,
		RatePerDay:     img.RatePerDay,
		Origin:         ledger.Origin(img.Origin),
		Notes:          img.Notes,
		CreatedBy:      img.CreatedBy,
		BulkID:         ledger.BulkID(img.BulkID),
	}, nil
}

func recordChange(ctx context.Context, db querier, c ledger.EntryChange) error {
	before, err := json.Marshal(toImage(c.Before))
	if err != nil {
		return fmt.Errorf("failed to encode change: %w", err)
	}
	var after any
	if c.After != nil {
		b, err := json.Marshal(toImage(*c.After))
		if err != nil {
			return fmt.Errorf("failed to encode change: %w", err)
		}
		after = string(b)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO ledger_entry_change (entry_id, action, before_json, after_json, changed_by, changed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, int64(c.EntryID), c.Action, string(before), after, c.ChangedBy, c.ChangedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to record change: %w", err)
	}
	return nil
}

func listChanges(ctx context.Context, db querier, id ledger.EntryID) ([]ledger.EntryChange, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT action, before_json, after_json, changed_by, changed_at
		FROM ledger_entry_change WHERE entry_id = ? ORDER BY id
	`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}
	defer rows.Close()

	var changes []ledger.EntryChange
	for rows.Next() {
		var (
			c                 ledger.EntryChange
			before, changedAt string
			after             sql.NullString
		)
		if err := rows.Scan(&c.Action, &before, &after, &c.ChangedBy, &changedAt); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		c.EntryID = id
		c.ChangedAt, _ = time.Parse(timeLayout, changedAt)

		var img entryImage
		if err := json.Unmarshal([]byte(before), &img); err != nil {
			return nil, fmt.Errorf("failed to decode change: %w", err)
		}
		if c.Before, err = fromImage(img); err != nil {
			return nil, err
		}
		if after.Valid {
			var img entryImage
			if err := json.Unmarshal([]byte(after.String), &img); err != nil {
				return nil, fmt.Errorf("failed to decode change: %w", err)
			}
			e, err := fromImage(img)
			if err != nil {
				return nil, err
			}
			c.After = &e
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func holidaysBetween(ctx context.Context, db querier, from, to ledger.Date) ([]ledger.Holiday, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT date, name, recurring FROM holiday
		WHERE recurring = 1 OR (date >= ? AND date <= ?)
		ORDER BY date
	`, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load holidays: %w", err)
	}
	defer rows.Close()

	holidays, err := scanHolidays(rows)
	if err != nil {
		return nil, err
	}
	return ledger.HolidaysBetween(holidays, from, to), nil
}

func scanHolidays(rows *sql.Rows) ([]ledger.Holiday, error) {
	var holidays []ledger.Holiday
	for rows.Next() {
		var h ledger.Holiday
		var date string
		if err := rows.Scan(&date, &h.Name, &h.Recurring); err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}
		d, err := ledger.ParseDate(date)
		if err != nil {
			return nil, err
		}
		h.Date = d
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

// SaveHoliday saves a holiday; saving the same date and name again updates it.
func (s *Store) SaveHoliday(ctx context.Context, h ledger.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holiday (date, name, recurring)
		VALUES (?, ?, ?)
		ON CONFLICT(date, name) DO UPDATE SET
			recurring = excluded.recurring
	`, h.Date.String(), h.Name, h.Recurring)
	if err != nil {
		return fmt.Errorf("failed to save holiday: %w", err)
	}
	return nil
}

// DeleteHoliday removes every holiday on date.
func (s *Store) DeleteHoliday(ctx context.Context, date ledger.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM holiday WHERE date = ?", date.String())
	return err
}

// ListHolidays returns all stored holidays (for admin UI).
func (s *Store) ListHolidays(ctx context.Context) ([]ledger.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT date, name, recurring FROM holiday ORDER BY date")
	if err != nil {
		return nil, fmt.Errorf("failed to list holidays: %w", err)
	}
	defer rows.Close()
	return scanHolidays(rows)
}

// =============================================================================
// RECONCILIATION RUNS
// =============================================================================

func recordRun(ctx context.Context, db querier, r ledger.Run) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO reconciliation_run
		(id, collaborator_id, trigger_kind, granted, credits_removed, debits_removed,
		 compensations, forfeited_days, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, int64(r.CollaboratorID), string(r.Trigger), r.Granted, r.CreditsRemoved,
		r.DebitsRemoved, r.Compensations, r.ForfeitedDays, r.Error,
		r.StartedAt.UTC().Format(timeLayout), r.FinishedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to record reconciliation run: %w", err)
	}
	return nil
}

// ReconciliationRuns returns the most recent runs, newest first.
func (s *Store) ReconciliationRuns(ctx context.Context, limit int) ([]ledger.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, collaborator_id, trigger_kind, granted, credits_removed, debits_removed,
		       compensations, forfeited_days, error, started_at, finished_at
		FROM reconciliation_run
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliation runs: %w", err)
	}
	defer rows.Close()

	var runs []ledger.Run
	for rows.Next() {
		var (
			r                 ledger.Run
			collaboratorID    int64
			trigger           string
			started, finished string
		)
		if err := rows.Scan(&r.ID, &collaboratorID, &trigger, &r.Granted, &r.CreditsRemoved,
			&r.DebitsRemoved, &r.Compensations, &r.ForfeitedDays, &r.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation run: %w", err)
		}
		r.CollaboratorID = ledger.CollaboratorID(collaboratorID)
		r.Trigger = ledger.RunTrigger(trigger)
		r.StartedAt, _ = time.Parse(timeLayout, started)
		r.FinishedAt, _ = time.Parse(timeLayout, finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullBulk(id ledger.BulkID) any {
	if id == 0 {
		return nil
	}
	return int64(id)
}

func parseDecimal(s sql.NullString) (decimal.Decimal, error) {
	if !s.Valid || s.String == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s.String, err)
	}
	return d, nil
}
