package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellness-escape/vitality-hub/internal/domain/progress"
	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
)

// ──────────────────────────────────────────────────────────────────────────────
// Stub querier
// ──────────────────────────────────────────────────────────────────────────────

type call struct {
	sql  string
	args []interface{}
}

// stubDB records statements and answers from scripted values.
type stubDB struct {
	calls   []call
	row     []interface{} // values for the next QueryRow, nil means ErrNoRows
	rowErr  error
	tag     string
	execErr error
	rows    [][]interface{}
	txCalls int
}

func (s *stubDB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	s.calls = append(s.calls, call{sql: sql, args: args})
	if s.execErr != nil {
		return pgconn.CommandTag{}, s.execErr
	}
	return pgconn.NewCommandTag(s.tag), nil
}

func (s *stubDB) Query(_ context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	s.calls = append(s.calls, call{sql: sql, args: args})
	return &stubRows{data: s.rows, idx: -1}, nil
}

func (s *stubDB) QueryRow(_ context.Context, sql string, args ...interface{}) pgx.Row {
	s.calls = append(s.calls, call{sql: sql, args: args})
	return stubRow{values: s.row, err: s.rowErr}
}

func (s *stubDB) WithTx(_ context.Context, fn func(pgx.Tx) error) error {
	s.txCalls++
	return fn(stubTx{db: s})
}

func (s *stubDB) last() call { return s.calls[len(s.calls)-1] }

type stubRow struct {
	values []interface{}
	err    error
}

func (r stubRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	if r.values == nil {
		return pgx.ErrNoRows
	}
	return assign(r.values, dest)
}

func assign(values, dest []interface{}) error {
	if len(values) != len(dest) {
		return fmt.Errorf("scan: %d values into %d targets", len(values), len(dest))
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *bool:
			*d = v.(bool)
		case *int:
			*d = v.(int)
		case *time.Time:
			*d = v.(time.Time)
		case **time.Time:
			if v == nil {
				*d = nil
			} else {
				t := v.(time.Time)
				*d = &t
			}
		default:
			return fmt.Errorf("scan: unsupported target %T", d)
		}
	}
	return nil
}

type stubRows struct {
	pgx.Rows
	data [][]interface{}
	idx  int
}

func (r *stubRows) Next() bool                     { r.idx++; return r.idx < len(r.data) }
func (r *stubRows) Scan(dest ...interface{}) error { return assign(r.data[r.idx], dest) }
func (r *stubRows) Err() error                     { return nil }
func (r *stubRows) Close()                         {}

type stubTx struct {
	pgx.Tx
	db *stubDB
}

func (t stubTx) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

// ──────────────────────────────────────────────────────────────────────────────
// Progress medium
// ──────────────────────────────────────────────────────────────────────────────

func TestProgressMedium_GetMissingRow(t *testing.T) {
	db := &stubDB{}
	m := NewProgressMedium(db)

	_, ok, err := m.Get(context.Background(), "progress:alice:week:1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []interface{}{"progress:alice:week:1"}, db.last().args)
}

func TestProgressMedium_GetValue(t *testing.T) {
	db := &stubDB{row: []interface{}{`["1","2"]`}}
	m := NewProgressMedium(db)

	v, ok, err := m.Get(context.Background(), "progress:alice:sessions:completed")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `["1","2"]`, v)
}

func TestProgressMedium_GetError(t *testing.T) {
	db := &stubDB{rowErr: errors.New("conn refused")}
	_, _, err := NewProgressMedium(db).Get(context.Background(), "progress:alice:week:1")
	assert.Error(t, err)
}

func TestProgressMedium_SetDenormalisesKey(t *testing.T) {
	db := &stubDB{tag: "INSERT 0 1"}
	m := NewProgressMedium(db)

	require.NoError(t, m.Set(context.Background(), "progress:alice:worksheet:3", `{"why":"sleep"}`))
	c := db.last()
	assert.Contains(t, c.sql, "ON CONFLICT (key)")
	assert.Equal(t, []interface{}{"progress:alice:worksheet:3", "alice", "worksheet", "3", `{"why":"sleep"}`}, c.args)

	err := m.Set(context.Background(), "not-a-key", "{}")
	assert.True(t, shared.IsValidation(err))
}

func TestProgressMedium_DeletePrefix(t *testing.T) {
	db := &stubDB{tag: "DELETE 4"}
	m := NewProgressMedium(db)

	n, err := m.DeletePrefix(context.Background(), "progress:a_b:")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, []interface{}{`progress:a\_b:%`}, db.last().args)

	_, err = m.DeletePrefix(context.Background(), "")
	assert.Error(t, err)
}

func TestProgressMedium_StoreFallsBackWhenExecFails(t *testing.T) {
	db := &stubDB{execErr: errors.New("read-only transaction")}
	store := progress.NewStore(NewProgressMedium(db))
	user := shared.UserID("alice")

	changed, err := store.MarkSessionComplete(context.Background(), user, "1")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, store.IsComplete(context.Background(), user, "1"))
	assert.Equal(t, 1, store.Pending())
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%\_done\\`, escapeLike(`100%_done\`))
}

// ──────────────────────────────────────────────────────────────────────────────
// Entitlements
// ──────────────────────────────────────────────────────────────────────────────

func TestEntitlementRepository_HasAccess(t *testing.T) {
	ctx := context.Background()

	has, err := NewEntitlementRepository(&stubDB{}).HasAccess(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, has, "no row means no access")

	has, err = NewEntitlementRepository(&stubDB{row: []interface{}{true}}).HasAccess(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, has)

	_, err = NewEntitlementRepository(&stubDB{rowErr: errors.New("timeout")}).HasAccess(ctx, "alice")
	assert.Error(t, err)
}

func TestEntitlementRepository_Get(t *testing.T) {
	granted := time.Date(2024, 11, 1, 9, 0, 0, 0, time.UTC)
	db := &stubDB{row: []interface{}{true, "stripe", granted, nil}}

	e, err := NewEntitlementRepository(db).Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, e.HasAccess)
	assert.Equal(t, "stripe", e.Source)
	require.NotNil(t, e.GrantedAt)
	assert.True(t, granted.Equal(*e.GrantedAt))
	assert.Nil(t, e.RevokedAt)

	_, err = NewEntitlementRepository(&stubDB{}).Get(context.Background(), "bob")
	assert.True(t, shared.IsNotFound(err))
}

func TestEntitlementRepository_GrantRevoke(t *testing.T) {
	now := time.Date(2024, 11, 2, 0, 0, 0, 0, time.UTC)
	db := &stubDB{tag: "UPDATE 1"}
	repo := NewEntitlementRepository(db)
	repo.now = func() time.Time { return now }

	require.NoError(t, repo.Grant(context.Background(), "alice", "admin-cli"))
	assert.Equal(t, []interface{}{"alice", "admin-cli", now}, db.last().args)

	revoked, err := repo.Revoke(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, revoked)

	db.tag = "UPDATE 0"
	revoked, err = repo.Revoke(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, revoked)

	assert.Equal(t, shared.ErrInvalidUserID, repo.Grant(context.Background(), "", "x"))
}

// ──────────────────────────────────────────────────────────────────────────────
// Migrations
// ──────────────────────────────────────────────────────────────────────────────

func TestMigrator_AppliesPendingInOrder(t *testing.T) {
	db := &stubDB{
		tag:  "CREATE TABLE",
		rows: [][]interface{}{{1, time.Now()}},
	}
	m := NewMigratorWithMigrations(db, []Migration{
		{Version: 2, Name: "second", UpSQL: "CREATE TABLE b()"},
		{Version: 1, Name: "first", UpSQL: "CREATE TABLE a()"},
	})

	applied, err := m.Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2}, applied)
	assert.Equal(t, 1, db.txCalls)

	var sqls []string
	for _, c := range db.calls {
		sqls = append(sqls, strings.TrimSpace(c.sql))
	}
	assert.Contains(t, sqls, "CREATE TABLE b()")
	assert.NotContains(t, sqls, "CREATE TABLE a()")
}

func TestMigrator_RollbackNothingApplied(t *testing.T) {
	db := &stubDB{}
	v, err := NewMigrator(db).Rollback(context.Background())
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestMigrator_Status(t *testing.T) {
	db := &stubDB{rows: [][]interface{}{{1, time.Now()}}}
	status, err := NewMigrator(db).Status(context.Background())
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.True(t, status[0].IsApplied)
	assert.Equal(t, "create_progress_entries", status[0].Name)
	assert.False(t, status[1].IsApplied)
}

func TestMigrations_TablesMatchMedium(t *testing.T) {
	migs := Migrations()
	require.Len(t, migs, 2)
	assert.Contains(t, migs[0].UpSQL, "progress_entries")
	assert.Contains(t, migs[1].UpSQL, "entitlements")
	for _, ns := range []progress.Namespace{
		progress.NamespaceSessions, progress.NamespaceWeek, progress.NamespaceWorksheet,
		progress.NamespaceHabit, progress.NamespaceFlags,
	} {
		assert.Contains(t, migs[0].UpSQL, "'"+string(ns)+"'")
	}
}
