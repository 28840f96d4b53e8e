package db

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// --- Mock Rows ---

// recordMockRows serves weather table rows in column order.
type recordMockRows struct {
	data    [][]any
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func newRecordMockRows(data ...[]any) *recordMockRows {
	return &recordMockRows{data: data, idx: -1}
}

func (r *recordMockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *recordMockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	if r.idx < 0 || r.idx >= len(r.data) {
		return errors.New("no current row")
	}
	row := r.data[r.idx]
	if len(row) != len(dest) {
		return errors.New("column count mismatch")
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *float64:
			*d = v.(float64)
		case *int:
			*d = v.(int)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return errors.New("unsupported scan destination")
		}
	}
	return nil
}

func (r *recordMockRows) Close()                                       { r.closed = true }
func (r *recordMockRows) Err() error                                   { return r.errVal }
func (r *recordMockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *recordMockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *recordMockRows) RawValues() [][]byte                          { return nil }
func (r *recordMockRows) Values() ([]any, error)                       { return nil, nil }
func (r *recordMockRows) Conn() *pgx.Conn                              { return nil }

// --- Fake Tx ---

// txLog is shared by a fake transaction and all of its savepoints.
type txLog struct {
	mu     sync.Mutex
	events []string

	// execErr, when set, decides the error for each Exec by SQL text.
	execErr func(sql string) error
	// Failures injected into savepoint handling.
	beginErr      error
	spRollbackErr error
	spCommitErr   error
	commitErr     error
	countResult   int
}

func (l *txLog) add(ev string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *txLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *txLog) count(prefix string) int {
	n := 0
	for _, ev := range l.snapshot() {
		if strings.HasPrefix(ev, prefix) {
			n++
		}
	}
	return n
}

// fakeTx implements pgx.Tx. depth 0 is the outer transaction; deeper values
// are savepoints.
type fakeTx struct {
	log    *txLog
	depth  int
	closed bool
}

func newFakeTx() *fakeTx {
	return &fakeTx{log: &txLog{}}
}

func (t *fakeTx) Begin(_ context.Context) (pgx.Tx, error) {
	if t.log.beginErr != nil {
		return nil, t.log.beginErr
	}
	t.log.add("savepoint")
	return &fakeTx{log: t.log, depth: t.depth + 1}, nil
}

func (t *fakeTx) Commit(_ context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	if t.depth > 0 {
		if t.log.spCommitErr != nil {
			return t.log.spCommitErr
		}
		t.log.add("release")
		return nil
	}
	if t.log.commitErr != nil {
		return t.log.commitErr
	}
	t.log.add("commit")
	return nil
}

func (t *fakeTx) Rollback(_ context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	if t.depth > 0 {
		if t.log.spRollbackErr != nil {
			return t.log.spRollbackErr
		}
		t.log.add("rollback_savepoint")
		return nil
	}
	t.log.add("rollback")
	return nil
}

func (t *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	if t.log.execErr != nil {
		if err := t.log.execErr(sql); err != nil {
			t.log.add("exec_failed")
			return pgconn.CommandTag{}, err
		}
	}
	t.log.add("exec:" + firstWord(sql))
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (t *fakeTx) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return newRecordMockRows(), nil
}

func (t *fakeTx) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	t.log.add("query_row")
	n := t.log.countResult
	return &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*int) = n
		return nil
	}}
}

func (t *fakeTx) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}

func (t *fakeTx) SendBatch(_ context.Context, _ *pgx.Batch) pgx.BatchResults { return nil }
func (t *fakeTx) LargeObjects() pgx.LargeObjects                             { return pgx.LargeObjects{} }
func (t *fakeTx) Conn() *pgx.Conn                                            { return nil }

func (t *fakeTx) Prepare(_ context.Context, _, _ string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not implemented")
}

func firstWord(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// fakePool hands out fake transactions.
type fakePool struct {
	tx    *fakeTx
	err   error
	calls int
}

func (p *fakePool) Begin(_ context.Context) (pgx.Tx, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.tx, nil
}
