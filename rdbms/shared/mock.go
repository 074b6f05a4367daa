package shared

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/BenjaminRains/etlpipe/logger"
)

const mockSqlChanSize = 1000

// MockConnection implements Connector for tests. Executed SQL is recorded and
// also published on a channel so tests can assert on the statements issued.
// Result sets for Query calls are served from a FIFO queue populated by
// QueueResultSet, and failures can be injected by SQL substring.
type MockConnection struct {
	log     logger.Logger
	dbType  string
	mu      sync.Mutex
	sqlChan chan string
	execLog []string
	argsLog [][]interface{}
	results []*mockResultSet
	failOn  map[string]*mockFailure
	closed  bool
}

type mockFailure struct {
	err   error
	allow int // matching statements to let succeed before failing.
}

type mockResultSet struct {
	cols []string
	rows [][]interface{}
}

// NewMockConnectionWithMockTx returns a mock Connector plus the channel on
// which all executed SQL text is published.
func NewMockConnectionWithMockTx(log logger.Logger, dbType string) (*MockConnection, chan string) {
	m := &MockConnection{
		log:     log,
		dbType:  dbType,
		sqlChan: make(chan string, mockSqlChanSize),
		failOn:  make(map[string]*mockFailure),
	}
	return m, m.sqlChan
}

// QueueResultSet appends a result set served to the next unmatched Query call.
func (m *MockConnection) QueueResultSet(cols []string, rows [][]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, &mockResultSet{cols: cols, rows: rows})
}

// FailOnSqlContaining makes any Exec or Query whose text contains substr
// return err.
func (m *MockConnection) FailOnSqlContaining(substr string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[substr] = &mockFailure{err: err}
}

// FailOnSqlContainingAfterN is FailOnSqlContaining but lets the first n
// matching statements succeed before failing, e.g. to fail a later chunk.
func (m *MockConnection) FailOnSqlContainingAfterN(substr string, n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[substr] = &mockFailure{err: err, allow: n}
}

// ExecLog returns a copy of all SQL text seen by Exec and Query.
func (m *MockConnection) ExecLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.execLog))
	copy(out, m.execLog)
	return out
}

// ArgsLog returns the bind args for each entry in ExecLog.
func (m *MockConnection) ArgsLog() [][]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]interface{}, len(m.argsLog))
	copy(out, m.argsLog)
	return out
}

// IsClosed reports whether Close has been called since the last open.
func (m *MockConnection) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockConnection) record(query string, args []interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = false // any use of the mock counts as a fresh connection.
	m.execLog = append(m.execLog, query)
	m.argsLog = append(m.argsLog, args)
	select {
	case m.sqlChan <- query:
	default: // don't block tests that ignore the channel.
	}
	for substr, f := range m.failOn {
		if strings.Contains(query, substr) {
			if f.allow > 0 {
				f.allow--
				continue
			}
			return f.err
		}
	}
	return nil
}

func (m *MockConnection) Begin() (Transacter, error) {
	return &mockTx{conn: m}, nil
}

func (m *MockConnection) Exec(query string, args ...interface{}) (Result, error) {
	return m.ExecContext(context.Background(), query, args...)
}

func (m *MockConnection) ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error) {
	if err := m.record(query, args); err != nil {
		return nil, err
	}
	return mockResult{}, nil
}

func (m *MockConnection) Query(query string, args ...interface{}) (Rows, error) {
	return m.QueryContext(context.Background(), query, args...)
}

func (m *MockConnection) QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	if err := m.record(query, args); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.results) == 0 { // if no result set was queued...
		return &mockRows{}, nil // an empty result set.
	}
	rs := m.results[0]
	m.results = m.results[1:]
	return &mockRows{cols: rs.cols, rows: rs.rows}, nil
}

func (m *MockConnection) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *MockConnection) GetDmlGenerator() DmlGenerator {
	return &DmlGeneratorTxtBatch{}
}

func (m *MockConnection) GetType() string {
	return m.dbType
}

type mockTx struct {
	conn *MockConnection
}

func (t *mockTx) Exec(query string, args ...interface{}) (Result, error) {
	return t.conn.Exec(query, args...)
}

func (t *mockTx) ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error) {
	return t.conn.ExecContext(ctx, query, args...)
}

func (t *mockTx) Commit() error   { return nil }
func (t *mockTx) Rollback() error { return nil }

type mockResult struct{}

func (mockResult) LastInsertId() (int64, error) { return 0, nil }
func (mockResult) RowsAffected() (int64, error) { return 0, nil }

type mockRows struct {
	cols []string
	rows [][]interface{}
	idx  int
}

func (r *mockRows) Close() error { return nil }

func (r *mockRows) Columns() ([]string, error) {
	return r.cols, nil
}

func (r *mockRows) Err() error { return nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...interface{}) error {
	row := r.rows[r.idx-1]
	if len(dest) != len(row) {
		return errors.Errorf("mock scan: %v dest args for %v columns", len(dest), len(row))
	}
	for i, src := range row {
		if err := assignMockValue(dest[i], src); err != nil {
			return err
		}
	}
	return nil
}

// assignMockValue supports the scan destinations used across this module.
func assignMockValue(dest interface{}, src interface{}) error {
	switch d := dest.(type) {
	case *interface{}:
		*d = src
	case *string:
		s, ok := src.(string)
		if !ok {
			return errors.Errorf("mock scan: cannot assign %T to *string", src)
		}
		*d = s
	case *int64:
		switch v := src.(type) {
		case int64:
			*d = v
		case int:
			*d = int64(v)
		default:
			return errors.Errorf("mock scan: cannot assign %T to *int64", src)
		}
	case *float64:
		switch v := src.(type) {
		case float64:
			*d = v
		case int64:
			*d = float64(v)
		case int:
			*d = float64(v)
		default:
			return errors.Errorf("mock scan: cannot assign %T to *float64", src)
		}
	case *time.Time:
		t, ok := src.(time.Time)
		if !ok {
			return errors.Errorf("mock scan: cannot assign %T to *time.Time", src)
		}
		*d = t
	case *sql.NullString:
		switch v := src.(type) {
		case nil:
			*d = sql.NullString{}
		case string:
			*d = sql.NullString{String: v, Valid: true}
		default:
			return errors.Errorf("mock scan: cannot assign %T to *sql.NullString", src)
		}
	case *sql.NullInt64:
		switch v := src.(type) {
		case nil:
			*d = sql.NullInt64{}
		case int64:
			*d = sql.NullInt64{Int64: v, Valid: true}
		case int:
			*d = sql.NullInt64{Int64: int64(v), Valid: true}
		default:
			return errors.Errorf("mock scan: cannot assign %T to *sql.NullInt64", src)
		}
	default:
		return errors.Errorf("mock scan: unsupported destination type %T", dest)
	}
	return nil
}
