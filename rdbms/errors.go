package rdbms

import "fmt"

// ConnectionError means a connection could not be obtained at all. It is fatal
// for the table cycle that needed it; statement retries never apply to it.
type ConnectionError struct {
	Name string // logical connection name
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot obtain connection %q: %v", e.Name, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TransientQueryError means a statement failed after exhausting the retry
// budget. Fatal for the table cycle that issued it only.
type TransientQueryError struct {
	Sql      string
	Attempts int
	Err      error
}

func (e *TransientQueryError) Error() string {
	return fmt.Sprintf("statement failed after %v attempts: %v; sql: %v", e.Attempts, e.Err, e.Sql)
}

func (e *TransientQueryError) Unwrap() error {
	return e.Err
}
