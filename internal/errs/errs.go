// Package errs defines the reconciliation pipeline's error kinds (spec §7).
// Worker goroutines never propagate panics to their supervisor; they return
// one of these wrapped in the usual fmt.Errorf("%w", ...) chain, and the
// Reconciler marks the table failed on any error it receives.
package errs

import "fmt"

// ConfigError is a missing mandatory option or unknown dialect. Fatal:
// surfaced before any worker starts.
type ConfigError struct {
	Option string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Option, e.Reason)
}

// ConnectError is any connection failure to repo/source/target. Fatal to
// the table being reconciled; the process continues with the next table.
type ConnectError struct {
	Target string // "repo", "source" or "target"
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect error (%s): %v", e.Target, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// NewConnectError wraps err as a ConnectError for the named target.
func NewConnectError(target string, err error) *ConnectError {
	return &ConnectError{Target: target, Err: err}
}

// ExtractError is a SQL failure during a shard's read. Fails the shard and
// the table; no findings are written for that table.
type ExtractError struct {
	Side  string
	Shard int
	Err   error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract error (%s shard %d): %v", e.Side, e.Shard, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// NewExtractError wraps err as an ExtractError for the named side/shard.
func NewExtractError(side string, shard int, err error) *ExtractError {
	return &ExtractError{Side: side, Shard: shard, Err: err}
}

// LoadError is a SQL failure on a staging insert batch. Non-fatal: the
// batch is rolled back and logged, loading continues.
type LoadError struct {
	Side string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load error (%s): %v", e.Side, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// NewLoadError wraps err as a LoadError for the named side/table.
func NewLoadError(side string, err error) *LoadError {
	return &LoadError{Side: side, Err: err}
}

// UnsupportedColumnError marks a column excluded from hashing because its
// declared type falls in the UNSUPPORTED classification set.
type UnsupportedColumnError struct {
	Alias    string
	DataType string
}

func (e *UnsupportedColumnError) Error() string {
	return fmt.Sprintf("unsupported column %q (type %q) excluded from hash", e.Alias, e.DataType)
}

// MapError is raised when the column-map compiler cannot align required
// primary keys across sides. Fails the table.
type MapError struct {
	TID    int64
	Reason string
}

func (e *MapError) Error() string {
	return fmt.Sprintf("column map error (tid=%d): %s", e.TID, e.Reason)
}

// CancelError signals a shutdown was requested mid-run. Workers drain and
// exit cleanly; no findings are written, staging rows remain for inspection.
type CancelError struct{}

func (e *CancelError) Error() string { return "reconciliation cancelled" }
