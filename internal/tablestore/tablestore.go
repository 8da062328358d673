package tablestore

import (
	"context"
	"errors"
)

// Row is one denormalized table row, a flexible mapping from column name to
// string value. Missing columns read as the empty string.
type Row map[string]string

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Store is the boundary to the remote tabular record store. Implementations
// must not be assumed read-after-write consistent: a row just appended or
// updated may be missing from an immediately following Rows call.
type Store interface {
	// EnsureTable creates the table with the given header if it does not
	// exist. Idempotent and safe to race: "already exists" is success.
	EnsureTable(ctx context.Context, table string, header []string) error

	// Rows returns every row of the table in stable store order.
	Rows(ctx context.Context, table string) ([]Row, error)

	// AppendRow adds a row at the end of the table.
	AppendRow(ctx context.Context, table string, row Row) error

	// UpdateRow locates the first row whose keyColumn equals key and
	// overwrites only the named fields, leaving the rest untouched.
	UpdateRow(ctx context.Context, table, keyColumn, key string, fields Row) error
}

var (
	// ErrRateLimited signals the remote quota was exceeded; callers may
	// retry once after a short pause, never indefinitely.
	ErrRateLimited = errors.New("tablestore: rate limited")

	// ErrTableNotFound signals the named table does not exist.
	ErrTableNotFound = errors.New("tablestore: table not found")

	// ErrRowNotFound signals no row matched the update key.
	ErrRowNotFound = errors.New("tablestore: row not found")

	// ErrUnavailable is an opaque transient failure of the remote store.
	ErrUnavailable = errors.New("tablestore: unavailable")
)
