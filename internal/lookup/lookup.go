package lookup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/johnjsyoo/sheet-snitch-bot/internal/authcache"
	"github.com/johnjsyoo/sheet-snitch-bot/internal/tablestore"
)

// MaskToken replaces a redacted secret. Fixed length so it leaks nothing
// about the real value.
const MaskToken = "••••••••"

var (
	// ErrEmptyQuery means there was nothing to search for.
	ErrEmptyQuery = errors.New("lookup: empty query")

	// ErrStoreRateLimited means the record table read was throttled even
	// after the bounded retry.
	ErrStoreRateLimited = errors.New("lookup: store rate limited")

	// ErrStoreUnavailable is any other transient store failure.
	ErrStoreUnavailable = errors.New("lookup: store unavailable")
)

// Columns names the three candidate fields a query is matched against.
type Columns struct {
	Name   string
	Key    string
	Secret string
}

// DefaultColumns matches the record sheet layout.
var DefaultColumns = Columns{Name: "name", Key: "customer_id", Secret: "secret"}

// Match is one redacted record. Fields carries every column verbatim except
// the secret, which is masked unless the caller was entitled to it;
// SecretRevealed reports which happened.
type Match struct {
	Fields         tablestore.Row
	SecretRevealed bool
}

const defaultRetryDelay = 500 * time.Millisecond

// Engine scans the denormalized record table and returns role-scoped,
// redacted matches. Records are read-only from its perspective.
type Engine struct {
	store      tablestore.Store
	table      string
	cols       Columns
	retryDelay time.Duration
}

// Option configures Engine behavior.
type Option func(*Engine)

// WithColumns overrides the candidate column names.
func WithColumns(cols Columns) Option {
	return func(e *Engine) {
		if cols.Name != "" {
			e.cols.Name = cols.Name
		}
		if cols.Key != "" {
			e.cols.Key = cols.Key
		}
		if cols.Secret != "" {
			e.cols.Secret = cols.Secret
		}
	}
}

// WithRetryDelay overrides the pause before the single rate-limit retry.
func WithRetryDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.retryDelay = d
		}
	}
}

// NewEngine constructs the engine around a store handle and the record
// table name.
func NewEngine(store tablestore.Store, table string, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("lookup: store is required")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, errors.New("lookup: table name is required")
	}
	e := &Engine{
		store:      store,
		table:      table,
		cols:       DefaultColumns,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search matches the query, case-insensitively and by exact equality, against
// the name, key and secret fields of every record. Matches come back in
// store row order. The secret is revealed only to a privileged role or to a
// searcher who supplied the secret itself; zero matches is a valid empty
// result, not an error.
func (e *Engine) Search(ctx context.Context, role authcache.Role, query string) ([]Match, error) {
	needle := normalize(query)
	if needle == "" {
		return nil, ErrEmptyQuery
	}

	rows, err := e.fetchRows(ctx)
	if errors.Is(err, tablestore.ErrTableNotFound) {
		// No record table yet reads as zero rows.
		return nil, nil
	}
	if err != nil {
		return nil, convertStoreErr(err)
	}

	var matches []Match
	for _, row := range rows {
		secret := row[e.cols.Secret]
		if normalize(row[e.cols.Name]) != needle &&
			normalize(row[e.cols.Key]) != needle &&
			normalize(secret) != needle {
			continue
		}

		reveal := role.Privileged() || normalize(secret) == needle
		fields := row.Clone()
		if !reveal && e.cols.Secret != "" {
			if _, ok := fields[e.cols.Secret]; ok {
				fields[e.cols.Secret] = MaskToken
			}
		}
		matches = append(matches, Match{Fields: fields, SecretRevealed: reveal})
	}
	return matches, nil
}

func (e *Engine) fetchRows(ctx context.Context) ([]tablestore.Row, error) {
	rows, err := e.store.Rows(ctx, e.table)
	if !errors.Is(err, tablestore.ErrRateLimited) {
		return rows, err
	}
	// One bounded retry after a short pause; never loop.
	select {
	case <-ctx.Done():
		return nil, err
	case <-time.After(e.retryDelay):
	}
	return e.store.Rows(ctx, e.table)
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func convertStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, tablestore.ErrRateLimited):
		return ErrStoreRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
