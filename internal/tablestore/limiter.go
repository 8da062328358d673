package tablestore

import (
	"context"

	"golang.org/x/time/rate"
)

// Limited enforces a client-side quota in front of the remote store so the
// service fails fast with ErrRateLimited instead of tripping the remote's
// own limits. Token bucket per store handle, shared by all tables.
type Limited struct {
	inner Store
	lim   *rate.Limiter
}

// WithLimit wraps store with a token-bucket quota of perSecond calls and
// the given burst.
func WithLimit(store Store, perSecond float64, burst int) *Limited {
	return &Limited{inner: store, lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *Limited) allow() error {
	if !l.lim.Allow() {
		return ErrRateLimited
	}
	return nil
}

func (l *Limited) EnsureTable(ctx context.Context, table string, header []string) error {
	if err := l.allow(); err != nil {
		return err
	}
	return l.inner.EnsureTable(ctx, table, header)
}

func (l *Limited) Rows(ctx context.Context, table string) ([]Row, error) {
	if err := l.allow(); err != nil {
		return nil, err
	}
	return l.inner.Rows(ctx, table)
}

func (l *Limited) AppendRow(ctx context.Context, table string, row Row) error {
	if err := l.allow(); err != nil {
		return err
	}
	return l.inner.AppendRow(ctx, table, row)
}

func (l *Limited) UpdateRow(ctx context.Context, table, keyColumn, key string, fields Row) error {
	if err := l.allow(); err != nil {
		return err
	}
	return l.inner.UpdateRow(ctx, table, keyColumn, key, fields)
}
