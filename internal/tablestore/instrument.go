package tablestore

import (
	"context"
	"errors"

	"github.com/johnjsyoo/sheet-snitch-bot/internal/obs"
)

// Instrumented counts every store call in Prometheus, labelled by operation
// and outcome.
type Instrumented struct {
	inner Store
}

// WithMetrics wraps store with per-call metrics.
func WithMetrics(store Store) *Instrumented {
	return &Instrumented{inner: store}
}

func observe(op string, err error) {
	switch {
	case err == nil:
		obs.ObserveStoreCall(op, "ok")
	case errors.Is(err, ErrRateLimited):
		obs.ObserveStoreCall(op, "rate_limited")
	case errors.Is(err, ErrTableNotFound), errors.Is(err, ErrRowNotFound):
		obs.ObserveStoreCall(op, "not_found")
	default:
		obs.ObserveStoreCall(op, "error")
	}
}

func (i *Instrumented) EnsureTable(ctx context.Context, table string, header []string) error {
	err := i.inner.EnsureTable(ctx, table, header)
	observe("ensure_table", err)
	return err
}

func (i *Instrumented) Rows(ctx context.Context, table string) ([]Row, error) {
	rows, err := i.inner.Rows(ctx, table)
	observe("rows", err)
	return rows, err
}

func (i *Instrumented) AppendRow(ctx context.Context, table string, row Row) error {
	err := i.inner.AppendRow(ctx, table, row)
	observe("append_row", err)
	return err
}

func (i *Instrumented) UpdateRow(ctx context.Context, table, keyColumn, key string, fields Row) error {
	err := i.inner.UpdateRow(ctx, table, keyColumn, key, fields)
	observe("update_row", err)
	return err
}
