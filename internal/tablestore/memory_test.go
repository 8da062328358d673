package tablestore

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestEnsureTableIdempotent(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if err := s.EnsureTable(ctx, "auth_log", []string{"user_id", "role", "last_login"}); err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureTable(ctx, "auth_log", []string{"user_id", "role", "last_login"}); err != nil {
		t.Fatalf("second ensure must succeed, got %v", err)
	}

	header, ok := s.Header("auth_log")
	if !ok || len(header) != 3 || header[0] != "user_id" {
		t.Fatalf("unexpected header: %v", header)
	}
}

func TestEnsureTableConcurrentCreators(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.EnsureTable(ctx, "auth_log", []string{"user_id", "role", "last_login"})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("racing creator must treat existing table as success: %v", err)
		}
	}
}

func TestRowsMissingTable(t *testing.T) {
	s := NewMemory()
	if _, err := s.Rows(context.Background(), "nope"); !errors.Is(err, ErrTableNotFound) {
		t.Fatalf("expected ErrTableNotFound, got %v", err)
	}
}

func TestAppendAndRowOrder(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	if err := s.EnsureTable(ctx, "records", []string{"name", "customer_id", "secret"}); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"alice", "bob", "carol"} {
		if err := s.AppendRow(ctx, "records", Row{"name": name}); err != nil {
			t.Fatal(err)
		}
	}
	rows, err := s.Rows(ctx, "records")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i, name := range []string{"alice", "bob", "carol"} {
		if rows[i]["name"] != name {
			t.Fatalf("row order broken at %d: %v", i, rows[i])
		}
	}
}

func TestUpdateRowTouchesOnlyNamedFields(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	if err := s.EnsureTable(ctx, "auth_log", []string{"user_id", "role", "last_login"}); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendRow(ctx, "auth_log", Row{"user_id": "42", "role": "user", "last_login": "2026-01-01 00:00:00"}); err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateRow(ctx, "auth_log", "user_id", "42", Row{"last_login": "2026-02-02 00:00:00"}); err != nil {
		t.Fatal(err)
	}

	rows, _ := s.Rows(ctx, "auth_log")
	if len(rows) != 1 {
		t.Fatalf("update must not append, got %d rows", len(rows))
	}
	if rows[0]["role"] != "user" {
		t.Fatalf("unnamed field was touched: %v", rows[0])
	}
	if rows[0]["last_login"] != "2026-02-02 00:00:00" {
		t.Fatalf("named field not updated: %v", rows[0])
	}
}

func TestUpdateRowMissingKey(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	if err := s.EnsureTable(ctx, "auth_log", []string{"user_id", "role", "last_login"}); err != nil {
		t.Fatal(err)
	}
	err := s.UpdateRow(ctx, "auth_log", "user_id", "404", Row{"role": "admin"})
	if !errors.Is(err, ErrRowNotFound) {
		t.Fatalf("expected ErrRowNotFound, got %v", err)
	}
}

func TestRowsReturnsCopies(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	_ = s.EnsureTable(ctx, "records", []string{"name"})
	_ = s.AppendRow(ctx, "records", Row{"name": "alice"})

	rows, _ := s.Rows(ctx, "records")
	rows[0]["name"] = "mallory"

	again, _ := s.Rows(ctx, "records")
	if again[0]["name"] != "alice" {
		t.Fatalf("caller mutation leaked into store: %v", again[0])
	}
}

func TestLimitedFailsFast(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	_ = s.EnsureTable(ctx, "records", []string{"name"})

	limited := WithLimit(s, 1, 1)
	if _, err := limited.Rows(ctx, "records"); err != nil {
		t.Fatalf("first call should pass: %v", err)
	}
	if _, err := limited.Rows(ctx, "records"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}
