package pg

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/johnjsyoo/sheet-snitch-bot/internal/tablestore"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func TestEnsureTableInsertsOnce(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("insert into sheet_tables").
		WithArgs("auth_log", []byte(`["user_id","role","last_login"]`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.EnsureTable(context.Background(), "auth_log", []string{"user_id", "role", "last_login"})
	if err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRowsMissingTable(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("select 1 from sheet_tables").
		WithArgs("auth_log").
		WillReturnRows(sqlmock.NewRows([]string{"one"}))

	_, err := s.Rows(context.Background(), "auth_log")
	if !errors.Is(err, tablestore.ErrTableNotFound) {
		t.Fatalf("expected ErrTableNotFound, got %v", err)
	}
}

func TestRowsPreservesOrder(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("select 1 from sheet_tables").
		WithArgs("records").
		WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	mock.ExpectQuery("select fields from sheet_rows").
		WithArgs("records").
		WillReturnRows(sqlmock.NewRows([]string{"fields"}).
			AddRow([]byte(`{"name":"alice","secret":"hunter2"}`)).
			AddRow([]byte(`{"name":"bob","secret":"s3cr3t"}`)))

	rows, err := s.Rows(context.Background(), "records")
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 2 || rows[0]["name"] != "alice" || rows[1]["name"] != "bob" {
		t.Fatalf("unexpected rows: %v", rows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppendRow(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("insert into sheet_rows").
		WithArgs("auth_log", []byte(`{"last_login":"2026-08-23 10:00:00","role":"user","user_id":"42"}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.AppendRow(context.Background(), "auth_log", tablestore.Row{
		"user_id":    "42",
		"role":       "user",
		"last_login": "2026-08-23 10:00:00",
	})
	if err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateRowHit(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("update sheet_rows set fields").
		WithArgs("auth_log", "user_id", "42", []byte(`{"last_login":"2026-08-23 11:00:00","role":"admin"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpdateRow(context.Background(), "auth_log", "user_id", "42", tablestore.Row{
		"role":       "admin",
		"last_login": "2026-08-23 11:00:00",
	})
	if err != nil {
		t.Fatalf("UpdateRow: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateRowMissDistinguishesTableAndRow(t *testing.T) {
	s, mock := newMockStore(t)

	// Table exists but no row matched.
	mock.ExpectExec("update sheet_rows set fields").
		WithArgs("auth_log", "user_id", "404", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select 1 from sheet_tables").
		WithArgs("auth_log").
		WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))

	err := s.UpdateRow(context.Background(), "auth_log", "user_id", "404", tablestore.Row{"role": "user"})
	if !errors.Is(err, tablestore.ErrRowNotFound) {
		t.Fatalf("expected ErrRowNotFound, got %v", err)
	}

	// Table itself is gone.
	mock.ExpectExec("update sheet_rows set fields").
		WithArgs("nope", "user_id", "42", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select 1 from sheet_tables").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"one"}))

	err = s.UpdateRow(context.Background(), "nope", "user_id", "42", tablestore.Row{"role": "user"})
	if !errors.Is(err, tablestore.ErrTableNotFound) {
		t.Fatalf("expected ErrTableNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
