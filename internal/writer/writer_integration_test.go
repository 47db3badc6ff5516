//go:build integration

package writer_test

import (
	"context"
	"testing"
	"time"

	"onboard-backend/internal/config"
	"onboard-backend/internal/schema"
	"onboard-backend/internal/store"
	"onboard-backend/internal/token"
	"onboard-backend/internal/writer"
)

func testStore(t *testing.T) (*store.Store, *schema.Registry) {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{
		Host:     "localhost",
		Port:     5433,
		User:     "onboard",
		Password: "onboard",
		Name:     "onboard",
		PoolSize: 2,
	})
	if err != nil {
		t.Fatalf("connect to test db: %v", err)
	}
	reg := schema.NewRegistry()
	if err := s.Bootstrap(ctx, reg, "test-salt"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return s, reg
}

func TestInsert_StampsMetadataAndReturnsID(t *testing.T) {
	s, reg := testStore(t)
	defer s.Close()
	ctx := context.Background()

	w := writer.New(s)
	tok := token.Payload{UserID: 7, CountryID: 1}
	banks := reg.Get("banks")

	record := map[string]any{
		"name":       "Access Bank",
		"code":       "ACC-" + time.Now().Format("150405.000"),
		"bogusField": "x",
	}
	id, err := w.Insert(ctx, banks, record, tok)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a generated id")
	}
	if record["id"] != id {
		t.Fatalf("record not mutated with id: %v", record["id"])
	}

	row, err := store.QueryRow(ctx, s.Pool,
		"SELECT name, countryid, createdby, updatedby, createdate, updatedate, status FROM banks WHERE id = $1", id)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if row["createdby"] != int64(7) || row["countryid"] != int64(1) {
		t.Fatalf("metadata not stamped: %v", row)
	}
	if row["createdate"] == nil || row["updatedate"] == nil {
		t.Fatalf("timestamps not stamped: %v", row)
	}
	if row["status"] != nil {
		t.Fatalf("unsupplied column should be NULL, got %v", row["status"])
	}
}

func TestUpdate_PatchesOnlySuppliedFields(t *testing.T) {
	s, reg := testStore(t)
	defer s.Close()
	ctx := context.Background()

	w := writer.New(s)
	tok := token.Payload{UserID: 7, CountryID: 1}
	banks := reg.Get("banks")

	record := map[string]any{
		"name": "Zenith Bank",
		"code": "ZEN-" + time.Now().Format("150405.000"),
	}
	id, err := w.Insert(ctx, banks, record, tok)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	affected, err := w.Update(ctx, banks,
		map[string]any{"id": id, "status": "active"}, token.Payload{UserID: 9, CountryID: 1})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 row affected, got %d", affected)
	}

	row, err := store.QueryRow(ctx, s.Pool,
		"SELECT name, status, createdby, updatedby FROM banks WHERE id = $1", id)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if row["name"] != "Zenith Bank" {
		t.Fatalf("untouched column changed: %v", row)
	}
	if row["status"] != "active" || row["updatedby"] != int64(9) || row["createdby"] != int64(7) {
		t.Fatalf("patch not applied as expected: %v", row)
	}
}

func TestUpdate_MissingRowReturnsZero(t *testing.T) {
	s, reg := testStore(t)
	defer s.Close()

	w := writer.New(s)
	affected, err := w.Update(context.Background(), reg.Get("banks"),
		map[string]any{"id": int64(999999999), "status": "active"}, token.Payload{UserID: 7})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if affected != 0 {
		t.Fatalf("expected 0 rows affected, got %d", affected)
	}
}
