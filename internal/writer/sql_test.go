package writer

import (
	"strings"
	"testing"
	"time"

	"onboard-backend/internal/schema"
	"onboard-backend/internal/token"
)

func banksTable() *schema.Table {
	return &schema.Table{
		Name: "banks",
		Columns: []schema.Column{
			{Name: "id", Type: schema.Int8},
			{Name: "countryid", Type: schema.Int8},
			{Name: "createdby", Type: schema.Int8},
			{Name: "updatedby", Type: schema.Int8},
			{Name: "createdate", Type: schema.Timestamp},
			{Name: "updatedate", Type: schema.Timestamp},
			{Name: "name", Type: schema.Text},
			{Name: "code", Type: schema.Text},
			{Name: "status", Type: schema.Text},
		},
		UniqueSets: [][]string{{"code", "countryid"}},
	}
}

// paramFor returns the parameter bound to a column in an INSERT statement.
func paramFor(t *testing.T, stmt statement, col string) any {
	t.Helper()
	start := strings.Index(stmt.SQL, "(")
	end := strings.Index(stmt.SQL, ")")
	if start < 0 || end < 0 {
		t.Fatalf("unexpected SQL shape: %s", stmt.SQL)
	}
	cols := strings.Split(stmt.SQL[start+1:end], ", ")
	for i, c := range cols {
		if c == col {
			return stmt.Params[i]
		}
	}
	t.Fatalf("column %s not in statement: %s", col, stmt.SQL)
	return nil
}

func TestBuildInsert_StampsMetadata(t *testing.T) {
	tok := token.Payload{UserID: 7, CountryID: 1}
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	record := map[string]any{"name": "Access Bank", "code": "ACC", "countryId": float64(1), "bogusField": "x"}
	stmt, err := buildInsert(banksTable(), record, tok, now, IgnoreUnknown)
	if err != nil {
		t.Fatalf("buildInsert: %v", err)
	}

	if got := paramFor(t, stmt, "createdby"); got != int64(7) {
		t.Fatalf("createdby = %v, want 7", got)
	}
	if got := paramFor(t, stmt, "updatedby"); got != int64(7) {
		t.Fatalf("updatedby = %v, want 7", got)
	}
	if got := paramFor(t, stmt, "countryid"); got != int64(1) {
		t.Fatalf("countryid = %v, want 1", got)
	}
	if got := paramFor(t, stmt, "createdate"); got != now {
		t.Fatalf("createdate = %v, want %v", got, now)
	}
	if got := paramFor(t, stmt, "updatedate"); got != now {
		t.Fatalf("updatedate = %v, want %v", got, now)
	}
	if !strings.HasSuffix(stmt.SQL, "RETURNING id") {
		t.Fatalf("expected RETURNING id, got: %s", stmt.SQL)
	}
}

func TestBuildInsert_DropsUnknownFields(t *testing.T) {
	record := map[string]any{"name": "Access Bank", "bogusField": "x", "another_stray": 1}
	stmt, err := buildInsert(banksTable(), record, token.Payload{UserID: 7, CountryID: 1}, time.Now(), IgnoreUnknown)
	if err != nil {
		t.Fatalf("buildInsert: %v", err)
	}
	if strings.Contains(stmt.SQL, "bogus") || strings.Contains(stmt.SQL, "stray") {
		t.Fatalf("unknown fields leaked into SQL: %s", stmt.SQL)
	}
}

func TestBuildInsert_CaseInsensitiveColumns(t *testing.T) {
	record := map[string]any{"Name": "GTBank", "CODE": "GTB"}
	stmt, err := buildInsert(banksTable(), record, token.Payload{UserID: 1, CountryID: 2}, time.Now(), IgnoreUnknown)
	if err != nil {
		t.Fatalf("buildInsert: %v", err)
	}
	if got := paramFor(t, stmt, "name"); got != "GTBank" {
		t.Fatalf("name = %v, want GTBank", got)
	}
	if got := paramFor(t, stmt, "code"); got != "GTB" {
		t.Fatalf("code = %v, want GTB", got)
	}
}

func TestBuildInsert_OmitsUnsuppliedColumns(t *testing.T) {
	record := map[string]any{"name": "Access Bank"}
	stmt, err := buildInsert(banksTable(), record, token.Payload{UserID: 1, CountryID: 1}, time.Now(), IgnoreUnknown)
	if err != nil {
		t.Fatalf("buildInsert: %v", err)
	}
	// status not supplied: left to storage default/NULL
	if strings.Contains(stmt.SQL, "status") {
		t.Fatalf("unsupplied column included: %s", stmt.SQL)
	}
}

func TestBuildUpdate_Partiality(t *testing.T) {
	tok := token.Payload{UserID: 9, CountryID: 1}
	now := time.Now()

	stmt, err := buildUpdate(banksTable(), map[string]any{"id": float64(5), "status": "active"}, tok, now, IgnoreUnknown)
	if err != nil {
		t.Fatalf("buildUpdate: %v", err)
	}

	if strings.Contains(stmt.SQL, "name") || strings.Contains(stmt.SQL, "code =") {
		t.Fatalf("update touched unsupplied columns: %s", stmt.SQL)
	}
	for _, want := range []string{"status = $1", "updatedby = $2", "updatedate = $3", "WHERE id = $4"} {
		if !strings.Contains(stmt.SQL, want) {
			t.Fatalf("missing %q in: %s", want, stmt.SQL)
		}
	}
	if stmt.Params[0] != "active" || stmt.Params[1] != int64(9) || stmt.Params[3] != int64(5) {
		t.Fatalf("unexpected params: %v", stmt.Params)
	}
}

func TestBuildUpdate_IDOnlyTouchesTimestamps(t *testing.T) {
	stmt, err := buildUpdate(banksTable(), map[string]any{"id": 5}, token.Payload{UserID: 9}, time.Now(), IgnoreUnknown)
	if err != nil {
		t.Fatalf("expected no error for id-only patch, got %v", err)
	}
	if !strings.HasPrefix(stmt.SQL, "UPDATE banks SET updatedby = $1, updatedate = $2 WHERE id = $3") {
		t.Fatalf("unexpected SQL: %s", stmt.SQL)
	}
}

func TestBuildUpdate_MissingID(t *testing.T) {
	_, err := buildUpdate(banksTable(), map[string]any{"status": "active"}, token.Payload{UserID: 9}, time.Now(), IgnoreUnknown)
	if err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestBuildUpdate_DropsServerManagedAndUnknown(t *testing.T) {
	stmt, err := buildUpdate(banksTable(), map[string]any{
		"id":         5,
		"createdby":  99, // server managed, never patched
		"createdate": "2020-01-01",
		"bogus":      "x",
		"status":     "inactive",
	}, token.Payload{UserID: 9}, time.Now(), IgnoreUnknown)
	if err != nil {
		t.Fatalf("buildUpdate: %v", err)
	}
	if strings.Contains(stmt.SQL, "createdby") || strings.Contains(stmt.SQL, "createdate") || strings.Contains(stmt.SQL, "bogus") {
		t.Fatalf("protected or unknown column leaked: %s", stmt.SQL)
	}
}

func TestRejectUnknownPolicy(t *testing.T) {
	record := map[string]any{"name": "Access Bank", "bogusField": "x"}
	_, err := buildInsert(banksTable(), record, token.Payload{UserID: 7, CountryID: 1}, time.Now(), RejectUnknown)
	if err == nil {
		t.Fatal("expected error for unknown field under RejectUnknown")
	}
	if !strings.Contains(err.Error(), "bogusfield") {
		t.Fatalf("error should name the field: %v", err)
	}

	_, err = buildUpdate(banksTable(), map[string]any{"id": 1, "stray": true}, token.Payload{UserID: 7}, time.Now(), RejectUnknown)
	if err == nil {
		t.Fatal("expected error for unknown field in update")
	}
}

func TestResolveTenant(t *testing.T) {
	cases := []struct {
		tokenTenant, candidate, want int64
	}{
		{1, 0, 1},
		{1, 2, 1}, // bound caller cannot override
		{0, 2, 2}, // unbound caller may stamp explicitly
		{0, 0, 0},
	}
	for _, tc := range cases {
		if got := ResolveTenant(tc.tokenTenant, tc.candidate); got != tc.want {
			t.Fatalf("ResolveTenant(%d, %d) = %d, want %d", tc.tokenTenant, tc.candidate, got, tc.want)
		}
	}
}

func TestCoerceValue(t *testing.T) {
	intCol := schema.Column{Name: "capacity", Type: schema.Int}
	if v, err := CoerceValue(intCol, float64(30)); err != nil || v != int64(30) {
		t.Fatalf("float64 -> int64: %v, %v", v, err)
	}
	if v, err := CoerceValue(intCol, "42"); err != nil || v != int64(42) {
		t.Fatalf("string -> int64: %v, %v", v, err)
	}
	if _, err := CoerceValue(intCol, "abc"); err == nil {
		t.Fatal("expected error for non-numeric string")
	}

	boolCol := schema.Column{Name: "active", Type: schema.Bool}
	if v, err := CoerceValue(boolCol, "true"); err != nil || v != true {
		t.Fatalf("string -> bool: %v, %v", v, err)
	}
	if v, err := CoerceValue(boolCol, float64(1)); err != nil || v != true {
		t.Fatalf("number -> bool: %v, %v", v, err)
	}

	tsCol := schema.Column{Name: "sessiondate", Type: schema.Date}
	if v, err := CoerceValue(tsCol, "2026-03-02"); err != nil {
		t.Fatalf("date parse: %v", err)
	} else if tm, ok := v.(time.Time); !ok || tm.Year() != 2026 {
		t.Fatalf("date parse: %v", v)
	}

	if v, err := CoerceValue(intCol, nil); err != nil || v != nil {
		t.Fatalf("nil passthrough: %v, %v", v, err)
	}
}
