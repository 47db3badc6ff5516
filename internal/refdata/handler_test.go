package refdata

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"onboard-backend/internal/schema"
)

// testApp wires the generic routes the way the server does (recover
// middleware plus the app-level error handler) with pass-through auth, so
// resolution failures surface as their intended status codes. The nil store
// is never reached on these paths.
func testApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(recover.New())

	h := NewHandler(nil, schema.NewRegistry(), nil)
	passthrough := func(c *fiber.Ctx) error { return c.Next() }
	RegisterRoutes(app, h, passthrough, passthrough)
	return app
}

func decodeError(t *testing.T, resp *http.Response) *AppError {
	t.Helper()
	body, _ := io.ReadAll(resp.Body)
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error == nil {
		t.Fatalf("decode error body: %v (%s)", err, body)
	}
	return er.Error
}

func TestListUnknownEntity(t *testing.T) {
	app := testApp()

	// Entities outside the registry and registered-but-unexposed tables
	// must both 404, not fall through to a nil table.
	for _, entity := range []string{"doesnotexist", "users", "prospects"} {
		req, _ := http.NewRequest("GET", "/api/"+entity, nil)
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != 404 {
			t.Fatalf("entity %q: expected 404, got %d", entity, resp.StatusCode)
		}
		if appErr := decodeError(t, resp); appErr.Code != "UNKNOWN_ENTITY" {
			t.Fatalf("entity %q: expected UNKNOWN_ENTITY, got %s", entity, appErr.Code)
		}
	}
}

func TestGetByIDBadID(t *testing.T) {
	app := testApp()

	req, _ := http.NewRequest("GET", "/api/banks/abc", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400 for a non-numeric id, got %d", resp.StatusCode)
	}
	if appErr := decodeError(t, resp); appErr.Code != "INVALID_PAYLOAD" {
		t.Fatalf("expected INVALID_PAYLOAD, got %s", appErr.Code)
	}
}

func TestUniqueWhereCoercesValues(t *testing.T) {
	banks := schema.NewRegistry().Get("banks")
	set := []string{"code", "countryid"}

	// A numeric JSON value for a text column must bind as the string the
	// writer would store, or the pre-check misses existing rows.
	where, params, ok := uniqueWhere(banks, set, map[string]any{"code": float64(123)}, 5)
	if !ok {
		t.Fatal("expected a complete unique set")
	}
	if where != "code = $1 AND countryid = $2" {
		t.Fatalf("unexpected where clause: %s", where)
	}
	if params[0] != "123" {
		t.Fatalf("expected code coerced to string, got %T %v", params[0], params[0])
	}
	if params[1] != int64(5) {
		t.Fatalf("expected tenant fallback as int64, got %T %v", params[1], params[1])
	}

	// Missing values keep the set out of the check entirely.
	if _, _, ok := uniqueWhere(banks, set, map[string]any{"countryid": 1}, 0); ok {
		t.Fatal("expected incomplete set to be skipped")
	}

	// Uncoercible values are left for the insert to report.
	if _, _, ok := uniqueWhere(banks, set, map[string]any{"code": "x", "countryid": "abc"}, 0); ok {
		t.Fatal("expected uncoercible set to be skipped")
	}
}
