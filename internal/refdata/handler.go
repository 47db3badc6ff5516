package refdata

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"onboard-backend/internal/auth"
	"onboard-backend/internal/schema"
	"onboard-backend/internal/store"
	"onboard-backend/internal/token"
	"onboard-backend/internal/writer"
)

// Entities exposed through the generic reference-data routes. Everything else
// (prospects, sessions, results) has purpose-built handlers.
var exposed = map[string]bool{
	"countries":    true,
	"markets":      true,
	"banks":        true,
	"products":     true,
	"cbtquestions": true,
	"infosessions": true,
}

type Handler struct {
	store    *store.Store
	registry *schema.Registry
	writer   *writer.Writer
}

func NewHandler(s *store.Store, reg *schema.Registry, w *writer.Writer) *Handler {
	return &Handler{store: s, registry: reg, writer: w}
}

// List handles GET /api/:entity. Rows are scoped to the principal's tenant
// when one is bound; an unbound principal sees every tenant.
func (h *Handler) List(c *fiber.Ctx) error {
	table, err := h.resolveTable(c)
	if err != nil {
		return err
	}

	principal := auth.Principal(c)
	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(table.ColumnNames(), ", "), table.Name)
	var params []any
	if principal.CountryID != 0 {
		sql += " WHERE countryid = $1"
		params = append(params, principal.CountryID)
	}
	sql += " ORDER BY id"

	rows, err := store.QueryRows(c.Context(), h.store.Pool, sql, params...)
	if err != nil {
		return fmt.Errorf("list %s: %w", table.Name, err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	return c.JSON(fiber.Map{"data": rows})
}

// GetByID handles GET /api/:entity/:id.
func (h *Handler) GetByID(c *fiber.Ctx) error {
	table, err := h.resolveTable(c)
	if err != nil {
		return err
	}

	id, err := paramID(c)
	if err != nil {
		return err
	}

	row, err := fetchRow(c.Context(), h.store.Pool, table, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError(table.Name, id))
		}
		return fmt.Errorf("get %s/%d: %w", table.Name, id, err)
	}

	return c.JSON(fiber.Map{"data": row})
}

// Create handles POST /api/:entity. Super-user only (gated at registration).
func (h *Handler) Create(c *fiber.Ctx) error {
	table, err := h.resolveTable(c)
	if err != nil {
		return err
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}

	principal := auth.Principal(c)

	// Duplicate pre-check from the descriptor's unique sets. This read is not
	// atomic with the insert; concurrent requests can still race past it.
	if dup, err := h.duplicateExists(c.Context(), table, body, principal); err != nil {
		return fmt.Errorf("duplicate check %s: %w", table.Name, err)
	} else if dup {
		return respondError(c, ConflictError(fmt.Sprintf("A matching %s record already exists", table.Name)))
	}

	if _, err := h.writer.Insert(c.Context(), table, body, principal); err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			return respondError(c, ConflictError("A record with this value already exists"))
		}
		return respondError(c, NewAppError("WRITE_FAILED", 400, err.Error()))
	}

	return c.Status(201).JSON(fiber.Map{"data": body})
}

// Update handles PUT /api/:entity/:id. Super-user only.
func (h *Handler) Update(c *fiber.Ctx) error {
	table, err := h.resolveTable(c)
	if err != nil {
		return err
	}

	id, err := paramID(c)
	if err != nil {
		return err
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}
	body["id"] = id

	affected, err := h.writer.Update(c.Context(), table, body, auth.Principal(c))
	if err != nil {
		return respondError(c, NewAppError("WRITE_FAILED", 400, err.Error()))
	}
	if affected == 0 {
		return respondError(c, NotFoundError(table.Name, id))
	}

	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "rowsAffected": affected}})
}

// Deactivate handles PUT /api/:entity/:id/deactivate. Super-user only.
func (h *Handler) Deactivate(c *fiber.Ctx) error {
	table, err := h.resolveTable(c)
	if err != nil {
		return err
	}

	id, err := paramID(c)
	if err != nil {
		return err
	}

	affected, err := h.writer.Update(c.Context(), table,
		map[string]any{"id": id, "status": "inactive"}, auth.Principal(c))
	if err != nil {
		return respondError(c, NewAppError("WRITE_FAILED", 400, err.Error()))
	}
	if affected == 0 {
		return respondError(c, NotFoundError(table.Name, id))
	}

	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "status": "inactive"}})
}

// RegisterRoutes registers the generic entity routes. Reads require a
// session; writes additionally require a super-user role.
//
// Routes are registered directly on the app rather than via
// app.Group("/api", session): Fiber group middleware matches by prefix,
// which would force a session on the public onboarding and CBT routes
// that share the /api prefix.
func RegisterRoutes(app *fiber.App, h *Handler, session fiber.Handler, superUser fiber.Handler) {
	app.Get("/api/:entity", session, h.List)
	app.Get("/api/:entity/:id", session, h.GetByID)
	app.Post("/api/:entity", session, superUser, h.Create)
	app.Put("/api/:entity/:id", session, superUser, h.Update)
	app.Put("/api/:entity/:id/deactivate", session, superUser, h.Deactivate)
}

// resolveTable returns the *AppError itself on failure, never a response
// already written through respondError: c.JSON returns nil on success, and a
// nil error would let the caller keep going with a nil table.
func (h *Handler) resolveTable(c *fiber.Ctx) (*schema.Table, error) {
	name := c.Params("entity")
	if !exposed[name] {
		return nil, UnknownEntityError(name)
	}
	table := h.registry.Get(name)
	if table == nil {
		return nil, UnknownEntityError(name)
	}
	return table, nil
}

// duplicateExists checks the descriptor's unique sets against already stored
// rows. A set participates only when the candidate supplies every column in
// it (countryid falls back to the principal's tenant).
func (h *Handler) duplicateExists(ctx context.Context, table *schema.Table, body map[string]any, principal token.Payload) (bool, error) {
	lower := make(map[string]any, len(body))
	for k, v := range body {
		lower[strings.ToLower(k)] = v
	}

	for _, set := range table.UniqueSets {
		where, params, ok := uniqueWhere(table, set, lower, principal.CountryID)
		if !ok {
			continue
		}

		sql := fmt.Sprintf("SELECT id FROM %s WHERE %s", table.Name, where)
		_, err := store.QueryRow(ctx, h.store.Pool, sql, params...)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return false, err
		}
	}
	return false, nil
}

// uniqueWhere builds the WHERE clause and parameters for one unique set.
// Candidate values are coerced to the declared column types so the pre-check
// binds the same representation the writer will store. Sets with a missing
// or uncoercible value are skipped; the insert reports those on its own.
func uniqueWhere(table *schema.Table, set []string, candidate map[string]any, tenant int64) (string, []any, bool) {
	var where []string
	var params []any
	for _, name := range set {
		v, ok := candidate[name]
		if !ok && name == "countryid" && tenant != 0 {
			v, ok = tenant, true
		}
		if !ok {
			return "", nil, false
		}
		col := table.Column(name)
		if col == nil {
			return "", nil, false
		}
		coerced, err := writer.CoerceValue(*col, v)
		if err != nil {
			return "", nil, false
		}
		params = append(params, coerced)
		where = append(where, fmt.Sprintf("%s = $%d", name, len(params)))
	}
	return strings.Join(where, " AND "), params, true
}

func fetchRow(ctx context.Context, q store.Querier, table *schema.Table, id int64) (map[string]any, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1",
		strings.Join(table.ColumnNames(), ", "), table.Name)
	return store.QueryRow(ctx, q, sql, id)
}

func paramID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return 0, NewAppError("INVALID_PAYLOAD", 400, "Invalid id")
	}
	return id, nil
}

// respondError is for terminal handler returns only. Helpers that hand an
// error back to a caller must return the *AppError instead.
func respondError(c *fiber.Ctx, appErr *AppError) error {
	return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
}
