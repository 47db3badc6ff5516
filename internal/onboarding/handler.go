package onboarding

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"onboard-backend/internal/auth"
	"onboard-backend/internal/refdata"
	"onboard-backend/internal/schema"
	"onboard-backend/internal/store"
	"onboard-backend/internal/token"
	"onboard-backend/internal/writer"
)

const inviteValidity = 14 * 24 * time.Hour

type Handler struct {
	store     *store.Store
	registry  *schema.Registry
	writer    *writer.Writer
	codec     *token.Codec
	publicURL string
}

func NewHandler(s *store.Store, reg *schema.Registry, w *writer.Writer, codec *token.Codec, publicURL string) *Handler {
	return &Handler{store: s, registry: reg, writer: w, codec: codec, publicURL: publicURL}
}

// Invite handles POST /api/onboarding/prospects/invite. Creates the prospect
// row, then writes back the invite URL that embeds the generated id.
func (h *Handler) Invite(c *fiber.Ctx) error {
	var body struct {
		FirstName string `json:"firstname"`
		LastName  string `json:"lastname"`
		Email     string `json:"email"`
		Phone     string `json:"phone"`
		MarketID  int64  `json:"marketid"`
		ProductID int64  `json:"productid"`
	}
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, refdata.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}
	if body.Email == "" || !strings.Contains(body.Email, "@") {
		return respondError(c, refdata.ValidationError("A valid email is required"))
	}

	principal := auth.Principal(c)
	prospects := h.registry.Get("prospects")

	// Non-atomic duplicate pre-check on email within the tenant.
	existing, err := store.QueryRow(c.Context(), h.store.Pool,
		"SELECT id FROM prospects WHERE email = $1 AND countryid = $2", body.Email, principal.CountryID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("prospect duplicate check: %w", err)
	}
	if existing != nil {
		return respondError(c, refdata.ConflictError("A prospect with this email already exists"))
	}

	inviteCode := uuid.New().String()
	record := map[string]any{
		"firstname":    body.FirstName,
		"lastname":     body.LastName,
		"email":        body.Email,
		"phone":        body.Phone,
		"marketid":     body.MarketID,
		"productid":    body.ProductID,
		"invitecode":   inviteCode,
		"inviteexpiry": time.Now().Add(inviteValidity),
		"stage":        "invited",
	}

	id, err := h.writer.Insert(c.Context(), prospects, record, principal)
	if err != nil {
		return respondError(c, refdata.NewAppError("WRITE_FAILED", 400, err.Error()))
	}

	inviteToken, err := h.codec.GenerateLong(token.Payload{
		UserID:    principal.UserID,
		CountryID: principal.CountryID,
		Purpose:   "invite",
		InviteID:  id,
		MarketID:  body.MarketID,
		ProductID: body.ProductID,
	})
	if err != nil {
		return fmt.Errorf("invite token: %w", err)
	}

	inviteURL := fmt.Sprintf("%s/onboarding/accept/%d?code=%s", h.publicURL, id, inviteCode)
	if _, err := h.writer.Update(c.Context(), prospects,
		map[string]any{"id": id, "inviteurl": inviteURL}, principal); err != nil {
		return respondError(c, refdata.NewAppError("WRITE_FAILED", 400, err.Error()))
	}

	return c.Status(201).JSON(fiber.Map{"data": fiber.Map{
		"id":        id,
		"inviteurl": inviteURL,
		"token":     inviteToken,
	}})
}

// Accept handles POST /api/onboarding/invites/accept. Public: identity comes
// from the invite token itself.
func (h *Handler) Accept(c *fiber.Ctx) error {
	var body struct {
		Token string `json:"token"`
		Code  string `json:"code"`
	}
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, refdata.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}

	v := h.codec.Verify(body.Token)
	if v.Status != token.Valid || v.Payload.Purpose != "invite" || v.Payload.InviteID == 0 {
		return respondError(c, refdata.NewAppError("INVALID_INVITE", 400, "Invite token is not valid"))
	}

	prospects := h.registry.Get("prospects")
	row, err := store.QueryRow(c.Context(), h.store.Pool,
		"SELECT id, invitecode, inviteexpiry, stage FROM prospects WHERE id = $1", v.Payload.InviteID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, refdata.NotFoundError("prospect", v.Payload.InviteID))
		}
		return fmt.Errorf("load prospect %d: %w", v.Payload.InviteID, err)
	}

	if code, _ := row["invitecode"].(string); code != body.Code {
		return respondError(c, refdata.NewAppError("INVALID_INVITE", 400, "Invite code mismatch"))
	}
	if stage, _ := row["stage"].(string); stage != "invited" {
		return respondError(c, refdata.ConflictError("Invite has already been used or expired"))
	}
	if expiry, ok := row["inviteexpiry"].(time.Time); ok && time.Now().After(expiry) {
		return respondError(c, refdata.ConflictError("Invite has expired"))
	}

	driverCode := "DRV-" + strings.ToUpper(uuid.New().String()[:8])
	if _, err := h.writer.Update(c.Context(), prospects, map[string]any{
		"id":         v.Payload.InviteID,
		"drivercode": driverCode,
		"stage":      "registered",
	}, v.Payload); err != nil {
		return respondError(c, refdata.NewAppError("WRITE_FAILED", 400, err.Error()))
	}

	applicantToken, err := h.codec.GenerateLong(token.Payload{
		UserID:     v.Payload.UserID,
		CountryID:  v.Payload.CountryID,
		Purpose:    "applicant",
		InviteID:   v.Payload.InviteID,
		DriverCode: driverCode,
	})
	if err != nil {
		return fmt.Errorf("applicant token: %w", err)
	}

	return c.JSON(fiber.Map{"data": fiber.Map{
		"id":         v.Payload.InviteID,
		"drivercode": driverCode,
		"token":      applicantToken,
	}})
}

// Book handles POST /api/onboarding/infosessions/:id/book.
func (h *Handler) Book(c *fiber.Ctx) error {
	sessionID, err := paramID(c)
	if err != nil {
		return err
	}

	var body struct {
		ProspectID int64 `json:"prospectid"`
	}
	if err := c.BodyParser(&body); err != nil || body.ProspectID == 0 {
		return respondError(c, refdata.ValidationError("prospectid is required"))
	}

	session, err := store.QueryRow(c.Context(), h.store.Pool,
		"SELECT id, capacity, status FROM infosessions WHERE id = $1", sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, refdata.NotFoundError("infosession", sessionID))
		}
		return fmt.Errorf("load infosession %d: %w", sessionID, err)
	}
	if status, _ := session["status"].(string); status == "inactive" {
		return respondError(c, refdata.ConflictError("Session is no longer open"))
	}

	// Capacity pre-check. Not atomic with the insert; overbooking is possible
	// under concurrent requests.
	countRow, err := store.QueryRow(c.Context(), h.store.Pool,
		"SELECT COUNT(*) AS count FROM sessionbookings WHERE sessionid = $1 AND status = 'booked'", sessionID)
	if err != nil {
		return fmt.Errorf("count bookings: %w", err)
	}
	capacity := asInt64(session["capacity"])
	if capacity > 0 && asInt64(countRow["count"]) >= capacity {
		return respondError(c, refdata.ConflictError("Session is fully booked"))
	}

	booking := map[string]any{
		"sessionid":  sessionID,
		"prospectid": body.ProspectID,
		"status":     "booked",
	}
	if _, err := h.writer.Insert(c.Context(), h.registry.Get("sessionbookings"), booking, auth.Principal(c)); err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			return respondError(c, refdata.ConflictError("Prospect is already booked on this session"))
		}
		return respondError(c, refdata.NewAppError("WRITE_FAILED", 400, err.Error()))
	}

	return c.Status(201).JSON(fiber.Map{"data": booking})
}

// Attend handles PUT /api/onboarding/bookings/:id/attend.
func (h *Handler) Attend(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}

	affected, err := h.writer.Update(c.Context(), h.registry.Get("sessionbookings"),
		map[string]any{"id": id, "attended": true, "status": "attended"}, auth.Principal(c))
	if err != nil {
		return respondError(c, refdata.NewAppError("WRITE_FAILED", 400, err.Error()))
	}
	if affected == 0 {
		return respondError(c, refdata.NotFoundError("booking", id))
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "attended": true}})
}

// AddDocument handles POST /api/onboarding/prospects/:id/documents.
func (h *Handler) AddDocument(c *fiber.Ctx) error {
	prospectID, err := paramID(c)
	if err != nil {
		return err
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, refdata.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}
	body["prospectid"] = prospectID
	body["status"] = "submitted"

	if _, err := h.writer.Insert(c.Context(), h.registry.Get("documents"), body, auth.Principal(c)); err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			return respondError(c, refdata.ConflictError("A document of this type already exists for the prospect"))
		}
		return respondError(c, refdata.NewAppError("WRITE_FAILED", 400, err.Error()))
	}
	return c.Status(201).JSON(fiber.Map{"data": body})
}

// ReviewDocument handles PUT /api/onboarding/documents/:id/review.
func (h *Handler) ReviewDocument(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}

	var body struct {
		Status     string `json:"status"`
		ReviewNote string `json:"reviewnote"`
	}
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, refdata.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}
	if body.Status != "approved" && body.Status != "rejected" {
		return respondError(c, refdata.ValidationError("status must be approved or rejected"))
	}

	affected, err := h.writer.Update(c.Context(), h.registry.Get("documents"),
		map[string]any{"id": id, "status": body.Status, "reviewnote": body.ReviewNote}, auth.Principal(c))
	if err != nil {
		return respondError(c, refdata.NewAppError("WRITE_FAILED", 400, err.Error()))
	}
	if affected == 0 {
		return respondError(c, refdata.NotFoundError("document", id))
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "status": body.Status}})
}

// RegisterRoutes registers the onboarding routes. Accept is public; the rest
// require a session, and invite additionally a super-user role.
func RegisterRoutes(app *fiber.App, h *Handler, session fiber.Handler, superUser fiber.Handler) {
	api := app.Group("/api/onboarding")

	api.Post("/invites/accept", h.Accept)
	api.Post("/prospects/invite", session, superUser, h.Invite)
	api.Post("/prospects/:id/documents", session, h.AddDocument)
	api.Put("/documents/:id/review", session, superUser, h.ReviewDocument)
	api.Post("/infosessions/:id/book", session, h.Book)
	api.Put("/bookings/:id/attend", session, superUser, h.Attend)
}

func paramID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return 0, refdata.NewAppError("INVALID_PAYLOAD", 400, "Invalid id")
	}
	return id, nil
}

func respondError(c *fiber.Ctx, appErr *refdata.AppError) error {
	return c.Status(appErr.Status).JSON(refdata.ErrorResponse{Error: appErr})
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
