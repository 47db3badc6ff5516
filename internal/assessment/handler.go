package assessment

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"onboard-backend/internal/auth"
	"onboard-backend/internal/config"
	"onboard-backend/internal/refdata"
	"onboard-backend/internal/schema"
	"onboard-backend/internal/store"
	"onboard-backend/internal/token"
	"onboard-backend/internal/writer"
)

type Handler struct {
	store    *store.Store
	registry *schema.Registry
	writer   *writer.Writer
	codec    *token.Codec
	cfg      config.CBTConfig
}

func NewHandler(s *store.Store, reg *schema.Registry, w *writer.Writer, codec *token.Codec, cfg config.CBTConfig) *Handler {
	return &Handler{store: s, registry: reg, writer: w, codec: codec, cfg: cfg}
}

// StartSession handles POST /api/cbt/sessions. Opens an assessment session
// for a prospect and returns the long-lived token used to submit answers.
func (h *Handler) StartSession(c *fiber.Ctx) error {
	var body struct {
		ProspectID int64 `json:"prospectid"`
	}
	if err := c.BodyParser(&body); err != nil || body.ProspectID == 0 {
		return respondError(c, refdata.ValidationError("prospectid is required"))
	}

	principal := auth.Principal(c)

	record := map[string]any{
		"prospectid":    body.ProspectID,
		"sessionkey":    uuid.New().String(),
		"questioncount": h.cfg.QuestionCount,
		"status":        "open",
	}
	id, err := h.writer.Insert(c.Context(), h.registry.Get("cbtsessions"), record, principal)
	if err != nil {
		return respondError(c, refdata.NewAppError("WRITE_FAILED", 400, err.Error()))
	}

	sessionToken, err := h.codec.GenerateLong(token.Payload{
		UserID:    principal.UserID,
		CountryID: principal.CountryID,
		Purpose:   "cbt",
		SessionID: id,
	})
	if err != nil {
		return fmt.Errorf("cbt session token: %w", err)
	}

	return c.Status(201).JSON(fiber.Map{"data": fiber.Map{
		"id":    id,
		"token": sessionToken,
	}})
}

// Questions handles GET /api/cbt/sessions/:id/questions. Serves the active
// question set without the answers.
func (h *Handler) Questions(c *fiber.Ctx) error {
	sessionID, err := h.sessionFromToken(c)
	if err != nil {
		return err
	}
	if _, err := h.openSession(c, sessionID); err != nil {
		return err
	}

	rows, err := store.QueryRows(c.Context(), h.store.Pool,
		`SELECT id, question, optiona, optionb, optionc, optiond, category
		 FROM cbtquestions WHERE active = TRUE ORDER BY id LIMIT $1`, h.cfg.QuestionCount)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

// Submit handles POST /api/cbt/sessions/:id/submit. Grades the submitted
// answers, evaluates the pass rule, and records the result.
func (h *Handler) Submit(c *fiber.Ctx) error {
	sessionID, err := h.sessionFromToken(c)
	if err != nil {
		return err
	}

	session, err := h.openSession(c, sessionID)
	if err != nil {
		return err
	}

	var body struct {
		Answers map[string]string `json:"answers"` // question id -> chosen option key
	}
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, refdata.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}

	questions, err := store.QueryRows(c.Context(), h.store.Pool,
		"SELECT id, answer FROM cbtquestions WHERE active = TRUE ORDER BY id LIMIT $1", h.cfg.QuestionCount)
	if err != nil {
		return fmt.Errorf("load answers: %w", err)
	}

	score := 0
	for _, q := range questions {
		qid := fmt.Sprintf("%v", q["id"])
		correct, _ := q["answer"].(string)
		if given, ok := body.Answers[qid]; ok && strings.EqualFold(given, correct) {
			score++
		}
	}
	total := len(questions)

	passed, err := EvaluatePassRule(h.cfg.PassRule, score, total)
	if err != nil {
		return respondError(c, refdata.NewAppError("INVALID_RULE", 400, err.Error()))
	}

	principal := auth.Principal(c)
	result := map[string]any{
		"sessionid":  sessionID,
		"prospectid": session["prospectid"],
		"score":      score,
		"total":      total,
		"passed":     passed,
		"takendate":  time.Now(),
	}
	if _, err := h.writer.Insert(c.Context(), h.registry.Get("cbtresults"), result, principal); err != nil {
		return respondError(c, refdata.NewAppError("WRITE_FAILED", 400, err.Error()))
	}

	if _, err := h.writer.Update(c.Context(), h.registry.Get("cbtsessions"),
		map[string]any{"id": sessionID, "status": "completed"}, principal); err != nil {
		return respondError(c, refdata.NewAppError("WRITE_FAILED", 400, err.Error()))
	}

	return c.JSON(fiber.Map{"data": result})
}

// RegisterRoutes registers the CBT routes. StartSession needs an ops session;
// question delivery and submission authenticate with the assessment token.
func RegisterRoutes(app *fiber.App, h *Handler, session fiber.Handler) {
	api := app.Group("/api/cbt")

	api.Post("/sessions", session, h.StartSession)
	api.Get("/sessions/:id/questions", h.Questions)
	api.Post("/sessions/:id/submit", h.Submit)
}

// sessionFromToken validates the Bearer assessment token against the :id
// route parameter and attaches the payload to the request.
func (h *Handler) sessionFromToken(c *fiber.Ctx) (int64, error) {
	sessionID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return 0, refdata.NewAppError("INVALID_PAYLOAD", 400, "Invalid id")
	}

	raw := ""
	if header := c.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			raw = parts[1]
		}
	}

	v := h.codec.Verify(raw)
	if v.Status != token.Valid || v.Payload.Purpose != "cbt" || v.Payload.SessionID != sessionID {
		return 0, refdata.NewAppError("INVALID_SESSION", 400, "Assessment token is not valid for this session")
	}

	c.Locals("principal", v.Payload)
	return sessionID, nil
}

func (h *Handler) openSession(c *fiber.Ctx, sessionID int64) (map[string]any, error) {
	session, err := store.QueryRow(c.Context(), h.store.Pool,
		"SELECT id, prospectid, status FROM cbtsessions WHERE id = $1", sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, refdata.NotFoundError("cbtsession", sessionID)
		}
		return nil, fmt.Errorf("load cbtsession %d: %w", sessionID, err)
	}
	if status, _ := session["status"].(string); status != "open" {
		return nil, refdata.ConflictError("Session is not open")
	}
	return session, nil
}

func respondError(c *fiber.Ctx, appErr *refdata.AppError) error {
	return c.Status(appErr.Status).JSON(refdata.ErrorResponse{Error: appErr})
}
