package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/clicktrail/internal/app/command"
	"github.com/sifan077/clicktrail/internal/app/model"
	"github.com/sifan077/clicktrail/internal/app/service"
	"go.uber.org/zap"
)

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger     *zap.Logger
	Dispatcher *command.Dispatcher
}

// APIHandler exposes the operator commands over HTTP. Authorization is
// enforced in front of this service.
type APIHandler struct {
	logger     *zap.Logger
	dispatcher *command.Dispatcher
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:     logger,
		dispatcher: deps.Dispatcher,
	}
}

// Register wires API routes onto the provided router.
func (h *APIHandler) Register(api fiber.Router) {
	api.Post("/posts", h.Publish)
	api.Get("/posts/:id/links", h.Links)
	api.Get("/stats", h.Stats)
	api.Post("/exports", h.Export)
	api.Post("/ratings", h.Rate)
}

// Publish handles POST /api/posts
func (h *APIHandler) Publish(c *fiber.Ctx) error {
	var req service.PublishInput
	if err := c.BodyParser(&req); err != nil {
		return h.badBody(c)
	}

	res, err := h.dispatcher.Publish(userContext(c), req)
	return h.respond(c, "publish", fiber.StatusCreated, res, err)
}

// Stats handles GET /api/stats?days=7&chat_id=...
func (h *APIHandler) Stats(c *fiber.Ctx) error {
	var args []string
	if days := c.Query("days"); days != "" {
		args = append(args, days)
	}

	res, err := h.dispatcher.Summarize(userContext(c), c.Query("chat_id"), args)
	return h.respond(c, "stats", fiber.StatusOK, res, err)
}

// Links handles GET /api/posts/:id/links
func (h *APIHandler) Links(c *fiber.Ctx) error {
	res, err := h.dispatcher.Links(userContext(c), []string{c.Params("id")})
	return h.respond(c, "links", fiber.StatusOK, res, err)
}

// ExportRequest is the body of POST /api/exports. Args follow the command
// form: [] | [from, to] | [from, to, post_id].
type ExportRequest struct {
	Args   []string `json:"args"`
	ChatID string   `json:"chat_id"`
}

// Export handles POST /api/exports
func (h *APIHandler) Export(c *fiber.Ctx) error {
	var req ExportRequest
	if err := c.BodyParser(&req); err != nil {
		return h.badBody(c)
	}

	res, err := h.dispatcher.Export(userContext(c), req.ChatID, req.Args)
	return h.respond(c, "export", fiber.StatusOK, res, err)
}

// RateRequest is the body of POST /api/ratings. Either Data carries a button
// payload ("rate:item:2", "rate:all:🔥") or Kind/Item/Emoji are set.
type RateRequest struct {
	PostID  int64  `json:"post_id"`
	RaterID int64  `json:"rater_id"`
	Data    string `json:"data,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Item    int    `json:"item,omitempty"`
	Emoji   string `json:"emoji,omitempty"`
}

// Rate handles POST /api/ratings
func (h *APIHandler) Rate(c *fiber.Ctx) error {
	var req RateRequest
	if err := c.BodyParser(&req); err != nil {
		return h.badBody(c)
	}

	action := model.RatingAction{
		Kind:  model.RatingKind(strings.TrimSpace(req.Kind)),
		Item:  req.Item,
		Emoji: req.Emoji,
	}
	if req.Data != "" {
		parsed, err := model.ParseRatingCallback(req.Data)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(command.Result{
				Code:    command.CodeInvalidInput,
				Message: err.Error(),
			})
		}
		action = parsed
	}

	res, err := h.dispatcher.Rate(userContext(c), req.PostID, req.RaterID, action)
	return h.respond(c, "rate", fiber.StatusCreated, res, err)
}

func (h *APIHandler) respond(c *fiber.Ctx, op string, okStatus int, res command.Result, err error) error {
	if err != nil {
		if errors.Is(err, service.ErrTokenExhausted) {
			h.logger.Error("token space exhausted", zap.String("op", op), zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(command.Result{
				Code:    "token_exhausted",
				Message: "could not allocate a unique redirect token",
			})
		}
		h.logger.Error("command failed", zap.String("op", op), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(command.Result{
			Code:    "internal",
			Message: "internal server error",
		})
	}

	switch {
	case !res.OK:
		return c.Status(fiber.StatusBadRequest).JSON(res)
	case res.Code == command.CodeEmpty:
		return c.Status(fiber.StatusOK).JSON(res)
	default:
		return c.Status(okStatus).JSON(res)
	}
}

func (h *APIHandler) badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(command.Result{
		Code:    command.CodeInvalidInput,
		Message: "invalid request body",
	})
}
