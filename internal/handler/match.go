package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fridgechef/api/internal/middleware"
	"github.com/fridgechef/api/internal/model"
	"github.com/fridgechef/api/internal/service"
	"github.com/fridgechef/api/pkg/response"
)

type MatchHandler struct {
	base
	service *service.MatchService
}

func NewMatchHandler(svc *service.MatchService, v *validator.Validate, log *zap.Logger) *MatchHandler {
	return &MatchHandler{base: base{validator: v, log: log}, service: svc}
}

// Create handles POST /api/matches
func (h *MatchHandler) Create(c *fiber.Ctx) error {
	var req model.CreateMatchRequest
	if ok, err := h.parseBody(c, &req); !ok {
		return err
	}

	job, err := h.service.Create(c.UserContext(), middleware.GetUserID(c), req.CookbookID, req.FridgeScanID)
	if err != nil {
		return h.fail(c, err)
	}
	return response.Accepted(c, job)
}

// List handles GET /api/matches
func (h *MatchHandler) List(c *fiber.Ctx) error {
	var q model.PageQuery
	if ok, err := h.parseQuery(c, &q); !ok {
		return err
	}
	q = withDefaults(q)

	list, err := h.service.List(c.UserContext(), middleware.GetUserID(c), q.Limit, q.Offset)
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, list)
}

// Get handles GET /api/matches/:id
func (h *MatchHandler) Get(c *fiber.Ctx) error {
	job, err := h.service.Get(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, job)
}

// Results handles GET /api/matches/:id/results
func (h *MatchHandler) Results(c *fiber.Ctx) error {
	results, err := h.service.Results(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, fiber.Map{"results": results})
}

// Retry handles POST /api/matches/:id/retry
func (h *MatchHandler) Retry(c *fiber.Ctx) error {
	job, err := h.service.Retry(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return response.Accepted(c, job)
}

// Delete handles DELETE /api/matches/:id
func (h *MatchHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), middleware.GetUserID(c), c.Params("id")); err != nil {
		return h.fail(c, err)
	}
	return response.NoContent(c)
}
