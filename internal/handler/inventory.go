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

type InventoryHandler struct {
	base
	service *service.InventoryService
}

func NewInventoryHandler(svc *service.InventoryService, v *validator.Validate, log *zap.Logger) *InventoryHandler {
	return &InventoryHandler{base: base{validator: v, log: log}, service: svc}
}

// List handles GET /api/inventory
func (h *InventoryHandler) List(c *fiber.Ctx) error {
	items, err := h.service.List(c.UserContext(), middleware.GetUserID(c), c.Query("category"))
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, fiber.Map{"items": items, "total": len(items)})
}

// Add handles POST /api/inventory
func (h *InventoryHandler) Add(c *fiber.Ctx) error {
	var req model.AddInventoryRequest
	if ok, err := h.parseBody(c, &req); !ok {
		return err
	}

	items, err := h.service.Add(c.UserContext(), middleware.GetUserID(c), &req)
	if err != nil {
		return h.fail(c, err)
	}
	return response.Created(c, fiber.Map{"items": items})
}

// Update handles PUT /api/inventory/:id
func (h *InventoryHandler) Update(c *fiber.Ctx) error {
	var req model.UpdateInventoryRequest
	if ok, err := h.parseBody(c, &req); !ok {
		return err
	}

	item, err := h.service.Update(c.UserContext(), middleware.GetUserID(c), c.Params("id"), &req)
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, item)
}

// Delete handles DELETE /api/inventory/:id
func (h *InventoryHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), middleware.GetUserID(c), c.Params("id")); err != nil {
		return h.fail(c, err)
	}
	return response.NoContent(c)
}

// Clear handles DELETE /api/inventory
func (h *InventoryHandler) Clear(c *fiber.Ctx) error {
	n, err := h.service.Clear(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, fiber.Map{"deleted": n})
}
