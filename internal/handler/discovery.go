package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fridgechef/api/internal/model"
	"github.com/fridgechef/api/internal/service"
	"github.com/fridgechef/api/pkg/response"
)

// DiscoveryHandler serves the lists shared by all users.
type DiscoveryHandler struct {
	base
	service *service.DiscoveryService
}

func NewDiscoveryHandler(svc *service.DiscoveryService, v *validator.Validate, log *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{base: base{validator: v, log: log}, service: svc}
}

// HotRecipes handles GET /api/recipes/hot
func (h *DiscoveryHandler) HotRecipes(c *fiber.Ctx) error {
	var q model.HotRecipeQuery
	if ok, err := h.parseQuery(c, &q); !ok {
		return err
	}

	page, err := h.service.HotRecipes(c.UserContext(), q)
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, page)
}

// PopularCookbooks handles GET /api/cookbooks/popular
func (h *DiscoveryHandler) PopularCookbooks(c *fiber.Ctx) error {
	var q model.PopularCookbookQuery
	if ok, err := h.parseQuery(c, &q); !ok {
		return err
	}

	list, err := h.service.PopularCookbooks(c.UserContext(), q)
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, list)
}

// Cuisines handles GET /api/recipes/cuisines
func (h *DiscoveryHandler) Cuisines(c *fiber.Ctx) error {
	list, err := h.service.Cuisines(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, list)
}
