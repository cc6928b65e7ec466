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

// CookbookHandler serves cookbooks and their product lookups.
type CookbookHandler struct {
	base
	cookbooks *service.CookbookService
	lookups   *service.LookupService
}

func NewCookbookHandler(cookbooks *service.CookbookService, lookups *service.LookupService, v *validator.Validate, log *zap.Logger) *CookbookHandler {
	return &CookbookHandler{base: base{validator: v, log: log}, cookbooks: cookbooks, lookups: lookups}
}

// List handles GET /api/cookbooks
func (h *CookbookHandler) List(c *fiber.Ctx) error {
	cbs, err := h.cookbooks.List(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, fiber.Map{"cookbooks": cbs})
}

// Get handles GET /api/cookbooks/:id
func (h *CookbookHandler) Get(c *fiber.Ctx) error {
	cb, err := h.cookbooks.Get(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, cb)
}

// Update handles PUT /api/cookbooks/:id
func (h *CookbookHandler) Update(c *fiber.Ctx) error {
	var req model.UpdateCookbookRequest
	if ok, err := h.parseBody(c, &req); !ok {
		return err
	}

	cb, err := h.cookbooks.Rename(c.UserContext(), middleware.GetUserID(c), c.Params("id"), req.Name)
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, cb)
}

// Delete handles DELETE /api/cookbooks/:id
func (h *CookbookHandler) Delete(c *fiber.Ctx) error {
	if err := h.cookbooks.Delete(c.UserContext(), middleware.GetUserID(c), c.Params("id")); err != nil {
		return h.fail(c, err)
	}
	return response.NoContent(c)
}

// Recipes handles GET /api/cookbooks/:id/recipes
func (h *CookbookHandler) Recipes(c *fiber.Ctx) error {
	var q model.PageQuery
	if ok, err := h.parseQuery(c, &q); !ok {
		return err
	}
	q = withDefaults(q)

	list, err := h.cookbooks.Recipes(c.UserContext(), middleware.GetUserID(c), c.Params("id"), q.Limit, q.Offset)
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, list)
}

// Recipe handles GET /api/recipes/:id
func (h *CookbookHandler) Recipe(c *fiber.Ctx) error {
	recipe, err := h.cookbooks.Recipe(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, recipe)
}

// StartLookup handles POST /api/cookbooks/:id/product-lookup
func (h *CookbookHandler) StartLookup(c *fiber.Ctx) error {
	job, err := h.lookups.Start(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return response.Accepted(c, job)
}

// Lookup handles GET /api/cookbooks/:id/product-lookup
func (h *CookbookHandler) Lookup(c *fiber.Ctx) error {
	job, err := h.lookups.Latest(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, job)
}

// SelectProduct handles POST /api/cookbooks/:id/product-lookup/select
func (h *CookbookHandler) SelectProduct(c *fiber.Ctx) error {
	var req model.SelectProductRequest
	if ok, err := h.parseBody(c, &req); !ok {
		return err
	}

	job, err := h.lookups.Select(c.UserContext(), middleware.GetUserID(c), c.Params("id"), req.ProductID)
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, job)
}

// SkipLookup handles POST /api/cookbooks/:id/product-lookup/skip
func (h *CookbookHandler) SkipLookup(c *fiber.Ctx) error {
	job, err := h.lookups.Skip(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, job)
}

// RetryLookup handles POST /api/cookbooks/:id/product-lookup/retry
func (h *CookbookHandler) RetryLookup(c *fiber.Ctx) error {
	job, err := h.lookups.Retry(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return response.Accepted(c, job)
}
