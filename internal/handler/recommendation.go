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

type RecommendationHandler struct {
	base
	service *service.RecommendationService
}

func NewRecommendationHandler(svc *service.RecommendationService, v *validator.Validate, log *zap.Logger) *RecommendationHandler {
	return &RecommendationHandler{base: base{validator: v, log: log}, service: svc}
}

// Recommend handles GET /api/recommendations
func (h *RecommendationHandler) Recommend(c *fiber.Ctx) error {
	var q model.RecommendationQuery
	if ok, err := h.parseQuery(c, &q); !ok {
		return err
	}

	page, err := h.service.Recommend(c.UserContext(), middleware.GetUserID(c), q)
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, page)
}

// RecipeMatch handles GET /api/recipes/:id/match
func (h *RecommendationHandler) RecipeMatch(c *fiber.Ctx) error {
	match, err := h.service.MatchRecipe(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, match)
}
