package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fridgechef/api/internal/lifecycle"
	"github.com/fridgechef/api/internal/model"
	"github.com/fridgechef/api/internal/selection"
	"github.com/fridgechef/api/internal/service"
	"github.com/fridgechef/api/internal/store"
	"github.com/fridgechef/api/pkg/response"
)

func decodeError(t *testing.T, body io.Reader) response.ErrorDetail {
	t.Helper()
	var r response.ErrorResponse
	require.NoError(t, json.NewDecoder(body).Decode(&r))
	return r.Error
}

func TestFail_MapsServiceErrors(t *testing.T) {
	b := base{validator: validator.New(), log: zap.NewNop()}

	tests := []struct {
		err    error
		status int
		code   string
	}{
		{store.ErrNotFound, 404, response.CodeNotFound},
		{fmt.Errorf("load: %w", lifecycle.ErrNotFound), 404, response.CodeNotFound},
		{lifecycle.ErrRetryExhausted, 422, response.CodeMaxRetriesExceeded},
		{lifecycle.ErrJobProcessing, 409, response.CodeJobProcessing},
		{&lifecycle.TransitionError{Op: "retry", From: model.JobStatusCompleted}, 409, response.CodeInvalidStatus},
		{service.ErrNoPendingReview, 409, response.CodeInvalidStatus},
		{service.ErrLookupInProgress, 409, response.CodeLookupInProgress},
		{service.ErrCookbookNameTaken, 409, response.CodeDuplicateName},
		{service.ErrCookbookBusy, 409, response.CodeCookbookBusy},
		{service.ErrInvalidName, 400, response.CodeValidationError},
		{service.ErrScanNotCompleted, 422, response.CodeScanNotCompleted},
		{service.ErrNoRecipes, 422, response.CodeNoRecipes},
		{service.ErrJobNotCompleted, 422, response.CodeJobNotCompleted},
		{selection.ErrNotInSuggestions, 400, response.CodeValidationError},
		{service.ErrWrongScanKind, 400, response.CodeValidationError},
		{errors.New("connection refused"), 500, response.CodeServiceError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error { return b.fail(c, tt.err) })

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decodeError(t, resp.Body).Code)
		})
	}
}

func TestFail_HidesInternalErrors(t *testing.T) {
	b := base{validator: validator.New(), log: zap.NewNop()}
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error { return b.fail(c, errors.New("pq: password authentication failed")) })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.NotContains(t, decodeError(t, resp.Body).Message, "password")
}

type part struct {
	field, filename, contentType string
	size                         int
}

func multipartBody(t *testing.T, parts []part, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, p := range parts {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.filename))
		h.Set("Content-Type", p.contentType)
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write(bytes.Repeat([]byte{0xff}, p.size))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestScanHandler_RejectsBadUploads(t *testing.T) {
	h := NewScanHandler(nil, validator.New(), zap.NewNop())
	app := fiber.New(fiber.Config{BodyLimit: 64 * 1024 * 1024})
	app.Post("/cookbook", h.Cookbook)
	app.Post("/fridge", h.Fridge)

	tooMany := make([]part, service.MaxCookbookPages+1)
	for i := range tooMany {
		tooMany[i] = part{"images", fmt.Sprintf("p%d.jpg", i), "image/jpeg", 8}
	}

	tests := []struct {
		name   string
		path   string
		parts  []part
		fields map[string]string
	}{
		{"no images", "/cookbook", nil, map[string]string{"cookbookName": "Book"}},
		{"too many pages", "/cookbook", tooMany, nil},
		{"wrong type", "/cookbook", []part{{"images", "notes.pdf", "application/pdf", 8}}, nil},
		{"too large", "/cookbook", []part{{"images[]", "big.jpg", "image/jpeg", maxImageSize + 1}}, nil},
		{"no fridge image", "/fridge", nil, map[string]string{"replaceExisting": "true"}},
		{"bad replace flag", "/fridge", []part{{"image", "f.jpg", "image/jpeg", 8}}, map[string]string{"replaceExisting": "sometimes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, tt.parts, tt.fields)
			req := httptest.NewRequest("POST", tt.path, body)
			req.Header.Set("Content-Type", contentType)

			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, response.CodeValidationError, decodeError(t, resp.Body).Code)
		})
	}
}

func TestHandlers_ValidateInput(t *testing.T) {
	v := validator.New()
	log := zap.NewNop()
	app := fiber.New()
	app.Post("/matches", NewMatchHandler(nil, v, log).Create)
	app.Get("/matches", NewMatchHandler(nil, v, log).List)
	app.Get("/scan-jobs", NewScanHandler(nil, v, log).List)
	app.Post("/inventory", NewInventoryHandler(nil, v, log).Add)
	app.Post("/select", NewCookbookHandler(nil, nil, v, log).SelectProduct)
	app.Get("/recommendations", NewRecommendationHandler(nil, v, log).Recommend)
	app.Put("/cookbooks/:id", NewCookbookHandler(nil, nil, v, log).Update)
	app.Get("/cookbooks/:id/recipes", NewCookbookHandler(nil, nil, v, log).Recipes)
	app.Get("/recipes/hot", NewDiscoveryHandler(nil, v, log).HotRecipes)
	app.Get("/cookbooks/popular", NewDiscoveryHandler(nil, v, log).PopularCookbooks)

	tests := []struct {
		name, method, target, body string
	}{
		{"match ids must be uuids", "POST", "/matches", `{"cookbookId":"abc","fridgeScanId":"def"}`},
		{"match body must be json", "POST", "/matches", `{`},
		{"list limit capped", "GET", "/matches?limit=500", ""},
		{"scan type enum", "GET", "/scan-jobs?type=pantry", ""},
		{"scan status enum", "GET", "/scan-jobs?status=done", ""},
		{"inventory needs items", "POST", "/inventory", `{"items":[]}`},
		{"inventory item needs name", "POST", "/inventory", `{"items":[{"quantity":"2"}]}`},
		{"select needs product", "POST", "/select", `{}`},
		{"min match range", "GET", "/recommendations?minMatch=150", ""},
		{"negative offset", "GET", "/recommendations?offset=-1", ""},
		{"cookbook needs name", "PUT", "/cookbooks/c1", `{}`},
		{"cookbook name length", "PUT", "/cookbooks/c1", `{"name":"` + strings.Repeat("a", 201) + `"}`},
		{"recipe page limit", "GET", "/cookbooks/c1/recipes?limit=101", ""},
		{"hot period capped", "GET", "/recipes/hot?period=400", ""},
		{"hot cuisine length", "GET", "/recipes/hot?cuisine=" + strings.Repeat("x", 51), ""},
		{"popular limit capped", "GET", "/cookbooks/popular?limit=51", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = bytes.NewBufferString(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.target, body)
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestHealthHandler(t *testing.T) {
	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: refused") }

	tests := []struct {
		name   string
		checks map[string]Check
		status int
		want   string
	}{
		{"all up", map[string]Check{"database": up, "redis": up}, fiber.StatusOK, "ok"},
		{"redis down", map[string]Check{"database": up, "redis": down}, fiber.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/health", NewHealthHandler(tt.checks, map[string]bool{"vision": false}).Health)

			resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			var body struct {
				Status   string          `json:"status"`
				Services map[string]bool `json:"services"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.want, body.Status)
			assert.Contains(t, body.Services, "vision")
		})
	}
}

func TestAuthHandler_Verify(t *testing.T) {
	app := fiber.New()
	app.Get("/auth/verify", func(c *fiber.Ctx) error {
		c.Locals("userId", "user-1")
		c.Locals("email", "cook@example.com")
		return c.Next()
	}, NewAuthHandler().Verify)

	resp, err := app.Test(httptest.NewRequest("GET", "/auth/verify", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "user-1", resp.Header.Get("X-User-Id"))
	assert.Equal(t, "cook@example.com", resp.Header.Get("X-User-Email"))
}
