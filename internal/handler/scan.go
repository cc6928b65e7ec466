package handler

import (
	"fmt"
	"mime/multipart"
	"slices"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fridgechef/api/internal/middleware"
	"github.com/fridgechef/api/internal/model"
	"github.com/fridgechef/api/internal/service"
	"github.com/fridgechef/api/internal/store"
	"github.com/fridgechef/api/pkg/response"
)

const (
	maxImageSize        = 10 * 1024 * 1024 // 10MB
	maxCookbookNameSize = 200
)

var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
	"image/heic": true,
}

// ScanHandler serves scan uploads and the scan job endpoints.
type ScanHandler struct {
	base
	service *service.ScanService
}

func NewScanHandler(svc *service.ScanService, v *validator.Validate, log *zap.Logger) *ScanHandler {
	return &ScanHandler{base: base{validator: v, log: log}, service: svc}
}

// Cookbook handles POST /api/scan/cookbook
func (h *ScanHandler) Cookbook(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return response.ValidationError(c, "Multipart form is required", nil)
	}
	files := slices.Concat(form.File["images"], form.File["images[]"])
	if len(files) == 0 {
		return response.ValidationError(c, "At least one image is required", nil)
	}
	if len(files) > service.MaxCookbookPages {
		return response.ValidationError(c, fmt.Sprintf("At most %d images are allowed", service.MaxCookbookPages), map[string]int{
			"maxImages": service.MaxCookbookPages,
			"images":    len(files),
		})
	}

	name := c.FormValue("cookbookName")
	if len(name) > maxCookbookNameSize {
		return response.ValidationError(c, "cookbookName is too long", nil)
	}

	images, closeAll, err := openImages(files)
	if err != nil {
		return response.ValidationError(c, err.Error(), nil)
	}
	defer closeAll()

	job, err := h.service.StartCookbookScan(c.UserContext(), middleware.GetUserID(c), name, images)
	if err != nil {
		return h.fail(c, err)
	}
	return response.Accepted(c, job)
}

// Fridge handles POST /api/scan/fridge
func (h *ScanHandler) Fridge(c *fiber.Ctx) error {
	file, err := c.FormFile("image")
	if err != nil {
		return response.ValidationError(c, "Image is required", nil)
	}

	replace := false
	if v := c.FormValue("replaceExisting"); v != "" {
		if replace, err = strconv.ParseBool(v); err != nil {
			return response.ValidationError(c, "replaceExisting must be a boolean", nil)
		}
	}

	images, closeAll, err := openImages([]*multipart.FileHeader{file})
	if err != nil {
		return response.ValidationError(c, err.Error(), nil)
	}
	defer closeAll()

	job, err := h.service.StartFridgeScan(c.UserContext(), middleware.GetUserID(c), images[0], replace)
	if err != nil {
		return h.fail(c, err)
	}
	return response.Accepted(c, job)
}

// openImages checks and opens uploaded files. The returned func closes
// every opened file.
func openImages(files []*multipart.FileHeader) ([]service.Image, func(), error) {
	images := make([]service.Image, 0, len(files))
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}

	for i, fh := range files {
		if fh.Size > maxImageSize {
			closeAll()
			return nil, nil, fmt.Errorf("image %d exceeds the 10MB limit", i+1)
		}
		contentType := fh.Header.Get(fiber.HeaderContentType)
		if !imageTypes[contentType] {
			closeAll()
			return nil, nil, fmt.Errorf("image %d has unsupported type %q", i+1, contentType)
		}
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("image %d could not be read", i+1)
		}
		opened = append(opened, f)
		images = append(images, service.Image{Body: f, ContentType: contentType, Filename: fh.Filename})
	}
	return images, closeAll, nil
}

// List handles GET /api/scan-jobs
func (h *ScanHandler) List(c *fiber.Ctx) error {
	var q model.ScanJobQuery
	if ok, err := h.parseQuery(c, &q); !ok {
		return err
	}
	q.PageQuery = withDefaults(q.PageQuery)

	list, err := h.service.List(c.UserContext(), middleware.GetUserID(c), store.ScanJobFilter{
		Kind:   model.ScanKind(q.Type),
		Status: model.JobStatus(q.Status),
		Limit:  q.Limit,
		Offset: q.Offset,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, list)
}

// Get handles GET /api/scan-jobs/:id
func (h *ScanHandler) Get(c *fiber.Ctx) error {
	job, err := h.service.Get(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, job)
}

// Items handles GET /api/scan-jobs/:id/items
func (h *ScanHandler) Items(c *fiber.Ctx) error {
	items, err := h.service.Items(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, items)
}

// Retry handles POST /api/scan-jobs/:id/retry
func (h *ScanHandler) Retry(c *fiber.Ctx) error {
	job, err := h.service.Retry(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return response.Accepted(c, job)
}

// Delete handles DELETE /api/scan-jobs/:id
func (h *ScanHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), middleware.GetUserID(c), c.Params("id")); err != nil {
		return h.fail(c, err)
	}
	return response.NoContent(c)
}
