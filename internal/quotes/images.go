package quotes

import (
	"errors"
	"mime"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/freshnest/cleaning-backend/internal/auth"
	"github.com/freshnest/cleaning-backend/internal/storage"
	"github.com/freshnest/cleaning-backend/pkg/models"
)

// ImageHandler owns the Supabase-backed quote photo endpoints.
type ImageHandler struct {
	db *gorm.DB
	sb *storage.Supabase
}

func NewImageHandler(db *gorm.DB, sb *storage.Supabase) *ImageHandler {
	return &ImageHandler{db: db, sb: sb}
}

// Upload stores up to 5 property photos (JPEG/PNG/WebP) against a quote the
// customer owns. Partial failures come back per-file in the result list.
func (h *ImageHandler) Upload(c *fiber.Ctx) error {
	customerID := auth.MustUserID(c)
	quoteID := c.Params("id")

	var q models.QuoteRequest
	if err := h.db.Where("id = ? AND customer_id = ?", quoteID, customerID).First(&q).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrForbidden
		}
		return fiber.ErrInternalServerError
	}

	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart form required; use files[]")
	}
	files := form.File["files[]"]
	if len(files) == 0 {
		files = form.File["files"]
	}
	if len(files) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "files are required (use key: files[])")
	}
	if len(files) > 5 {
		return fiber.NewError(fiber.StatusBadRequest, "max 5 files allowed")
	}

	results := make([]fiber.Map, 0, len(files))

	for _, fh := range files {
		res := fiber.Map{
			"name": fh.Filename,
			"size": fh.Size,
		}

		if fh.Size <= 0 {
			res["error"] = "empty file"
			results = append(results, res)
			continue
		}
		if fh.Size > 10*1024*1024 {
			res["error"] = "max 10MB per file"
			results = append(results, res)
			continue
		}

		ct := fh.Header.Get("Content-Type")
		if ct == "" {
			ct = mime.TypeByExtension(filepath.Ext(fh.Filename))
		}
		switch ct {
		case "image/jpeg", "image/png", "image/webp":
			// ok
		default:
			res["error"] = "only JPEG, PNG, or WebP are allowed"
			results = append(results, res)
			continue
		}

		f, err := fh.Open()
		if err != nil {
			res["error"] = "open failed"
			results = append(results, res)
			continue
		}
		defer f.Close()

		key := h.sb.MakeObjectKey(quoteID, fh.Filename)

		if err := h.sb.Upload(key, f, ct, fh.Size); err != nil {
			res["error"] = "upload failed"
			results = append(results, res)
			continue
		}

		rec := models.QuoteImage{
			QuoteID:      q.ID,
			Key:          key,
			Mime:         ct,
			Size:         int(fh.Size),
			OriginalName: fh.Filename,
		}
		if err := h.db.Create(&rec).Error; err != nil {
			res["error"] = "database error"
			results = append(results, res)
			continue
		}

		res["id"] = rec.ID
		res["key"] = rec.Key
		results = append(results, res)
	}

	// 201 even when some files failed; caller checks per-item "error".
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"results": results})
}

// SignedDownloadURL hands out a short-lived signed URL for a quote image.
// Allowed for the owning customer, any admin, and the assigned cleaner.
func (h *ImageHandler) SignedDownloadURL(c *fiber.Ctx) error {
	userID := auth.MustUserID(c)
	role := auth.MustRole(c)
	imageID := c.Params("imageID")

	var img models.QuoteImage
	if err := h.db.Preload("Quote").First(&img, "id = ?", imageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	allowed := false
	switch role {
	case string(models.RoleAdmin):
		allowed = true
	case string(models.RoleCustomer):
		allowed = img.Quote.CustomerID.String() == userID
	case string(models.RoleCleaner):
		var cnt int64
		h.db.Model(&models.CleanerAssignment{}).
			Where("quote_id = ? AND cleaner_id = ? AND status IN ?",
				img.QuoteID, auth.MustCleanerID(c),
				[]models.AssignmentStatus{models.AssignmentPending, models.AssignmentAccepted, models.AssignmentCompleted}).
			Count(&cnt)
		allowed = cnt > 0
	}
	if !allowed {
		return fiber.ErrForbidden
	}

	url, err := h.sb.SignedURL(img.Key, 60) // seconds
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"url": url, "expires_in": 60, "now": time.Now().UTC()})
}
