package reviews

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/freshnest/cleaning-backend/pkg/models"
	"github.com/freshnest/cleaning-backend/pkg/sanitize"
	"github.com/freshnest/cleaning-backend/pkg/validation"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler { return &Handler{db: db} }

var errTokenGone = fiber.NewError(fiber.StatusNotFound, "invalid or expired review link")

/* =============================== Preflight ============================== */

// Preflight validates the token for the review form and returns just enough
// quote context to render it. Used, expired, or unknown tokens all look the
// same from the outside: 404.
func (h *Handler) Preflight(c *fiber.Ctx) error {
	token := c.Params("token")

	var rt models.ReviewToken
	if err := h.db.Where("token = ?", token).First(&rt).Error; err != nil {
		return errTokenGone
	}
	if rt.Used || rt.ExpiresAt.Before(time.Now()) {
		return errTokenGone
	}

	var q models.QuoteRequest
	if err := h.db.First(&q, "id = ?", rt.QuoteID).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	return c.JSON(fiber.Map{
		"customer_name": q.ContactName,
		"service_type":  q.ServiceType,
		"expires_at":    rt.ExpiresAt,
	})
}

/* ================================ Submit ================================ */

type SubmitRequest struct {
	Rating  int    `json:"rating" validate:"required,gte=1,lte=5"`
	Content string `json:"content" validate:"required,min=10,max=2000"`
}

// Submit redeems the single-use token: testimonial in, cleaner review in (if
// a cleaner completed the job), average rating recomputed, token burned. One
// transaction end to end, so a double-submit race can't redeem twice.
func (h *Handler) Submit(c *fiber.Ctx) error {
	token := c.Params("token")

	var in SubmitRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var testimonialID string
	err := h.db.Transaction(func(tx *gorm.DB) error {
		var rt models.ReviewToken
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("token = ?", token).First(&rt).Error; err != nil {
			return errTokenGone
		}
		if rt.Used || rt.ExpiresAt.Before(time.Now()) {
			return errTokenGone
		}

		var q models.QuoteRequest
		if err := tx.First(&q, "id = ?", rt.QuoteID).Error; err != nil {
			return err
		}

		// The completed assignment, when there is one, links the review to
		// the cleaner who did the work.
		var completed *models.CleanerAssignment
		var asg models.CleanerAssignment
		if err := tx.Where("quote_id = ? AND status = ?", q.ID, models.AssignmentCompleted).
			Order("created_at DESC").First(&asg).Error; err == nil {
			completed = &asg
		}

		t := models.Testimonial{
			QuoteID:      &rt.QuoteID,
			CustomerName: q.ContactName,
			Content:      strings.TrimSpace(in.Content),
			Rating:       in.Rating,
		}
		if completed != nil {
			t.CleanerID = &completed.CleanerID
		}
		if err := tx.Create(&t).Error; err != nil {
			return err
		}
		testimonialID = t.ID.String()

		if completed != nil {
			review := models.CleanerReview{
				CleanerID: completed.CleanerID,
				QuoteID:   q.ID,
				Rating:    in.Rating,
				Comment:   strings.TrimSpace(in.Content),
			}
			if err := tx.Create(&review).Error; err != nil {
				return err
			}
			// Recompute the running average from the source of truth.
			if err := tx.Model(&models.Cleaner{}).
				Where("id = ?", completed.CleanerID).
				UpdateColumn("average_rating", tx.Model(&models.CleanerReview{}).
					Select("COALESCE(AVG(rating), 0)").
					Where("cleaner_id = ?", completed.CleanerID)).Error; err != nil {
				return err
			}
		}

		return tx.Model(&rt).Update("used", true).Error
	})
	if err != nil {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return fe
		}
		return fiber.ErrInternalServerError
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": testimonialID, "ok": true})
}

/* ============================== Public feed ============================= */

type testimonialItem struct {
	CustomerName string    `json:"customer_name"`
	Excerpt      string    `json:"excerpt"`
	Rating       int       `json:"rating"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListPublic returns approved testimonials for the marketing pages,
// PII-redacted and trimmed.
func (h *Handler) ListPublic(c *fiber.Ctx) error {
	var rows []models.Testimonial
	if err := h.db.Where("approved = true").
		Order("created_at DESC").Limit(50).Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	items := make([]testimonialItem, 0, len(rows))
	for _, t := range rows {
		items = append(items, testimonialItem{
			CustomerName: t.CustomerName,
			Excerpt:      sanitize.Summary(sanitize.RedactPII(t.Content), 240),
			Rating:       t.Rating,
			CreatedAt:    t.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"items": items})
}

/* ============================ Admin moderation ========================== */

type ModerateRequest struct {
	Approved *bool `json:"approved" validate:"required"`
}

// Moderate flips a testimonial's approved flag.
func (h *Handler) Moderate(c *fiber.Ctx) error {
	id := c.Params("id")

	var in ModerateRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if in.Approved == nil {
		return fiber.NewError(fiber.StatusBadRequest, "approved is required")
	}

	res := h.db.Model(&models.Testimonial{}).Where("id = ?", id).
		Update("approved", *in.Approved)
	if res.Error != nil {
		return fiber.ErrInternalServerError
	}
	if res.RowsAffected == 0 {
		return fiber.ErrNotFound
	}
	return c.JSON(fiber.Map{"ok": true, "approved": *in.Approved})
}
