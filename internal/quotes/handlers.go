package quotes

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/freshnest/cleaning-backend/internal/auth"
	"github.com/freshnest/cleaning-backend/pkg/mailer"
	"github.com/freshnest/cleaning-backend/pkg/models"
	"github.com/freshnest/cleaning-backend/pkg/utils"
	"github.com/freshnest/cleaning-backend/pkg/validation"
)

// ===== DTOs =====

type CreateQuoteRequest struct {
	Name               string   `json:"name" validate:"required,min=2,max=80"`
	Email              string   `json:"email" validate:"required,email,max=120"`
	Phone              string   `json:"phone" validate:"omitempty,max=20"`
	Address            string   `json:"address" validate:"required,max=200"`
	Postcode           string   `json:"postcode" validate:"required,postcode"`
	PropertyType       string   `json:"property_type" validate:"required,oneof=house apartment townhouse office"`
	Bedrooms           int      `json:"bedrooms" validate:"gte=0,lte=10"`
	Bathrooms          int      `json:"bathrooms" validate:"gte=0,lte=10"`
	ServiceType        string   `json:"service_type" validate:"required,max=40"`
	Frequency          string   `json:"frequency" validate:"omitempty,oneof=one_off weekly fortnightly monthly"`
	PreferredDate      string   `json:"preferred_date" validate:"omitempty,datetime=2006-01-02"`
	Notes              string   `json:"notes" validate:"omitempty,max=2000"`
	AdditionalServices []string `json:"additional_services" validate:"omitempty,max=10,dive,max=40"`
}

type Handler struct {
	db   *gorm.DB
	mail *mailer.Mailer
}

func NewHandler(db *gorm.DB, mail *mailer.Mailer) *Handler {
	return &Handler{db: db, mail: mail}
}

func parsePage(c *fiber.Ctx) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	size, _ = strconv.Atoi(c.Query("pageSize", "10"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 50 {
		size = 10
	}
	return
}

/* ============================ Public: create ============================ */

// Create takes the public quote form. No login wall: the customer account is
// found or created by normalized email so the quote lands in a dashboard the
// moment they first sign in.
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreateQuoteRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	var svc models.Service
	if err := h.db.Where("key = ? AND active = true", in.ServiceType).First(&svc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusBadRequest, "unknown service type")
		}
		return fiber.ErrInternalServerError
	}

	// Price the extras from the pricing table, not from the client.
	var extras []models.AdditionalServicePricing
	if len(in.AdditionalServices) > 0 {
		if err := h.db.Where("key IN ? AND active = true", in.AdditionalServices).
			Find(&extras).Error; err != nil {
			return fiber.ErrInternalServerError
		}
		if len(extras) != len(in.AdditionalServices) {
			return fiber.NewError(fiber.StatusBadRequest, "unknown additional service")
		}
	}

	estimate := svc.BasePriceCents +
		in.Bedrooms*svc.PerBedroomCents +
		in.Bathrooms*svc.PerBathroomCents
	for _, ex := range extras {
		estimate += ex.PriceCents
	}

	var preferred *time.Time
	if in.PreferredDate != "" {
		if t, err := time.Parse("2006-01-02", in.PreferredDate); err == nil {
			preferred = &t
		}
	}

	freq := models.FreqOneOff
	if in.Frequency != "" {
		freq = models.Frequency(in.Frequency)
	}

	var q models.QuoteRequest
	err := h.db.Transaction(func(tx *gorm.DB) error {
		// Find-or-create the customer account.
		var u models.User
		err := tx.Where("email = ?", in.Email).First(&u).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			u = models.User{
				Email: in.Email,
				Name:  strings.TrimSpace(in.Name),
				Phone: strings.TrimSpace(in.Phone),
				Role:  models.RoleCustomer,
			}
			if err := tx.Create(&u).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		}

		q = models.QuoteRequest{
			CustomerID:      u.ID,
			ContactName:     strings.TrimSpace(in.Name),
			ContactEmail:    in.Email,
			ContactPhone:    strings.TrimSpace(in.Phone),
			Address:         strings.TrimSpace(in.Address),
			Postcode:        strings.ToUpper(strings.TrimSpace(in.Postcode)),
			PropertyType:    in.PropertyType,
			Bedrooms:        in.Bedrooms,
			Bathrooms:       in.Bathrooms,
			ServiceType:     svc.Key,
			Frequency:       freq,
			PreferredDate:   preferred,
			Notes:           strings.TrimSpace(in.Notes),
			TotalPriceCents: estimate,
			Status:          models.QuotePending,
		}
		if err := tx.Create(&q).Error; err != nil {
			return err
		}

		for _, ex := range extras {
			line := models.QuoteAdditionalService{
				QuoteID:    q.ID,
				ServiceKey: ex.Key,
				Label:      ex.Label,
				PriceCents: ex.PriceCents,
			}
			if err := tx.Create(&line).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fiber.ErrInternalServerError
	}

	utils.LogQuoteHistory(c.Context(), h.db, q.ID, q.CustomerID, "created", "", models.QuotePending, "")
	h.mail.SendQuoteReceived(q.ContactName, q.ContactEmail, q.ID.String())

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":                    q.ID,
		"status":                q.Status,
		"estimated_total_cents": q.TotalPriceCents,
	})
}

/* ============================ Customer: list ============================ */

type quoteListItem struct {
	ID              uuid.UUID          `json:"id"`
	ServiceType     string             `json:"service_type"`
	Address         string             `json:"address"`
	Status          models.QuoteStatus `json:"status"`
	TotalPriceCents int                `json:"total_price_cents"`
	CreatedAt       time.Time          `json:"created_at"`
}

// ListMine returns the customer's quotes (paginated, optional status filter).
func (h *Handler) ListMine(c *fiber.Ctx) error {
	customerID := auth.MustUserID(c)
	page, size := parsePage(c)
	status := strings.TrimSpace(c.Query("status"))

	q := h.db.Model(&models.QuoteRequest{}).Where("customer_id = ?", customerID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	rows := make([]quoteListItem, 0, size)
	if err := q.Order("created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Scan(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	return c.JSON(fiber.Map{
		"page": page, "pageSize": size, "total": total,
		"pages": int(math.Ceil(float64(total) / float64(size))),
		"items": rows,
	})
}

/* =========================== Customer: detail =========================== */

// GetDetailOwner returns a quote with images, extras, booking, and payment,
// owner only.
func (h *Handler) GetDetailOwner(c *fiber.Ctx) error {
	customerID := auth.MustUserID(c)
	id := c.Params("id")

	var q models.QuoteRequest
	err := h.db.
		Where("id = ? AND customer_id = ?", id, customerID).
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("AdditionalServices").
		First(&q).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	if q.Images == nil {
		q.Images = []models.QuoteImage{}
	}
	if q.AdditionalServices == nil {
		q.AdditionalServices = []models.QuoteAdditionalService{}
	}

	var booking *models.Booking
	var b models.Booking
	if err := h.db.Where("quote_id = ?", q.ID).First(&b).Error; err == nil {
		booking = &b
	}

	var txn *models.Transaction
	var t models.Transaction
	if err := h.db.Where("quote_id = ? AND status = ?", q.ID, models.TxSucceeded).
		Order("created_at DESC").First(&t).Error; err == nil {
		txn = &t
	}

	return c.JSON(fiber.Map{
		"quote":       q,
		"booking":     booking,
		"transaction": txn,
	})
}

/* =========================== Customer: decline ========================== */

// Decline lets the customer walk away from a quoted (or accepted-but-unpaid)
// quote.
func (h *Handler) Decline(c *fiber.Ctx) error {
	customerID := auth.MustUserID(c)
	id := c.Params("id")

	var q models.QuoteRequest
	if err := h.db.Where("id = ? AND customer_id = ?", id, customerID).First(&q).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}
	if !models.CanTransition(q.Status, models.QuoteDeclined) {
		return fiber.NewError(fiber.StatusConflict, "quote cannot be declined in its current status")
	}

	oldStatus := q.Status
	if err := h.db.Model(&q).Update("status", models.QuoteDeclined).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	actorID, _ := uuid.Parse(customerID)
	utils.LogQuoteHistory(c.Context(), h.db, q.ID, actorID, "declined", oldStatus, models.QuoteDeclined, "")
	return c.JSON(fiber.Map{"ok": true, "status": models.QuoteDeclined})
}
