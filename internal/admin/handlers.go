package admin

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

type Handler struct {
	db   *gorm.DB
	mail *mailer.Mailer
}

func NewHandler(db *gorm.DB, mail *mailer.Mailer) *Handler {
	return &Handler{db: db, mail: mail}
}

func parsePage(c *fiber.Ctx) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	size, _ = strconv.Atoi(c.Query("pageSize", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return
}

/* ============================ Quotes: list ============================== */

type quoteRow struct {
	ID              uuid.UUID          `json:"id"`
	ContactName     string             `json:"contact_name"`
	ContactEmail    string             `json:"contact_email"`
	Postcode        string             `json:"postcode"`
	ServiceType     string             `json:"service_type"`
	Status          models.QuoteStatus `json:"status"`
	TotalPriceCents int                `json:"total_price_cents"`
	CreatedAt       time.Time          `json:"created_at"`
}

// ListQuotes returns all quotes, paginated, with status and free-text search
// filters.
func (h *Handler) ListQuotes(c *fiber.Ctx) error {
	page, size := parsePage(c)
	status := strings.TrimSpace(c.Query("status"))
	search := strings.TrimSpace(c.Query("q"))

	dbq := h.db.Model(&models.QuoteRequest{})
	if status != "" {
		dbq = dbq.Where("status = ?", status)
	}
	if search != "" {
		like := "%" + search + "%"
		dbq = dbq.Where("contact_name ILIKE ? OR contact_email ILIKE ? OR postcode ILIKE ?", like, like, like)
	}

	var total int64
	if err := dbq.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	rows := make([]quoteRow, 0, size)
	if err := dbq.Order("created_at DESC").
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

// GetQuote returns the full picture for one quote: images, extras, booking,
// assignments, transactions.
func (h *Handler) GetQuote(c *fiber.Ctx) error {
	id := c.Params("id")

	var q models.QuoteRequest
	err := h.db.
		Preload("Images").
		Preload("AdditionalServices").
		First(&q, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	var booking *models.Booking
	var b models.Booking
	if err := h.db.Where("quote_id = ?", q.ID).First(&b).Error; err == nil {
		booking = &b
	}

	var assignments []models.CleanerAssignment
	_ = h.db.Where("quote_id = ?", q.ID).Order("created_at DESC").Find(&assignments).Error

	var txns []models.Transaction
	_ = h.db.Where("quote_id = ?", q.ID).Order("created_at DESC").Find(&txns).Error

	return c.JSON(fiber.Map{
		"quote":        q,
		"booking":      booking,
		"assignments":  assignments,
		"transactions": txns,
	})
}

/* ======================= Quotes: price/accept/reject ==================== */

type PatchQuoteRequest struct {
	Action          string `json:"action" validate:"required,oneof=price accept reject"`
	TotalPriceCents int    `json:"total_price_cents" validate:"omitempty,gte=0,lte=10000000"`
	Note            string `json:"note" validate:"omitempty,max=1000"`
}

// PatchQuote is the admin pricing surface: price (pending -> quoted), accept
// (quoted -> accepted), reject (-> rejected). Illegal transitions 409.
func (h *Handler) PatchQuote(c *fiber.Ctx) error {
	adminID, _ := uuid.Parse(auth.MustUserID(c))
	id := c.Params("id")

	var in PatchQuoteRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var q models.QuoteRequest
	if err := h.db.First(&q, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}
	oldStatus := q.Status

	switch in.Action {
	case "price":
		if in.TotalPriceCents <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "total_price_cents must be positive")
		}
		updates := map[string]any{"total_price_cents": in.TotalPriceCents}
		// Re-pricing an already quoted quote stays in "quoted".
		if q.Status != models.QuoteQuoted {
			if !models.CanTransition(q.Status, models.QuoteQuoted) {
				return fiber.NewError(fiber.StatusConflict, "quote cannot be priced in its current status")
			}
			updates["status"] = models.QuoteQuoted
		}
		if err := h.db.Model(&q).Updates(updates).Error; err != nil {
			return fiber.ErrInternalServerError
		}
		utils.LogQuoteHistory(c.Context(), h.db, q.ID, adminID, "priced", oldStatus, models.QuoteQuoted, in.Note)
		h.mail.SendQuoteReady(q.ContactName, q.ContactEmail, q.ID.String(), in.TotalPriceCents)

	case "accept":
		if !models.CanTransition(q.Status, models.QuoteAccepted) {
			return fiber.NewError(fiber.StatusConflict, "quote cannot be accepted in its current status")
		}
		if err := h.db.Model(&q).Update("status", models.QuoteAccepted).Error; err != nil {
			return fiber.ErrInternalServerError
		}
		utils.LogQuoteHistory(c.Context(), h.db, q.ID, adminID, "accepted", oldStatus, models.QuoteAccepted, in.Note)

	case "reject":
		if !models.CanTransition(q.Status, models.QuoteRejected) {
			return fiber.NewError(fiber.StatusConflict, "quote cannot be rejected in its current status")
		}
		if err := h.db.Model(&q).Update("status", models.QuoteRejected).Error; err != nil {
			return fiber.ErrInternalServerError
		}
		utils.LogQuoteHistory(c.Context(), h.db, q.ID, adminID, "rejected", oldStatus, models.QuoteRejected, in.Note)
		h.mail.SendQuoteRejected(q.ContactName, q.ContactEmail)
	}

	return c.JSON(fiber.Map{"id": q.ID, "status": q.Status, "total_price_cents": q.TotalPriceCents})
}

/* ============================ Booking schedule ========================== */

type ScheduleRequest struct {
	ScheduledDate string `json:"scheduled_date" validate:"required,datetime=2006-01-02"`
	TimeWindow    string `json:"time_window" validate:"omitempty,max=20"`
}

// ScheduleBooking books a paid quote in: upserts the booking row, moves the
// quote to scheduled, and emails the customer.
func (h *Handler) ScheduleBooking(c *fiber.Ctx) error {
	adminID, _ := uuid.Parse(auth.MustUserID(c))
	id := c.Params("id")

	var in ScheduleRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	date, err := time.Parse("2006-01-02", in.ScheduledDate)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid scheduled_date")
	}

	var q models.QuoteRequest
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&q, "id = ?", id).Error; err != nil {
			return err
		}
		if !models.CanTransition(q.Status, models.QuoteScheduled) {
			return fiber.NewError(fiber.StatusConflict, "quote is not paid")
		}

		var b models.Booking
		err := tx.Where("quote_id = ?", q.ID).First(&b).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			b = models.Booking{
				QuoteID:       q.ID,
				ScheduledDate: &date,
				TimeWindow:    in.TimeWindow,
				Status:        models.BookingScheduled,
			}
			if err := tx.Create(&b).Error; err != nil {
				return err
			}
		case err == nil:
			if err := tx.Model(&b).Updates(map[string]any{
				"scheduled_date": date,
				"time_window":    in.TimeWindow,
				"status":         models.BookingScheduled,
			}).Error; err != nil {
				return err
			}
		default:
			return err
		}

		return tx.Model(&q).Update("status", models.QuoteScheduled).Error
	})
	if err != nil {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return fe
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	utils.LogQuoteHistory(c.Context(), h.db, q.ID, adminID, "scheduled", models.QuotePaid, models.QuoteScheduled, in.TimeWindow)
	h.mail.SendBookingScheduled(q.ContactName, q.ContactEmail, in.ScheduledDate, in.TimeWindow)

	return c.JSON(fiber.Map{"ok": true, "status": models.QuoteScheduled})
}

/* =============================== Cleaners =============================== */

type cleanerRow struct {
	ID            uuid.UUID            `json:"id"`
	Name          string               `json:"name"`
	Email         string               `json:"email"`
	Status        models.CleanerStatus `json:"status"`
	Available     bool                 `json:"available"`
	ServiceAreas  string               `json:"service_areas"`
	AverageRating float64              `json:"average_rating"`
	JobsCompleted int                  `json:"jobs_completed"`
	CreatedAt     time.Time            `json:"created_at"`
}

// ListCleaners returns contractors with their user identity joined in.
func (h *Handler) ListCleaners(c *fiber.Ctx) error {
	page, size := parsePage(c)
	status := strings.TrimSpace(c.Query("status"))

	dbq := h.db.Table("cleaners").
		Select(`cleaners.id, users.name, users.email, cleaners.status, cleaners.available,
			cleaners.service_areas, cleaners.average_rating, cleaners.jobs_completed, cleaners.created_at`).
		Joins("JOIN users ON users.id = cleaners.user_id")
	if status != "" {
		dbq = dbq.Where("cleaners.status = ?", status)
	}

	var total int64
	if err := dbq.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	rows := make([]cleanerRow, 0, size)
	if err := dbq.Order("cleaners.created_at DESC").
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

type PatchCleanerRequest struct {
	Status string `json:"status" validate:"required,oneof=approved suspended pending"`
}

// PatchCleaner approves or suspends a contractor.
func (h *Handler) PatchCleaner(c *fiber.Ctx) error {
	id := c.Params("id")

	var in PatchCleanerRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	res := h.db.Model(&models.Cleaner{}).Where("id = ?", id).
		Update("status", models.CleanerStatus(in.Status))
	if res.Error != nil {
		return fiber.ErrInternalServerError
	}
	if res.RowsAffected == 0 {
		return fiber.ErrNotFound
	}
	return c.JSON(fiber.Map{"ok": true, "status": in.Status})
}

/* ============================== Transactions ============================ */

// ListTransactions is the payment audit trail.
func (h *Handler) ListTransactions(c *fiber.Ctx) error {
	page, size := parsePage(c)

	var total int64
	if err := h.db.Model(&models.Transaction{}).Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	var rows []models.Transaction
	if err := h.db.Order("created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	return c.JSON(fiber.Map{
		"page": page, "pageSize": size, "total": total,
		"pages": int(math.Ceil(float64(total) / float64(size))),
		"items": rows,
	})
}
