package assignments

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/freshnest/cleaning-backend/internal/auth"
	"github.com/freshnest/cleaning-backend/pkg/mailer"
	"github.com/freshnest/cleaning-backend/pkg/models"
	"github.com/freshnest/cleaning-backend/pkg/utils"
	"github.com/freshnest/cleaning-backend/pkg/validation"
)

// DefaultPayoutPercent is the contractor's cut of the quote total.
const DefaultPayoutPercent = 70

// ReviewTokenTTL is how long a review link stays redeemable.
const ReviewTokenTTL = 14 * 24 * time.Hour

type Handler struct {
	db   *gorm.DB
	mail *mailer.Mailer
}

func NewHandler(db *gorm.DB, mail *mailer.Mailer) *Handler {
	return &Handler{db: db, mail: mail}
}

var errAlreadyAssigned = fiber.NewError(fiber.StatusConflict, "quote already has an active assignment")

/* ============================ Admin: assign ============================= */

type AssignRequest struct {
	CleanerID          string `json:"cleaner_id" validate:"required,uuid4"`
	PaymentAmountCents int    `json:"payment_amount_cents" validate:"omitempty,gte=0,lte=10000000"`
}

// Assign links a chosen cleaner to a paid/scheduled quote. The quote row is
// locked for the duration so two admins can't double-book the job.
func (h *Handler) Assign(c *fiber.Ctx) error {
	adminID, _ := uuid.Parse(auth.MustUserID(c))
	quoteID := c.Params("id")

	var in AssignRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	cleanerID, err := uuid.Parse(in.CleanerID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid cleaner_id")
	}

	var cl models.Cleaner
	if err := h.db.First(&cl, "id = ?", cleanerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}
	if cl.Status != models.CleanerApproved {
		return fiber.NewError(fiber.StatusConflict, "cleaner is not approved")
	}

	asg, err := h.createAssignment(quoteID, cl.ID, in.PaymentAmountCents)
	if err != nil {
		return err
	}

	utils.LogQuoteHistory(c.Context(), h.db, asg.QuoteID, adminID, "assigned", "", "", cl.ID.String())
	h.notifyCleaner(cl, asg)

	return c.Status(fiber.StatusCreated).JSON(asg)
}

// AutoAssign picks the best available cleaner for the quote's area: approved
// and available, service area matching the postcode, ranked by average
// rating (desc) then today's assignment count (asc), capped at 3 jobs a day.
func (h *Handler) AutoAssign(c *fiber.Ctx) error {
	adminID, _ := uuid.Parse(auth.MustUserID(c))
	quoteID := c.Params("id")

	var q models.QuoteRequest
	if err := h.db.First(&q, "id = ?", quoteID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	cand, err := h.pickCleaner(q.Postcode)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	if cand == nil {
		return fiber.NewError(fiber.StatusNotFound, "no eligible cleaner for this area")
	}

	asg, err := h.createAssignment(quoteID, cand.CleanerID, 0)
	if err != nil {
		return err
	}

	var cl models.Cleaner
	if err := h.db.First(&cl, "id = ?", cand.CleanerID).Error; err == nil {
		h.notifyCleaner(cl, asg)
	}

	utils.LogQuoteHistory(c.Context(), h.db, asg.QuoteID, adminID, "auto_assigned", "", "", cand.CleanerID.String())
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"assignment":     asg,
		"average_rating": cand.AvgRating,
		"today_count":    cand.TodayCount,
	})
}

// Candidate is one scoring row from the auto-assignment query.
type Candidate struct {
	CleanerID  uuid.UUID `json:"cleaner_id"`
	AvgRating  float64   `json:"avg_rating"`
	TodayCount int64     `json:"today_count"`
}

// pickCleaner runs the scoring query. The service-area match is a LIKE
// against the JSON-encoded array; the element is quoted to avoid prefix
// false-positives.
func (h *Handler) pickCleaner(postcode string) (*Candidate, error) {
	startOfDay := time.Now().Truncate(24 * time.Hour)

	var rows []Candidate
	err := h.db.Table("cleaners").
		Select(`cleaners.id AS cleaner_id,
			COALESCE(AVG(cleaner_reviews.rating), 0) AS avg_rating,
			COUNT(DISTINCT today.id) AS today_count`).
		Joins("LEFT JOIN cleaner_reviews ON cleaner_reviews.cleaner_id = cleaners.id").
		Joins(`LEFT JOIN cleaner_assignments AS today
			ON today.cleaner_id = cleaners.id
			AND today.created_at >= ?
			AND today.status <> ?`, startOfDay, models.AssignmentRejected).
		Where("cleaners.status = ? AND cleaners.available = true", models.CleanerApproved).
		Where("cleaners.service_areas LIKE ?", `%"`+postcode+`"%`).
		Group("cleaners.id").
		Having("COUNT(DISTINCT today.id) < ?", 3).
		Order("avg_rating DESC, today_count ASC").
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// createAssignment is the shared guarded insert. It locks the quote row,
// requires a paid or scheduled quote, and rejects when an active assignment
// already exists. Payout defaults to 70% of the quote total.
func (h *Handler) createAssignment(quoteID string, cleanerID uuid.UUID, payoutCents int) (*models.CleanerAssignment, error) {
	var asg models.CleanerAssignment
	err := h.db.Transaction(func(tx *gorm.DB) error {
		var q models.QuoteRequest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&q, "id = ?", quoteID).Error; err != nil {
			return err
		}
		if q.Status != models.QuotePaid && q.Status != models.QuoteScheduled {
			return fiber.NewError(fiber.StatusConflict, "quote is not paid")
		}

		var active int64
		if err := tx.Model(&models.CleanerAssignment{}).
			Where("quote_id = ? AND status IN ?", q.ID, models.ActiveAssignmentStatuses).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return errAlreadyAssigned
		}

		if payoutCents <= 0 {
			payoutCents = q.TotalPriceCents * DefaultPayoutPercent / 100
		}
		asg = models.CleanerAssignment{
			QuoteID:            q.ID,
			CleanerID:          cleanerID,
			Status:             models.AssignmentPending,
			PaymentAmountCents: payoutCents,
			PaymentStatus:      models.PayoutUnpaid,
		}
		return tx.Create(&asg).Error
	})
	if err != nil {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return nil, fe
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.ErrNotFound
		}
		return nil, fiber.ErrInternalServerError
	}
	return &asg, nil
}

func (h *Handler) notifyCleaner(cl models.Cleaner, asg *models.CleanerAssignment) {
	var u models.User
	if err := h.db.First(&u, "id = ?", cl.UserID).Error; err != nil {
		return
	}
	var q models.QuoteRequest
	suburb := ""
	if err := h.db.First(&q, "id = ?", asg.QuoteID).Error; err == nil {
		suburb = q.Postcode
	}
	h.mail.SendCleanerAssignment(u.Name, u.Email, suburb, asg.PaymentAmountCents)
}

/* ============================ Cleaner: jobs ============================= */

type jobItem struct {
	Assignment models.CleanerAssignment `json:"assignment"`
	Quote      models.QuoteRequest      `json:"quote"`
	Booking    *models.Booking          `json:"booking,omitempty"`
}

// ListJobs returns the cleaner's assignments with the quote and booking
// context they need to do the work.
func (h *Handler) ListJobs(c *fiber.Ctx) error {
	cleanerID := auth.MustCleanerID(c)

	var asgs []models.CleanerAssignment
	if err := h.db.Where("cleaner_id = ?", cleanerID).
		Order("created_at DESC").Find(&asgs).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	items := make([]jobItem, 0, len(asgs))
	for _, a := range asgs {
		var q models.QuoteRequest
		if err := h.db.First(&q, "id = ?", a.QuoteID).Error; err != nil {
			continue
		}
		item := jobItem{Assignment: a, Quote: q}
		var b models.Booking
		if err := h.db.Where("quote_id = ?", a.QuoteID).First(&b).Error; err == nil {
			item.Booking = &b
		}
		items = append(items, item)
	}

	return c.JSON(fiber.Map{"items": items})
}

/* ======================== Cleaner: accept/reject ======================== */

type RespondRequest struct {
	Action string `json:"action" validate:"required,oneof=accept reject"`
}

// Respond lets the cleaner accept or reject a pending offer. Rejecting frees
// the quote for reassignment.
func (h *Handler) Respond(c *fiber.Ctx) error {
	cleanerID := auth.MustCleanerID(c)
	id := c.Params("id")

	var in RespondRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var asg models.CleanerAssignment
	if err := h.db.Where("id = ? AND cleaner_id = ?", id, cleanerID).First(&asg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}
	if asg.Status != models.AssignmentPending {
		return fiber.NewError(fiber.StatusConflict, "assignment is no longer pending")
	}

	next := models.AssignmentAccepted
	if in.Action == "reject" {
		next = models.AssignmentRejected
	}
	if err := h.db.Model(&asg).Update("status", next).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	return c.JSON(fiber.Map{"id": asg.ID, "status": next})
}

/* ========================== Cleaner: complete =========================== */

// Complete closes out an accepted job: assignment completed, quote and
// booking completed, jobs tally bumped, review token issued. A pending
// assignment cannot be completed directly.
func (h *Handler) Complete(c *fiber.Ctx) error {
	cleanerID := auth.MustCleanerID(c)
	id := c.Params("id")

	var asg models.CleanerAssignment
	var q models.QuoteRequest
	var token models.ReviewToken

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND cleaner_id = ?", id, cleanerID).
			First(&asg).Error; err != nil {
			return err
		}
		if asg.Status != models.AssignmentAccepted {
			return fiber.NewError(fiber.StatusConflict, "only an accepted assignment can be completed")
		}

		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&q, "id = ?", asg.QuoteID).Error; err != nil {
			return err
		}
		if !models.CanTransition(q.Status, models.QuoteCompleted) {
			return fiber.NewError(fiber.StatusConflict, "quote is not scheduled")
		}

		if err := tx.Model(&asg).Update("status", models.AssignmentCompleted).Error; err != nil {
			return err
		}
		if err := tx.Model(&q).Update("status", models.QuoteCompleted).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Booking{}).
			Where("quote_id = ?", q.ID).
			Update("status", models.BookingCompleted).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Cleaner{}).
			Where("id = ?", asg.CleanerID).
			UpdateColumn("jobs_completed", gorm.Expr("jobs_completed + 1")).Error; err != nil {
			return err
		}

		token = models.ReviewToken{
			QuoteID:   q.ID,
			Token:     auth.NewToken(),
			Email:     q.ContactEmail,
			ExpiresAt: time.Now().Add(ReviewTokenTTL),
		}
		return tx.Create(&token).Error
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

	cid, _ := uuid.Parse(cleanerID)
	utils.LogQuoteHistory(c.Context(), h.db, q.ID, cid, "completed", models.QuoteScheduled, models.QuoteCompleted, "")

	h.mail.SendReviewRequest(q.ContactName, q.ContactEmail, token.Token)

	return c.JSON(fiber.Map{"ok": true, "status": models.AssignmentCompleted})
}

/* =========================== Admin: payouts ============================= */

type PayoutRequest struct {
	PaymentStatus string `json:"payment_status" validate:"required,oneof=paid"`
}

// MarkPayout records that a completed job's contractor cut has been sent.
// Only a completed assignment can be paid out, and only once.
func (h *Handler) MarkPayout(c *fiber.Ctx) error {
	id := c.Params("id")

	var in PayoutRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var asg models.CleanerAssignment
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&asg, "id = ?", id).Error; err != nil {
			return err
		}
		if asg.Status != models.AssignmentCompleted {
			return fiber.NewError(fiber.StatusConflict, "only a completed assignment can be paid out")
		}
		if asg.PaymentStatus == models.PayoutPaid {
			return fiber.NewError(fiber.StatusConflict, "payout already recorded")
		}
		return tx.Model(&asg).Update("payment_status", models.PayoutPaid).Error
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

	var cl models.Cleaner
	if err := h.db.First(&cl, "id = ?", asg.CleanerID).Error; err == nil {
		var u models.User
		if err := h.db.First(&u, "id = ?", cl.UserID).Error; err == nil {
			h.mail.SendCleanerPayment(u.Name, u.Email, asg.PaymentAmountCents)
		}
	}

	return c.JSON(fiber.Map{"id": asg.ID, "payment_status": models.PayoutPaid})
}
