package payments

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/freshnest/cleaning-backend/internal/auth"
	"github.com/freshnest/cleaning-backend/pkg/logging"
	"github.com/freshnest/cleaning-backend/pkg/mailer"
	"github.com/freshnest/cleaning-backend/pkg/models"
	"github.com/freshnest/cleaning-backend/pkg/utils"
)

type Handler struct {
	db   *gorm.DB
	mail *mailer.Mailer
}

func NewHandler(db *gorm.DB, mail *mailer.Mailer) *Handler {
	return &Handler{db: db, mail: mail}
}

/* ============================== Checkout ================================ */

// CreateCheckout opens a Stripe PaymentIntent for an accepted quote. The
// amount always comes from the database, never from the client. Calling it
// again just mints a fresh intent for the same amount.
func (h *Handler) CreateCheckout(c *fiber.Ctx) error {
	customerID := auth.MustUserID(c)
	quoteID := c.Params("id")

	var q models.QuoteRequest
	if err := h.db.Where("id = ? AND customer_id = ?", quoteID, customerID).First(&q).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}
	if q.Status != models.QuoteAccepted {
		return fiber.NewError(fiber.StatusConflict, "quote is not accepted")
	}
	if q.TotalPriceCents <= 0 {
		return fiber.NewError(fiber.StatusConflict, "quote has no price")
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(int64(q.TotalPriceCents)),
		Currency:           stripe.String(string(stripe.CurrencyUSD)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.AddMetadata("quote_id", q.ID.String())
	params.AddMetadata("customer_email", q.ContactEmail)
	params.AddMetadata("customer_name", q.ContactName)

	pi, err := paymentintent.New(params)
	if err != nil {
		logging.Logger.WithError(err).Error("failed to create payment intent")
		return fiber.ErrInternalServerError
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"payment_intent_id": pi.ID,
		"client_secret":     pi.ClientSecret,
		"amount_cents":      q.TotalPriceCents,
	})
}

/* =============================== Webhook ================================ */

// StripeWebhook verifies the signature and routes payment intent events.
// Notification failures never fail the webhook response; database failures
// do, so Stripe retries.
func (h *Handler) StripeWebhook(c *fiber.Ctx) error {
	sigHeader := c.Get("Stripe-Signature")
	if sigHeader == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing Stripe-Signature header")
	}

	event, err := webhook.ConstructEvent(c.Body(), sigHeader, os.Getenv("STRIPE_WEBHOOK_SECRET"))
	if err != nil {
		logging.Logger.WithError(err).Error("Stripe webhook signature verification failed")
		return fiber.NewError(fiber.StatusBadRequest, "invalid signature")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			logging.Logger.WithError(err).Error("could not parse payment_intent.succeeded payload")
			return fiber.NewError(fiber.StatusBadRequest, "bad payload")
		}
		if err := h.HandlePaymentSucceeded(c.Context(), &pi); err != nil {
			logging.Logger.WithError(err).Errorf("failed to process payment intent %s", pi.ID)
			return fiber.ErrInternalServerError
		}
	case stripe.EventTypePaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			logging.Logger.WithError(err).Error("could not parse payment_intent.payment_failed payload")
			return fiber.NewError(fiber.StatusBadRequest, "bad payload")
		}
		if err := h.HandlePaymentFailed(c.Context(), &pi); err != nil {
			logging.Logger.WithError(err).Errorf("failed to record failed payment intent %s", pi.ID)
			return fiber.ErrInternalServerError
		}
	default:
		logging.Logger.Infof("unhandled Stripe event type: %s", event.Type)
	}

	return c.SendStatus(fiber.StatusOK)
}

// HandlePaymentSucceeded records the capture exactly once and walks the
// quote to paid. Replays of the same payment intent are acknowledged without
// a second transaction row.
func (h *Handler) HandlePaymentSucceeded(ctx context.Context, pi *stripe.PaymentIntent) error {
	quoteID, err := uuid.Parse(pi.Metadata["quote_id"])
	if err != nil {
		logging.Logger.Warnf("payment intent %s has no usable quote_id metadata", pi.ID)
		return nil // nothing to retry; acknowledge and move on
	}

	fresh := false
	var q models.QuoteRequest

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&q, "id = ?", quoteID).Error; err != nil {
			return err
		}

		// Idempotency by payment intent id.
		var cnt int64
		if err := tx.Model(&models.Transaction{}).
			Where("stripe_payment_intent_id = ?", pi.ID).
			Count(&cnt).Error; err != nil {
			return err
		}
		if cnt > 0 {
			return nil
		}
		fresh = true

		txn := models.Transaction{
			QuoteID:               q.ID,
			StripePaymentIntentID: pi.ID,
			AmountCents:           int(pi.Amount),
			Currency:              string(pi.Currency),
			Status:                models.TxSucceeded,
			CustomerEmail:         pi.Metadata["customer_email"],
			CustomerName:          pi.Metadata["customer_name"],
		}
		if err := tx.Create(&txn).Error; err != nil {
			return err
		}

		if models.CanTransition(q.Status, models.QuotePaid) {
			if err := tx.Model(&q).Update("status", models.QuotePaid).Error; err != nil {
				return err
			}
		}

		// Booking placeholder so the admin scheduling queue sees the job.
		var b models.Booking
		berr := tx.Where("quote_id = ?", q.ID).First(&b).Error
		if errors.Is(berr, gorm.ErrRecordNotFound) {
			return tx.Create(&models.Booking{
				QuoteID: q.ID,
				Status:  models.BookingPendingSchedule,
			}).Error
		}
		return berr
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logging.Logger.Warnf("payment intent %s references unknown quote %s", pi.ID, quoteID)
			return nil
		}
		return err
	}

	if fresh {
		utils.LogQuoteHistory(ctx, h.db, q.ID, q.CustomerID, "paid", models.QuoteAccepted, models.QuotePaid, pi.ID)
		h.mail.SendPaymentReceipt(q.ContactName, q.ContactEmail, int(pi.Amount), q.ID.String())
		if adminEmail := os.Getenv("ADMIN_EMAIL"); adminEmail != "" {
			h.mail.SendAdminPaymentNotice(adminEmail, q.ContactName, q.ID.String(), int(pi.Amount))
		}
	}
	return nil
}

// HandlePaymentFailed records the failed attempt (once) and nudges the
// customer to retry. The quote status is left alone.
func (h *Handler) HandlePaymentFailed(ctx context.Context, pi *stripe.PaymentIntent) error {
	quoteID, err := uuid.Parse(pi.Metadata["quote_id"])
	if err != nil {
		logging.Logger.Warnf("payment intent %s has no usable quote_id metadata", pi.ID)
		return nil
	}

	fresh := false
	var q models.QuoteRequest

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&q, "id = ?", quoteID).Error; err != nil {
			return err
		}
		var cnt int64
		if err := tx.Model(&models.Transaction{}).
			Where("stripe_payment_intent_id = ?", pi.ID).
			Count(&cnt).Error; err != nil {
			return err
		}
		if cnt > 0 {
			return nil
		}
		fresh = true
		return tx.Create(&models.Transaction{
			QuoteID:               q.ID,
			StripePaymentIntentID: pi.ID,
			AmountCents:           int(pi.Amount),
			Currency:              string(pi.Currency),
			Status:                models.TxFailed,
			CustomerEmail:         pi.Metadata["customer_email"],
			CustomerName:          pi.Metadata["customer_name"],
		}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	if fresh {
		h.mail.SendPaymentFailed(q.ContactName, q.ContactEmail, q.ID.String())
	}
	return nil
}
