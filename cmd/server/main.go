package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/stripe/stripe-go/v82"

	"github.com/freshnest/cleaning-backend/internal/admin"
	"github.com/freshnest/cleaning-backend/internal/assignments"
	"github.com/freshnest/cleaning-backend/internal/auth"
	"github.com/freshnest/cleaning-backend/internal/cleaners"
	"github.com/freshnest/cleaning-backend/internal/jobs"
	"github.com/freshnest/cleaning-backend/internal/payments"
	"github.com/freshnest/cleaning-backend/internal/quotes"
	"github.com/freshnest/cleaning-backend/internal/reviews"
	"github.com/freshnest/cleaning-backend/internal/storage"
	"github.com/freshnest/cleaning-backend/pkg/database"
	"github.com/freshnest/cleaning-backend/pkg/logging"
	"github.com/freshnest/cleaning-backend/pkg/mailer"
	"github.com/freshnest/cleaning-backend/pkg/models"
)

func main() {
	_ = godotenv.Load()
	logging.Init("cleaning-backend")
	log := logging.Logger

	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")

	db := database.Init()
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		log.Fatal("migration failed: ", err)
	}

	mail := mailer.New()
	mail.Start()
	defer mail.Close()

	cleanup := jobs.NewScheduler(db)
	cleanup.Start()
	defer cleanup.Stop()

	app := fiber.New(fiber.Config{
		ErrorHandler: auth.ErrorHandler,
	})

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })

	api := app.Group("/api")

	// Storage helper (SUPABASE_URL / SUPABASE_SERVICE_KEY / SUPABASE_BUCKET)
	sb := storage.NewSupabase()

	customer := auth.RequireSession(db, models.RoleCustomer)
	cleaner := auth.RequireSession(db, models.RoleCleaner)
	adminOnly := auth.RequireSession(db, models.RoleAdmin)
	anyRole := auth.RequireSession(db, models.RoleCustomer, models.RoleCleaner, models.RoleAdmin)

	// Auth
	authH := auth.NewHandler(db, mail)
	api.Post("/auth/register", authH.Register)
	api.Post("/auth/magic-link", authH.MagicLink)
	api.Post("/auth/verify", authH.Verify)
	api.Post("/auth/logout", authH.Logout)
	api.Get("/me", anyRole, authH.Me)
	api.Post("/admin/login", authH.AdminLogin)
	api.Post("/admin/password-reset", authH.RequestPasswordReset)
	api.Post("/admin/password-reset/confirm", authH.ConfirmPasswordReset)

	// Public content + quote form
	contentH := admin.NewContentHandler(db)
	api.Get("/services", contentH.PublicServices)
	api.Get("/additional-services", contentH.PublicAdditionalServices)
	api.Get("/site-config", contentH.PublicSiteConfig)

	quoteH := quotes.NewHandler(db, mail)
	api.Post("/quotes", quoteH.Create)

	// Customer dashboard
	api.Get("/user/quotes", customer, quoteH.ListMine)
	api.Get("/user/quotes/:id", customer, quoteH.GetDetailOwner)
	api.Post("/user/quotes/:id/decline", customer, quoteH.Decline)

	imageH := quotes.NewImageHandler(db, sb)
	api.Post("/user/quotes/:id/images", customer, imageH.Upload)
	api.Get("/images/:imageID/signed-url", anyRole, imageH.SignedDownloadURL)

	// Payments
	payH := payments.NewHandler(db, mail)
	api.Post("/user/quotes/:id/checkout", customer, payH.CreateCheckout)

	// Stripe webhook (server-only, no auth)
	api.Post("/webhook/stripe", payH.StripeWebhook)

	// Cleaner portal
	cleanerH := cleaners.NewHandler(db)
	api.Get("/cleaner/profile", cleaner, cleanerH.GetProfile)
	api.Patch("/cleaner/profile", cleaner, cleanerH.PatchProfile)
	api.Get("/cleaner/availability", cleaner, cleanerH.GetAvailability)
	api.Put("/cleaner/availability", cleaner, cleanerH.PutAvailability)

	asgH := assignments.NewHandler(db, mail)
	api.Get("/cleaner/jobs", cleaner, asgH.ListJobs)
	api.Patch("/cleaner/jobs/:id", cleaner, asgH.Respond)
	api.Post("/cleaner/jobs/:id/complete", cleaner, asgH.Complete)

	// Admin back office
	adminH := admin.NewHandler(db, mail)
	api.Get("/admin/quotes", adminOnly, adminH.ListQuotes)
	api.Get("/admin/quotes/:id", adminOnly, adminH.GetQuote)
	api.Patch("/admin/quotes/:id", adminOnly, adminH.PatchQuote)
	api.Post("/admin/quotes/:id/schedule", adminOnly, adminH.ScheduleBooking)
	api.Post("/admin/quotes/:id/assign", adminOnly, asgH.Assign)
	api.Post("/admin/quotes/:id/auto-assign", adminOnly, asgH.AutoAssign)
	api.Patch("/admin/assignments/:id", adminOnly, asgH.MarkPayout)
	api.Get("/admin/cleaners", adminOnly, adminH.ListCleaners)
	api.Patch("/admin/cleaners/:id", adminOnly, adminH.PatchCleaner)
	api.Get("/admin/transactions", adminOnly, adminH.ListTransactions)

	// Admin CMS
	api.Get("/admin/services", adminOnly, contentH.ListServices)
	api.Post("/admin/services", adminOnly, contentH.CreateService)
	api.Patch("/admin/services/:id", adminOnly, contentH.UpdateService)
	api.Delete("/admin/services/:id", adminOnly, contentH.DeleteService)
	api.Get("/admin/additional-services", adminOnly, contentH.ListAdditionalServices)
	api.Post("/admin/additional-services", adminOnly, contentH.CreateAdditionalService)
	api.Patch("/admin/additional-services/:id", adminOnly, contentH.UpdateAdditionalService)
	api.Delete("/admin/additional-services/:id", adminOnly, contentH.DeleteAdditionalService)
	api.Get("/admin/site-config", adminOnly, contentH.PublicSiteConfig)
	api.Put("/admin/site-config", adminOnly, contentH.PutSiteConfig)

	// Reviews
	reviewH := reviews.NewHandler(db)
	api.Get("/testimonials", reviewH.ListPublic)
	api.Get("/reviews/:token", reviewH.Preflight)
	api.Post("/reviews/:token", reviewH.Submit)
	api.Patch("/admin/testimonials/:id", adminOnly, reviewH.Moderate)

	// Graceful shutdown so the mail queue drains.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		_ = app.Shutdown()
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	log.Info("Server running on :" + port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatal(err)
	}
}
