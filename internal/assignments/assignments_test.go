package assignments

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/freshnest/cleaning-backend/internal/auth"
	"github.com/freshnest/cleaning-backend/pkg/mailer"
	"github.com/freshnest/cleaning-backend/pkg/models"
)

/* ===== helpers ===== */

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	_ = godotenv.Load()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is empty")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		sql := `
TRUNCATE TABLE
	quote_histories,
	cleaner_reviews,
	testimonials,
	review_tokens,
	transactions,
	cleaner_assignments,
	bookings,
	quote_additional_services,
	quote_images,
	quote_requests,
	cleaner_availabilities,
	cleaners,
	users,
	services,
	additional_service_pricings,
	site_configs
RESTART IDENTITY CASCADE`
		if err := db.Exec(sql).Error; err != nil {
			t.Logf("truncate failed (ignored): %v", err)
		}
	})

	return db
}

func seedQuote(t *testing.T, db *gorm.DB, status models.QuoteStatus, postcode string, totalCents int) models.QuoteRequest {
	t.Helper()
	u := models.User{
		Email: fmt.Sprintf("c+%s@test.local", uuid.NewString()),
		Name:  "Quote Owner",
		Role:  models.RoleCustomer,
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatal(err)
	}
	q := models.QuoteRequest{
		CustomerID:      u.ID,
		ContactName:     u.Name,
		ContactEmail:    u.Email,
		Address:         "1 Test St",
		Postcode:        postcode,
		PropertyType:    "house",
		ServiceType:     "general",
		TotalPriceCents: totalCents,
		Status:          status,
	}
	if err := db.Create(&q).Error; err != nil {
		t.Fatal(err)
	}
	return q
}

func seedCleaner(t *testing.T, db *gorm.DB, status models.CleanerStatus, areas string) models.Cleaner {
	t.Helper()
	u := models.User{
		Email: fmt.Sprintf("k+%s@test.local", uuid.NewString()),
		Name:  "Test Cleaner",
		Role:  models.RoleCleaner,
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatal(err)
	}
	cl := models.Cleaner{UserID: u.ID, Status: status, Available: true, ServiceAreas: areas}
	if err := db.Create(&cl).Error; err != nil {
		t.Fatal(err)
	}
	return cl
}

func seedReview(t *testing.T, db *gorm.DB, cleanerID uuid.UUID, rating int) {
	t.Helper()
	r := models.CleanerReview{CleanerID: cleanerID, QuoteID: uuid.New(), Rating: rating}
	if err := db.Create(&r).Error; err != nil {
		t.Fatal(err)
	}
}

func injectAdmin(adminID uuid.UUID) fiber.Handler {
	id := adminID.String()
	return func(c *fiber.Ctx) error {
		c.Locals("userID", id)
		c.Locals("role", string(models.RoleAdmin))
		return c.Next()
	}
}

func injectCleaner(userID, cleanerID uuid.UUID) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("userID", userID.String())
		c.Locals("role", string(models.RoleCleaner))
		c.Locals("cleanerID", cleanerID.String())
		return c.Next()
	}
}

func newAdminApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	grp := app.Group("/api/admin", injectAdmin(uuid.New()))
	grp.Post("/quotes/:id/assign", h.Assign)
	grp.Post("/quotes/:id/auto-assign", h.AutoAssign)
	grp.Patch("/assignments/:id", h.MarkPayout)
	return app
}

func newCleanerApp(h *Handler, cl models.Cleaner) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	grp := app.Group("/api/cleaner", injectCleaner(cl.UserID, cl.ID))
	grp.Get("/jobs", h.ListJobs)
	grp.Patch("/jobs/:id", h.Respond)
	grp.Post("/jobs/:id/complete", h.Complete)
	return app
}

func assignBody(cleanerID uuid.UUID, cents int) *strings.Reader {
	return strings.NewReader(fmt.Sprintf(`{"cleaner_id":%q,"payment_amount_cents":%d}`, cleanerID, cents))
}

/* ================== TESTS ================== */

func Test_Assign_SecondActiveAssignmentConflicts(t *testing.T) {
	db := openTestDB(t)
	q := seedQuote(t, db, models.QuotePaid, "2000", 10000)
	a := seedCleaner(t, db, models.CleanerApproved, `["2000"]`)
	b := seedCleaner(t, db, models.CleanerApproved, `["2000"]`)

	h := NewHandler(db, mailer.New())
	app := newAdminApp(h)

	req := httptest.NewRequest("POST", "/api/admin/quotes/"+q.ID.String()+"/assign", assignBody(a.ID, 0))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 201 {
		t.Fatalf("first assign got %d", resp.StatusCode)
	}

	req2 := httptest.NewRequest("POST", "/api/admin/quotes/"+q.ID.String()+"/assign", assignBody(b.ID, 0))
	req2.Header.Set("Content-Type", "application/json")
	resp2, _ := app.Test(req2, -1)
	if resp2.StatusCode != 409 {
		t.Fatalf("second assign got %d, want 409", resp2.StatusCode)
	}

	var cnt int64
	_ = db.Model(&models.CleanerAssignment{}).Where("quote_id = ?", q.ID).Count(&cnt).Error
	if cnt != 1 {
		t.Fatalf("want 1 assignment row, got %d", cnt)
	}
}

func Test_Assign_RejectedAssignmentFreesQuote(t *testing.T) {
	db := openTestDB(t)
	q := seedQuote(t, db, models.QuotePaid, "2000", 10000)
	a := seedCleaner(t, db, models.CleanerApproved, `["2000"]`)
	b := seedCleaner(t, db, models.CleanerApproved, `["2000"]`)

	if err := db.Create(&models.CleanerAssignment{
		QuoteID: q.ID, CleanerID: a.ID,
		Status:             models.AssignmentRejected,
		PaymentAmountCents: 7000,
		PaymentStatus:      models.PayoutUnpaid,
	}).Error; err != nil {
		t.Fatal(err)
	}

	h := NewHandler(db, mailer.New())
	app := newAdminApp(h)

	req := httptest.NewRequest("POST", "/api/admin/quotes/"+q.ID.String()+"/assign", assignBody(b.ID, 0))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 201 {
		t.Fatalf("reassign after rejection got %d", resp.StatusCode)
	}
}

func Test_Assign_DefaultPayoutIs70Percent(t *testing.T) {
	db := openTestDB(t)
	q := seedQuote(t, db, models.QuotePaid, "2000", 20000)
	cl := seedCleaner(t, db, models.CleanerApproved, `["2000"]`)

	h := NewHandler(db, mailer.New())
	app := newAdminApp(h)

	req := httptest.NewRequest("POST", "/api/admin/quotes/"+q.ID.String()+"/assign", assignBody(cl.ID, 0))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 201 {
		t.Fatalf("assign got %d", resp.StatusCode)
	}

	var asg models.CleanerAssignment
	if err := db.First(&asg, "quote_id = ?", q.ID).Error; err != nil {
		t.Fatal(err)
	}
	if asg.PaymentAmountCents != 14000 {
		t.Fatalf("payout = %d, want 14000", asg.PaymentAmountCents)
	}
}

func Test_Assign_UnpaidQuoteConflicts(t *testing.T) {
	db := openTestDB(t)
	q := seedQuote(t, db, models.QuoteQuoted, "2000", 10000)
	cl := seedCleaner(t, db, models.CleanerApproved, `["2000"]`)

	h := NewHandler(db, mailer.New())
	app := newAdminApp(h)

	req := httptest.NewRequest("POST", "/api/admin/quotes/"+q.ID.String()+"/assign", assignBody(cl.ID, 0))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 409 {
		t.Fatalf("got %d, want 409", resp.StatusCode)
	}
}

func Test_AutoAssign_PrefersHigherRatedCleaner(t *testing.T) {
	db := openTestDB(t)
	q := seedQuote(t, db, models.QuotePaid, "2000", 10000)

	low := seedCleaner(t, db, models.CleanerApproved, `["2000"]`)
	seedReview(t, db, low.ID, 3)
	high := seedCleaner(t, db, models.CleanerApproved, `["2000"]`)
	seedReview(t, db, high.ID, 5)
	// Out of area, should never be considered.
	_ = seedCleaner(t, db, models.CleanerApproved, `["4000"]`)

	h := NewHandler(db, mailer.New())
	app := newAdminApp(h)

	req := httptest.NewRequest("POST", "/api/admin/quotes/"+q.ID.String()+"/auto-assign", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 201 {
		t.Fatalf("auto-assign got %d", resp.StatusCode)
	}

	var out struct {
		Assignment models.CleanerAssignment `json:"assignment"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if out.Assignment.CleanerID != high.ID {
		t.Fatalf("picked %s, want the higher-rated %s", out.Assignment.CleanerID, high.ID)
	}
}

func Test_AutoAssign_RatingTieGoesToIdleCleaner(t *testing.T) {
	db := openTestDB(t)
	q := seedQuote(t, db, models.QuotePaid, "2000", 10000)

	busy := seedCleaner(t, db, models.CleanerApproved, `["2000"]`)
	seedReview(t, db, busy.ID, 4)
	idle := seedCleaner(t, db, models.CleanerApproved, `["2000"]`)
	seedReview(t, db, idle.ID, 4)

	// Same rating, but two jobs already on the busy cleaner's plate today.
	for i := 0; i < 2; i++ {
		other := seedQuote(t, db, models.QuotePaid, "2000", 5000)
		if err := db.Create(&models.CleanerAssignment{
			QuoteID: other.ID, CleanerID: busy.ID,
			Status:             models.AssignmentAccepted,
			PaymentAmountCents: 3500,
			PaymentStatus:      models.PayoutUnpaid,
		}).Error; err != nil {
			t.Fatal(err)
		}
	}

	h := NewHandler(db, mailer.New())
	app := newAdminApp(h)

	req := httptest.NewRequest("POST", "/api/admin/quotes/"+q.ID.String()+"/auto-assign", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 201 {
		t.Fatalf("auto-assign got %d", resp.StatusCode)
	}

	var out struct {
		Assignment models.CleanerAssignment `json:"assignment"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if out.Assignment.CleanerID != idle.ID {
		t.Fatalf("picked %s, want the idle %s", out.Assignment.CleanerID, idle.ID)
	}
}

func Test_AutoAssign_HonorsDailyCap(t *testing.T) {
	db := openTestDB(t)
	q := seedQuote(t, db, models.QuotePaid, "2000", 10000)
	cl := seedCleaner(t, db, models.CleanerApproved, `["2000"]`)

	// Three live assignments today puts the only candidate at the cap.
	for i := 0; i < 3; i++ {
		other := seedQuote(t, db, models.QuotePaid, "2000", 5000)
		if err := db.Create(&models.CleanerAssignment{
			QuoteID: other.ID, CleanerID: cl.ID,
			Status:             models.AssignmentAccepted,
			PaymentAmountCents: 3500,
			PaymentStatus:      models.PayoutUnpaid,
		}).Error; err != nil {
			t.Fatal(err)
		}
	}

	h := NewHandler(db, mailer.New())
	app := newAdminApp(h)

	req := httptest.NewRequest("POST", "/api/admin/quotes/"+q.ID.String()+"/auto-assign", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 404 {
		t.Fatalf("got %d, want 404 (no eligible cleaner)", resp.StatusCode)
	}
}

func Test_AutoAssign_AreaMatchIsExact(t *testing.T) {
	db := openTestDB(t)
	// Postcode 200 must not match a cleaner covering 2000.
	q := seedQuote(t, db, models.QuotePaid, "200", 10000)
	_ = seedCleaner(t, db, models.CleanerApproved, `["2000"]`)

	h := NewHandler(db, mailer.New())
	app := newAdminApp(h)

	req := httptest.NewRequest("POST", "/api/admin/quotes/"+q.ID.String()+"/auto-assign", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 404 {
		t.Fatalf("got %d, want 404", resp.StatusCode)
	}
}

func Test_Respond_AcceptThenComplete(t *testing.T) {
	db := openTestDB(t)
	q := seedQuote(t, db, models.QuoteScheduled, "2000", 10000)
	cl := seedCleaner(t, db, models.CleanerApproved, `["2000"]`)
	if err := db.Create(&models.Booking{QuoteID: q.ID, Status: models.BookingScheduled}).Error; err != nil {
		t.Fatal(err)
	}
	asg := models.CleanerAssignment{
		QuoteID: q.ID, CleanerID: cl.ID,
		Status:             models.AssignmentPending,
		PaymentAmountCents: 7000,
		PaymentStatus:      models.PayoutUnpaid,
	}
	if err := db.Create(&asg).Error; err != nil {
		t.Fatal(err)
	}

	h := NewHandler(db, mailer.New())
	app := newCleanerApp(h, cl)

	// Completing a pending assignment is a conflict.
	early := httptest.NewRequest("POST", "/api/cleaner/jobs/"+asg.ID.String()+"/complete", nil)
	earlyResp, _ := app.Test(early, -1)
	if earlyResp.StatusCode != 409 {
		t.Fatalf("premature complete got %d, want 409", earlyResp.StatusCode)
	}

	// Accept, then complete.
	accept := httptest.NewRequest("PATCH", "/api/cleaner/jobs/"+asg.ID.String(), strings.NewReader(`{"action":"accept"}`))
	accept.Header.Set("Content-Type", "application/json")
	acceptResp, _ := app.Test(accept, -1)
	if acceptResp.StatusCode != 200 {
		t.Fatalf("accept got %d", acceptResp.StatusCode)
	}

	complete := httptest.NewRequest("POST", "/api/cleaner/jobs/"+asg.ID.String()+"/complete", nil)
	completeResp, _ := app.Test(complete, -1)
	if completeResp.StatusCode != 200 {
		t.Fatalf("complete got %d", completeResp.StatusCode)
	}

	var qAfter models.QuoteRequest
	if err := db.First(&qAfter, "id = ?", q.ID).Error; err != nil {
		t.Fatal(err)
	}
	if qAfter.Status != models.QuoteCompleted {
		t.Fatalf("quote status = %s, want completed", qAfter.Status)
	}
	var bAfter models.Booking
	if err := db.First(&bAfter, "quote_id = ?", q.ID).Error; err != nil {
		t.Fatal(err)
	}
	if bAfter.Status != models.BookingCompleted {
		t.Fatalf("booking status = %s, want completed", bAfter.Status)
	}
	var clAfter models.Cleaner
	if err := db.First(&clAfter, "id = ?", cl.ID).Error; err != nil {
		t.Fatal(err)
	}
	if clAfter.JobsCompleted != 1 {
		t.Fatalf("jobs_completed = %d, want 1", clAfter.JobsCompleted)
	}

	var tokens int64
	_ = db.Model(&models.ReviewToken{}).Where("quote_id = ?", q.ID).Count(&tokens).Error
	if tokens != 1 {
		t.Fatalf("want 1 review token, got %d", tokens)
	}
}

func Test_Respond_RejectOnlyWhilePending(t *testing.T) {
	db := openTestDB(t)
	q := seedQuote(t, db, models.QuotePaid, "2000", 10000)
	cl := seedCleaner(t, db, models.CleanerApproved, `["2000"]`)
	asg := models.CleanerAssignment{
		QuoteID: q.ID, CleanerID: cl.ID,
		Status:             models.AssignmentAccepted,
		PaymentAmountCents: 7000,
		PaymentStatus:      models.PayoutUnpaid,
	}
	if err := db.Create(&asg).Error; err != nil {
		t.Fatal(err)
	}

	h := NewHandler(db, mailer.New())
	app := newCleanerApp(h, cl)

	req := httptest.NewRequest("PATCH", "/api/cleaner/jobs/"+asg.ID.String(), strings.NewReader(`{"action":"reject"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 409 {
		t.Fatalf("got %d, want 409", resp.StatusCode)
	}
}

func Test_ListJobs_ScopedToCleaner(t *testing.T) {
	db := openTestDB(t)
	q := seedQuote(t, db, models.QuotePaid, "2000", 10000)
	mine := seedCleaner(t, db, models.CleanerApproved, `["2000"]`)
	other := seedCleaner(t, db, models.CleanerApproved, `["2000"]`)

	for _, c := range []models.Cleaner{mine, other} {
		qq := q
		if c.ID == other.ID {
			qq = seedQuote(t, db, models.QuotePaid, "2000", 5000)
		}
		if err := db.Create(&models.CleanerAssignment{
			QuoteID: qq.ID, CleanerID: c.ID,
			Status:             models.AssignmentPending,
			PaymentAmountCents: 100,
			PaymentStatus:      models.PayoutUnpaid,
		}).Error; err != nil {
			t.Fatal(err)
		}
	}

	h := NewHandler(db, mailer.New())
	app := newCleanerApp(h, mine)

	resp, _ := app.Test(httptest.NewRequest("GET", "/api/cleaner/jobs", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("got %d", resp.StatusCode)
	}

	var out struct {
		Items []struct {
			Assignment models.CleanerAssignment `json:"assignment"`
		} `json:"items"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if len(out.Items) != 1 || out.Items[0].Assignment.CleanerID != mine.ID {
		t.Fatalf("expected only my job, got %+v", out.Items)
	}
}

func Test_MarkPayout_PaysCompletedJobOnce(t *testing.T) {
	db := openTestDB(t)
	q := seedQuote(t, db, models.QuoteCompleted, "2000", 20000)
	cl := seedCleaner(t, db, models.CleanerApproved, `["2000"]`)

	asg := models.CleanerAssignment{
		QuoteID: q.ID, CleanerID: cl.ID,
		Status:             models.AssignmentCompleted,
		PaymentAmountCents: 14000,
		PaymentStatus:      models.PayoutUnpaid,
	}
	if err := db.Create(&asg).Error; err != nil {
		t.Fatal(err)
	}

	h := NewHandler(db, mailer.New())
	app := newAdminApp(h)

	payout := func(id string) int {
		req := httptest.NewRequest("PATCH", "/api/admin/assignments/"+id, strings.NewReader(`{"payment_status":"paid"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req, -1)
		return resp.StatusCode
	}

	if code := payout(asg.ID.String()); code != 200 {
		t.Fatalf("payout got %d", code)
	}
	var got models.CleanerAssignment
	if err := db.First(&got, "id = ?", asg.ID).Error; err != nil {
		t.Fatal(err)
	}
	if got.PaymentStatus != models.PayoutPaid {
		t.Fatalf("payment_status = %q, want paid", got.PaymentStatus)
	}

	// A second attempt must not double-pay.
	if code := payout(asg.ID.String()); code != 409 {
		t.Fatalf("replay got %d, want 409", code)
	}
	if code := payout(uuid.New().String()); code != 404 {
		t.Fatalf("unknown id got %d, want 404", code)
	}
}

func Test_MarkPayout_RequiresCompletedAssignment(t *testing.T) {
	db := openTestDB(t)
	q := seedQuote(t, db, models.QuoteScheduled, "2000", 10000)
	cl := seedCleaner(t, db, models.CleanerApproved, `["2000"]`)

	asg := models.CleanerAssignment{
		QuoteID: q.ID, CleanerID: cl.ID,
		Status:             models.AssignmentAccepted,
		PaymentAmountCents: 7000,
		PaymentStatus:      models.PayoutUnpaid,
	}
	if err := db.Create(&asg).Error; err != nil {
		t.Fatal(err)
	}

	h := NewHandler(db, mailer.New())
	app := newAdminApp(h)

	req := httptest.NewRequest("PATCH", "/api/admin/assignments/"+asg.ID.String(), strings.NewReader(`{"payment_status":"paid"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 409 {
		t.Fatalf("got %d, want 409", resp.StatusCode)
	}

	var got models.CleanerAssignment
	if err := db.First(&got, "id = ?", asg.ID).Error; err != nil {
		t.Fatal(err)
	}
	if got.PaymentStatus != models.PayoutUnpaid {
		t.Fatalf("payment_status drifted to %q", got.PaymentStatus)
	}
}
