package cleaners

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

func seedCleaner(t *testing.T, db *gorm.DB) models.Cleaner {
	t.Helper()
	u := models.User{
		Email: fmt.Sprintf("k+%s@test.local", uuid.NewString()),
		Name:  "Portal Cleaner",
		Role:  models.RoleCleaner,
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatal(err)
	}
	cl := models.Cleaner{
		UserID:       u.ID,
		Status:       models.CleanerApproved,
		Available:    true,
		ServiceAreas: `["2000","2010"]`,
		Bio:          "Ten years of end-of-lease work.",
	}
	if err := db.Create(&cl).Error; err != nil {
		t.Fatal(err)
	}
	return cl
}

func newPortalApp(h *Handler, cl models.Cleaner) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	grp := app.Group("/api/cleaner", func(c *fiber.Ctx) error {
		c.Locals("userID", cl.UserID.String())
		c.Locals("role", string(models.RoleCleaner))
		c.Locals("cleanerID", cl.ID.String())
		return c.Next()
	})
	grp.Get("/profile", h.GetProfile)
	grp.Patch("/profile", h.PatchProfile)
	grp.Get("/availability", h.GetAvailability)
	grp.Put("/availability", h.PutAvailability)
	return app
}

/* ================== TESTS ================== */

func Test_GetProfile_DecodesServiceAreas(t *testing.T) {
	db := openTestDB(t)
	cl := seedCleaner(t, db)

	h := NewHandler(db)
	app := newPortalApp(h, cl)

	resp, _ := app.Test(httptest.NewRequest("GET", "/api/cleaner/profile", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("got %d", resp.StatusCode)
	}

	var out struct {
		Name         string   `json:"name"`
		ServiceAreas []string `json:"service_areas"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if out.Name != "Portal Cleaner" {
		t.Fatalf("name = %q", out.Name)
	}
	if len(out.ServiceAreas) != 2 || out.ServiceAreas[0] != "2000" {
		t.Fatalf("service areas = %+v", out.ServiceAreas)
	}
}

func Test_PatchProfile_PartialUpdate(t *testing.T) {
	db := openTestDB(t)
	cl := seedCleaner(t, db)

	h := NewHandler(db)
	app := newPortalApp(h, cl)

	body := `{"available":false,"service_areas":["3000"]}`
	req := httptest.NewRequest("PATCH", "/api/cleaner/profile", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("got %d", resp.StatusCode)
	}

	var after models.Cleaner
	if err := db.First(&after, "id = ?", cl.ID).Error; err != nil {
		t.Fatal(err)
	}
	if after.Available {
		t.Fatal("available should be false")
	}
	if after.ServiceAreas != `["3000"]` {
		t.Fatalf("service_areas = %q", after.ServiceAreas)
	}
	// Untouched fields survive.
	if after.Bio != cl.Bio {
		t.Fatalf("bio changed: %q", after.Bio)
	}

	// An empty patch is a bad request.
	empty := httptest.NewRequest("PATCH", "/api/cleaner/profile", strings.NewReader(`{}`))
	empty.Header.Set("Content-Type", "application/json")
	emptyResp, _ := app.Test(empty, -1)
	if emptyResp.StatusCode != 400 {
		t.Fatalf("empty patch got %d", emptyResp.StatusCode)
	}
}

func Test_PutAvailability_ReplacesSchedule(t *testing.T) {
	db := openTestDB(t)
	cl := seedCleaner(t, db)

	if err := db.Create(&models.CleanerAvailability{
		CleanerID: cl.ID, Weekday: 0, StartTime: "08:00", EndTime: "10:00",
	}).Error; err != nil {
		t.Fatal(err)
	}

	h := NewHandler(db)
	app := newPortalApp(h, cl)

	body := `{"slots":[
		{"weekday":1,"start_time":"09:00","end_time":"12:00"},
		{"weekday":3,"start_time":"13:00","end_time":"17:00"}
	]}`
	req := httptest.NewRequest("PUT", "/api/cleaner/availability", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("got %d", resp.StatusCode)
	}

	var rows []models.CleanerAvailability
	if err := db.Where("cleaner_id = ?", cl.ID).Order("weekday ASC").Find(&rows).Error; err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("want old slot replaced, got %d rows", len(rows))
	}
	if rows[0].Weekday != 1 || rows[1].Weekday != 3 {
		t.Fatalf("rows = %+v", rows)
	}
}

func Test_PutAvailability_EmptyListClearsSchedule(t *testing.T) {
	db := openTestDB(t)
	cl := seedCleaner(t, db)

	if err := db.Create(&models.CleanerAvailability{
		CleanerID: cl.ID, Weekday: 2, StartTime: "08:00", EndTime: "10:00",
	}).Error; err != nil {
		t.Fatal(err)
	}

	h := NewHandler(db)
	app := newPortalApp(h, cl)

	req := httptest.NewRequest("PUT", "/api/cleaner/availability", strings.NewReader(`{"slots":[]}`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("got %d", resp.StatusCode)
	}

	var cnt int64
	if err := db.Model(&models.CleanerAvailability{}).Where("cleaner_id = ?", cl.ID).Count(&cnt).Error; err != nil {
		t.Fatal(err)
	}
	if cnt != 0 {
		t.Fatalf("want cleared schedule, got %d rows", cnt)
	}
}

func Test_PutAvailability_RejectsBadSlots(t *testing.T) {
	db := openTestDB(t)
	cl := seedCleaner(t, db)

	h := NewHandler(db)
	app := newPortalApp(h, cl)

	for name, body := range map[string]string{
		"inverted window": `{"slots":[{"weekday":1,"start_time":"15:00","end_time":"09:00"}]}`,
		"bad time format": `{"slots":[{"weekday":1,"start_time":"9am","end_time":"12:00"}]}`,
		"weekday range":   `{"slots":[{"weekday":7,"start_time":"09:00","end_time":"12:00"}]}`,
	} {
		req := httptest.NewRequest("PUT", "/api/cleaner/availability", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req, -1)
		if resp.StatusCode != 400 {
			t.Fatalf("%s got %d, want 400", name, resp.StatusCode)
		}
	}

	// Nothing was written.
	var cnt int64
	_ = db.Model(&models.CleanerAvailability{}).Where("cleaner_id = ?", cl.ID).Count(&cnt).Error
	if cnt != 0 {
		t.Fatalf("rows leaked: %d", cnt)
	}
}
