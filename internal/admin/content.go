package admin

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/freshnest/cleaning-backend/pkg/models"
	"github.com/freshnest/cleaning-backend/pkg/validation"
)

// ContentHandler serves the CMS tables: services, additional-service
// pricing, and site config. Admin writes, public reads.
type ContentHandler struct {
	db *gorm.DB
}

func NewContentHandler(db *gorm.DB) *ContentHandler {
	return &ContentHandler{db: db}
}

/* ================================ Services ============================== */

type ServiceRequest struct {
	Key              string `json:"key" validate:"required,min=2,max=40"`
	Name             string `json:"name" validate:"required,max=80"`
	Description      string `json:"description" validate:"omitempty,max=2000"`
	BasePriceCents   int    `json:"base_price_cents" validate:"gte=0,lte=10000000"`
	PerBedroomCents  int    `json:"per_bedroom_cents" validate:"gte=0,lte=1000000"`
	PerBathroomCents int    `json:"per_bathroom_cents" validate:"gte=0,lte=1000000"`
	Active           *bool  `json:"active"`
	DisplayOrder     int    `json:"display_order" validate:"gte=0"`
}

// PublicServices lists active services for the marketing/quote pages.
func (h *ContentHandler) PublicServices(c *fiber.Ctx) error {
	var rows []models.Service
	if err := h.db.Where("active = true").Order("display_order ASC, name ASC").Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"items": rows})
}

// ListServices lists every service row for the back office.
func (h *ContentHandler) ListServices(c *fiber.Ctx) error {
	var rows []models.Service
	if err := h.db.Order("display_order ASC, name ASC").Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"items": rows})
}

func (h *ContentHandler) CreateService(c *fiber.Ctx) error {
	var in ServiceRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	svc := models.Service{
		Key:              strings.TrimSpace(in.Key),
		Name:             strings.TrimSpace(in.Name),
		Description:      strings.TrimSpace(in.Description),
		BasePriceCents:   in.BasePriceCents,
		PerBedroomCents:  in.PerBedroomCents,
		PerBathroomCents: in.PerBathroomCents,
		DisplayOrder:     in.DisplayOrder,
		Active:           true,
	}
	if in.Active != nil {
		svc.Active = *in.Active
	}
	if err := h.db.Create(&svc).Error; err != nil {
		return fiber.NewError(fiber.StatusConflict, "service key already exists")
	}
	return c.Status(fiber.StatusCreated).JSON(svc)
}

func (h *ContentHandler) UpdateService(c *fiber.Ctx) error {
	id := c.Params("id")

	var in ServiceRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var svc models.Service
	if err := h.db.First(&svc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	updates := map[string]any{
		"key":                strings.TrimSpace(in.Key),
		"name":               strings.TrimSpace(in.Name),
		"description":        strings.TrimSpace(in.Description),
		"base_price_cents":   in.BasePriceCents,
		"per_bedroom_cents":  in.PerBedroomCents,
		"per_bathroom_cents": in.PerBathroomCents,
		"display_order":      in.DisplayOrder,
	}
	if in.Active != nil {
		updates["active"] = *in.Active
	}
	if err := h.db.Model(&svc).Updates(updates).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(svc)
}

func (h *ContentHandler) DeleteService(c *fiber.Ctx) error {
	res := h.db.Delete(&models.Service{}, "id = ?", c.Params("id"))
	if res.Error != nil {
		return fiber.ErrInternalServerError
	}
	if res.RowsAffected == 0 {
		return fiber.ErrNotFound
	}
	return c.JSON(fiber.Map{"ok": true})
}

/* ========================= Additional services ========================== */

type AdditionalServiceRequest struct {
	Key        string `json:"key" validate:"required,min=2,max=40"`
	Label      string `json:"label" validate:"required,max=80"`
	PriceCents int    `json:"price_cents" validate:"gte=0,lte=1000000"`
	Active     *bool  `json:"active"`
}

// PublicAdditionalServices lists active extras for the quote form.
func (h *ContentHandler) PublicAdditionalServices(c *fiber.Ctx) error {
	var rows []models.AdditionalServicePricing
	if err := h.db.Where("active = true").Order("label ASC").Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"items": rows})
}

func (h *ContentHandler) ListAdditionalServices(c *fiber.Ctx) error {
	var rows []models.AdditionalServicePricing
	if err := h.db.Order("label ASC").Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"items": rows})
}

func (h *ContentHandler) CreateAdditionalService(c *fiber.Ctx) error {
	var in AdditionalServiceRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	row := models.AdditionalServicePricing{
		Key:        strings.TrimSpace(in.Key),
		Label:      strings.TrimSpace(in.Label),
		PriceCents: in.PriceCents,
		Active:     true,
	}
	if in.Active != nil {
		row.Active = *in.Active
	}
	if err := h.db.Create(&row).Error; err != nil {
		return fiber.NewError(fiber.StatusConflict, "additional service key already exists")
	}
	return c.Status(fiber.StatusCreated).JSON(row)
}

func (h *ContentHandler) UpdateAdditionalService(c *fiber.Ctx) error {
	id := c.Params("id")

	var in AdditionalServiceRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var row models.AdditionalServicePricing
	if err := h.db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	updates := map[string]any{
		"key":         strings.TrimSpace(in.Key),
		"label":       strings.TrimSpace(in.Label),
		"price_cents": in.PriceCents,
	}
	if in.Active != nil {
		updates["active"] = *in.Active
	}
	if err := h.db.Model(&row).Updates(updates).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(row)
}

func (h *ContentHandler) DeleteAdditionalService(c *fiber.Ctx) error {
	res := h.db.Delete(&models.AdditionalServicePricing{}, "id = ?", c.Params("id"))
	if res.Error != nil {
		return fiber.ErrInternalServerError
	}
	if res.RowsAffected == 0 {
		return fiber.ErrNotFound
	}
	return c.JSON(fiber.Map{"ok": true})
}

/* =============================== Site config ============================ */

// PublicSiteConfig returns the key/value content map used by the marketing
// pages.
func (h *ContentHandler) PublicSiteConfig(c *fiber.Ctx) error {
	var rows []models.SiteConfig
	if err := h.db.Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return c.JSON(out)
}

type SiteConfigRequest struct {
	Values map[string]string `json:"values" validate:"required"`
}

// PutSiteConfig upserts the provided keys.
func (h *ContentHandler) PutSiteConfig(c *fiber.Ctx) error {
	var in SiteConfigRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if len(in.Values) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "values is required")
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		for k, v := range in.Values {
			var row models.SiteConfig
			err := tx.Where("key = ?", k).First(&row).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := tx.Create(&models.SiteConfig{Key: k, Value: v}).Error; err != nil {
					return err
				}
			case err == nil:
				if err := tx.Model(&row).Update("value", v).Error; err != nil {
					return err
				}
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"ok": true})
}
