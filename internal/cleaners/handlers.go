package cleaners

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/freshnest/cleaning-backend/internal/auth"
	"github.com/freshnest/cleaning-backend/pkg/models"
	"github.com/freshnest/cleaning-backend/pkg/validation"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler { return &Handler{db: db} }

/* ================================ Profile =============================== */

type profileResponse struct {
	ID            uuid.UUID            `json:"id"`
	Name          string               `json:"name"`
	Email         string               `json:"email"`
	Status        models.CleanerStatus `json:"status"`
	Available     bool                 `json:"available"`
	ServiceAreas  []string             `json:"service_areas"`
	Bio           string               `json:"bio"`
	AverageRating float64              `json:"average_rating"`
	JobsCompleted int                  `json:"jobs_completed"`
}

// GetProfile returns the cleaner's own contractor profile.
func (h *Handler) GetProfile(c *fiber.Ctx) error {
	cleanerID := auth.MustCleanerID(c)

	var cl models.Cleaner
	if err := h.db.First(&cl, "id = ?", cleanerID).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	var u models.User
	if err := h.db.First(&u, "id = ?", cl.UserID).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	areas := []string{}
	_ = json.Unmarshal([]byte(cl.ServiceAreas), &areas)

	return c.JSON(profileResponse{
		ID:            cl.ID,
		Name:          u.Name,
		Email:         u.Email,
		Status:        cl.Status,
		Available:     cl.Available,
		ServiceAreas:  areas,
		Bio:           cl.Bio,
		AverageRating: cl.AverageRating,
		JobsCompleted: cl.JobsCompleted,
	})
}

type PatchProfileRequest struct {
	Bio          *string  `json:"bio" validate:"omitempty,max=1000"`
	Available    *bool    `json:"available"`
	ServiceAreas []string `json:"service_areas" validate:"omitempty,max=20,dive,postcode"`
}

// PatchProfile updates bio, availability toggle, and service areas.
// Approval status is admin-only and not touchable here.
func (h *Handler) PatchProfile(c *fiber.Ctx) error {
	cleanerID := auth.MustCleanerID(c)

	var in PatchProfileRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	updates := map[string]any{}
	if in.Bio != nil {
		updates["bio"] = strings.TrimSpace(*in.Bio)
	}
	if in.Available != nil {
		updates["available"] = *in.Available
	}
	if in.ServiceAreas != nil {
		areas, _ := json.Marshal(in.ServiceAreas)
		updates["service_areas"] = string(areas)
	}
	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "nothing to update")
	}

	if err := h.db.Model(&models.Cleaner{}).Where("id = ?", cleanerID).
		Updates(updates).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return h.GetProfile(c)
}

/* ============================== Availability ============================ */

type slotDTO struct {
	Weekday   int    `json:"weekday" validate:"gte=0,lte=6"`
	StartTime string `json:"start_time" validate:"required,timeofday"`
	EndTime   string `json:"end_time" validate:"required,timeofday"`
}

type PutAvailabilityRequest struct {
	Slots []slotDTO `json:"slots" validate:"omitempty,max=21,dive"`
}

// GetAvailability lists the cleaner's weekly slots.
func (h *Handler) GetAvailability(c *fiber.Ctx) error {
	cleanerID := auth.MustCleanerID(c)

	var rows []models.CleanerAvailability
	if err := h.db.Where("cleaner_id = ?", cleanerID).
		Order("weekday ASC, start_time ASC").Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"items": rows})
}

// PutAvailability replaces the weekly schedule wholesale.
func (h *Handler) PutAvailability(c *fiber.Ctx) error {
	cleanerID := auth.MustCleanerID(c)

	var in PutAvailabilityRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	for _, s := range in.Slots {
		if s.StartTime >= s.EndTime {
			return fiber.NewError(fiber.StatusBadRequest, "start_time must be before end_time")
		}
	}

	clID, err := uuid.Parse(cleanerID)
	if err != nil {
		return fiber.ErrInternalServerError
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cleaner_id = ?", clID).
			Delete(&models.CleanerAvailability{}).Error; err != nil {
			return err
		}
		for _, s := range in.Slots {
			row := models.CleanerAvailability{
				CleanerID: clID,
				Weekday:   s.Weekday,
				StartTime: s.StartTime,
				EndTime:   s.EndTime,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}
	return h.GetAvailability(c)
}
