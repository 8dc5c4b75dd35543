package auth

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/freshnest/cleaning-backend/pkg/mailer"
	"github.com/freshnest/cleaning-backend/pkg/models"
	"github.com/freshnest/cleaning-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

// Request body for /auth/register
type RegisterRequest struct {
	Role  string `json:"role" validate:"required,oneof=customer cleaner"`
	Name  string `json:"name" validate:"required,min=2,max=80"`
	Email string `json:"email" validate:"required,email,max=120"`
	Phone string `json:"phone" validate:"omitempty,max=20"`
	// Optional for cleaners
	Bio          string   `json:"bio" validate:"omitempty,max=1000"`
	ServiceAreas []string `json:"service_areas" validate:"omitempty,max=20,dive,postcode"`
}

// Request body for /auth/magic-link
type MagicLinkRequest struct {
	Email string `json:"email" validate:"required,email,max=120"`
}

// Request body for /auth/verify
type VerifyRequest struct {
	Token string `json:"token" validate:"required,min=32,max=128"`
}

// Request body for /admin/login
type AdminLoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required"`
}

// Request body for /admin/password-reset
type ResetRequest struct {
	Email string `json:"email" validate:"required,email,max=120"`
}

// Request body for /admin/password-reset/confirm
type ResetConfirmRequest struct {
	Token    string `json:"token" validate:"required,min=32,max=128"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// Profile response for /me
type UserProfileResponse struct {
	ID        uuid.UUID   `json:"id"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	Name      string      `json:"name"`
	Phone     string      `json:"phone"`
	CreatedAt time.Time   `json:"created_at"`
}

/* ============================== Handler ================================= */

type Handler struct {
	db   *gorm.DB
	mail *mailer.Mailer
}

func NewHandler(db *gorm.DB, mail *mailer.Mailer) *Handler {
	return &Handler{db: db, mail: mail}
}

/* =============================== Register =============================== */

// Register creates a customer or cleaner account and immediately issues a
// magic link. Cleaners start with a pending contractor profile that an admin
// has to approve before the portal opens up.
func (h *Handler) Register(c *fiber.Ctx) error {
	var in RegisterRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}

	// Normalize email
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	u := models.User{
		Email: in.Email,
		Name:  strings.TrimSpace(in.Name),
		Phone: strings.TrimSpace(in.Phone),
		Role:  models.Role(in.Role),
	}
	if err := h.db.Create(&u).Error; err != nil {
		return fiber.NewError(fiber.StatusConflict, "email already exists")
	}

	if u.Role == models.RoleCleaner {
		areas, _ := json.Marshal(in.ServiceAreas)
		cl := models.Cleaner{
			UserID:       u.ID,
			Status:       models.CleanerPending,
			ServiceAreas: string(areas),
			Bio:          strings.TrimSpace(in.Bio),
		}
		if err := h.db.Create(&cl).Error; err != nil {
			return fiber.ErrInternalServerError
		}
	}

	h.issueMagicLink(&u)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": u.ID, "role": u.Role})
}

/* ============================== Magic link ============================== */

// MagicLink issues a 15-minute single-use login token and emails it.
// Responds 200 whether or not the account exists so the endpoint can't be
// used to probe for emails.
func (h *Handler) MagicLink(c *fiber.Ctx) error {
	var in MagicLinkRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var u models.User
	err := h.db.Where("email = ? AND role IN ?", in.Email,
		[]models.Role{models.RoleCustomer, models.RoleCleaner}).First(&u).Error
	if err == nil {
		h.issueMagicLink(&u)
	}
	return c.JSON(fiber.Map{"ok": true, "message": "If the account exists, a login link is on its way"})
}

func (h *Handler) issueMagicLink(u *models.User) {
	token := NewToken()
	expires := time.Now().Add(MagicLinkTTL)
	if err := h.db.Model(u).Updates(map[string]any{
		"magic_link_token":      token,
		"magic_link_expires_at": expires,
	}).Error; err != nil {
		return
	}
	h.mail.SendMagicLink(u.Name, u.Email, token)
}

// Verify exchanges a valid magic-link token for a 7-day session cookie.
// The magic-link token is burned either way.
func (h *Handler) Verify(c *fiber.Ctx) error {
	var in VerifyRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var u models.User
	if err := h.db.Where("magic_link_token = ?", in.Token).First(&u).Error; err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired login link")
	}
	if u.MagicLinkExpiresAt == nil || u.MagicLinkExpiresAt.Before(time.Now()) {
		// Burn the stale token too.
		_ = h.db.Model(&u).Updates(map[string]any{
			"magic_link_token":      nil,
			"magic_link_expires_at": nil,
		}).Error
		return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired login link")
	}
	if u.Role == models.RoleAdmin {
		return fiber.ErrUnauthorized
	}

	session := NewToken()
	expires := time.Now().Add(SessionTTL)
	if err := h.db.Model(&u).Updates(map[string]any{
		"magic_link_token":      nil,
		"magic_link_expires_at": nil,
		"session_token":         session,
		"session_expires_at":    expires,
	}).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	SetSessionCookie(c, u.Role, session, expires)
	return c.JSON(fiber.Map{"ok": true, "role": u.Role})
}

/* ================================ Logout ================================ */

// Logout nulls the session columns for whichever session cookie is present
// and expires the cookie. Safe to call with no session at all.
func (h *Handler) Logout(c *fiber.Ctx) error {
	for _, role := range []models.Role{models.RoleCustomer, models.RoleCleaner, models.RoleAdmin} {
		token := c.Cookies(CookieName(role))
		if token == "" {
			continue
		}
		_ = h.db.Model(&models.User{}).
			Where("session_token = ? AND role = ?", token, role).
			Updates(map[string]any{
				"session_token":      nil,
				"session_expires_at": nil,
			}).Error
		ClearSessionCookie(c, role)
	}
	return c.JSON(fiber.Map{"ok": true})
}

/* ================================= Me =================================== */

// Me returns the profile of the authenticated user.
func (h *Handler) Me(c *fiber.Ctx) error {
	userID := MustUserID(c)

	var u models.User
	if err := h.db.First(&u, "id = ?", userID).Error; err != nil {
		return fiber.ErrUnauthorized
	}

	return c.JSON(UserProfileResponse{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		Name:      u.Name,
		Phone:     u.Phone,
		CreatedAt: u.CreatedAt,
	})
}

/* ============================= Admin login ============================== */

// AdminLogin checks the bcrypt password and opens an admin session.
func (h *Handler) AdminLogin(c *fiber.Ctx) error {
	var in AdminLoginRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var u models.User
	if err := h.db.Where("email = ? AND role = ?", in.Email, models.RoleAdmin).First(&u).Error; err != nil {
		return fiber.ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		return fiber.ErrUnauthorized
	}

	session := NewToken()
	expires := time.Now().Add(SessionTTL)
	if err := h.db.Model(&u).Updates(map[string]any{
		"session_token":      session,
		"session_expires_at": expires,
	}).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	SetSessionCookie(c, models.RoleAdmin, session, expires)
	return c.JSON(fiber.Map{"ok": true})
}

/* =========================== Password reset ============================= */

// RequestPasswordReset issues a 1-hour reset token for an admin account.
// Always 200, same reasoning as MagicLink.
func (h *Handler) RequestPasswordReset(c *fiber.Ctx) error {
	var in ResetRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var u models.User
	err := h.db.Where("email = ? AND role = ?", in.Email, models.RoleAdmin).First(&u).Error
	if err == nil {
		token := NewToken()
		expires := time.Now().Add(ResetTTL)
		if err := h.db.Model(&u).Updates(map[string]any{
			"reset_token":      token,
			"reset_expires_at": expires,
		}).Error; err == nil {
			h.mail.SendPasswordReset(u.Name, u.Email, token)
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"ok": true, "message": "If the account exists, a reset link is on its way"})
}

// ConfirmPasswordReset burns the token, sets the new hash, and revokes any
// open admin session.
func (h *Handler) ConfirmPasswordReset(c *fiber.Ctx) error {
	var in ResetConfirmRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var u models.User
	if err := h.db.Where("reset_token = ? AND role = ?", in.Token, models.RoleAdmin).First(&u).Error; err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired reset token")
	}
	if u.ResetExpiresAt == nil || u.ResetExpiresAt.Before(time.Now()) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired reset token")
	}

	hash, _ := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err := h.db.Model(&u).Updates(map[string]any{
		"password_hash":      string(hash),
		"reset_token":        nil,
		"reset_expires_at":   nil,
		"session_token":      nil,
		"session_expires_at": nil,
	}).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"ok": true})
}
