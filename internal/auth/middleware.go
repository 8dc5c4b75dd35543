package auth

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/freshnest/cleaning-backend/pkg/models"
)

/* =============================== Cookies ================================ */

// One cookie name per actor so the customer dashboard, cleaner portal, and
// admin back office can coexist in the same browser.
const (
	CookieCustomer = "session"
	CookieCleaner  = "cleaner_session"
	CookieAdmin    = "admin_session"
)

// CookieName returns the session cookie used for a role.
func CookieName(role models.Role) string {
	switch role {
	case models.RoleCleaner:
		return CookieCleaner
	case models.RoleAdmin:
		return CookieAdmin
	default:
		return CookieCustomer
	}
}

// SetSessionCookie writes the role's session cookie (httpOnly, lax, secure
// outside dev).
func SetSessionCookie(c *fiber.Ctx, role models.Role, token string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     CookieName(role),
		Value:    token,
		Expires:  expires,
		HTTPOnly: true,
		SameSite: "Lax",
		Secure:   os.Getenv("APP_ENV") != "dev",
		Path:     "/",
	})
}

// ClearSessionCookie expires the role's session cookie.
func ClearSessionCookie(c *fiber.Ctx, role models.Role) {
	c.Cookie(&fiber.Cookie{
		Name:     CookieName(role),
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		SameSite: "Lax",
		Secure:   os.Getenv("APP_ENV") != "dev",
		Path:     "/",
	})
}

/* ============================== Middleware ============================== */

// RequireSession validates the session cookie for any of the given roles and
// injects userID and role into the context. Cleaner sessions additionally
// require an approved contractor profile and inject cleanerID.
//
// This is the single session check for all three actors; the role decides
// which cookie is consulted and what extra conditions apply.
func RequireSession(db *gorm.DB, roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		for _, role := range roles {
			token := c.Cookies(CookieName(role))
			if token == "" {
				continue
			}

			var u models.User
			err := db.Where("session_token = ? AND role = ?", token, role).First(&u).Error
			if err != nil {
				continue
			}
			// Expired tokens are rejected even when the string matches.
			if u.SessionExpiresAt == nil || u.SessionExpiresAt.Before(time.Now()) {
				continue
			}

			if role == models.RoleCleaner {
				var cl models.Cleaner
				if err := db.Where("user_id = ?", u.ID).First(&cl).Error; err != nil {
					return fiber.ErrUnauthorized
				}
				if cl.Status != models.CleanerApproved {
					return fiber.NewError(fiber.StatusForbidden, "cleaner profile is not approved")
				}
				c.Locals("cleanerID", cl.ID.String())
			}

			c.Locals("userID", u.ID.String())
			c.Locals("role", string(role))
			return c.Next()
		}
		return fiber.ErrUnauthorized
	}
}

// MustUserID reads the authenticated user ID from context or panics (programming error).
func MustUserID(c *fiber.Ctx) string {
	if v := c.Locals("userID"); v != nil {
		return v.(string)
	}
	panic(errors.New("user not in context"))
}

// MustRole reads the authenticated user role from context or panics (programming error).
func MustRole(c *fiber.Ctx) string {
	if v := c.Locals("role"); v != nil {
		return v.(string)
	}
	panic(errors.New("role not in context"))
}

// MustCleanerID reads the cleaner profile ID set by RequireSession(cleaner).
func MustCleanerID(c *fiber.Ctx) string {
	if v := c.Locals("cleanerID"); v != nil {
		return v.(string)
	}
	panic(errors.New("cleaner not in context"))
}

/* =========================== Error Formatting =========================== */

// httpCodeToString converts an HTTP status code to a short, stable string.
func httpCodeToString(code int) string {
	switch code {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusConflict:
		return "CONFLICT"
	case fiber.StatusUnprocessableEntity:
		return "UNPROCESSABLE_ENTITY"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

// ErrorHandler is a global Fiber error handler that returns a consistent JSON shape.
func ErrorHandler(c *fiber.Ctx, err error) error {
	// Defaults
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"

	// Fiber errors carry status codes
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		if strings.TrimSpace(e.Message) != "" {
			msg = e.Message
		} else {
			msg = fiber.ErrInternalServerError.Message
			switch code {
			case fiber.StatusBadRequest:
				msg = fiber.ErrBadRequest.Message
			case fiber.StatusUnauthorized:
				msg = fiber.ErrUnauthorized.Message
			case fiber.StatusForbidden:
				msg = fiber.ErrForbidden.Message
			case fiber.StatusNotFound:
				msg = fiber.ErrNotFound.Message
			case fiber.StatusConflict:
				msg = fiber.ErrConflict.Message
			}
		}
	}

	return c.Status(code).JSON(models.ErrorResponse{
		Code:    httpCodeToString(code),
		Error:   true,
		Message: msg,
	})
}
