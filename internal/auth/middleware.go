package auth

import (
	"errors"
	"fmt"
	"strings"

	"wasteportal-backend/internal/config"
	"wasteportal-backend/internal/database"
	"wasteportal-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	CtxUserIDKey     = "user_id"
	CtxUsernameKey   = "username"
	CtxUserRoleKey   = "user_role"
	CtxFacilityIDKey = "facility_id"
)

func JWTMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization header must be 'Bearer <token>'")
		}

		claims, err := ParseToken(cfg.JWTSecret, parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		c.Locals(CtxUserIDKey, claims.UserID)
		c.Locals(CtxUsernameKey, claims.Username)
		c.Locals(CtxUserRoleKey, claims.Role)
		c.Locals(CtxFacilityIDKey, claims.FacilityID)

		return c.Next()
	}
}

func RequireRole(allowedRoles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "role not available")
		}

		for _, r := range allowedRoles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "you are not allowed to do this")
	}
}

// Identity is the caller as carried by the token.
type Identity struct {
	UserID     uint
	Username   string
	Role       models.UserRole
	FacilityID *uint
}

func CurrentIdentity(c *fiber.Ctx) (Identity, error) {
	userID, ok := c.Locals(CtxUserIDKey).(uint)
	if !ok {
		return Identity{}, fiber.NewError(fiber.StatusUnauthorized, "user not available")
	}
	role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
	if !ok {
		return Identity{}, fiber.NewError(fiber.StatusForbidden, "role not available")
	}
	username, _ := c.Locals(CtxUsernameKey).(string)
	facilityID, _ := c.Locals(CtxFacilityIDKey).(*uint)

	return Identity{UserID: userID, Username: username, Role: role, FacilityID: facilityID}, nil
}

// CurrentUser loads the caller from the database; a deleted account is rejected.
func CurrentUser(c *fiber.Ctx) (*models.User, error) {
	id, err := CurrentIdentity(c)
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := database.DB.First(&user, id.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "account no longer exists")
		}
		return nil, fiber.NewError(fiber.StatusInternalServerError, "could not load user")
	}
	return &user, nil
}

// CanAccessFacility: supervisors only see their own facility, reviewers and admins see all.
func (id Identity) CanAccessFacility(facilityID uint) bool {
	if id.Role != models.RoleSupervisor {
		return true
	}
	return id.FacilityID != nil && *id.FacilityID == facilityID
}

// ResolveFacilityFilter returns the facility a listing is restricted to, nil meaning all.
// Supervisors are pinned to their facility; others may pass ?facility_id=.
func ResolveFacilityFilter(c *fiber.Ctx) (*uint, error) {
	id, err := CurrentIdentity(c)
	if err != nil {
		return nil, err
	}

	if id.Role == models.RoleSupervisor {
		if id.FacilityID == nil {
			return nil, fiber.NewError(fiber.StatusForbidden, "no facility assigned")
		}
		return id.FacilityID, nil
	}

	fidStr := c.Query("facility_id")
	if fidStr == "" {
		return nil, nil
	}
	var fid uint
	if _, err := fmt.Sscan(fidStr, &fid); err != nil || fid == 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid facility_id")
	}
	return &fid, nil
}
