package auth

import (
	"strings"

	"wasteportal-backend/internal/config"
	"wasteportal-backend/internal/database"
	"wasteportal-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 8

type BootstrapAdminRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type UserResponse struct {
	ID           uint            `json:"id"`
	Username     string          `json:"username"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	Role         models.UserRole `json:"role"`
	FacilityID   *uint           `json:"facility_id"`
	FacilityCode string          `json:"facility_code,omitempty"`
	CreatedAt    string          `json:"created_at"`
}

func ToUserResponse(u *models.User) UserResponse {
	resp := UserResponse{
		ID:         u.ID,
		Username:   u.Username,
		Name:       u.Name,
		Email:      u.Email,
		Role:       u.Role,
		FacilityID: u.FacilityID,
		CreatedAt:  u.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if u.Facility != nil {
		resp.FacilityCode = u.Facility.Code
	}
	return resp
}

// NormalizeUsername trims and lower-cases a username.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fiber.NewError(fiber.StatusBadRequest, "password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fiber.NewError(fiber.StatusInternalServerError, "could not hash password")
	}
	return string(hash), nil
}

// POST /api/auth/bootstrap-admin
// Only works while no admin exists.
func BootstrapAdminHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body BootstrapAdminRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		body.Username = NormalizeUsername(body.Username)
		body.Name = strings.TrimSpace(body.Name)
		if body.Username == "" || body.Name == "" || body.Password == "" {
			return fiber.NewError(fiber.StatusBadRequest, "username, name and password are required")
		}

		var count int64
		if err := database.DB.Model(&models.User{}).
			Where("role = ?", models.RoleAdmin).
			Count(&count).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not check existing admins")
		}
		if count > 0 {
			return fiber.NewError(fiber.StatusForbidden, "an admin already exists")
		}

		hash, err := HashPassword(body.Password)
		if err != nil {
			return err
		}

		user := models.User{
			Username:     body.Username,
			Name:         body.Name,
			PasswordHash: hash,
			Role:         models.RoleAdmin,
		}
		if err := database.DB.Create(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusConflict, "could not create admin")
		}

		return c.Status(fiber.StatusCreated).JSON(ToUserResponse(&user))
	}
}

// POST /api/auth/login
func LoginHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		body.Username = NormalizeUsername(body.Username)

		var user models.User
		if err := database.DB.Preload("Facility").Where("username = ?", body.Username).First(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid username or password")
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid username or password")
		}

		token, err := GenerateToken(cfg.JWTSecret, cfg.SessionTTL, &user)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not create token")
		}

		return c.JSON(fiber.Map{
			"token":      token,
			"expires_in": int(cfg.SessionTTL.Seconds()),
			"user":       ToUserResponse(&user),
		})
	}
}

// GET /api/auth/me
func MeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := CurrentUser(c)
		if err != nil {
			return err
		}

		if user.FacilityID != nil {
			var facility models.Facility
			if err := database.DB.First(&facility, *user.FacilityID).Error; err == nil {
				user.Facility = &facility
			}
		}

		return c.JSON(ToUserResponse(user))
	}
}

// PUT /api/auth/password
func ChangePasswordHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ChangePasswordRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		user, err := CurrentUser(c)
		if err != nil {
			return err
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.CurrentPassword)); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "current password is wrong")
		}

		hash, err := HashPassword(body.NewPassword)
		if err != nil {
			return err
		}

		if err := database.DB.Model(user).Update("password_hash", hash).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not update password")
		}

		return c.JSON(fiber.Map{"message": "password updated"})
	}
}
