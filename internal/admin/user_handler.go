package admin

import (
	"errors"
	"strings"

	"wasteportal-backend/internal/audit"
	"wasteportal-backend/internal/auth"
	"wasteportal-backend/internal/database"
	"wasteportal-backend/internal/models"
	"wasteportal-backend/internal/query"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CreateUserRequest struct {
	Username   string          `json:"username"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	Password   string          `json:"password"`
	Role       models.UserRole `json:"role"`
	FacilityID *uint           `json:"facility_id"`
}

type ResetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// GET /api/admin/users?role=&facility_id=
func ListUsersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		db := database.DB.Preload("Facility").Order("username ASC")
		if role := c.Query("role"); role != "" {
			if !models.UserRole(role).Valid() {
				return fiber.NewError(fiber.StatusBadRequest, "invalid role")
			}
			db = db.Where("role = ?", role)
		}
		facilityID, err := query.OptionalUint(c, "facility_id")
		if err != nil {
			return err
		}
		if facilityID != 0 {
			db = db.Where("facility_id = ?", facilityID)
		}

		var users []models.User
		if err := db.Find(&users).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list users")
		}

		res := make([]auth.UserResponse, 0, len(users))
		for i := range users {
			res = append(res, auth.ToUserResponse(&users[i]))
		}
		return c.JSON(res)
	}
}

// validateAssignment enforces that supervisors, and only supervisors, have a facility.
func validateAssignment(db *gorm.DB, role models.UserRole, facilityID *uint) error {
	if !role.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "role must be admin, pho or pho_supervisor")
	}
	if role != models.RoleSupervisor {
		if facilityID != nil {
			return fiber.NewError(fiber.StatusBadRequest, "only supervisors are assigned to a facility")
		}
		return nil
	}
	if facilityID == nil {
		return fiber.NewError(fiber.StatusBadRequest, "supervisors need a facility_id")
	}
	var count int64
	if err := db.Model(&models.Facility{}).Where("id = ?", *facilityID).Count(&count).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "could not check facility")
	}
	if count == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "facility does not exist")
	}
	return nil
}

// POST /api/admin/users
func CreateUserHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateUserRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		body.Username = auth.NormalizeUsername(body.Username)
		body.Name = strings.TrimSpace(body.Name)
		body.Email = strings.ToLower(strings.TrimSpace(body.Email))
		if body.Username == "" || body.Name == "" || body.Password == "" {
			return fiber.NewError(fiber.StatusBadRequest, "username, name and password are required")
		}
		if err := validateAssignment(database.DB, body.Role, body.FacilityID); err != nil {
			return err
		}

		var exist int64
		if err := database.DB.Model(&models.User{}).Where("username = ?", body.Username).Count(&exist).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not check username")
		}
		if exist > 0 {
			return fiber.NewError(fiber.StatusConflict, "username already taken")
		}

		hash, err := auth.HashPassword(body.Password)
		if err != nil {
			return err
		}

		admin, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		user := models.User{
			Username:     body.Username,
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: hash,
			Role:         body.Role,
			FacilityID:   body.FacilityID,
		}
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				FacilityID:  user.FacilityID,
				UserID:      admin.ID,
				UserName:    admin.Name,
				EntityType:  "user",
				EntityID:    user.ID,
				Action:      models.AuditActionCreate,
				Description: "created " + string(user.Role) + " " + user.Username,
				After:       auth.ToUserResponse(&user),
			})
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fiber.NewError(fiber.StatusConflict, "username already taken")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not create user")
		}

		if err := database.DB.Preload("Facility").First(&user, user.ID).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not load user")
		}
		return c.Status(fiber.StatusCreated).JSON(auth.ToUserResponse(&user))
	}
}

func loadUser(c *fiber.Ctx) (models.User, error) {
	id, err := query.ParamID(c, "id")
	if err != nil {
		return models.User{}, err
	}
	var u models.User
	if err := database.DB.First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, fiber.NewError(fiber.StatusNotFound, "user not found")
		}
		return models.User{}, fiber.NewError(fiber.StatusInternalServerError, "could not load user")
	}
	return u, nil
}

// DELETE /api/admin/users/:id
// Admins cannot delete themselves, and the last admin stays.
func DeleteUserHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := loadUser(c)
		if err != nil {
			return err
		}

		admin, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		if user.ID == admin.ID {
			return fiber.NewError(fiber.StatusBadRequest, "you cannot delete your own account")
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if user.Role == models.RoleAdmin {
				var admins int64
				if err := tx.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&admins).Error; err != nil {
					return err
				}
				if admins <= 1 {
					return fiber.NewError(fiber.StatusConflict, "the last admin cannot be deleted")
				}
			}
			if err := tx.Delete(&user).Error; err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				FacilityID:  user.FacilityID,
				UserID:      admin.ID,
				UserName:    admin.Name,
				EntityType:  "user",
				EntityID:    user.ID,
				Action:      models.AuditActionDelete,
				Description: "deleted " + string(user.Role) + " " + user.Username,
				Before:      auth.ToUserResponse(&user),
			})
		})
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return fe
			}
			return fiber.NewError(fiber.StatusInternalServerError, "could not delete user")
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}

// PUT /api/admin/users/:id/password
func ResetPasswordHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := loadUser(c)
		if err != nil {
			return err
		}

		var body ResetPasswordRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		hash, err := auth.HashPassword(body.NewPassword)
		if err != nil {
			return err
		}

		admin, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&user).Update("password_hash", hash).Error; err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				FacilityID:  user.FacilityID,
				UserID:      admin.ID,
				UserName:    admin.Name,
				EntityType:  "user",
				EntityID:    user.ID,
				Action:      models.AuditActionUpdate,
				Description: "reset password of " + user.Username,
			})
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not reset password")
		}

		return c.JSON(fiber.Map{"message": "password reset"})
	}
}
