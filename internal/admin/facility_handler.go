// Package admin serves facility, user and storage management for administrators.
package admin

import (
	"errors"
	"fmt"
	"strings"

	"wasteportal-backend/internal/audit"
	"wasteportal-backend/internal/auth"
	"wasteportal-backend/internal/database"
	"wasteportal-backend/internal/models"
	"wasteportal-backend/internal/query"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type FacilityResponse struct {
	ID        uint   `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type CreateFacilityRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type UpdateFacilityRequest struct {
	Code *string `json:"code"`
	Name *string `json:"name"`
}

func toFacilityResponse(f models.Facility) FacilityResponse {
	return FacilityResponse{
		ID:        f.ID,
		Code:      f.Code,
		Name:      f.Name,
		CreatedAt: f.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

func codeTaken(db *gorm.DB, code string, exceptID uint) (bool, error) {
	var count int64
	if err := db.Model(&models.Facility{}).Where("code = ? AND id <> ?", code, exceptID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check facility code: %w", err)
	}
	return count > 0, nil
}

func loadFacility(c *fiber.Ctx) (models.Facility, error) {
	id, err := query.ParamID(c, "id")
	if err != nil {
		return models.Facility{}, err
	}
	var f models.Facility
	if err := database.DB.First(&f, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Facility{}, fiber.NewError(fiber.StatusNotFound, "facility not found")
		}
		return models.Facility{}, fiber.NewError(fiber.StatusInternalServerError, "could not load facility")
	}
	return f, nil
}

// POST /api/admin/facilities
func CreateFacilityHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateFacilityRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		body.Code = strings.TrimSpace(body.Code)
		body.Name = strings.TrimSpace(body.Name)
		if body.Code == "" || body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "code and name are required")
		}
		taken, err := codeTaken(database.DB, body.Code, 0)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not check facility code")
		}
		if taken {
			return fiber.NewError(fiber.StatusConflict, "facility code already exists")
		}

		admin, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		facility := models.Facility{Code: body.Code, Name: body.Name}
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&facility).Error; err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				FacilityID:  &facility.ID,
				UserID:      admin.ID,
				UserName:    admin.Name,
				EntityType:  "facility",
				EntityID:    facility.ID,
				Action:      models.AuditActionCreate,
				Description: "created facility " + facility.Code,
				After:       toFacilityResponse(facility),
			})
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fiber.NewError(fiber.StatusConflict, "facility code already exists")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not create facility")
		}

		return c.Status(fiber.StatusCreated).JSON(toFacilityResponse(facility))
	}
}

// GET /api/facilities
func ListFacilitiesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var facilities []models.Facility
		if err := database.DB.Order("code ASC").Find(&facilities).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list facilities")
		}

		res := make([]FacilityResponse, 0, len(facilities))
		for _, f := range facilities {
			res = append(res, toFacilityResponse(f))
		}
		return c.JSON(res)
	}
}

// GET /api/admin/facilities/:id
func GetFacilityHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := loadFacility(c)
		if err != nil {
			return err
		}
		return c.JSON(toFacilityResponse(f))
	}
}

// PUT /api/admin/facilities/:id
func UpdateFacilityHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		facility, err := loadFacility(c)
		if err != nil {
			return err
		}

		var body UpdateFacilityRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		before := toFacilityResponse(facility)
		if body.Code != nil {
			code := strings.TrimSpace(*body.Code)
			if code == "" {
				return fiber.NewError(fiber.StatusBadRequest, "code cannot be empty")
			}
			taken, err := codeTaken(database.DB, code, facility.ID)
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "could not check facility code")
			}
			if taken {
				return fiber.NewError(fiber.StatusConflict, "facility code already exists")
			}
			facility.Code = code
		}
		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "name cannot be empty")
			}
			facility.Name = name
		}

		admin, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Save(&facility).Error; err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				FacilityID:  &facility.ID,
				UserID:      admin.ID,
				UserName:    admin.Name,
				EntityType:  "facility",
				EntityID:    facility.ID,
				Action:      models.AuditActionUpdate,
				Description: "updated facility " + facility.Code,
				Before:      before,
				After:       toFacilityResponse(facility),
			})
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fiber.NewError(fiber.StatusConflict, "facility code already exists")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not update facility")
		}

		return c.JSON(toFacilityResponse(facility))
	}
}

// facilityInUse counts the rows that still reference a facility.
func facilityInUse(db *gorm.DB, id uint) (bool, error) {
	for _, m := range []any{&models.User{}, &models.MessWasteSubmission{}, &models.HostelWasteSubmission{}, &models.DailyWasteSummary{}} {
		var count int64
		if err := db.Model(m).Where("facility_id = ?", id).Count(&count).Error; err != nil {
			return false, fmt.Errorf("count references: %w", err)
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}

// DELETE /api/admin/facilities/:id
// Refused while users or waste records reference the facility.
func DeleteFacilityHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		facility, err := loadFacility(c)
		if err != nil {
			return err
		}

		inUse, err := facilityInUse(database.DB, facility.ID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not check facility usage")
		}
		if inUse {
			return fiber.NewError(fiber.StatusConflict, "facility is still referenced by users or waste records")
		}

		admin, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Delete(&facility).Error; err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				UserID:      admin.ID,
				UserName:    admin.Name,
				EntityType:  "facility",
				EntityID:    facility.ID,
				Action:      models.AuditActionDelete,
				Description: "deleted facility " + facility.Code,
				Before:      toFacilityResponse(facility),
			})
		})
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return fiber.NewError(fiber.StatusConflict, "facility is still referenced by users or waste records")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not delete facility")
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}
