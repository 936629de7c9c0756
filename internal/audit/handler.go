package audit

import (
	"time"

	"wasteportal-backend/internal/auth"
	"wasteportal-backend/internal/config"
	"wasteportal-backend/internal/database"
	"wasteportal-backend/internal/export"
	"wasteportal-backend/internal/models"
	"wasteportal-backend/internal/query"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
)

type AuditLogResponse struct {
	ID          uint               `json:"id"`
	CreatedAt   string             `json:"created_at"`
	FacilityID  *uint              `json:"facility_id"`
	UserID      uint               `json:"user_id"`
	UserName    string             `json:"user_name"`
	EntityType  string             `json:"entity_type"`
	EntityID    uint               `json:"entity_id"`
	Action      models.AuditAction `json:"action"`
	Description string             `json:"description"`
	Reason      string             `json:"reason"`
	BeforeData  datatypes.JSON     `json:"before_data"`
	AfterData   datatypes.JSON     `json:"after_data"`
}

// GET /api/admin/audit-logs?entity_type=mess_waste&entity_id=1&user_id=2&action=edit
func ListAuditLogsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Model(&models.AuditLog{})

		if userID, err := query.OptionalUint(c, "user_id"); err != nil {
			return err
		} else if userID > 0 {
			dbq = dbq.Where("user_id = ?", userID)
		}
		if entityID, err := query.OptionalUint(c, "entity_id"); err != nil {
			return err
		} else if entityID > 0 {
			dbq = dbq.Where("entity_id = ?", entityID)
		}
		if entityType := c.Query("entity_type"); entityType != "" {
			dbq = dbq.Where("entity_type = ?", entityType)
		}
		if action := c.Query("action"); action != "" {
			dbq = dbq.Where("action = ?", action)
		}

		var logs []models.AuditLog
		if err := dbq.Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list audit logs")
		}

		resp := make([]AuditLogResponse, 0, len(logs))
		for _, log := range logs {
			resp = append(resp, AuditLogResponse{
				ID:          log.ID,
				CreatedAt:   log.CreatedAt.Format("2006-01-02 15:04:05"),
				FacilityID:  log.FacilityID,
				UserID:      log.UserID,
				UserName:    log.UserName,
				EntityType:  log.EntityType,
				EntityID:    log.EntityID,
				Action:      log.Action,
				Description: log.Description,
				Reason:      log.Reason,
				BeforeData:  log.BeforeData,
				AfterData:   log.AfterData,
			})
		}

		return c.JSON(resp)
	}
}

type EditResponse struct {
	ID           uint                  `json:"id"`
	EditedAt     string                `json:"edited_at"`
	Kind         models.SubmissionKind `json:"kind"`
	SubmissionID uint                  `json:"submission_id"`
	FacilityID   *uint                 `json:"facility_id"`
	FacilityCode string                `json:"facility_code"`
	EditorID     uint                  `json:"editor_id"`
	EditorName   string                `json:"editor_name"`
	Reason       string                `json:"reason"`
	Changes      []FieldChange         `json:"changes"`
}

// editHistory loads edit rows matching ?kind=&facility_id=&editor_id=&from=&to=.
// Days are calendar days in loc.
func editHistory(c *fiber.Ctx, loc *time.Location) ([]EditResponse, error) {
	if loc == nil {
		loc = time.UTC
	}
	dbq := database.DB.Model(&models.AuditLog{}).Where("action = ?", models.AuditActionEdit)

	if k := c.Query("kind"); k != "" {
		kind, err := models.ParseKind(k)
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "kind must be mess or hostel")
		}
		dbq = dbq.Where("entity_type = ?", string(kind))
	} else {
		dbq = dbq.Where("entity_type IN ?", []string{string(models.KindMessWaste), string(models.KindHostelWaste)})
	}

	facilityID, err := auth.ResolveFacilityFilter(c)
	if err != nil {
		return nil, err
	}
	if facilityID != nil {
		dbq = dbq.Where("facility_id = ?", *facilityID)
	}
	if editorID, err := query.OptionalUint(c, "editor_id"); err != nil {
		return nil, err
	} else if editorID > 0 {
		dbq = dbq.Where("user_id = ?", editorID)
	}

	from, to, err := query.DateRange(c)
	if err != nil {
		return nil, err
	}
	dbq = query.ApplyLocalDayRange(dbq, "created_at", from, to, loc)

	var logs []models.AuditLog
	if err := dbq.Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "could not list edits")
	}

	codes, err := database.FacilityCodes(database.DB)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "could not load facilities")
	}

	resp := make([]EditResponse, 0, len(logs))
	for _, log := range logs {
		e := EditResponse{
			ID:           log.ID,
			EditedAt:     log.CreatedAt.In(loc).Format("2006-01-02 15:04:05"),
			Kind:         models.SubmissionKind(log.EntityType),
			SubmissionID: log.EntityID,
			FacilityID:   log.FacilityID,
			EditorID:     log.UserID,
			EditorName:   log.UserName,
			Reason:       log.Reason,
			Changes:      Changes(log.BeforeData, log.AfterData),
		}
		if log.FacilityID != nil {
			e.FacilityCode = codes[*log.FacilityID]
		}
		resp = append(resp, e)
	}
	return resp, nil
}

// GET /api/edits
func EditHistoryHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		edits, err := editHistory(c, cfg.Location)
		if err != nil {
			return err
		}
		return c.JSON(edits)
	}
}

// GET /api/admin/edits/export?format=csv|xlsx
func ExportEditsHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		format, err := export.FormatFromQuery(c)
		if err != nil {
			return err
		}
		edits, err := editHistory(c, cfg.Location)
		if err != nil {
			return err
		}

		table := export.Table{
			Sheet:  "Edit History",
			Header: []string{"Edited At", "Kind", "Submission ID", "Facility", "Editor", "Reason", "Changes Made"},
		}
		for _, e := range edits {
			table.Append(e.EditedAt, e.Kind.Short(), e.SubmissionID, e.FacilityCode, e.EditorName, e.Reason, FormatChanges(e.Changes))
		}
		return export.Send(c, table, format, "edit-history")
	}
}
