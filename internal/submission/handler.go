package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"wasteportal-backend/internal/audit"
	"wasteportal-backend/internal/auth"
	"wasteportal-backend/internal/config"
	"wasteportal-backend/internal/database"
	"wasteportal-backend/internal/export"
	"wasteportal-backend/internal/models"
	"wasteportal-backend/internal/query"
	"wasteportal-backend/internal/storage"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// now is replaced in tests.
var now = time.Now

const maxRemarks = 1000

type createMeta struct {
	Date    string `json:"date"`
	Remarks string `json:"remarks"`
}

// readPayload returns the JSON payload and uploaded images of a create request.
// Multipart requests carry the JSON in a "payload" field and photos in "images".
func readPayload(c *fiber.Ctx) ([]byte, []*multipart.FileHeader, error) {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return c.Body(), nil, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil, fiber.NewError(fiber.StatusBadRequest, "invalid multipart form")
	}
	values := form.Value["payload"]
	if len(values) == 0 || strings.TrimSpace(values[0]) == "" {
		return nil, nil, fiber.NewError(fiber.StatusBadRequest, "payload field is required")
	}
	return []byte(values[0]), form.File["images"], nil
}

// Decode parses and validates a create payload. today is the current calendar day.
func Decode(kind models.SubmissionKind, payload []byte, today time.Time) (models.Submission, error) {
	var meta createMeta
	if err := json.Unmarshal(payload, &meta); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid JSON payload")
	}

	date, err := query.ParseDate(strings.TrimSpace(meta.Date))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	if date.After(models.DateOnly(today)) {
		return nil, fiber.NewError(fiber.StatusBadRequest, "date cannot be in the future")
	}

	remarks := strings.TrimSpace(meta.Remarks)
	if len(remarks) > maxRemarks {
		return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("remarks longer than %d characters", maxRemarks))
	}

	sub, err := models.NewSubmission(kind)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := json.Unmarshal(payload, sub.Quantities()); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "quantities must be numbers")
	}
	if err := sub.Validate(); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	sub.Recalculate()

	m := sub.GetMeta()
	m.Date = date
	m.Remarks = remarks
	return sub, nil
}

// POST /api/submissions/mess
// POST /api/submissions/hostel
func CreateHandler(kind models.SubmissionKind, cfg *config.Config, store storage.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}
		if id.FacilityID == nil {
			return fiber.NewError(fiber.StatusForbidden, "no facility assigned")
		}
		user, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		payload, files, err := readPayload(c)
		if err != nil {
			return err
		}

		at := now().In(cfg.Location)
		sub, err := Decode(kind, payload, at)
		if err != nil {
			return err
		}

		if err := storage.ValidateImages(files, cfg.MaxUploadFiles, cfg.MaxUploadBytes); err != nil {
			var uploadErr *storage.UploadError
			if errors.As(err, &uploadErr) {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, "could not read uploaded images")
		}

		meta := sub.GetMeta()
		meta.FacilityID = *id.FacilityID
		meta.Status = models.StatusPending
		meta.SubmittedBy = user.ID
		meta.SubmittedByName = user.Name
		meta.Reference = NewReference(kind, meta.Date)

		if kind == models.KindMessWaste {
			dup, err := HasActiveMess(database.DB, meta.FacilityID, meta.Date)
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "could not check existing submissions")
			}
			if dup {
				return fiber.NewError(fiber.StatusConflict, "mess data for this date was already submitted")
			}
		}

		var facility models.Facility
		if err := database.DB.Select("code").First(&facility, meta.FacilityID).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not load facility")
		}

		images, err := storage.SaveImages(c.UserContext(), store, storage.BucketFor(cfg, kind), kind, user.Username, user.ID, files, at)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, "could not store images")
		}

		// The unique index on active mess rows settles concurrent submissions for the same day.
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(sub).Error; err != nil {
				return fmt.Errorf("create submission: %w", err)
			}
			for i := range images {
				images[i].SubmissionID = sub.GetID()
			}
			if len(images) > 0 {
				if err := tx.Create(&images).Error; err != nil {
					return fmt.Errorf("create images: %w", err)
				}
			}
			return audit.WriteLog(tx, audit.LogOptions{
				FacilityID:  &meta.FacilityID,
				UserID:      user.ID,
				UserName:    user.Name,
				EntityType:  string(kind),
				EntityID:    sub.GetID(),
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("submitted %s for %s (%.2f kg)", meta.Reference, meta.Date.Format("2006-01-02"), sub.Total()),
				After:       sub.Values(),
			})
		})
		if err != nil {
			storage.RemoveImages(context.Background(), store, images)
			if kind == models.KindMessWaste && errors.Is(err, gorm.ErrDuplicatedKey) {
				return fiber.NewError(fiber.StatusConflict, "mess data for this date was already submitted")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "could not save submission")
		}

		return c.Status(fiber.StatusCreated).JSON(ToResponse(sub, facility.Code, images))
	}
}

// Responses renders submissions with their images and facility codes.
func Responses(db *gorm.DB, subs []models.Submission) ([]SubmissionResponse, error) {
	ids := map[models.SubmissionKind][]uint{}
	for _, s := range subs {
		ids[s.Kind()] = append(ids[s.Kind()], s.GetID())
	}
	images := map[models.SubmissionKind]map[uint][]models.SubmissionImage{}
	for kind, list := range ids {
		m, err := Images(db, kind, list...)
		if err != nil {
			return nil, err
		}
		images[kind] = m
	}
	codes, err := database.FacilityCodes(db)
	if err != nil {
		return nil, err
	}

	resp := make([]SubmissionResponse, 0, len(subs))
	for _, s := range subs {
		resp = append(resp, ToResponse(s, codes[s.GetMeta().FacilityID], images[s.Kind()][s.GetID()]))
	}
	return resp, nil
}

// mineFilter reads ?kind=&status=&from=&to= for the caller's own submissions.
func mineFilter(c *fiber.Ctx) (Filter, error) {
	id, err := auth.CurrentIdentity(c)
	if err != nil {
		return Filter{}, err
	}
	f := Filter{SubmittedBy: id.UserID}

	if k := c.Query("kind"); k != "" {
		if f.Kind, err = models.ParseKind(k); err != nil {
			return Filter{}, fiber.NewError(fiber.StatusBadRequest, "kind must be mess or hostel")
		}
	}
	if s := c.Query("status"); s != "" {
		if f.Status, err = models.ParseStatus(s); err != nil {
			return Filter{}, fiber.NewError(fiber.StatusBadRequest, "status must be pending, verified or rejected")
		}
	}
	if f.From, f.To, err = query.DateRange(c); err != nil {
		return Filter{}, err
	}
	return f, nil
}

// GET /api/submissions/mine?kind=&status=&from=&to=
func ListMineHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := mineFilter(c)
		if err != nil {
			return err
		}
		subs, err := List(database.DB, f)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list submissions")
		}
		resp, err := Responses(database.DB, subs)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list submissions")
		}
		return c.JSON(resp)
	}
}

// GET /api/submissions/mine/export?kind=&status=&format=csv|xlsx
func ExportMineHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		format, err := export.FormatFromQuery(c)
		if err != nil {
			return err
		}
		f, err := mineFilter(c)
		if err != nil {
			return err
		}
		subs, err := List(database.DB, f)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list submissions")
		}
		resp, err := Responses(database.DB, subs)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list submissions")
		}

		table := export.Table{
			Sheet:  "My Submissions",
			Header: []string{"Reference", "Kind", "Facility", "Date", "Status", "Total Waste (kg)", "Images", "Submitted At", "Reviewed By", "Reviewed At", "Reject Reason", "Remarks"},
		}
		for _, r := range resp {
			table.Append(r.Reference, r.Kind.Short(), r.FacilityCode, r.Date, string(r.Status), r.Total,
				len(r.Images), r.SubmittedAt, r.ReviewedByName, r.ReviewedAt, r.RejectReason, r.Remarks)
		}
		return export.Send(c, table, format, "my-submissions")
	}
}

// KindAndID reads the :kind and :id path parameters.
func KindAndID(c *fiber.Ctx) (models.SubmissionKind, uint, error) {
	kind, err := models.ParseKind(c.Params("kind"))
	if err != nil {
		return "", 0, fiber.NewError(fiber.StatusBadRequest, "kind must be mess or hostel")
	}
	id, err := query.ParamID(c, "id")
	if err != nil {
		return "", 0, err
	}
	return kind, id, nil
}

// GET /api/submissions/:kind/:id
func GetHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		kind, subID, err := KindAndID(c)
		if err != nil {
			return err
		}
		id, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}

		sub, err := Load(database.DB, kind, subID)
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "submission not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not load submission")
		}
		if !id.CanAccessFacility(sub.GetMeta().FacilityID) {
			return fiber.NewError(fiber.StatusForbidden, "submission belongs to another facility")
		}

		resp, err := Responses(database.DB, []models.Submission{sub})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not load images")
		}
		return c.JSON(resp[0])
	}
}

// GET /api/images/:id
func ImageHandler(store storage.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		imageID, err := query.ParamID(c, "id")
		if err != nil {
			return err
		}
		id, err := auth.CurrentIdentity(c)
		if err != nil {
			return err
		}

		var img models.SubmissionImage
		if err := database.DB.First(&img, imageID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "image not found")
		}

		sub, err := Load(database.DB, img.SubmissionKind, img.SubmissionID)
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "image not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not load submission")
		}
		if !id.CanAccessFacility(sub.GetMeta().FacilityID) {
			return fiber.NewError(fiber.StatusForbidden, "image belongs to another facility")
		}

		rc, err := store.Open(c.UserContext(), img.Bucket, img.ObjectKey)
		if errors.Is(err, storage.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "image file is missing")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, "could not read image")
		}

		c.Set(fiber.HeaderContentType, img.ContentType)
		c.Set(fiber.HeaderCacheControl, "private, max-age=3600")
		return c.SendStream(rc, int(img.Size))
	}
}
