// Package submission handles mess and hostel waste submissions by supervisors.
package submission

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"wasteportal-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("submission not found")

// Load fetches one submission of the given kind.
func Load(db *gorm.DB, kind models.SubmissionKind, id uint) (models.Submission, error) {
	sub, err := models.NewSubmission(kind)
	if err != nil {
		return nil, err
	}
	if err := db.First(sub, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load %s %d: %w", kind, id, err)
	}
	return sub, nil
}

// Filter narrows submission listings. Zero values mean no restriction.
type Filter struct {
	Kind        models.SubmissionKind
	Status      models.SubmissionStatus
	FacilityID  *uint
	SubmittedBy uint
	From, To    *time.Time
}

func (f Filter) apply(db *gorm.DB) *gorm.DB {
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if f.FacilityID != nil {
		db = db.Where("facility_id = ?", *f.FacilityID)
	}
	if f.SubmittedBy != 0 {
		db = db.Where("submitted_by = ?", f.SubmittedBy)
	}
	if f.From != nil {
		db = db.Where("date >= ?", *f.From)
	}
	if f.To != nil {
		db = db.Where("date <= ?", *f.To)
	}
	return db
}

// List returns matching submissions of both kinds (or f.Kind), newest date first.
func List(db *gorm.DB, f Filter) ([]models.Submission, error) {
	var out []models.Submission

	if f.Kind == "" || f.Kind == models.KindMessWaste {
		var mess []models.MessWasteSubmission
		if err := f.apply(db.Model(&models.MessWasteSubmission{})).Find(&mess).Error; err != nil {
			return nil, fmt.Errorf("list mess submissions: %w", err)
		}
		for i := range mess {
			out = append(out, &mess[i])
		}
	}
	if f.Kind == "" || f.Kind == models.KindHostelWaste {
		var hostel []models.HostelWasteSubmission
		if err := f.apply(db.Model(&models.HostelWasteSubmission{})).Find(&hostel).Error; err != nil {
			return nil, fmt.Errorf("list hostel collections: %w", err)
		}
		for i := range hostel {
			out = append(out, &hostel[i])
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].GetMeta(), out[j].GetMeta()
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return out[i].GetCreatedAt().After(out[j].GetCreatedAt())
	})
	return out, nil
}

// Images returns the images of the given submissions keyed by submission id.
func Images(db *gorm.DB, kind models.SubmissionKind, ids ...uint) (map[uint][]models.SubmissionImage, error) {
	out := map[uint][]models.SubmissionImage{}
	if len(ids) == 0 {
		return out, nil
	}
	var images []models.SubmissionImage
	if err := db.Where("submission_kind = ? AND submission_id IN ?", kind, ids).
		Order("id").Find(&images).Error; err != nil {
		return nil, fmt.Errorf("load images: %w", err)
	}
	for _, img := range images {
		out[img.SubmissionID] = append(out[img.SubmissionID], img)
	}
	return out, nil
}

// NewReference builds "MESS-20240301-1a2b3c4d".
func NewReference(kind models.SubmissionKind, date time.Time) string {
	rnd := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s-%s", kind.ReferencePrefix(), date.Format("20060102"), rnd)
}

// HasActiveMess reports whether facility already has a non-rejected mess submission for date.
func HasActiveMess(db *gorm.DB, facilityID uint, date time.Time) (bool, error) {
	var count int64
	if err := db.Model(&models.MessWasteSubmission{}).
		Where("facility_id = ? AND date = ? AND status <> ?", facilityID, date, models.StatusRejected).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check duplicate mess submission: %w", err)
	}
	return count > 0, nil
}
