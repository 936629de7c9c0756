// Package review moves submissions out of pending and keeps summaries in step.
package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"wasteportal-backend/internal/audit"
	"wasteportal-backend/internal/models"
	"wasteportal-backend/internal/submission"
	"wasteportal-backend/internal/summary"

	"gorm.io/gorm"
)

var (
	ErrNotFound   = submission.ErrNotFound
	ErrNotPending = errors.New("submission is no longer pending")
	ErrInvalid    = errors.New("invalid review")
)

const minReasonLength = 3

// Reviewer is the PHO acting on a submission.
type Reviewer struct {
	ID   uint
	Name string
}

var now = time.Now

// claim flips sub from pending to status with a conditional update; a concurrent
// reviewer who already moved it makes this return ErrNotPending.
func claim(tx *gorm.DB, sub models.Submission, r Reviewer, status models.SubmissionStatus, reason string) error {
	meta := sub.GetMeta()
	if !meta.Status.CanTransition(status) {
		return ErrNotPending
	}

	at := now()
	res := tx.Model(sub).
		Where("status = ?", models.StatusPending).
		Updates(map[string]any{
			"status":           status,
			"reviewed_by":      r.ID,
			"reviewed_by_name": r.Name,
			"reviewed_at":      at,
			"reject_reason":    reason,
		})
	if res.Error != nil {
		return fmt.Errorf("update status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotPending
	}

	meta.Status = status
	meta.ReviewedBy = &r.ID
	meta.ReviewedByName = r.Name
	meta.ReviewedAt = &at
	meta.RejectReason = reason
	return nil
}

func checkReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < minReasonLength {
		return "", fmt.Errorf("%w: reason must be at least %d characters", ErrInvalid, minReasonLength)
	}
	return reason, nil
}

// Verify marks a pending submission verified and refreshes its daily summary.
func Verify(db *gorm.DB, kind models.SubmissionKind, id uint, r Reviewer) (models.Submission, error) {
	var sub models.Submission
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		if sub, err = submission.Load(tx, kind, id); err != nil {
			return err
		}
		if err := claim(tx, sub, r, models.StatusVerified, ""); err != nil {
			return err
		}
		meta := sub.GetMeta()
		if err := audit.WriteLog(tx, audit.LogOptions{
			FacilityID:  &meta.FacilityID,
			UserID:      r.ID,
			UserName:    r.Name,
			EntityType:  string(kind),
			EntityID:    id,
			Action:      models.AuditActionVerify,
			Description: "verified " + meta.Reference,
			After:       sub.Values(),
		}); err != nil {
			return err
		}
		return summary.Recompute(tx, meta.FacilityID, meta.Date)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Reject marks a pending submission rejected. A reason is required.
func Reject(db *gorm.DB, kind models.SubmissionKind, id uint, r Reviewer, reason string) (models.Submission, error) {
	reason, err := checkReason(reason)
	if err != nil {
		return nil, err
	}

	var sub models.Submission
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		if sub, err = submission.Load(tx, kind, id); err != nil {
			return err
		}
		if err := claim(tx, sub, r, models.StatusRejected, reason); err != nil {
			return err
		}
		meta := sub.GetMeta()
		return audit.WriteLog(tx, audit.LogOptions{
			FacilityID:  &meta.FacilityID,
			UserID:      r.ID,
			UserName:    r.Name,
			EntityType:  string(kind),
			EntityID:    id,
			Action:      models.AuditActionReject,
			Description: "rejected " + meta.Reference,
			Reason:      reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// EditAndVerify overlays patch onto the stored quantities, records the change
// with its reason, and verifies the submission.
func EditAndVerify(db *gorm.DB, kind models.SubmissionKind, id uint, r Reviewer, patch []byte, reason string) (models.Submission, error) {
	reason, err := checkReason(reason)
	if err != nil {
		return nil, err
	}

	var sub models.Submission
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		if sub, err = submission.Load(tx, kind, id); err != nil {
			return err
		}
		if sub.GetMeta().Status != models.StatusPending {
			return ErrNotPending
		}

		before := sub.Values()
		if err := json.Unmarshal(patch, sub.Quantities()); err != nil {
			return fmt.Errorf("%w: quantities must be numbers", ErrInvalid)
		}
		if err := sub.Validate(); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalid, err.Error())
		}
		sub.Recalculate()

		if err := claim(tx, sub, r, models.StatusVerified, ""); err != nil {
			return err
		}
		if err := tx.Save(sub).Error; err != nil {
			return fmt.Errorf("save edited submission: %w", err)
		}

		meta := sub.GetMeta()
		if err := audit.WriteLog(tx, audit.LogOptions{
			FacilityID:  &meta.FacilityID,
			UserID:      r.ID,
			UserName:    r.Name,
			EntityType:  string(kind),
			EntityID:    id,
			Action:      models.AuditActionEdit,
			Description: "edited and verified " + meta.Reference,
			Reason:      reason,
			Before:      before,
			After:       sub.Values(),
		}); err != nil {
			return err
		}
		return summary.Recompute(tx, meta.FacilityID, meta.Date)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// VerifyBatch verifies every pending hostel collection of a facility and day.
func VerifyBatch(db *gorm.DB, facilityID uint, date time.Time, r Reviewer) ([]models.Submission, error) {
	date = models.DateOnly(date)
	var verified []models.Submission

	err := db.Transaction(func(tx *gorm.DB) error {
		var pending []models.HostelWasteSubmission
		if err := tx.Where("facility_id = ? AND date = ? AND status = ?", facilityID, date, models.StatusPending).
			Order("id").Find(&pending).Error; err != nil {
			return fmt.Errorf("load pending collections: %w", err)
		}
		if len(pending) == 0 {
			return ErrNotFound
		}

		for i := range pending {
			sub := &pending[i]
			if err := claim(tx, sub, r, models.StatusVerified, ""); err != nil {
				return err
			}
			if err := audit.WriteLog(tx, audit.LogOptions{
				FacilityID:  &facilityID,
				UserID:      r.ID,
				UserName:    r.Name,
				EntityType:  string(models.KindHostelWaste),
				EntityID:    sub.ID,
				Action:      models.AuditActionVerify,
				Description: "batch verified " + sub.Reference,
				After:       sub.Values(),
			}); err != nil {
				return err
			}
			verified = append(verified, sub)
		}
		return summary.Recompute(tx, facilityID, date)
	})
	if err != nil {
		return nil, err
	}
	return verified, nil
}
