// Package summary maintains the per-day, per-facility aggregate of verified submissions.
package summary

import (
	"fmt"
	"time"

	"wasteportal-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AddMess accumulates src into dst meal by meal.
func AddMess(dst *models.MessQuantities, src models.MessQuantities) {
	addMeal(&dst.Breakfast, src.Breakfast)
	addMeal(&dst.Lunch, src.Lunch)
	addMeal(&dst.Snacks, src.Snacks)
	addMeal(&dst.Dinner, src.Dinner)
	dst.MessDryWaste += src.MessDryWaste
}

func addMeal(dst *models.MealQuantities, src models.MealQuantities) {
	dst.Students += src.Students
	dst.StudentWaste += src.StudentWaste
	dst.CounterWaste += src.CounterWaste
	dst.VegetablePeels += src.VegetablePeels
}

// Build aggregates verified submissions of one facility and day.
func Build(facilityID uint, date time.Time, mess []models.MessWasteSubmission, hostel []models.HostelWasteSubmission) models.DailyWasteSummary {
	s := models.DailyWasteSummary{
		Date:              models.DateOnly(date),
		FacilityID:        facilityID,
		MessSubmissions:   len(mess),
		HostelCollections: len(hostel),
	}

	for _, m := range mess {
		AddMess(&s.MessQuantities, m.MessQuantities)
	}
	totals := models.ComputeMessTotals(s.MessQuantities)
	s.TotalStudents = totals.TotalStudents
	s.TotalMessWaste = totals.TotalWaste
	s.TotalMessWasteNoPeels = totals.TotalWasteNoPeels
	s.PerCapitaMessWaste = models.PerCapita(totals.TotalWaste, totals.TotalStudents)
	s.PerCapitaMessWasteNoPeels = models.PerCapita(totals.TotalWasteNoPeels, totals.TotalStudents)

	for _, h := range hostel {
		s.HostelQuantities.Add(h.HostelQuantities)
	}
	s.TotalHostelWaste = s.HostelQuantities.Sum()
	return s
}

// Recompute rebuilds the summary of (facilityID, date) from verified submissions.
// The row is removed when nothing verified remains. Pass the review transaction as db.
func Recompute(db *gorm.DB, facilityID uint, date time.Time) error {
	date = models.DateOnly(date)

	var mess []models.MessWasteSubmission
	if err := db.Where("facility_id = ? AND date = ? AND status = ?", facilityID, date, models.StatusVerified).
		Find(&mess).Error; err != nil {
		return fmt.Errorf("load verified mess submissions: %w", err)
	}
	var hostel []models.HostelWasteSubmission
	if err := db.Where("facility_id = ? AND date = ? AND status = ?", facilityID, date, models.StatusVerified).
		Find(&hostel).Error; err != nil {
		return fmt.Errorf("load verified hostel collections: %w", err)
	}

	if len(mess) == 0 && len(hostel) == 0 {
		if err := db.Where("facility_id = ? AND date = ?", facilityID, date).
			Delete(&models.DailyWasteSummary{}).Error; err != nil {
			return fmt.Errorf("delete daily summary: %w", err)
		}
		return nil
	}

	s := Build(facilityID, date, mess, hostel)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}, {Name: "facility_id"}},
		UpdateAll: true,
	}).Create(&s).Error; err != nil {
		return fmt.Errorf("upsert daily summary: %w", err)
	}
	return nil
}

type key struct {
	facilityID uint
	date       time.Time
}

// RecomputeRange rebuilds every summary whose day falls in [from, to], including
// days that only have a stale summary left. It returns the number of days processed.
func RecomputeRange(db *gorm.DB, from, to time.Time) (int, error) {
	from, to = models.DateOnly(from), models.DateOnly(to)

	type row struct {
		FacilityID uint
		Date       time.Time
	}
	seen := map[key]bool{}
	var keys []key

	for _, model := range []any{&models.MessWasteSubmission{}, &models.HostelWasteSubmission{}, &models.DailyWasteSummary{}} {
		var rows []row
		if err := db.Model(model).
			Distinct("facility_id", "date").
			Where("date >= ? AND date <= ?", from, to).
			Scan(&rows).Error; err != nil {
			return 0, fmt.Errorf("collect days to recompute: %w", err)
		}
		for _, r := range rows {
			k := key{r.FacilityID, models.DateOnly(r.Date)}
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		for _, k := range keys {
			if err := Recompute(tx, k.facilityID, k.date); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}
