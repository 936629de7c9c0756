package models

import "time"

// DailyWasteSummary aggregates the verified submissions of one facility and day.
type DailyWasteSummary struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Date       time.Time `gorm:"type:date;not null;uniqueIndex:idx_summary_date_facility" json:"date"`
	FacilityID uint      `gorm:"not null;uniqueIndex:idx_summary_date_facility" json:"facility_id"`

	MessQuantities
	TotalStudents             int     `json:"total_students"`
	TotalMessWaste            float64 `json:"total_mess_waste"`
	TotalMessWasteNoPeels     float64 `json:"total_mess_waste_no_peels"`
	PerCapitaMessWaste        float64 `json:"per_capita_mess_waste"`
	PerCapitaMessWasteNoPeels float64 `json:"per_capita_mess_waste_no_peels"`
	MessSubmissions           int     `json:"mess_submissions"`

	HostelQuantities
	TotalHostelWaste  float64 `json:"total_hostel_waste"`
	HostelCollections int     `json:"hostel_collections"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Facility *Facility `gorm:"foreignKey:FacilityID;constraint:OnDelete:RESTRICT" json:"-"`
}

// TotalWaste is mess plus hostel waste for the day.
func (d DailyWasteSummary) TotalWaste() float64 {
	return d.TotalMessWaste + d.TotalHostelWaste
}
