package summary

import (
	"fmt"
	"time"

	"wasteportal-backend/internal/auth"
	"wasteportal-backend/internal/database"
	"wasteportal-backend/internal/export"
	"wasteportal-backend/internal/models"
	"wasteportal-backend/internal/query"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SummaryResponse struct {
	Date         string `json:"date"`
	FacilityID   uint   `json:"facility_id"`
	FacilityCode string `json:"facility_code"`

	models.MessQuantities
	TotalStudents             int     `json:"total_students"`
	TotalMessWaste            float64 `json:"total_mess_waste"`
	TotalMessWasteNoPeels     float64 `json:"total_mess_waste_no_peels"`
	PerCapitaMessWaste        float64 `json:"per_capita_mess_waste"`
	PerCapitaMessWasteNoPeels float64 `json:"per_capita_mess_waste_no_peels"`
	MessSubmissions           int     `json:"mess_submissions"`

	models.HostelQuantities
	TotalHostelWaste  float64 `json:"total_hostel_waste"`
	HostelCollections int     `json:"hostel_collections"`

	TotalWaste float64 `json:"total_waste"`
	UpdatedAt  string  `json:"updated_at"`
}

func ToResponse(s models.DailyWasteSummary, facilityCode string) SummaryResponse {
	return SummaryResponse{
		Date:                      s.Date.Format("2006-01-02"),
		FacilityID:                s.FacilityID,
		FacilityCode:              facilityCode,
		MessQuantities:            s.MessQuantities,
		TotalStudents:             s.TotalStudents,
		TotalMessWaste:            s.TotalMessWaste,
		TotalMessWasteNoPeels:     s.TotalMessWasteNoPeels,
		PerCapitaMessWaste:        s.PerCapitaMessWaste,
		PerCapitaMessWasteNoPeels: s.PerCapitaMessWasteNoPeels,
		MessSubmissions:           s.MessSubmissions,
		HostelQuantities:          s.HostelQuantities,
		TotalHostelWaste:          s.TotalHostelWaste,
		HostelCollections:         s.HostelCollections,
		TotalWaste:                s.TotalWaste(),
		UpdatedAt:                 s.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

// Query returns summaries newest first, optionally restricted to a facility and date range.
func Query(db *gorm.DB, facilityID *uint, from, to *time.Time) ([]SummaryResponse, error) {
	dbq := db.Model(&models.DailyWasteSummary{})
	if facilityID != nil {
		dbq = dbq.Where("facility_id = ?", *facilityID)
	}
	dbq = query.ApplyDateRange(dbq, "date", from, to)

	var rows []models.DailyWasteSummary
	if err := dbq.Order("date DESC, facility_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}

	codes, err := database.FacilityCodes(db)
	if err != nil {
		return nil, err
	}

	resp := make([]SummaryResponse, 0, len(rows))
	for _, r := range rows {
		resp = append(resp, ToResponse(r, codes[r.FacilityID]))
	}
	return resp, nil
}

// load applies ?facility_id=&from=&to=.
func load(c *fiber.Ctx) ([]SummaryResponse, error) {
	facilityID, err := auth.ResolveFacilityFilter(c)
	if err != nil {
		return nil, err
	}
	from, to, err := query.DateRange(c)
	if err != nil {
		return nil, err
	}

	resp, err := Query(database.DB, facilityID, from, to)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "could not list summaries")
	}
	return resp, nil
}

// GET /api/summaries?facility_id=&from=&to=
func ListSummariesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		resp, err := load(c)
		if err != nil {
			return err
		}
		return c.JSON(resp)
	}
}

// Table lays summaries out one row per day and facility.
func Table(rows []SummaryResponse) export.Table {
	t := export.Table{
		Sheet: "Daily Summary",
		Header: []string{
			"Date", "Facility",
			"Breakfast Students", "Breakfast Student Waste", "Breakfast Counter Waste", "Breakfast Vegetable Peels",
			"Lunch Students", "Lunch Student Waste", "Lunch Counter Waste", "Lunch Vegetable Peels",
			"Snacks Students", "Snacks Student Waste", "Snacks Counter Waste", "Snacks Vegetable Peels",
			"Dinner Students", "Dinner Student Waste", "Dinner Counter Waste", "Dinner Vegetable Peels",
			"Mess Dry Waste", "Total Students", "Total Mess Waste", "Total Mess Waste (No Peels)",
			"Per Capita", "Per Capita (No Peels)",
			"Hostel Dry Waste", "Hostel Wet Waste", "E-Waste", "Biomedical Waste", "Hazardous Waste",
			"Total Hostel Waste", "Hostel Collections", "Total Waste",
		},
	}
	for _, r := range rows {
		row := []any{r.Date, r.FacilityCode}
		for _, m := range r.Meals() {
			row = append(row, m.Students, m.StudentWaste, m.CounterWaste, m.VegetablePeels)
		}
		row = append(row,
			r.MessDryWaste, r.TotalStudents, r.TotalMessWaste, r.TotalMessWasteNoPeels,
			r.PerCapitaMessWaste, r.PerCapitaMessWasteNoPeels,
			r.DryWaste, r.WetWaste, r.EWaste, r.BiomedicalWaste, r.HazardousWaste,
			r.TotalHostelWaste, r.HostelCollections, r.TotalWaste,
		)
		t.Rows = append(t.Rows, row)
	}
	return t
}

// GET /api/admin/summaries/export?format=csv|xlsx&facility_id=&from=&to=
func ExportSummariesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		format, err := export.FormatFromQuery(c)
		if err != nil {
			return err
		}
		rows, err := load(c)
		if err != nil {
			return err
		}
		return export.Send(c, Table(rows), format, "daily-summary")
	}
}
