// Package dashboard serves analytics over the daily summaries.
package dashboard

import (
	"fmt"
	"sort"
	"time"

	"wasteportal-backend/internal/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gorm.io/gorm"
)

type Period string

const (
	PeriodAllTime Period = "all_time"
	PeriodYear    Period = "year"
	PeriodMonth   Period = "month"
	PeriodWeek    Period = "week"
)

func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case "":
		return PeriodAllTime, nil
	case PeriodAllTime, PeriodYear, PeriodMonth, PeriodWeek:
		return p, nil
	}
	return "", fmt.Errorf("unknown period %q", s)
}

// Start is the first day included by the period, nil for all time.
func (p Period) Start(today time.Time) *time.Time {
	var days int
	switch p {
	case PeriodWeek:
		days = 7
	case PeriodMonth:
		days = 30
	case PeriodYear:
		days = 365
	default:
		return nil
	}
	start := models.DateOnly(today).AddDate(0, 0, -days)
	return &start
}

// Scope selects the summaries an analytics request covers.
type Scope struct {
	FacilityID *uint
	From       *time.Time
}

func (s Scope) apply(db *gorm.DB) *gorm.DB {
	db = db.Model(&models.DailyWasteSummary{})
	if s.FacilityID != nil {
		db = db.Where("facility_id = ?", *s.FacilityID)
	}
	if s.From != nil {
		db = db.Where("date >= ?", *s.From)
	}
	return db
}

type Totals struct {
	MessWaste          float64 `json:"mess_waste"`
	MessWasteNoPeels   float64 `json:"mess_waste_no_peels"`
	HostelWaste        float64 `json:"hostel_waste"`
	TotalWaste         float64 `json:"total_waste"`
	Students           int64   `json:"students"`
	PerCapitaMessWaste float64 `json:"per_capita_mess_waste"`
	PerCapitaNoPeels   float64 `json:"per_capita_mess_waste_no_peels"`
}

type KPIs struct {
	Period Period `json:"period"`
	Totals Totals `json:"totals"`
	Today  Totals `json:"today"`
}

func sumTotals(db *gorm.DB) (Totals, error) {
	var row struct {
		MessWaste        float64
		MessWasteNoPeels float64
		HostelWaste      float64
		Students         int64
	}
	err := db.Select(
		"COALESCE(SUM(total_mess_waste), 0) AS mess_waste, " +
			"COALESCE(SUM(total_mess_waste_no_peels), 0) AS mess_waste_no_peels, " +
			"COALESCE(SUM(total_hostel_waste), 0) AS hostel_waste, " +
			"COALESCE(SUM(total_students), 0) AS students",
	).Scan(&row).Error
	if err != nil {
		return Totals{}, fmt.Errorf("sum summaries: %w", err)
	}

	return Totals{
		MessWaste:          row.MessWaste,
		MessWasteNoPeels:   row.MessWasteNoPeels,
		HostelWaste:        row.HostelWaste,
		TotalWaste:         row.MessWaste + row.HostelWaste,
		Students:           row.Students,
		PerCapitaMessWaste: models.PerCapita(row.MessWaste, int(row.Students)),
		PerCapitaNoPeels:   models.PerCapita(row.MessWasteNoPeels, int(row.Students)),
	}, nil
}

// ComputeKPIs totals the scope and, separately, today alone.
func ComputeKPIs(db *gorm.DB, scope Scope, period Period, today time.Time) (KPIs, error) {
	k := KPIs{Period: period}
	var err error
	if k.Totals, err = sumTotals(scope.apply(db)); err != nil {
		return KPIs{}, err
	}
	if k.Today, err = sumTotals(scope.apply(db).Where("date = ?", models.DateOnly(today))); err != nil {
		return KPIs{}, err
	}
	return k, nil
}

type Metric string

const (
	MetricMessWaste   Metric = "mess_waste"
	MetricHostelWaste Metric = "hostel_waste"
	MetricPerCapita   Metric = "per_capita"
)

func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case "":
		return MetricMessWaste, nil
	case MetricMessWaste, MetricHostelWaste, MetricPerCapita:
		return m, nil
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

func (m Metric) value(s models.DailyWasteSummary) float64 {
	switch m {
	case MetricHostelWaste:
		return s.TotalHostelWaste
	case MetricPerCapita:
		return s.PerCapitaMessWaste
	}
	return s.TotalMessWaste
}

type Point struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type Series struct {
	FacilityID   uint    `json:"facility_id"`
	FacilityCode string  `json:"facility_code"`
	Points       []Point `json:"points"`
}

type Trend struct {
	Metric Metric   `json:"metric"`
	Dates  []string `json:"dates"`
	Series []Series `json:"series"`
}

func loadSummaries(db *gorm.DB, scope Scope) ([]models.DailyWasteSummary, error) {
	var rows []models.DailyWasteSummary
	if err := scope.apply(db).Order("date ASC, facility_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load summaries: %w", err)
	}
	return rows, nil
}

// ComputeTrend builds one series per facility, ordered by facility code.
func ComputeTrend(db *gorm.DB, scope Scope, metric Metric, codes map[uint]string) (Trend, error) {
	rows, err := loadSummaries(db, scope)
	if err != nil {
		return Trend{}, err
	}

	t := Trend{Metric: metric, Dates: []string{}, Series: []Series{}}
	seenDate := map[string]bool{}
	byFacility := map[uint]int{}
	for _, r := range rows {
		date := r.Date.Format("2006-01-02")
		if !seenDate[date] {
			seenDate[date] = true
			t.Dates = append(t.Dates, date)
		}
		i, ok := byFacility[r.FacilityID]
		if !ok {
			i = len(t.Series)
			byFacility[r.FacilityID] = i
			t.Series = append(t.Series, Series{FacilityID: r.FacilityID, FacilityCode: codes[r.FacilityID]})
		}
		t.Series[i].Points = append(t.Series[i].Points, Point{Date: date, Value: metric.value(r)})
	}

	sort.Slice(t.Series, func(i, j int) bool { return t.Series[i].FacilityCode < t.Series[j].FacilityCode })
	return t, nil
}

type Categories struct {
	Mess struct {
		StudentWaste   float64 `json:"student_waste"`
		CounterWaste   float64 `json:"counter_waste"`
		VegetablePeels float64 `json:"vegetable_peels"`
		DryWaste       float64 `json:"dry_waste"`
	} `json:"mess"`
	Hostel models.HostelQuantities `json:"hostel"`
}

func sumOf(columns ...string) string {
	expr := ""
	for i, c := range columns {
		if i > 0 {
			expr += " + "
		}
		expr += "COALESCE(SUM(" + c + "), 0)"
	}
	return expr
}

func mealColumns(field string) []string {
	return []string{"breakfast_" + field, "lunch_" + field, "snacks_" + field, "dinner_" + field}
}

// ComputeCategories sums every waste category with SQL.
func ComputeCategories(db *gorm.DB, scope Scope) (Categories, error) {
	var row struct {
		StudentWaste    float64
		CounterWaste    float64
		VegetablePeels  float64
		MessDryWaste    float64
		DryWaste        float64
		WetWaste        float64
		EWaste          float64
		BiomedicalWaste float64
		HazardousWaste  float64
	}
	err := scope.apply(db).Select(
		sumOf(mealColumns("student_waste")...) + " AS student_waste, " +
			sumOf(mealColumns("counter_waste")...) + " AS counter_waste, " +
			sumOf(mealColumns("vegetable_peels")...) + " AS vegetable_peels, " +
			sumOf("mess_dry_waste") + " AS mess_dry_waste, " +
			sumOf("dry_waste") + " AS dry_waste, " +
			sumOf("wet_waste") + " AS wet_waste, " +
			sumOf("e_waste") + " AS e_waste, " +
			sumOf("biomedical_waste") + " AS biomedical_waste, " +
			sumOf("hazardous_waste") + " AS hazardous_waste",
	).Scan(&row).Error
	if err != nil {
		return Categories{}, fmt.Errorf("sum categories: %w", err)
	}

	var c Categories
	c.Mess.StudentWaste = row.StudentWaste
	c.Mess.CounterWaste = row.CounterWaste
	c.Mess.VegetablePeels = row.VegetablePeels
	c.Mess.DryWaste = row.MessDryWaste
	c.Hostel = models.HostelQuantities{
		DryWaste:        row.DryWaste,
		WetWaste:        row.WetWaste,
		EWaste:          row.EWaste,
		BiomedicalWaste: row.BiomedicalWaste,
		HazardousWaste:  row.HazardousWaste,
	}
	return c, nil
}

type Spread struct {
	Average float64 `json:"average"`
	Max     float64 `json:"max"`
	Min     float64 `json:"min"`
}

func spread(values []float64) Spread {
	if len(values) == 0 {
		return Spread{}
	}
	return Spread{Average: stat.Mean(values, nil), Max: floats.Max(values), Min: floats.Min(values)}
}

type Stats struct {
	MessDaily      Spread  `json:"mess_daily"`
	HostelDaily    Spread  `json:"hostel_daily"`
	Records        int     `json:"records"`
	StudentsServed int     `json:"students_served"`
	FirstDate      *string `json:"first_date"`
	LastDate       *string `json:"last_date"`
}

// ComputeStats describes the daily mess and hostel totals of the scope.
func ComputeStats(db *gorm.DB, scope Scope) (Stats, error) {
	rows, err := loadSummaries(db, scope)
	if err != nil {
		return Stats{}, err
	}

	s := Stats{Records: len(rows)}
	if len(rows) == 0 {
		return s, nil
	}

	mess := make([]float64, len(rows))
	hostel := make([]float64, len(rows))
	for i, r := range rows {
		mess[i] = r.TotalMessWaste
		hostel[i] = r.TotalHostelWaste
		s.StudentsServed += r.TotalStudents
	}
	s.MessDaily = spread(mess)
	s.HostelDaily = spread(hostel)

	first := rows[0].Date.Format("2006-01-02")
	last := rows[len(rows)-1].Date.Format("2006-01-02")
	s.FirstDate, s.LastDate = &first, &last
	return s, nil
}
