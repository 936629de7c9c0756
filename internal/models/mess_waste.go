package models

import (
	"fmt"
	"time"
)

// MealQuantities is what a mess records for one meal, in kg except Students.
type MealQuantities struct {
	Students       int     `json:"students"`
	StudentWaste   float64 `json:"student_waste"`
	CounterWaste   float64 `json:"counter_waste"`
	VegetablePeels float64 `json:"vegetable_peels"`
}

func (m MealQuantities) Waste() float64 {
	return m.StudentWaste + m.CounterWaste + m.VegetablePeels
}

type MessQuantities struct {
	Breakfast    MealQuantities `gorm:"embedded;embeddedPrefix:breakfast_" json:"breakfast"`
	Lunch        MealQuantities `gorm:"embedded;embeddedPrefix:lunch_" json:"lunch"`
	Snacks       MealQuantities `gorm:"embedded;embeddedPrefix:snacks_" json:"snacks"`
	Dinner       MealQuantities `gorm:"embedded;embeddedPrefix:dinner_" json:"dinner"`
	MessDryWaste float64        `json:"mess_dry_waste"`
}

// Meals returns the four meals in serving order.
func (q MessQuantities) Meals() []MealQuantities {
	return []MealQuantities{q.Breakfast, q.Lunch, q.Snacks, q.Dinner}
}

var mealNames = []string{"breakfast", "lunch", "snacks", "dinner"}

func (q MessQuantities) Validate() error {
	nonZero := q.MessDryWaste > 0
	for i, m := range q.Meals() {
		if m.Students < 0 {
			return fmt.Errorf("%s.students cannot be negative", mealNames[i])
		}
		if err := checkQuantity(mealNames[i]+".student_waste", m.StudentWaste); err != nil {
			return err
		}
		if err := checkQuantity(mealNames[i]+".counter_waste", m.CounterWaste); err != nil {
			return err
		}
		if err := checkQuantity(mealNames[i]+".vegetable_peels", m.VegetablePeels); err != nil {
			return err
		}
		if m.Students > 0 || m.Waste() > 0 {
			nonZero = true
		}
	}
	if err := checkQuantity("mess_dry_waste", q.MessDryWaste); err != nil {
		return err
	}
	if !nonZero {
		return ErrEmptySubmission
	}
	return nil
}

// MessTotals are derived from MessQuantities and stored alongside them.
type MessTotals struct {
	TotalStudents     int     `json:"total_students"`
	TotalWaste        float64 `json:"total_waste"`
	TotalWasteNoPeels float64 `json:"total_waste_no_peels"`
}

// ComputeMessTotals sums students over meals, and waste over all meal
// categories plus dry waste. The no-peels total leaves out vegetable peels.
func ComputeMessTotals(q MessQuantities) MessTotals {
	var t MessTotals
	var peels float64
	for _, m := range q.Meals() {
		t.TotalStudents += m.Students
		t.TotalWaste += m.Waste()
		peels += m.VegetablePeels
	}
	t.TotalWaste += q.MessDryWaste
	t.TotalWasteNoPeels = t.TotalWaste - peels
	return t
}

// PerCapita divides waste by students, 0 when nobody was served.
func PerCapita(waste float64, students int) float64 {
	if students <= 0 {
		return 0
	}
	return waste / float64(students)
}

type MessWasteSubmission struct {
	ID uint `gorm:"primaryKey" json:"id"`
	SubmissionMeta
	MessQuantities
	MessTotals
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Facility *Facility `gorm:"foreignKey:FacilityID;constraint:OnDelete:RESTRICT" json:"-"`
}

func (s *MessWasteSubmission) Kind() SubmissionKind     { return KindMessWaste }
func (s *MessWasteSubmission) GetID() uint              { return s.ID }
func (s *MessWasteSubmission) GetMeta() *SubmissionMeta { return &s.SubmissionMeta }
func (s *MessWasteSubmission) GetCreatedAt() time.Time  { return s.CreatedAt }
func (s *MessWasteSubmission) Quantities() any          { return &s.MessQuantities }
func (s *MessWasteSubmission) Validate() error          { return s.MessQuantities.Validate() }
func (s *MessWasteSubmission) Total() float64           { return s.TotalWaste }
func (s *MessWasteSubmission) Recalculate()             { s.MessTotals = ComputeMessTotals(s.MessQuantities) }

func (s *MessWasteSubmission) Values() any {
	return struct {
		MessQuantities
		MessTotals
	}{s.MessQuantities, s.MessTotals}
}
