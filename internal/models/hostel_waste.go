package models

import "time"

// HostelQuantities is one hostel waste collection, in kg.
type HostelQuantities struct {
	DryWaste        float64 `json:"dry_waste"`
	WetWaste        float64 `json:"wet_waste"`
	EWaste          float64 `gorm:"column:e_waste" json:"e_waste"`
	BiomedicalWaste float64 `json:"biomedical_waste"`
	HazardousWaste  float64 `json:"hazardous_waste"`
}

func (q HostelQuantities) Sum() float64 {
	return q.DryWaste + q.WetWaste + q.EWaste + q.BiomedicalWaste + q.HazardousWaste
}

func (q HostelQuantities) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"dry_waste", q.DryWaste},
		{"wet_waste", q.WetWaste},
		{"e_waste", q.EWaste},
		{"biomedical_waste", q.BiomedicalWaste},
		{"hazardous_waste", q.HazardousWaste},
	}
	for _, f := range fields {
		if err := checkQuantity(f.name, f.value); err != nil {
			return err
		}
	}
	if q.Sum() == 0 {
		return ErrEmptySubmission
	}
	return nil
}

// Add accumulates another collection, used when grouping collections of a day.
func (q *HostelQuantities) Add(o HostelQuantities) {
	q.DryWaste += o.DryWaste
	q.WetWaste += o.WetWaste
	q.EWaste += o.EWaste
	q.BiomedicalWaste += o.BiomedicalWaste
	q.HazardousWaste += o.HazardousWaste
}

type HostelWasteSubmission struct {
	ID uint `gorm:"primaryKey" json:"id"`
	SubmissionMeta
	HostelQuantities
	TotalWaste float64   `json:"total_waste"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Facility *Facility `gorm:"foreignKey:FacilityID;constraint:OnDelete:RESTRICT" json:"-"`
}

func (s *HostelWasteSubmission) Kind() SubmissionKind     { return KindHostelWaste }
func (s *HostelWasteSubmission) GetID() uint              { return s.ID }
func (s *HostelWasteSubmission) GetMeta() *SubmissionMeta { return &s.SubmissionMeta }
func (s *HostelWasteSubmission) GetCreatedAt() time.Time  { return s.CreatedAt }
func (s *HostelWasteSubmission) Quantities() any          { return &s.HostelQuantities }
func (s *HostelWasteSubmission) Validate() error          { return s.HostelQuantities.Validate() }
func (s *HostelWasteSubmission) Total() float64           { return s.TotalWaste }
func (s *HostelWasteSubmission) Recalculate()             { s.TotalWaste = s.Sum() }

func (s *HostelWasteSubmission) Values() any {
	return struct {
		HostelQuantities
		TotalWaste float64 `json:"total_waste"`
	}{s.HostelQuantities, s.TotalWaste}
}
