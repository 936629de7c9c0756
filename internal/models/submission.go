package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

type SubmissionKind string

const (
	KindMessWaste   SubmissionKind = "mess_waste"
	KindHostelWaste SubmissionKind = "hostel_waste"
)

// ParseKind accepts the stored kind or its short path form ("mess", "hostel").
func ParseKind(s string) (SubmissionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mess", string(KindMessWaste):
		return KindMessWaste, nil
	case "hostel", string(KindHostelWaste):
		return KindHostelWaste, nil
	}
	return "", fmt.Errorf("unknown submission kind %q", s)
}

// Short is the path segment form of the kind.
func (k SubmissionKind) Short() string {
	return strings.TrimSuffix(string(k), "_waste")
}

// ReferencePrefix prefixes generated submission references.
func (k SubmissionKind) ReferencePrefix() string {
	return strings.ToUpper(k.Short())
}

type SubmissionStatus string

const (
	StatusPending  SubmissionStatus = "pending"
	StatusVerified SubmissionStatus = "verified"
	StatusRejected SubmissionStatus = "rejected"
)

func ParseStatus(s string) (SubmissionStatus, error) {
	switch st := SubmissionStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusVerified, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// CanTransition reports whether a review may move a submission from s to next.
// Verified and rejected are terminal.
func (s SubmissionStatus) CanTransition(next SubmissionStatus) bool {
	return s == StatusPending && (next == StatusVerified || next == StatusRejected)
}

// SubmissionMeta holds the columns shared by every submission kind.
type SubmissionMeta struct {
	Reference       string           `gorm:"size:64;uniqueIndex;not null" json:"reference"`
	FacilityID      uint             `gorm:"index;not null" json:"facility_id"`
	Date            time.Time        `gorm:"type:date;index;not null" json:"date"`
	Remarks         string           `gorm:"size:1000" json:"remarks"`
	Status          SubmissionStatus `gorm:"size:20;index;not null;default:pending" json:"status"`
	SubmittedBy     uint             `gorm:"index;not null" json:"submitted_by"`
	SubmittedByName string           `gorm:"size:100" json:"submitted_by_name"`
	ReviewedBy      *uint            `json:"reviewed_by"`
	ReviewedByName  string           `gorm:"size:100" json:"reviewed_by_name"`
	ReviewedAt      *time.Time       `json:"reviewed_at"`
	RejectReason    string           `gorm:"size:500" json:"reject_reason"`
}

// Submission is implemented by *MessWasteSubmission and *HostelWasteSubmission.
type Submission interface {
	Kind() SubmissionKind
	GetID() uint
	GetMeta() *SubmissionMeta
	GetCreatedAt() time.Time
	// Quantities returns a pointer to the editable quantity block.
	Quantities() any
	// Values is the quantity block plus derived totals, used for audit snapshots.
	Values() any
	Recalculate()
	Validate() error
	Total() float64
}

// NewSubmission returns an empty submission of the given kind, ready for gorm to load into.
func NewSubmission(kind SubmissionKind) (Submission, error) {
	switch kind {
	case KindMessWaste:
		return &MessWasteSubmission{}, nil
	case KindHostelWaste:
		return &HostelWasteSubmission{}, nil
	}
	return nil, fmt.Errorf("unknown submission kind %q", kind)
}

// TableFor returns the table of a kind; used for conditional status updates.
func TableFor(kind SubmissionKind) string {
	if kind == KindMessWaste {
		return "mess_waste_submissions"
	}
	return "hostel_waste_submissions"
}

var ErrEmptySubmission = errors.New("at least one quantity must be greater than zero")

func checkQuantity(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be a number", field)
	}
	if v < 0 {
		return fmt.Errorf("%s cannot be negative", field)
	}
	return nil
}

// DateOnly truncates t to midnight UTC of its calendar day in t's location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
