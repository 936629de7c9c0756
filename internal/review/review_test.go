package review

import (
	"errors"
	"sync"
	"testing"
	"time"

	"wasteportal-backend/internal/audit"
	"wasteportal-backend/internal/models"
	"wasteportal-backend/internal/submission"
	"wasteportal-backend/internal/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var pho = Reviewer{ID: 2, Name: "Dr. Rao"}

func pendingHostel(t *testing.T, db *gorm.DB, ref string, facilityID uint, date time.Time, q models.HostelQuantities) *models.HostelWasteSubmission {
	t.Helper()
	s := &models.HostelWasteSubmission{HostelQuantities: q}
	s.Reference = ref
	s.FacilityID = facilityID
	s.Date = date
	s.Status = models.StatusPending
	s.SubmittedBy = 1
	s.Recalculate()
	require.NoError(t, db.Create(s).Error)
	return s
}

func pendingMess(t *testing.T, db *gorm.DB, ref string, facilityID uint, date time.Time, q models.MessQuantities) *models.MessWasteSubmission {
	t.Helper()
	s := &models.MessWasteSubmission{MessQuantities: q}
	s.Reference = ref
	s.FacilityID = facilityID
	s.Date = date
	s.Status = models.StatusPending
	s.SubmittedBy = 1
	s.Recalculate()
	require.NoError(t, db.Create(s).Error)
	return s
}

func summaryFor(t *testing.T, db *gorm.DB, facilityID uint, date time.Time) (models.DailyWasteSummary, bool) {
	t.Helper()
	var rows []models.DailyWasteSummary
	require.NoError(t, db.Where("facility_id = ? AND date = ?", facilityID, date).Find(&rows).Error)
	if len(rows) == 0 {
		return models.DailyWasteSummary{}, false
	}
	return rows[0], true
}

func TestVerify(t *testing.T) {
	db := testutil.NewDB(t)
	f := testutil.CreateFacility(t, db, "10")
	day := testutil.Day(2024, 3, 1)
	h := pendingHostel(t, db, "HOSTEL-1", f.ID, day, models.HostelQuantities{DryWaste: 2, WetWaste: 1})

	sub, err := Verify(db, models.KindHostelWaste, h.ID, pho)
	require.NoError(t, err)
	meta := sub.GetMeta()
	assert.Equal(t, models.StatusVerified, meta.Status)
	assert.Equal(t, "Dr. Rao", meta.ReviewedByName)
	require.NotNil(t, meta.ReviewedAt)

	s, ok := summaryFor(t, db, f.ID, day)
	require.True(t, ok)
	assert.InDelta(t, 3.0, s.TotalHostelWaste, 1e-9)

	var log models.AuditLog
	require.NoError(t, db.Where("action = ?", models.AuditActionVerify).First(&log).Error)
	assert.Equal(t, h.ID, log.EntityID)

	_, err = Verify(db, models.KindHostelWaste, h.ID, pho)
	assert.ErrorIs(t, err, ErrNotPending)
	_, err = Reject(db, models.KindHostelWaste, h.ID, pho, "too late")
	assert.ErrorIs(t, err, ErrNotPending)

	_, err = Verify(db, models.KindMessWaste, h.ID, pho)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerifyConcurrentReviewers(t *testing.T) {
	db := testutil.NewDB(t)
	f := testutil.CreateFacility(t, db, "10")
	h := pendingHostel(t, db, "HOSTEL-1", f.ID, testutil.Day(2024, 3, 1), models.HostelQuantities{DryWaste: 2})

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = Verify(db, models.KindHostelWaste, h.ID, Reviewer{ID: uint(10 + i), Name: "pho"})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, ErrNotPending), err)
	}
	assert.Equal(t, 1, wins)

	var count int64
	require.NoError(t, db.Model(&models.AuditLog{}).Where("action = ?", models.AuditActionVerify).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestReject(t *testing.T) {
	db := testutil.NewDB(t)
	f := testutil.CreateFacility(t, db, "10")
	day := testutil.Day(2024, 3, 1)
	h := pendingHostel(t, db, "HOSTEL-1", f.ID, day, models.HostelQuantities{DryWaste: 2})

	_, err := Reject(db, models.KindHostelWaste, h.ID, pho, "  x ")
	assert.ErrorIs(t, err, ErrInvalid)

	sub, err := Reject(db, models.KindHostelWaste, h.ID, pho, " photo unreadable ")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, sub.GetMeta().Status)
	assert.Equal(t, "photo unreadable", sub.GetMeta().RejectReason)

	_, ok := summaryFor(t, db, f.ID, day)
	assert.False(t, ok)

	var log models.AuditLog
	require.NoError(t, db.Where("action = ?", models.AuditActionReject).First(&log).Error)
	assert.Equal(t, "photo unreadable", log.Reason)
}

func TestEditAndVerify(t *testing.T) {
	db := testutil.NewDB(t)
	f := testutil.CreateFacility(t, db, "11")
	day := testutil.Day(2024, 3, 1)
	m := pendingMess(t, db, "MESS-1", f.ID, day, models.MessQuantities{
		Breakfast: models.MealQuantities{Students: 100, StudentWaste: 2, CounterWaste: 1, VegetablePeels: 1},
		Lunch:     models.MealQuantities{Students: 100, StudentWaste: 3},
	})

	patch := []byte(`{"reason":"scale misread","breakfast":{"student_waste":2.5},"mess_dry_waste":1,"date":"2020-01-01"}`)
	sub, err := EditAndVerify(db, models.KindMessWaste, m.ID, pho, patch, "scale misread")
	require.NoError(t, err)

	got := sub.(*models.MessWasteSubmission)
	assert.Equal(t, models.StatusVerified, got.Status)
	assert.Equal(t, day, got.Date)
	assert.Equal(t, 100, got.Breakfast.Students)
	assert.InDelta(t, 1.0, got.Breakfast.CounterWaste, 1e-9)
	assert.InDelta(t, 8.5, got.TotalWaste, 1e-9)

	var stored models.MessWasteSubmission
	require.NoError(t, db.First(&stored, m.ID).Error)
	assert.InDelta(t, 2.5, stored.Breakfast.StudentWaste, 1e-9)
	assert.InDelta(t, 8.5, stored.TotalWaste, 1e-9)
	assert.Equal(t, models.StatusVerified, stored.Status)

	var log models.AuditLog
	require.NoError(t, db.Where("action = ?", models.AuditActionEdit).First(&log).Error)
	assert.Equal(t, "scale misread", log.Reason)
	want := []audit.FieldChange{
		{Field: "breakfast.student_waste", Before: 2.0, After: 2.5},
		{Field: "mess_dry_waste", Before: 0.0, After: 1.0},
		{Field: "total_waste", Before: 7.0, After: 8.5},
		{Field: "total_waste_no_peels", Before: 6.0, After: 7.5},
	}
	if diff := cmp.Diff(want, audit.Changes(log.BeforeData, log.AfterData)); diff != "" {
		t.Errorf("edit changes mismatch (-want +got):\n%s", diff)
	}

	s, ok := summaryFor(t, db, f.ID, day)
	require.True(t, ok)
	assert.InDelta(t, 8.5, s.TotalMessWaste, 1e-9)
	assert.InDelta(t, 8.5/200, s.PerCapitaMessWaste, 1e-9)
}

func TestEditAndVerifyRejectsBadInput(t *testing.T) {
	db := testutil.NewDB(t)
	f := testutil.CreateFacility(t, db, "11")
	h := pendingHostel(t, db, "HOSTEL-1", f.ID, testutil.Day(2024, 3, 1), models.HostelQuantities{DryWaste: 2})

	tests := []struct {
		name   string
		patch  string
		reason string
	}{
		{"no reason", `{"dry_waste":3}`, ""},
		{"negative", `{"dry_waste":-3}`, "fix"},
		{"all zero", `{"dry_waste":0}`, "fix"},
		{"not a number", `{"dry_waste":"3"}`, "fix"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EditAndVerify(db, models.KindHostelWaste, h.ID, pho, []byte(tt.patch), tt.reason)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	var stored models.HostelWasteSubmission
	require.NoError(t, db.First(&stored, h.ID).Error)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.InDelta(t, 2.0, stored.DryWaste, 1e-9)
}

func TestVerifyBatch(t *testing.T) {
	db := testutil.NewDB(t)
	f := testutil.CreateFacility(t, db, "12-13-14")
	day := testutil.Day(2024, 3, 1)
	pendingHostel(t, db, "HOSTEL-1", f.ID, day, models.HostelQuantities{DryWaste: 2})
	pendingHostel(t, db, "HOSTEL-2", f.ID, day, models.HostelQuantities{WetWaste: 3})
	pendingHostel(t, db, "HOSTEL-3", f.ID, day.AddDate(0, 0, 1), models.HostelQuantities{WetWaste: 30})

	subs, err := VerifyBatch(db, f.ID, day, pho)
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	s, ok := summaryFor(t, db, f.ID, day)
	require.True(t, ok)
	assert.InDelta(t, 5.0, s.TotalHostelWaste, 1e-9)
	assert.Equal(t, 2, s.HostelCollections)

	_, err = VerifyBatch(db, f.ID, day, pho)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGroup(t *testing.T) {
	db := testutil.NewDB(t)
	f := testutil.CreateFacility(t, db, "10")
	d1, d2 := testutil.Day(2024, 3, 1), testutil.Day(2024, 3, 2)
	pendingHostel(t, db, "HOSTEL-1", f.ID, d1, models.HostelQuantities{DryWaste: 2})
	pendingHostel(t, db, "HOSTEL-2", f.ID, d1, models.HostelQuantities{DryWaste: 1, EWaste: 0.5})
	pendingMess(t, db, "MESS-1", f.ID, d2, models.MessQuantities{Dinner: models.MealQuantities{Students: 40, CounterWaste: 2}})

	subs, err := submission.List(db, submission.Filter{Status: models.StatusPending})
	require.NoError(t, err)
	responses, err := submission.Responses(db, subs)
	require.NoError(t, err)

	groups := Group(subs, responses)
	require.Len(t, groups, 2)

	assert.Equal(t, "2024-03-02", groups[0].Date)
	assert.Equal(t, models.KindMessWaste, groups[0].Kind)
	mt := groups[0].Totals.(messTotals)
	assert.Equal(t, 40, mt.TotalStudents)

	assert.Equal(t, models.KindHostelWaste, groups[1].Kind)
	assert.Equal(t, 2, groups[1].Count)
	assert.InDelta(t, 3.5, groups[1].TotalWaste, 1e-9)
	ht := groups[1].Totals.(hostelTotals)
	assert.InDelta(t, 3.0, ht.DryWaste, 1e-9)
	assert.Len(t, groups[1].Submissions, 2)
}
