package audit

import (
	"testing"

	"wasteportal-backend/internal/models"
	"wasteportal-backend/internal/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestChanges(t *testing.T) {
	before := datatypes.JSON(`{"breakfast":{"students":100,"student_waste":2},"mess_dry_waste":1,"total_waste":3}`)
	after := datatypes.JSON(`{"breakfast":{"students":100,"student_waste":2.5},"mess_dry_waste":1,"total_waste":3.5,"note":"x"}`)

	want := []FieldChange{
		{Field: "breakfast.student_waste", Before: 2.0, After: 2.5},
		{Field: "note", Before: nil, After: "x"},
		{Field: "total_waste", Before: 3.0, After: 3.5},
	}
	if diff := cmp.Diff(want, Changes(before, after)); diff != "" {
		t.Errorf("Changes mismatch (-want +got):\n%s", diff)
	}
}

func TestChangesOfNullSnapshots(t *testing.T) {
	assert.Empty(t, Changes(datatypes.JSON("null"), datatypes.JSON("null")))
	assert.Empty(t, Changes(nil, datatypes.JSON(`{}`)))

	got := Changes(datatypes.JSON("null"), datatypes.JSON(`{"dry_waste":4}`))
	if diff := cmp.Diff([]FieldChange{{Field: "dry_waste", After: 4.0}}, got); diff != "" {
		t.Errorf("Changes mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatChanges(t *testing.T) {
	got := FormatChanges([]FieldChange{
		{Field: "wet_waste", Before: 2.0, After: 2.25},
		{Field: "remarks", Before: nil, After: "late pickup"},
	})
	assert.Equal(t, "wet_waste: 2 -> 2.25; remarks: - -> late pickup", got)
	assert.Equal(t, "", FormatChanges(nil))
}

func TestWriteLog(t *testing.T) {
	db := testutil.NewDB(t)
	fid := uint(3)

	require.NoError(t, WriteLog(db, LogOptions{
		FacilityID:  &fid,
		UserID:      9,
		UserName:    "pho1",
		EntityType:  string(models.KindHostelWaste),
		EntityID:    5,
		Action:      models.AuditActionReject,
		Description: "rejected HOSTEL-1",
		Reason:      "blurry photo",
		Before:      models.HostelQuantities{DryWaste: 1},
	}))

	var log models.AuditLog
	require.NoError(t, db.First(&log).Error)
	assert.Equal(t, "pho1", log.UserName)
	assert.Equal(t, models.AuditActionReject, log.Action)
	assert.Equal(t, "blurry photo", log.Reason)
	assert.JSONEq(t, `{"dry_waste":1,"wet_waste":0,"e_waste":0,"biomedical_waste":0,"hazardous_waste":0}`, string(log.BeforeData))
	assert.Equal(t, "null", string(log.AfterData))
}
