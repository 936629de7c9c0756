package audit_test

import (
	"encoding/csv"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"wasteportal-backend/internal/audit"
	"wasteportal-backend/internal/auth"
	"wasteportal-backend/internal/config"
	"wasteportal-backend/internal/models"
	"wasteportal-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type quantities struct {
	DryWaste float64 `json:"dry_waste"`
	WetWaste float64 `json:"wet_waste"`
}

func seedLogs(t *testing.T, db *gorm.DB, f1, f2 uint) {
	t.Helper()
	logs := []audit.LogOptions{
		{FacilityID: &f1, UserID: 2, UserName: "pho1", EntityType: "hostel_waste", EntityID: 1,
			Action: models.AuditActionEdit, Reason: "scale misread",
			Before: quantities{DryWaste: 2, WetWaste: 1}, After: quantities{DryWaste: 2.5, WetWaste: 1}},
		{FacilityID: &f2, UserID: 3, UserName: "pho2", EntityType: "mess_waste", EntityID: 7,
			Action: models.AuditActionEdit, Reason: "typo",
			Before: map[string]any{"lunch": map[string]any{"students": 10}}, After: map[string]any{"lunch": map[string]any{"students": 100}}},
		{FacilityID: &f1, UserID: 2, UserName: "pho1", EntityType: "hostel_waste", EntityID: 1,
			Action: models.AuditActionVerify},
		{UserID: 1, UserName: "admin", EntityType: "user", EntityID: 4, Action: models.AuditActionCreate},
	}
	for _, l := range logs {
		require.NoError(t, audit.WriteLog(db, l))
	}
}

func newApp(role models.UserRole, facilityID *uint) *fiber.App {
	return newAppIn(time.UTC, role, facilityID)
}

func newAppIn(loc *time.Location, role models.UserRole, facilityID *uint) *fiber.App {
	cfg := &config.Config{Location: loc}
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserIDKey, uint(1))
		c.Locals(auth.CtxUserRoleKey, role)
		c.Locals(auth.CtxFacilityIDKey, facilityID)
		return c.Next()
	})
	app.Get("/edits", audit.EditHistoryHandler(cfg))
	app.Get("/edits/export", audit.ExportEditsHandler(cfg))
	app.Get("/audit-logs", audit.ListAuditLogsHandler())
	return app
}

func getJSON(t *testing.T, app *fiber.App, url string, out any) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", url, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == fiber.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestEditHistory(t *testing.T) {
	db := testutil.NewDB(t)
	f1 := testutil.CreateFacility(t, db, "10")
	f2 := testutil.CreateFacility(t, db, "18")
	seedLogs(t, db, f1.ID, f2.ID)
	app := newApp(models.RolePHO, nil)

	var edits []audit.EditResponse
	require.Equal(t, fiber.StatusOK, getJSON(t, app, "/edits", &edits))
	require.Len(t, edits, 2)

	var hostel audit.EditResponse
	for _, e := range edits {
		if e.Kind == models.KindHostelWaste {
			hostel = e
		}
	}
	assert.Equal(t, "10", hostel.FacilityCode)
	assert.Equal(t, "scale misread", hostel.Reason)
	require.Len(t, hostel.Changes, 1)
	assert.Equal(t, "dry_waste", hostel.Changes[0].Field)

	edits = nil
	require.Equal(t, fiber.StatusOK, getJSON(t, app, "/edits?kind=mess", &edits))
	require.Len(t, edits, 1)
	assert.Equal(t, "lunch.students", edits[0].Changes[0].Field)

	edits = nil
	require.Equal(t, fiber.StatusOK, getJSON(t, app, "/edits?editor_id=2", &edits))
	assert.Len(t, edits, 1)

	assert.Equal(t, fiber.StatusBadRequest, getJSON(t, app, "/edits?kind=food", nil))
}

func TestEditHistoryDaysFollowLocation(t *testing.T) {
	db := testutil.NewDB(t)
	f1 := testutil.CreateFacility(t, db, "10")
	f2 := testutil.CreateFacility(t, db, "18")
	seedLogs(t, db, f1.ID, f2.ID)

	// 01:30 local on the 10th and on the 11th
	setCreated := func(entityType string, at time.Time) {
		require.NoError(t, db.Model(&models.AuditLog{}).
			Where("entity_type = ? AND action = ?", entityType, models.AuditActionEdit).
			Update("created_at", at).Error)
	}
	setCreated("hostel_waste", time.Date(2024, 3, 9, 20, 0, 0, 0, time.UTC))
	setCreated("mess_waste", time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC))

	ist := time.FixedZone("IST", 5*3600+1800)
	var edits []audit.EditResponse
	require.Equal(t, fiber.StatusOK, getJSON(t, newAppIn(ist, models.RolePHO, nil), "/edits?from=2024-03-10&to=2024-03-10", &edits))
	require.Len(t, edits, 1)
	assert.Equal(t, models.KindHostelWaste, edits[0].Kind)
	assert.Equal(t, "2024-03-10 01:30:00", edits[0].EditedAt)

	edits = nil
	require.Equal(t, fiber.StatusOK, getJSON(t, newAppIn(ist, models.RolePHO, nil), "/edits?from=2024-03-11", &edits))
	require.Len(t, edits, 1)
	assert.Equal(t, models.KindMessWaste, edits[0].Kind)
}

func TestEditHistoryPinsSupervisor(t *testing.T) {
	db := testutil.NewDB(t)
	f1 := testutil.CreateFacility(t, db, "10")
	f2 := testutil.CreateFacility(t, db, "18")
	seedLogs(t, db, f1.ID, f2.ID)

	var edits []audit.EditResponse
	require.Equal(t, fiber.StatusOK, getJSON(t, newApp(models.RoleSupervisor, &f2.ID), "/edits?facility_id=1", &edits))
	require.Len(t, edits, 1)
	assert.Equal(t, models.KindMessWaste, edits[0].Kind)
}

func TestExportEdits(t *testing.T) {
	db := testutil.NewDB(t)
	f1 := testutil.CreateFacility(t, db, "10")
	f2 := testutil.CreateFacility(t, db, "18")
	seedLogs(t, db, f1.ID, f2.ID)

	resp, err := newApp(models.RoleAdmin, nil).Test(httptest.NewRequest("GET", "/edits/export?kind=hostel", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	records, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Changes Made", records[0][6])
	assert.Equal(t, "dry_waste: 2 -> 2.5", records[1][6])
	assert.Equal(t, "hostel", records[1][1])
}

func TestListAuditLogs(t *testing.T) {
	db := testutil.NewDB(t)
	f1 := testutil.CreateFacility(t, db, "10")
	f2 := testutil.CreateFacility(t, db, "18")
	seedLogs(t, db, f1.ID, f2.ID)
	app := newApp(models.RoleAdmin, nil)

	tests := []struct {
		url  string
		want int
	}{
		{"/audit-logs", 4},
		{"/audit-logs?entity_type=hostel_waste", 2},
		{"/audit-logs?entity_type=hostel_waste&action=verify", 1},
		{"/audit-logs?user_id=1", 1},
		{"/audit-logs?entity_id=7", 1},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			var logs []audit.AuditLogResponse
			require.Equal(t, fiber.StatusOK, getJSON(t, app, tt.url, &logs))
			assert.Len(t, logs, tt.want)
		})
	}

	assert.Equal(t, fiber.StatusBadRequest, getJSON(t, app, "/audit-logs?user_id=x", nil))
}
