package main

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"wasteportal-backend/internal/config"
	"wasteportal-backend/internal/models"
	"wasteportal-backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) *gorm.DB {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := testutil.Config(t)
	cfg.LogLevel = "error"

	prevLoad, prevOpen := loadConfig, openDB
	loadConfig = func(...string) (*config.Config, error) { return cfg, nil }
	openDB = func(*config.Config, *zap.Logger) (*gorm.DB, error) { return db, nil }
	t.Cleanup(func() { loadConfig, openDB = prevLoad, prevOpen })
	return db
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	setup(t)
	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date")
}

func TestCreateAdmin(t *testing.T) {
	db := setup(t)

	_, err := run(t, "create-admin", "--username", "boss", "--password", "short")
	require.Error(t, err)

	out, err := run(t, "create-admin", "--username", "boss", "--password", "long-enough-pw")
	require.NoError(t, err)
	assert.Contains(t, out, `admin "boss" created`)

	out, err = run(t, "create-admin", "--username", "boss", "--password", "long-enough-pw")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	var u models.User
	require.NoError(t, db.Where("username = ?", "boss").First(&u).Error)
	assert.Equal(t, models.RoleAdmin, u.Role)
}

func TestSeed(t *testing.T) {
	db := setup(t)

	_, err := run(t, "seed")
	require.Error(t, err)

	out, err := run(t, "seed", "--file", filepath.Join("..", "..", "configs", "seed.example.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "facilities: 5 created, 0 updated; users: 3 created, 0 skipped")

	out, err = run(t, "seed", "-f", filepath.Join("..", "..", "configs", "seed.example.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "users: 0 created, 3 skipped")

	var count int64
	db.Model(&models.User{}).Where("role = ?", models.RoleSupervisor).Count(&count)
	assert.Equal(t, int64(2), count)
}

func verifiedMess(t *testing.T, db *gorm.DB, facilityID uint, day int, students int, waste float64) {
	t.Helper()
	sub := models.MessWasteSubmission{}
	sub.Reference = fmt.Sprintf("MESS-202403%02d-test%04d", day, facilityID)
	sub.FacilityID = facilityID
	sub.Date = testutil.Day(2024, 3, day)
	sub.Status = models.StatusVerified
	sub.SubmittedBy = 1
	sub.Lunch = models.MealQuantities{Students: students, StudentWaste: waste}
	sub.Recalculate()
	require.NoError(t, db.Create(&sub).Error)
}

func TestRecomputeAndExport(t *testing.T) {
	db := setup(t)
	f := testutil.CreateFacility(t, db, "10")
	verifiedMess(t, db, f.ID, 1, 100, 5)
	verifiedMess(t, db, f.ID, 2, 50, 2)

	_, err := run(t, "recompute", "--from", "2024-03-05", "--to", "2024-03-01")
	require.Error(t, err)
	_, err = run(t, "recompute", "--from", "March", "--to", "2024-03-01")
	require.Error(t, err)

	out, err := run(t, "recompute", "--from", "2024-03-01", "--to", "2024-03-31")
	require.NoError(t, err)
	assert.Contains(t, out, "recomputed 2 facility days")

	var summaries []models.DailyWasteSummary
	require.NoError(t, db.Order("date").Find(&summaries).Error)
	require.Len(t, summaries, 2)
	assert.InDelta(t, 0.05, summaries[0].PerCapitaMessWaste, 1e-9)

	path := filepath.Join(t.TempDir(), "summary.csv")
	_, err = run(t, "export", "--format", "csv", "--out", path, "--from", "2024-03-02", "--facility", "10")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Date", records[0][0])
	assert.Equal(t, []string{"2024-03-02", "10"}, records[1][:2])

	_, err = run(t, "export", "--format", "pdf")
	assert.Error(t, err)
	_, err = run(t, "export", "--facility", "99")
	assert.Error(t, err)
}
