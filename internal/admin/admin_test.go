package admin_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"wasteportal-backend/internal/admin"
	"wasteportal-backend/internal/auth"
	"wasteportal-backend/internal/models"
	"wasteportal-backend/internal/storage"
	"wasteportal-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	app   *fiber.App
	admin models.User
	store *storage.LocalStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := testutil.Config(t)
	store, err := storage.NewLocalStore(cfg.StorageLocalPath, cfg.StoragePublicURL)
	require.NoError(t, err)

	f := &fixture{db: db, store: store, admin: testutil.CreateUser(t, db, "root", models.RoleAdmin, nil)}
	f.app = fiber.New()
	f.app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserIDKey, f.admin.ID)
		c.Locals(auth.CtxUserRoleKey, models.RoleAdmin)
		c.Locals(auth.CtxFacilityIDKey, (*uint)(nil))
		return c.Next()
	})

	logger := zap.NewNop()
	f.app.Get("/facilities", admin.ListFacilitiesHandler())
	f.app.Post("/facilities", admin.CreateFacilityHandler())
	f.app.Get("/facilities/:id", admin.GetFacilityHandler())
	f.app.Put("/facilities/:id", admin.UpdateFacilityHandler())
	f.app.Delete("/facilities/:id", admin.DeleteFacilityHandler())
	f.app.Get("/users", admin.ListUsersHandler())
	f.app.Post("/users", admin.CreateUserHandler())
	f.app.Delete("/users/:id", admin.DeleteUserHandler())
	f.app.Put("/users/:id/password", admin.ResetPasswordHandler())
	f.app.Get("/storage", admin.StorageUsageHandler(cfg, store, logger))
	f.app.Get("/storage/:bucket/archive", admin.ArchiveBucketHandler(cfg, store, logger))
	f.app.Delete("/storage/:bucket", admin.ClearBucketHandler(cfg, store, logger))
	return f
}

func (f *fixture) do(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *fixture) auditCount(t *testing.T, entityType string, action models.AuditAction) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.AuditLog{}).Where("entity_type = ? AND action = ?", entityType, action).Count(&n).Error)
	return n
}

func TestFacilityCRUD(t *testing.T) {
	f := newFixture(t)

	var created admin.FacilityResponse
	require.Equal(t, fiber.StatusCreated, f.do(t, "POST", "/facilities", map[string]string{"code": " 12-13-14 ", "name": "Hostel 12-13-14"}, &created))
	assert.Equal(t, "12-13-14", created.Code)

	assert.Equal(t, fiber.StatusConflict, f.do(t, "POST", "/facilities", map[string]string{"code": "12-13-14", "name": "Dup"}, nil))
	assert.Equal(t, fiber.StatusBadRequest, f.do(t, "POST", "/facilities", map[string]string{"code": "2"}, nil))
	require.Equal(t, fiber.StatusCreated, f.do(t, "POST", "/facilities", map[string]string{"code": "10", "name": "Hostel 10"}, nil))

	var list []admin.FacilityResponse
	require.Equal(t, fiber.StatusOK, f.do(t, "GET", "/facilities", nil, &list))
	require.Len(t, list, 2)
	assert.Equal(t, "10", list[0].Code)

	var updated admin.FacilityResponse
	url := "/facilities/" + idPath(created.ID)
	require.Equal(t, fiber.StatusOK, f.do(t, "PUT", url, map[string]string{"name": "Block 12-14"}, &updated))
	assert.Equal(t, "Block 12-14", updated.Name)
	assert.Equal(t, "12-13-14", updated.Code)
	assert.Equal(t, fiber.StatusConflict, f.do(t, "PUT", url, map[string]string{"code": "10"}, nil))
	assert.Equal(t, fiber.StatusNotFound, f.do(t, "GET", "/facilities/999", nil, nil))

	testutil.CreateUser(t, f.db, "sup", models.RoleSupervisor, &created.ID)
	assert.Equal(t, fiber.StatusConflict, f.do(t, "DELETE", url, nil, nil))

	assert.Equal(t, fiber.StatusNoContent, f.do(t, "DELETE", "/facilities/"+idPath(list[0].ID), nil, nil))
	assert.Equal(t, int64(2), f.auditCount(t, "facility", models.AuditActionCreate))
	assert.Equal(t, int64(1), f.auditCount(t, "facility", models.AuditActionUpdate))
	assert.Equal(t, int64(1), f.auditCount(t, "facility", models.AuditActionDelete))
}

func TestCreateUser(t *testing.T) {
	f := newFixture(t)
	facility := testutil.CreateFacility(t, f.db, "18")

	tests := []struct {
		name string
		body admin.CreateUserRequest
		want int
	}{
		{"supervisor without facility", admin.CreateUserRequest{Username: "s1", Name: "S", Password: "longenough", Role: models.RoleSupervisor}, fiber.StatusBadRequest},
		{"pho with facility", admin.CreateUserRequest{Username: "p1", Name: "P", Password: "longenough", Role: models.RolePHO, FacilityID: &facility.ID}, fiber.StatusBadRequest},
		{"unknown role", admin.CreateUserRequest{Username: "x", Name: "X", Password: "longenough", Role: "cook"}, fiber.StatusBadRequest},
		{"short password", admin.CreateUserRequest{Username: "p2", Name: "P", Password: "short", Role: models.RolePHO}, fiber.StatusBadRequest},
		{"missing facility row", admin.CreateUserRequest{Username: "s2", Name: "S", Password: "longenough", Role: models.RoleSupervisor, FacilityID: ptr(uint(99))}, fiber.StatusBadRequest},
		{"duplicate username", admin.CreateUserRequest{Username: " ROOT ", Name: "R", Password: "longenough", Role: models.RoleAdmin}, fiber.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.do(t, "POST", "/users", tt.body, nil))
		})
	}

	var created auth.UserResponse
	body := admin.CreateUserRequest{Username: " Sup18 ", Name: "Supervisor 18", Password: "longenough", Role: models.RoleSupervisor, FacilityID: &facility.ID}
	require.Equal(t, fiber.StatusCreated, f.do(t, "POST", "/users", body, &created))
	assert.Equal(t, "sup18", created.Username)
	assert.Equal(t, "18", created.FacilityCode)

	var supervisors []auth.UserResponse
	require.Equal(t, fiber.StatusOK, f.do(t, "GET", "/users?role=pho_supervisor", nil, &supervisors))
	require.Len(t, supervisors, 1)
	assert.Equal(t, "sup18", supervisors[0].Username)
	assert.Equal(t, fiber.StatusBadRequest, f.do(t, "GET", "/users?role=cook", nil, nil))
	assert.Equal(t, int64(1), f.auditCount(t, "user", models.AuditActionCreate))
}

func TestLookupFailuresAreServerErrors(t *testing.T) {
	f := newFixture(t)
	facility := testutil.CreateFacility(t, f.db, "18")

	require.NoError(t, f.db.Callback().Query().Before("gorm:query").Register("test:facilities_down", func(tx *gorm.DB) {
		if tx.Statement.Table == "facilities" {
			_ = tx.AddError(errors.New("facilities unavailable"))
		}
	}))

	sup := admin.CreateUserRequest{Username: "sup18", Name: "S", Password: "longenough", Role: models.RoleSupervisor, FacilityID: &facility.ID}
	assert.Equal(t, fiber.StatusInternalServerError, f.do(t, "POST", "/users", sup, nil))
	assert.Equal(t, fiber.StatusInternalServerError, f.do(t, "POST", "/facilities", map[string]string{"code": "19", "name": "Hostel 19"}, nil))
	assert.Zero(t, f.auditCount(t, "user", models.AuditActionCreate))
	assert.Zero(t, f.auditCount(t, "facility", models.AuditActionCreate))
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)
	root := f.admin
	second := testutil.CreateUser(t, f.db, "second", models.RoleAdmin, nil)

	assert.Equal(t, fiber.StatusBadRequest, f.do(t, "DELETE", "/users/"+idPath(f.admin.ID), nil, nil))
	assert.Equal(t, fiber.StatusNoContent, f.do(t, "DELETE", "/users/"+idPath(second.ID), nil, nil))
	assert.Equal(t, fiber.StatusNotFound, f.do(t, "DELETE", "/users/"+idPath(second.ID), nil, nil))

	// the caller is now a reviewer and root is the only admin left
	f.admin = testutil.CreateUser(t, f.db, "pho", models.RolePHO, nil)
	assert.Equal(t, fiber.StatusConflict, f.do(t, "DELETE", "/users/"+idPath(root.ID), nil, nil))
	assert.Equal(t, int64(1), f.auditCount(t, "user", models.AuditActionDelete))
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t)
	pho := testutil.CreateUser(t, f.db, "pho", models.RolePHO, nil)
	url := "/users/" + idPath(pho.ID) + "/password"

	assert.Equal(t, fiber.StatusBadRequest, f.do(t, "PUT", url, admin.ResetPasswordRequest{NewPassword: "short"}, nil))
	require.Equal(t, fiber.StatusOK, f.do(t, "PUT", url, admin.ResetPasswordRequest{NewPassword: "brand-new-pass"}, nil))

	var reloaded models.User
	require.NoError(t, f.db.First(&reloaded, pho.ID).Error)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(reloaded.PasswordHash), []byte("brand-new-pass")))
}

func TestStorageAdministration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, img := range []models.SubmissionImage{
		{SubmissionKind: models.KindMessWaste, SubmissionID: 1, Bucket: "mess-images", ObjectKey: "a.png", Size: int64(len(testutil.PNG))},
		{SubmissionKind: models.KindMessWaste, SubmissionID: 1, Bucket: "mess-images", ObjectKey: "b.png", Size: int64(len(testutil.PNG))},
		{SubmissionKind: models.KindHostelWaste, SubmissionID: 1, Bucket: "hostel-images", ObjectKey: "c.png", Size: int64(len(testutil.PNG))},
	} {
		require.NoError(t, f.store.Put(ctx, img.Bucket, img.ObjectKey, "image/png", bytes.NewReader(testutil.PNG), img.Size))
		require.NoError(t, f.db.Create(&img).Error)
	}

	var usage []admin.StorageUsageResponse
	require.Equal(t, fiber.StatusOK, f.do(t, "GET", "/storage", nil, &usage))
	require.Len(t, usage, 2)
	assert.Equal(t, models.KindMessWaste, usage[0].Kind)
	assert.Equal(t, 2, usage[0].ObjectCount)
	assert.Equal(t, 1, usage[1].ObjectCount)

	resp, err := f.app.Test(httptest.NewRequest("GET", "/storage/mess/archive", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	assert.Equal(t, "2", resp.Header.Get("X-Object-Count"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "a.png", zr.File[0].Name)
	rc, err := zr.File[1].Open()
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, testutil.PNG, content)

	assert.Equal(t, fiber.StatusNotFound, f.do(t, "GET", "/storage/kitchen/archive", nil, nil))
	assert.Equal(t, fiber.StatusBadRequest, f.do(t, "DELETE", "/storage/mess", nil, nil))

	var cleared admin.ClearBucketResponse
	require.Equal(t, fiber.StatusOK, f.do(t, http.MethodDelete, "/storage/mess?confirm=true", nil, &cleared))
	assert.Equal(t, "mess-images", cleared.Bucket)
	assert.Equal(t, 2, cleared.DeletedObjects)
	assert.Equal(t, int64(2), cleared.DeletedImages)

	var remaining []models.SubmissionImage
	require.NoError(t, f.db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, "hostel-images", remaining[0].Bucket)

	objects, err := f.store.List(ctx, "mess-images")
	require.NoError(t, err)
	assert.Empty(t, objects)
	assert.Equal(t, int64(1), f.auditCount(t, "storage", models.AuditActionDelete))
}

func idPath(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func ptr[T any](v T) *T { return &v }
