// Package testutil wires an in-memory database and fixtures for package tests.
package testutil

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"testing"
	"time"

	"wasteportal-backend/internal/auth"
	"wasteportal-backend/internal/config"
	"wasteportal-backend/internal/database"
	"wasteportal-backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const Password = "password123"

// NewDB opens a fresh in-memory SQLite database, migrates it and installs it as database.DB.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000&_foreign_keys=1", uuid.NewString())
	db, err := database.Open("sqlite", dsn, zap.NewNop())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps the memory database alive and serializes access.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))

	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = prev
		_ = sqlDB.Close()
	})
	return db
}

// Config returns a valid configuration for tests.
func Config(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		HTTPPort:         "0",
		CORSOrigins:      "*",
		LogLevel:         "debug",
		DatabaseDriver:   "sqlite",
		JWTSecret:        "test-secret-test-secret-test-secret",
		SessionTTL:       time.Hour,
		Location:         time.UTC,
		StorageDriver:    "local",
		StorageLocalPath: t.TempDir(),
		StoragePublicURL: "http://files.test",
		MessBucket:       "mess-images",
		HostelBucket:     "hostel-images",
		MaxUploadBytes:   1 << 20,
		MaxUploadFiles:   3,
	}
}

func CreateFacility(t *testing.T, db *gorm.DB, code string) models.Facility {
	t.Helper()
	f := models.Facility{Code: code, Name: "Hostel " + code}
	require.NoError(t, db.Create(&f).Error)
	return f
}

// CreateUser stores a user whose password is Password.
func CreateUser(t *testing.T, db *gorm.DB, username string, role models.UserRole, facilityID *uint) models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	require.NoError(t, err)

	u := models.User{
		Username:     username,
		Name:         username,
		PasswordHash: string(hash),
		Role:         role,
		FacilityID:   facilityID,
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func Token(t *testing.T, cfg *config.Config, u *models.User) string {
	t.Helper()
	token, err := auth.GenerateToken(cfg.JWTSecret, cfg.SessionTTL, u)
	require.NoError(t, err)
	return token
}

// Day returns midnight UTC of the given date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Minimal file headers accepted by content sniffing.
var (
	PNG  = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)
	JPEG = append([]byte{0xff, 0xd8, 0xff, 0xe0}, bytes.Repeat([]byte{0}, 64)...)
)

type File struct {
	Field string
	Name  string
	Data  []byte
}

// Multipart encodes fields and files as a multipart/form-data body.
func Multipart(t *testing.T, fields map[string]string, files ...File) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := w.CreateFormFile(f.Field, f.Name)
		require.NoError(t, err)
		_, err = fw.Write(f.Data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

// FileHeaders returns the parsed headers of files, as a handler would see them.
func FileHeaders(t *testing.T, files ...File) []*multipart.FileHeader {
	t.Helper()
	body, contentType := Multipart(t, nil, files...)

	_, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	form, err := multipart.NewReader(body, params["boundary"]).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	var out []*multipart.FileHeader
	for _, f := range files {
		out = append(out, form.File[f.Field]...)
	}
	return dedupe(out)
}

func dedupe(in []*multipart.FileHeader) []*multipart.FileHeader {
	seen := map[*multipart.FileHeader]bool{}
	out := in[:0]
	for _, fh := range in {
		if !seen[fh] {
			seen[fh] = true
			out = append(out, fh)
		}
	}
	return out
}
