package database

import (
	"errors"
	"fmt"
	"strings"

	"wasteportal-backend/internal/config"
	"wasteportal-backend/internal/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open connects with the configured driver. SQLite is meant for local runs and tests.
// Constraint violations come back as gorm.ErrDuplicatedKey and gorm.ErrForeignKeyViolated.
func Open(driver, dsn string, logger *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(sqliteDSN(dsn))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         NewGormLogger(logger).LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

// sqliteDSN turns on foreign key enforcement, which SQLite leaves off per connection.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys=") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=1"
	}
	return dsn + "?_foreign_keys=1"
}

// messActiveIndex allows one pending or verified mess submission per facility and day.
const messActiveIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_mess_active_facility_date
	ON mess_waste_submissions (facility_id, date) WHERE status <> 'rejected'`

// Migrate creates or updates every table. Facilities come first so the others can reference them.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Facility{},
		&models.User{},
		&models.MessWasteSubmission{},
		&models.HostelWasteSubmission{},
		&models.SubmissionImage{},
		&models.DailyWasteSummary{},
		&models.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec(messActiveIndex).Error; err != nil {
		return fmt.Errorf("create mess uniqueness index: %w", err)
	}
	return nil
}

// Init opens, migrates and publishes the shared handle in DB.
func Init(cfg *config.Config, logger *zap.Logger) error {
	db, err := Open(cfg.DatabaseDriver, cfg.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	if err := Migrate(db); err != nil {
		return err
	}
	DB = db

	created, err := EnsureAdmin(db, cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		return err
	}
	switch {
	case created:
		logger.Info("default admin created", zap.String("username", cfg.AdminUsername))
	case cfg.AdminPassword == "":
		logger.Debug("ADMIN_PASSWORD not set, skipping default admin")
	}

	logger.Info("database ready", zap.String("driver", cfg.DatabaseDriver))
	return nil
}

// EnsureAdmin creates an admin with the given credentials unless the username
// exists. An empty password disables it.
func EnsureAdmin(db *gorm.DB, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}

	var existing models.User
	err := db.Where("username = ?", username).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("look up admin: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}

	admin := models.User{
		Username:     username,
		Name:         "Administrator",
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
	}
	if err := db.Create(&admin).Error; err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}
	return true, nil
}

// Ping checks the underlying connection.
func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// FacilityCodes maps facility ids to their codes for list responses.
func FacilityCodes(db *gorm.DB) (map[uint]string, error) {
	var facilities []models.Facility
	if err := db.Select("id", "code").Find(&facilities).Error; err != nil {
		return nil, fmt.Errorf("load facilities: %w", err)
	}
	codes := make(map[uint]string, len(facilities))
	for _, f := range facilities {
		codes[f.ID] = f.Code
	}
	return codes, nil
}
