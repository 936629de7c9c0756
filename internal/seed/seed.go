// Package seed loads facilities and users from a YAML file.
package seed

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"wasteportal-backend/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

const minPasswordLength = 8

type File struct {
	Facilities []Facility `yaml:"facilities"`
	Users      []User     `yaml:"users"`
}

type Facility struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

type User struct {
	Username string          `yaml:"username"`
	Name     string          `yaml:"name"`
	Email    string          `yaml:"email"`
	Password string          `yaml:"password"`
	Role     models.UserRole `yaml:"role"`
	Facility string          `yaml:"facility"` // facility code, supervisors only
}

// Result counts what Apply changed.
type Result struct {
	FacilitiesCreated int
	FacilitiesUpdated int
	UsersCreated      int
	UsersSkipped      int
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	codes := map[string]bool{}
	for i := range f.Facilities {
		fac := &f.Facilities[i]
		fac.Code = strings.TrimSpace(fac.Code)
		fac.Name = strings.TrimSpace(fac.Name)
		if fac.Code == "" || fac.Name == "" {
			return fmt.Errorf("facility %d: code and name are required", i+1)
		}
		if codes[fac.Code] {
			return fmt.Errorf("facility %q listed twice", fac.Code)
		}
		codes[fac.Code] = true
	}

	names := map[string]bool{}
	for i := range f.Users {
		u := &f.Users[i]
		u.Username = strings.ToLower(strings.TrimSpace(u.Username))
		u.Name = strings.TrimSpace(u.Name)
		if u.Username == "" || u.Name == "" {
			return fmt.Errorf("user %d: username and name are required", i+1)
		}
		if names[u.Username] {
			return fmt.Errorf("user %q listed twice", u.Username)
		}
		names[u.Username] = true
		if !u.Role.Valid() {
			return fmt.Errorf("user %q: invalid role %q", u.Username, u.Role)
		}
		if len(u.Password) < minPasswordLength {
			return fmt.Errorf("user %q: password must be at least %d characters", u.Username, minPasswordLength)
		}
		switch {
		case u.Role == models.RoleSupervisor && u.Facility == "":
			return fmt.Errorf("user %q: supervisors need a facility", u.Username)
		case u.Role != models.RoleSupervisor && u.Facility != "":
			return fmt.Errorf("user %q: only supervisors are assigned to a facility", u.Username)
		}
	}
	return nil
}

// Apply upserts facilities by code and creates missing users in one transaction.
// Existing users are left untouched, passwords included.
func Apply(db *gorm.DB, f *File) (Result, error) {
	var res Result
	err := db.Transaction(func(tx *gorm.DB) error {
		ids := map[string]uint{}
		for _, fac := range f.Facilities {
			var existing models.Facility
			err := tx.Where("code = ?", fac.Code).First(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				existing = models.Facility{Code: fac.Code, Name: fac.Name}
				if err := tx.Create(&existing).Error; err != nil {
					return fmt.Errorf("create facility %s: %w", fac.Code, err)
				}
				res.FacilitiesCreated++
			case err != nil:
				return fmt.Errorf("look up facility %s: %w", fac.Code, err)
			case existing.Name != fac.Name:
				if err := tx.Model(&existing).Update("name", fac.Name).Error; err != nil {
					return fmt.Errorf("update facility %s: %w", fac.Code, err)
				}
				res.FacilitiesUpdated++
			}
			ids[fac.Code] = existing.ID
		}

		for _, u := range f.Users {
			var count int64
			if err := tx.Model(&models.User{}).Where("username = ?", u.Username).Count(&count).Error; err != nil {
				return fmt.Errorf("look up user %s: %w", u.Username, err)
			}
			if count > 0 {
				res.UsersSkipped++
				continue
			}

			user := models.User{Username: u.Username, Name: u.Name, Email: u.Email, Role: u.Role}
			if u.Facility != "" {
				id, err := facilityID(tx, ids, u.Facility)
				if err != nil {
					return fmt.Errorf("user %s: %w", u.Username, err)
				}
				user.FacilityID = &id
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash password for %s: %w", u.Username, err)
			}
			user.PasswordHash = string(hash)
			if err := tx.Create(&user).Error; err != nil {
				return fmt.Errorf("create user %s: %w", u.Username, err)
			}
			res.UsersCreated++
		}
		return nil
	})
	return res, err
}

// facilityID resolves a code from this file first, then from the database.
func facilityID(tx *gorm.DB, ids map[string]uint, code string) (uint, error) {
	if id, ok := ids[code]; ok {
		return id, nil
	}
	var f models.Facility
	if err := tx.Where("code = ?", code).First(&f).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("unknown facility %q", code)
		}
		return 0, err
	}
	return f.ID, nil
}
