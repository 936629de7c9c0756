package models

import "time"

type UserRole string

const (
	RoleAdmin      UserRole = "admin"
	RolePHO        UserRole = "pho"
	RoleSupervisor UserRole = "pho_supervisor"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RolePHO, RoleSupervisor:
		return true
	}
	return false
}

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	FacilityID   *uint     `gorm:"index" json:"facility_id"`
	Facility     *Facility `json:"-"`
	Username     string    `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Name         string    `gorm:"size:100;not null" json:"name"`
	Email        string    `gorm:"size:100" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         UserRole  `gorm:"size:20;not null" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
