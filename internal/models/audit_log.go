package models

import (
	"time"

	"gorm.io/datatypes"
)

type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionDelete AuditAction = "delete"
	AuditActionVerify AuditAction = "verify"
	AuditActionReject AuditAction = "reject"
	AuditActionEdit   AuditAction = "edit"
)

type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	FacilityID *uint `gorm:"index" json:"facility_id"`

	UserID   uint   `gorm:"index" json:"user_id"`
	UserName string `gorm:"size:100" json:"user_name"` // denormalized, survives user deletion

	// e.g. "mess_waste", "hostel_waste", "user", "facility", "storage"
	EntityType string `gorm:"size:50;index" json:"entity_type"`
	EntityID   uint   `gorm:"index" json:"entity_id"`

	Action      AuditAction `gorm:"size:20;index" json:"action"`
	Description string      `gorm:"size:255" json:"description"`
	Reason      string      `gorm:"size:500" json:"reason"`

	BeforeData datatypes.JSON `json:"before_data"`
	AfterData  datatypes.JSON `json:"after_data"`
}
