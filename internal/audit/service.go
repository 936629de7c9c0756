package audit

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"wasteportal-backend/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type LogOptions struct {
	FacilityID  *uint
	UserID      uint
	UserName    string
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Reason      string
	Before      any
	After       any
}

// Snapshot marshals v for a before/after column; nil becomes JSON null.
func Snapshot(v any) datatypes.JSON {
	if v == nil {
		return datatypes.JSON("null")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}

// WriteLog stores an audit row using db, which may be a transaction.
func WriteLog(db *gorm.DB, opts LogOptions) error {
	log := models.AuditLog{
		FacilityID:  opts.FacilityID,
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		Reason:      opts.Reason,
		BeforeData:  Snapshot(opts.Before),
		AfterData:   Snapshot(opts.After),
	}

	if err := db.Create(&log).Error; err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

type FieldChange struct {
	Field  string `json:"field"`
	Before any    `json:"before"`
	After  any    `json:"after"`
}

// Changes lists the leaf fields that differ between two JSON objects, sorted by
// field. Nested objects are flattened as "breakfast.student_waste".
func Changes(before, after datatypes.JSON) []FieldChange {
	b := flatten(before)
	a := flatten(after)

	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range b {
		keys[k] = struct{}{}
	}
	for k := range a {
		keys[k] = struct{}{}
	}

	changes := []FieldChange{}
	for k := range keys {
		if reflect.DeepEqual(b[k], a[k]) {
			continue
		}
		changes = append(changes, FieldChange{Field: k, Before: b[k], After: a[k]})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Field < changes[j].Field })
	return changes
}

func flatten(raw datatypes.JSON) map[string]any {
	out := map[string]any{}
	var v map[string]any
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return out
	}
	flattenInto(out, "", v)
	return out
}

func flattenInto(out map[string]any, prefix string, v map[string]any) {
	for k, val := range v {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			flattenInto(out, key, nested)
			continue
		}
		out[key] = val
	}
}

// FormatChanges renders changes as "field: before -> after; ...".
func FormatChanges(changes []FieldChange) string {
	parts := make([]string, 0, len(changes))
	for _, ch := range changes {
		parts = append(parts, fmt.Sprintf("%s: %s -> %s", ch.Field, formatValue(ch.Before), formatValue(ch.After)))
	}
	return strings.Join(parts, "; ")
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	}
	return fmt.Sprint(v)
}
