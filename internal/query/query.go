// Package query parses the query-string and path parameters shared by list endpoints.
package query

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const DateLayout = "2006-01-02"

// ParseDate parses YYYY-MM-DD as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// DateRange reads ?from= and ?to= (inclusive days). Missing bounds are nil.
func DateRange(c *fiber.Ctx) (from, to *time.Time, err error) {
	if s := c.Query("from"); s != "" {
		d, err := ParseDate(s)
		if err != nil {
			return nil, nil, fiber.NewError(fiber.StatusBadRequest, "from must be YYYY-MM-DD")
		}
		from = &d
	}
	if s := c.Query("to"); s != "" {
		d, err := ParseDate(s)
		if err != nil {
			return nil, nil, fiber.NewError(fiber.StatusBadRequest, "to must be YYYY-MM-DD")
		}
		to = &d
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, fiber.NewError(fiber.StatusBadRequest, "to is before from")
	}
	return from, to, nil
}

// ApplyDateRange restricts column to the range; to covers its whole day.
func ApplyDateRange(db *gorm.DB, column string, from, to *time.Time) *gorm.DB {
	if from != nil {
		db = db.Where(column+" >= ?", *from)
	}
	if to != nil {
		db = db.Where(column+" < ?", to.AddDate(0, 0, 1))
	}
	return db
}

// StartOfDay returns the instant, in UTC, at which the calendar day of d begins in loc.
func StartOfDay(d time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, loc).UTC()
}

// ApplyLocalDayRange restricts a timestamp column to the days from..to as seen in loc.
func ApplyLocalDayRange(db *gorm.DB, column string, from, to *time.Time, loc *time.Location) *gorm.DB {
	if from != nil {
		db = db.Where(column+" >= ?", StartOfDay(*from, loc))
	}
	if to != nil {
		db = db.Where(column+" < ?", StartOfDay(to.AddDate(0, 0, 1), loc))
	}
	return db
}

// parseID accepts only plain decimal digits.
func parseID(s string) (uint, bool) {
	v, err := strconv.ParseUint(s, 10, 0)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

// OptionalUint reads a positive integer query parameter; 0 means absent.
func OptionalUint(c *fiber.Ctx, key string) (uint, error) {
	s := c.Query(key)
	if s == "" {
		return 0, nil
	}
	v, ok := parseID(s)
	if !ok {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+key)
	}
	return v, nil
}

// ParamID reads a positive integer path parameter.
func ParamID(c *fiber.Ctx, key string) (uint, error) {
	id, ok := parseID(c.Params(key))
	if !ok {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+key)
	}
	return id, nil
}
