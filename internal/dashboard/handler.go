package dashboard

import (
	"bytes"
	"time"

	"wasteportal-backend/internal/auth"
	"wasteportal-backend/internal/config"
	"wasteportal-backend/internal/database"
	"wasteportal-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

// now is replaced in tests.
var now = time.Now

func today(cfg *config.Config) time.Time {
	return models.DateOnly(now().In(cfg.Location))
}

// scopeFromQuery reads ?facility_id= and ?period=.
func scopeFromQuery(c *fiber.Ctx, cfg *config.Config) (Scope, Period, error) {
	period, err := ParsePeriod(c.Query("period"))
	if err != nil {
		return Scope{}, "", fiber.NewError(fiber.StatusBadRequest, "period must be all_time, year, month or week")
	}
	facilityID, err := auth.ResolveFacilityFilter(c)
	if err != nil {
		return Scope{}, "", err
	}
	return Scope{FacilityID: facilityID, From: period.Start(today(cfg))}, period, nil
}

// GET /api/dashboard/kpis?period=&facility_id=
func KPIsHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, period, err := scopeFromQuery(c, cfg)
		if err != nil {
			return err
		}
		kpis, err := ComputeKPIs(database.DB, scope, period, today(cfg))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not compute KPIs")
		}
		return c.JSON(kpis)
	}
}

func trend(c *fiber.Ctx, scope Scope) (Trend, error) {
	metric, err := ParseMetric(c.Query("metric"))
	if err != nil {
		return Trend{}, fiber.NewError(fiber.StatusBadRequest, "metric must be mess_waste, hostel_waste or per_capita")
	}
	codes, err := database.FacilityCodes(database.DB)
	if err != nil {
		return Trend{}, fiber.NewError(fiber.StatusInternalServerError, "could not load facilities")
	}
	t, err := ComputeTrend(database.DB, scope, metric, codes)
	if err != nil {
		return Trend{}, fiber.NewError(fiber.StatusInternalServerError, "could not compute trend")
	}
	return t, nil
}

// GET /api/dashboard/trend?metric=mess_waste|hostel_waste|per_capita&period=&facility_id=
func TrendHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, _, err := scopeFromQuery(c, cfg)
		if err != nil {
			return err
		}
		t, err := trend(c, scope)
		if err != nil {
			return err
		}
		return c.JSON(t)
	}
}

// GET /api/dashboard/categories?period=&facility_id=
func CategoriesHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, _, err := scopeFromQuery(c, cfg)
		if err != nil {
			return err
		}
		cats, err := ComputeCategories(database.DB, scope)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not compute categories")
		}
		return c.JSON(cats)
	}
}

// GET /api/dashboard/stats?period=&facility_id=
func StatsHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, _, err := scopeFromQuery(c, cfg)
		if err != nil {
			return err
		}
		stats, err := ComputeStats(database.DB, scope)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not compute statistics")
		}
		return c.JSON(stats)
	}
}

// GET /api/dashboard/charts?metric=&period=&facility_id=
func ChartsHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, _, err := scopeFromQuery(c, cfg)
		if err != nil {
			return err
		}
		t, err := trend(c, scope)
		if err != nil {
			return err
		}
		cats, err := ComputeCategories(database.DB, scope)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not compute categories")
		}

		var buf bytes.Buffer
		if err := RenderCharts(&buf, t, cats); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not render charts")
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.Send(buf.Bytes())
	}
}
