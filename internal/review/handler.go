package review

import (
	"encoding/json"
	"errors"
	"sort"

	"wasteportal-backend/internal/auth"
	"wasteportal-backend/internal/database"
	"wasteportal-backend/internal/models"
	"wasteportal-backend/internal/notify"
	"wasteportal-backend/internal/query"
	"wasteportal-backend/internal/submission"
	"wasteportal-backend/internal/summary"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type RejectRequest struct {
	Reason string `json:"reason"`
}

type EditRequest struct {
	Reason string `json:"reason"`
}

type BatchVerifyRequest struct {
	FacilityID uint   `json:"facility_id"`
	Date       string `json:"date"`
}

func currentReviewer(c *fiber.Ctx) (Reviewer, error) {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return Reviewer{}, err
	}
	return Reviewer{ID: user.ID, Name: user.Name}, nil
}

// httpError maps review errors to responses.
func httpError(err error) error {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "submission not found")
	case errors.Is(err, ErrNotPending):
		return fiber.NewError(fiber.StatusConflict, "submission was already reviewed")
	case errors.Is(err, ErrInvalid):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, "could not review submission")
}

func respond(c *fiber.Ctx, n notify.Notifier, logger *zap.Logger, r Reviewer, sub models.Submission) error {
	notify.Send(c.UserContext(), n, logger, notify.ReviewEvent(sub, r.Name))

	resp, err := submission.Responses(database.DB, []models.Submission{sub})
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "could not load submission")
	}
	return c.JSON(resp[0])
}

// POST /api/review/:kind/:id/verify
func VerifyHandler(n notify.Notifier, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		kind, id, err := submission.KindAndID(c)
		if err != nil {
			return err
		}
		r, err := currentReviewer(c)
		if err != nil {
			return err
		}

		sub, err := Verify(database.DB, kind, id, r)
		if err != nil {
			return httpError(err)
		}
		return respond(c, n, logger, r, sub)
	}
}

// POST /api/review/:kind/:id/reject
func RejectHandler(n notify.Notifier, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		kind, id, err := submission.KindAndID(c)
		if err != nil {
			return err
		}
		var body RejectRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		r, err := currentReviewer(c)
		if err != nil {
			return err
		}

		sub, err := Reject(database.DB, kind, id, r, body.Reason)
		if err != nil {
			return httpError(err)
		}
		return respond(c, n, logger, r, sub)
	}
}

// PUT /api/review/:kind/:id
// The body holds the reason plus any quantity fields to overwrite.
func EditHandler(n notify.Notifier, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		kind, id, err := submission.KindAndID(c)
		if err != nil {
			return err
		}
		var body EditRequest
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
		}
		r, err := currentReviewer(c)
		if err != nil {
			return err
		}

		sub, err := EditAndVerify(database.DB, kind, id, r, c.Body(), body.Reason)
		if err != nil {
			return httpError(err)
		}
		return respond(c, n, logger, r, sub)
	}
}

// POST /api/review/hostel/verify-batch
func VerifyBatchHandler(n notify.Notifier, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body BatchVerifyRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if body.FacilityID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "facility_id is required")
		}
		date, err := query.ParseDate(body.Date)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "date must be YYYY-MM-DD")
		}
		r, err := currentReviewer(c)
		if err != nil {
			return err
		}

		subs, err := VerifyBatch(database.DB, body.FacilityID, date, r)
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "no pending hostel collections for that facility and date")
		}
		if err != nil {
			return httpError(err)
		}

		for _, sub := range subs {
			notify.Send(c.UserContext(), n, logger, notify.ReviewEvent(sub, r.Name))
		}
		resp, err := submission.Responses(database.DB, subs)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not load submissions")
		}
		return c.JSON(fiber.Map{"verified": len(resp), "submissions": resp})
	}
}

type PendingGroup struct {
	FacilityID   uint                            `json:"facility_id"`
	FacilityCode string                          `json:"facility_code"`
	Date         string                          `json:"date"`
	Kind         models.SubmissionKind           `json:"kind"`
	Count        int                             `json:"count"`
	Totals       any                             `json:"totals"`
	TotalWaste   float64                         `json:"total_waste"`
	Submissions  []submission.SubmissionResponse `json:"submissions"`
}

type messTotals struct {
	models.MessQuantities
	models.MessTotals
}

type hostelTotals struct {
	models.HostelQuantities
	TotalWaste float64 `json:"total_waste"`
}

// Group collects pending submissions by (facility, date, kind), newest date first.
func Group(subs []models.Submission, responses []submission.SubmissionResponse) []PendingGroup {
	type groupKey struct {
		facilityID uint
		date       string
		kind       models.SubmissionKind
	}
	index := map[groupKey]int{}
	var groups []PendingGroup
	mess := map[int]*models.MessQuantities{}
	hostel := map[int]*models.HostelQuantities{}

	for i, sub := range subs {
		resp := responses[i]
		k := groupKey{resp.FacilityID, resp.Date, resp.Kind}
		gi, ok := index[k]
		if !ok {
			gi = len(groups)
			index[k] = gi
			groups = append(groups, PendingGroup{
				FacilityID:   resp.FacilityID,
				FacilityCode: resp.FacilityCode,
				Date:         resp.Date,
				Kind:         resp.Kind,
				Submissions:  []submission.SubmissionResponse{},
			})
			mess[gi] = &models.MessQuantities{}
			hostel[gi] = &models.HostelQuantities{}
		}

		g := &groups[gi]
		g.Count++
		g.TotalWaste += sub.Total()
		g.Submissions = append(g.Submissions, resp)
		switch q := sub.Quantities().(type) {
		case *models.MessQuantities:
			summary.AddMess(mess[gi], *q)
		case *models.HostelQuantities:
			hostel[gi].Add(*q)
		}
	}

	for i := range groups {
		if groups[i].Kind == models.KindMessWaste {
			groups[i].Totals = messTotals{*mess[i], models.ComputeMessTotals(*mess[i])}
		} else {
			groups[i].Totals = hostelTotals{*hostel[i], hostel[i].Sum()}
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Date != groups[j].Date {
			return groups[i].Date > groups[j].Date
		}
		if groups[i].FacilityCode != groups[j].FacilityCode {
			return groups[i].FacilityCode < groups[j].FacilityCode
		}
		return groups[i].Kind < groups[j].Kind
	})
	return groups
}

// GET /api/review/pending?kind=&facility_id=
func PendingHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := submission.Filter{Status: models.StatusPending}
		if k := c.Query("kind"); k != "" {
			kind, err := models.ParseKind(k)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "kind must be mess or hostel")
			}
			f.Kind = kind
		}
		facilityID, err := auth.ResolveFacilityFilter(c)
		if err != nil {
			return err
		}
		f.FacilityID = facilityID

		subs, err := submission.List(database.DB, f)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list pending submissions")
		}
		responses, err := submission.Responses(database.DB, subs)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list pending submissions")
		}
		return c.JSON(Group(subs, responses))
	}
}
