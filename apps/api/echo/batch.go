package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/cohort/core"
	"github.com/trezcool/cohort/core/review"
	"github.com/trezcool/cohort/core/task"
	"github.com/trezcool/cohort/core/user"
)

type batchApi struct {
	resolver  *task.Resolver
	reviewSvc *review.Service
}

func registerBatchAPI(g *echo.Group, auth echo.MiddlewareFunc, resolver *task.Resolver, reviewSvc *review.Service) {
	api := batchApi{
		resolver:  resolver,
		reviewSvc: reviewSvc,
	}

	bg := g.Group("/batches/:id", auth)

	// membership endpoints
	bg.POST("/students", api.enroll, roleMiddleware(user.RoleAdmin))
	bg.DELETE("/students", api.unenroll, roleMiddleware(user.RoleAdmin))

	// weekly progress reviews
	bg.GET("/students/:student/reviews/:week", api.retrieveReview)
	bg.PUT("/students/:student/reviews/:week", api.updateReview, roleMiddleware(user.RoleMentor))
}

type (
	MembershipRequest struct {
		StudentIDs []string `json:"student_ids"`
	}

	EnrollResponse struct {
		Added []string `json:"added"`
	}

	UnenrollResponse struct {
		Removed []string `json:"removed"`
	}
)

// Handlers

func (api *batchApi) enroll(ctx echo.Context) error {
	var data MembershipRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MembershipRequest")
	}

	added, err := api.resolver.EnrollStudents(ctx.Request().Context(), currentUser(ctx), ctx.Param("id"), data.StudentIDs)
	if err != nil {
		return errors.Wrap(err, "enrolling students")
	}
	if added == nil {
		added = []string{}
	}
	return ctx.JSON(http.StatusOK, EnrollResponse{Added: added})
}

func (api *batchApi) unenroll(ctx echo.Context) error {
	var data MembershipRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MembershipRequest")
	}

	removed, err := api.resolver.UnenrollStudents(ctx.Request().Context(), currentUser(ctx), ctx.Param("id"), data.StudentIDs)
	if err != nil {
		return errors.Wrap(err, "unenrolling students")
	}
	if removed == nil {
		removed = []string{}
	}
	return ctx.JSON(http.StatusOK, UnenrollResponse{Removed: removed})
}

func reviewKey(ctx echo.Context) (review.Key, error) {
	week, err := strconv.Atoi(ctx.Param("week"))
	if err != nil {
		return review.Key{}, core.NewValidationError(nil, core.FieldError{Field: "week_number", Error: "must be a number"})
	}
	return review.Key{
		BatchID:    ctx.Param("id"),
		StudentID:  ctx.Param("student"),
		WeekNumber: week,
	}, nil
}

func (api *batchApi) retrieveReview(ctx echo.Context) error {
	key, err := reviewKey(ctx)
	if err != nil {
		return err
	}

	rvw, err := api.reviewSvc.Get(ctx.Request().Context(), currentUser(ctx), key)
	if err != nil {
		return errors.Wrap(err, "getting review")
	}
	return ctx.JSON(http.StatusOK, rvw)
}

func (api *batchApi) updateReview(ctx echo.Context) error {
	key, err := reviewKey(ctx)
	if err != nil {
		return err
	}
	var data review.Input
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to review.Input")
	}

	rvw, err := api.reviewSvc.Update(ctx.Request().Context(), currentUser(ctx), key, data)
	if err != nil {
		return errors.Wrap(err, "updating review")
	}
	return ctx.JSON(http.StatusOK, rvw)
}
