package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/cohort/core/task"
	"github.com/trezcool/cohort/core/user"
)

type submissionApi struct {
	workflow *task.Workflow
}

func registerSubmissionAPI(g *echo.Group, auth echo.MiddlewareFunc, workflow *task.Workflow) {
	api := submissionApi{workflow: workflow}

	sg := g.Group("/submissions", auth)
	sg.GET("", api.query)
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id/grade", api.grade, roleMiddleware(user.RoleAdmin, user.RoleMentor))
}

// Handlers

func (api *submissionApi) query(ctx echo.Context) error {
	graded, err := boolParam(ctx, "graded")
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	filter := task.SubmissionFilter{
		TaskID:   ctx.QueryParam("task"),
		BatchID:  ctx.QueryParam("batch"),
		Graded:   graded,
		Ordering: ordering.Orderings,
	}
	subs, err := api.workflow.ListSubmissions(ctx.Request().Context(), currentUser(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "listing submissions")
	}
	if subs == nil {
		subs = []task.Submission{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *submissionApi) retrieve(ctx echo.Context) error {
	sub, err := api.workflow.GetSubmission(ctx.Request().Context(), currentUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *submissionApi) grade(ctx echo.Context) error {
	var data task.GradeInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeInput")
	}

	sub, err := api.workflow.Grade(ctx.Request().Context(), currentUser(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "grading submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}
