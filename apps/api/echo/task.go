package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/cohort/core/task"
	"github.com/trezcool/cohort/core/user"
)

type taskApi struct {
	resolver *task.Resolver
	gate     *task.Gate
	workflow *task.Workflow
}

func registerTaskAPI(g *echo.Group, auth echo.MiddlewareFunc, resolver *task.Resolver, gate *task.Gate, workflow *task.Workflow) {
	api := taskApi{
		resolver: resolver,
		gate:     gate,
		workflow: workflow,
	}

	tg := g.Group("/tasks", auth)
	tg.POST("", api.create, roleMiddleware(user.RoleAdmin, user.RoleMentor))

	// student endpoints
	student := roleMiddleware(user.RoleStudent)
	tg.GET("/assigned", api.queryAssigned, student)
	tg.GET("/:id/lock", api.lockState, student)
	tg.POST("/:id/submissions", api.submit, student)
}

// Handlers

func (api *taskApi) create(ctx echo.Context) error {
	var data task.NewTask
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTask")
	}

	tsk, err := api.resolver.CreateTask(ctx.Request().Context(), currentUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating task")
	}
	return ctx.JSON(http.StatusCreated, tsk)
}

func (api *taskApi) queryAssigned(ctx echo.Context) error {
	tasks, err := api.gate.ListForStudent(ctx.Request().Context(), currentUser(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "listing assigned tasks")
	}
	return ctx.JSON(http.StatusOK, tasks)
}

func (api *taskApi) lockState(ctx echo.Context) error {
	state, err := api.gate.LockState(ctx.Request().Context(), currentUser(ctx).ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "computing lock state")
	}
	return ctx.JSON(http.StatusOK, state)
}

func (api *taskApi) submit(ctx echo.Context) error {
	var data task.NewSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	data.TaskID = ctx.Param("id")

	sub, err := api.workflow.Submit(ctx.Request().Context(), currentUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "submitting task")
	}
	return ctx.JSON(http.StatusCreated, sub)
}
