package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/cohort/core/notification"
)

type notificationApi struct {
	inbox *notification.Inbox
}

func registerNotificationAPI(g *echo.Group, auth echo.MiddlewareFunc, inbox *notification.Inbox) {
	api := notificationApi{inbox: inbox}

	ng := g.Group("/notifications", auth)
	ng.GET("", api.query)
	ng.GET("/unread-count", api.unreadCount)
	ng.POST("/read-all", api.markAllRead)
	ng.POST("/:id/read", api.markRead)
}

type (
	CountResponse struct {
		Count int `json:"count"`
	}
)

// Handlers

func (api *notificationApi) query(ctx echo.Context) error {
	unread, err := boolParam(ctx, "unread")
	if err != nil {
		return err
	}

	notifs, err := api.inbox.List(ctx.Request().Context(), currentUser(ctx).ID, unread != nil && *unread)
	if err != nil {
		return errors.Wrap(err, "listing notifications")
	}
	if notifs == nil {
		notifs = []notification.Notification{}
	}
	return ctx.JSON(http.StatusOK, notifs)
}

func (api *notificationApi) unreadCount(ctx echo.Context) error {
	cnt, err := api.inbox.UnreadCount(ctx.Request().Context(), currentUser(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "counting unread notifications")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: cnt})
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	n, err := api.inbox.MarkRead(ctx.Request().Context(), currentUser(ctx).ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *notificationApi) markAllRead(ctx echo.Context) error {
	cnt, err := api.inbox.MarkAllRead(ctx.Request().Context(), currentUser(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "marking notifications read")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: cnt})
}
