package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/minierp/core/records"
)

type notificationApi struct {
	svc *records.Service
}

func registerNotificationAPI(g *echo.Group, s *server) {
	api := notificationApi{svc: s.Records}

	ng := g.Group("", roleMiddleware(counselorRoles...))
	ng.GET("", api.query)
	ng.POST("/:id/read", api.markRead)
}

func (api *notificationApi) query(ctx echo.Context) error {
	var q UnreadQuery
	q.Bind(ctx)
	return ctx.JSON(http.StatusOK, NotificationsResponse{Items: api.svc.ListNotifications(ctx.Request().Context(), q.Unread)})
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	n, err := api.svc.MarkNotificationRead(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	return ctx.JSON(http.StatusOK, n)
}
