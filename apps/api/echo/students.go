package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/core/records"
)

type studentApi struct {
	svc      *records.Service
	validate *validator.Validate
}

func registerStudentAPI(g *echo.Group, s *server) {
	api := studentApi{svc: s.Records, validate: s.Validate}

	dg := g.Group("/:id", ctxStudentOrStaffMiddleware())
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, roleMiddleware(core.RoleAdmin))
}

// ctxStudentOrStaffMiddleware lets students read their own profile only.
func ctxStudentOrStaffMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			staff := []string{core.RoleAdmin, core.RoleCounselor, core.RoleTeacher, core.RoleAccountant}
			if contextHasAnyRole(ctx, staff) || (claims.StudentID != "" && claims.StudentID == ctx.Param("id")) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	st, err := api.svc.GetStudent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *studentApi) update(ctx echo.Context) error {
	var data records.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	st, err := api.svc.UpsertStudent(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "saving student")
	}
	return ctx.JSON(http.StatusOK, st)
}
