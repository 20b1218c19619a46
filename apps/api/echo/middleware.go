package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/minierp/core"
)

// Role groups allowed on the endpoints. Admins are in all of them.
var (
	counselorRoles  = []string{core.RoleAdmin, core.RoleCounselor}
	teacherRoles    = []string{core.RoleAdmin, core.RoleTeacher}
	accountantRoles = []string{core.RoleAdmin, core.RoleAccountant}
)

func roleMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if _, err := getContextClaims(ctx); err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
