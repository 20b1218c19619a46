package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/minierp/core/records"
)

type recordsApi struct {
	svc      *records.Service
	validate *validator.Validate
}

func registerRecordsAPI(g *echo.Group, s *server) {
	api := recordsApi{svc: s.Records, validate: s.Validate}

	ag := g.Group("/attendance", roleMiddleware(teacherRoles...))
	ag.GET("", api.listAttendance)
	ag.POST("", api.createAttendance)
	ag.PUT("/:id", api.updateAttendance)
	ag.DELETE("/:id", api.deleteAttendance)

	fg := g.Group("/fees", roleMiddleware(accountantRoles...))
	fg.GET("", api.listFees)
	fg.POST("", api.createFee)
	fg.PUT("/:id", api.updateFee)
	fg.DELETE("/:id", api.deleteFee)

	eg := g.Group("/exams", roleMiddleware(teacherRoles...))
	eg.GET("", api.listExams)
	eg.POST("", api.createExam)
	eg.PUT("/:id", api.updateExam)
	eg.DELETE("/:id", api.deleteExam)
}

func (api *recordsApi) bindFilter(ctx echo.Context) (records.RecordFilter, error) {
	var f records.RecordFilter
	if err := ctx.Bind(&f); err != nil { // GET: binds the query parameters
		return f, errors.Wrap(err, "binding to RecordFilter")
	}
	return f, f.Validate(api.validate)
}

// Attendance

func (api *recordsApi) listAttendance(ctx echo.Context) error {
	f, err := api.bindFilter(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ItemsResponse{Items: api.svc.ListAttendance(ctx.Request().Context(), f)})
}

func (api *recordsApi) createAttendance(ctx echo.Context) error {
	var data records.NewAttendance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAttendance")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	w, err := api.svc.CreateAttendance(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating attendance")
	}
	return ctx.JSON(http.StatusCreated, w)
}

func (api *recordsApi) updateAttendance(ctx echo.Context) error {
	var data records.UpdateAttendance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAttendance")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	w, err := api.svc.UpdateAttendance(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating attendance")
	}
	return ctx.JSON(http.StatusOK, w)
}

func (api *recordsApi) deleteAttendance(ctx echo.Context) error {
	if err := api.svc.DeleteAttendance(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting attendance")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Fees

func (api *recordsApi) listFees(ctx echo.Context) error {
	f, err := api.bindFilter(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ItemsResponse{Items: api.svc.ListFees(ctx.Request().Context(), f)})
}

func (api *recordsApi) createFee(ctx echo.Context) error {
	var data records.NewFee
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFee")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	w, err := api.svc.CreateFee(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating fee")
	}
	return ctx.JSON(http.StatusCreated, w)
}

func (api *recordsApi) updateFee(ctx echo.Context) error {
	var data records.UpdateFee
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateFee")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	w, err := api.svc.UpdateFee(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating fee")
	}
	return ctx.JSON(http.StatusOK, w)
}

func (api *recordsApi) deleteFee(ctx echo.Context) error {
	if err := api.svc.DeleteFee(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting fee")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Exams

func (api *recordsApi) listExams(ctx echo.Context) error {
	f, err := api.bindFilter(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ItemsResponse{Items: api.svc.ListExams(ctx.Request().Context(), f)})
}

func (api *recordsApi) createExam(ctx echo.Context) error {
	var data records.NewExam
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewExam")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	w, err := api.svc.CreateExam(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating exam")
	}
	return ctx.JSON(http.StatusCreated, w)
}

func (api *recordsApi) updateExam(ctx echo.Context) error {
	var data records.UpdateExam
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateExam")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	w, err := api.svc.UpdateExam(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating exam")
	}
	return ctx.JSON(http.StatusOK, w)
}

func (api *recordsApi) deleteExam(ctx echo.Context) error {
	if err := api.svc.DeleteExam(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting exam")
	}
	return ctx.NoContent(http.StatusNoContent)
}
