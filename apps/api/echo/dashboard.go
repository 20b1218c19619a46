package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/minierp/core/analytics"
	"github.com/trezcool/minierp/core/records"
	"github.com/trezcool/minierp/core/risk"
)

type dashboardApi struct {
	evaluator  *risk.Evaluator
	aggregator *analytics.Aggregator
	records    *records.Service
	streamer   *streamer
}

func registerDashboardAPI(g *echo.Group, s *server) {
	api := dashboardApi{
		evaluator:  s.Evaluator,
		aggregator: s.Aggregator,
		records:    s.Records,
		streamer:   newStreamer(s),
	}

	// any authenticated user
	g.GET("/data/my", api.my)

	cg := g.Group("", roleMiddleware(counselorRoles...))
	cg.GET("/data/students", api.students)
	cg.GET("/data/alerts", api.alerts)
	cg.GET("/at-risk", api.atRisk)
	cg.GET("/at-risk/stream", api.atRiskStream)
	cg.GET("/analytics", api.analytics)
	cg.GET("/analytics/stream", api.analyticsStream)
}

// Handlers

func (api *dashboardApi) students(ctx echo.Context) error {
	var q AtRiskQuery
	q.Bind(ctx)
	items := api.evaluator.EvaluateAll(ctx.Request().Context())
	return ctx.JSON(http.StatusOK, AssessmentsResponse{Items: items})
}

func (api *dashboardApi) atRisk(ctx echo.Context) error {
	var q AtRiskQuery
	q.Bind(ctx)
	items := q.filter(api.evaluator.EvaluateAll(ctx.Request().Context()))
	return ctx.JSON(http.StatusOK, AssessmentsResponse{Items: items})
}

func (api *dashboardApi) atRiskStream(ctx echo.Context) error {
	var q AtRiskQuery
	q.Bind(ctx)
	return api.streamer.stream(ctx, eventAtRisk, func(c context.Context) interface{} {
		return AssessmentsResponse{Items: q.filter(api.evaluator.EvaluateAll(c))}
	})
}

func (api *dashboardApi) analytics(ctx echo.Context) error {
	var q AnalyticsQuery
	q.Bind(ctx)
	return ctx.JSON(http.StatusOK, AnalyticsResponse{Analytics: api.aggregator.Build(ctx.Request().Context(), q.Params)})
}

func (api *dashboardApi) analyticsStream(ctx echo.Context) error {
	var q AnalyticsQuery
	q.Bind(ctx)
	return api.streamer.stream(ctx, eventAnalytics, func(c context.Context) interface{} {
		return AnalyticsResponse{Analytics: api.aggregator.Build(c, q.Params)}
	})
}

// my is the risk summary of the calling student.
func (api *dashboardApi) my(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	sid, ok := api.evaluator.ResolveStudentID(ctx.Request().Context(), p)
	if !ok {
		return errNoLinkedStudent
	}
	return ctx.JSON(http.StatusOK, AssessmentResponse{Item: api.evaluator.Evaluate(ctx.Request().Context(), sid)})
}

func (api *dashboardApi) alerts(ctx echo.Context) error {
	items := api.records.ListNotifications(ctx.Request().Context(), false)
	return ctx.JSON(http.StatusOK, NotificationsResponse{Items: items})
}
