package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/core/analytics"
	"github.com/trezcool/minierp/core/risk"
)

const (
	studentParam = "student_id"
	fromParam    = "from"
	toParam      = "to"
	unreadParam  = "unread"
)

// AtRiskQuery holds the at-risk listing parameters.
// attendance_threshold is accepted for compatibility and does not widen the listing.
type AtRiskQuery struct {
	StudentID string
}

func (q *AtRiskQuery) Bind(ctx echo.Context) {
	q.StudentID = core.CleanString(ctx.QueryParam(studentParam))
}

func (q AtRiskQuery) filter(items []risk.Assessment) []risk.Assessment {
	if q.StudentID == "" {
		return items
	}
	out := make([]risk.Assessment, 0, 1)
	for _, a := range items {
		if a.StudentID == q.StudentID {
			out = append(out, a)
		}
	}
	return out
}

// AnalyticsQuery holds the analytics window and student filter.
type AnalyticsQuery struct {
	analytics.Params
}

func (q *AnalyticsQuery) Bind(ctx echo.Context) {
	q.From = core.CleanString(ctx.QueryParam(fromParam))
	q.To = core.CleanString(ctx.QueryParam(toParam))
	q.StudentID = core.CleanString(ctx.QueryParam(studentParam))
}

// UnreadQuery reports whether only unread notifications are asked for.
type UnreadQuery struct {
	Unread bool
}

func (q *UnreadQuery) Bind(ctx echo.Context) {
	switch strings.ToLower(strings.TrimSpace(ctx.QueryParam(unreadParam))) {
	case "1", "true", "yes":
		q.Unread = true
	}
}
