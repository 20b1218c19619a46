package echoapi

import (
	"github.com/trezcool/minierp/core/analytics"
	"github.com/trezcool/minierp/core/risk"
	"github.com/trezcool/minierp/core/school"
)

type (
	AssessmentsResponse struct {
		Items []risk.Assessment `json:"items"`
	}

	AssessmentResponse struct {
		Item risk.Assessment `json:"item"`
	}

	AnalyticsResponse struct {
		Analytics analytics.Analytics `json:"analytics"`
	}

	NotificationsResponse struct {
		Items []school.Notification `json:"items"`
	}

	ItemsResponse struct {
		Items interface{} `json:"items"`
	}
)
