package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	surveysCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "digitwin_surveys_created_total",
		Help: "Surveys created by first contact with an email address.",
	})
	surveysCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "digitwin_surveys_completed_total",
		Help: "Surveys marked completed.",
	})
	responsesSavedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "digitwin_responses_saved_total",
		Help: "Response upserts accepted.",
	})
	exportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "digitwin_exports_total",
		Help: "Exports rendered, by format.",
	}, []string{"format"})
	emailsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "digitwin_emails_total",
		Help: "Result email attempts, by outcome.",
	}, []string{"outcome"})
)
