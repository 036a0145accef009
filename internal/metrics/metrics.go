package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RegistrationsBegun = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corvid_registrations_begun_total",
		Help: "Registration ceremonies started.",
	})
	RegistrationsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corvid_registrations_finished_total",
		Help: "Registration ceremony completions by outcome.",
	}, []string{"outcome"})
	SignInsBegun = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corvid_signins_begun_total",
		Help: "Sign-in ceremonies started, by entry path.",
	}, []string{"path"})
	SignInsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corvid_signins_finished_total",
		Help: "Sign-in ceremony completions by outcome.",
	}, []string{"outcome"})
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corvid_sessions_created_total",
		Help: "Sessions minted after successful ceremonies.",
	})
	ChallengesSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corvid_challenges_swept_total",
		Help: "Expired challenges removed by the sweep job.",
	})
	SessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corvid_sessions_swept_total",
		Help: "Expired sessions removed by the sweep job.",
	})
)

// Ceremony outcomes for the finished counters.
const (
	OutcomeSuccess      = "success"
	OutcomeVerifyFailed = "verify_failed"
	OutcomeNotFound     = "not_found"
	OutcomeError        = "error"
)
