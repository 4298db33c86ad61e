package svcctl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/PlumpMath/piso/internal/executor"
)

// Outcome label values.
const (
	outcomeOK       = "ok"
	outcomeNonZero  = "nonzero"
	outcomeTimeout  = "timeout"
	outcomeCanceled = "canceled"
	outcomeError    = "error"
)

var (
	// controlCommands counts control utility invocations by verb and outcome
	controlCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processhost_control_commands_total",
			Help: "Total control utility invocations by verb and outcome",
		},
		[]string{"verb", "outcome"},
	)

	// controlCommandDuration tracks how long invocations take
	controlCommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "processhost_control_command_duration_seconds",
			Help:    "Control utility invocation duration by verb",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 30, 60, 120},
		},
		[]string{"verb"},
	)
)

func recordCommand(verb string, res *executor.Result, err error) {
	controlCommands.WithLabelValues(verb, outcome(res, err)).Inc()
	if res != nil {
		controlCommandDuration.WithLabelValues(verb).Observe(res.Duration.Seconds())
	}
}

func outcome(res *executor.Result, err error) string {
	switch {
	case err != nil || res == nil:
		return outcomeError
	case res.TimedOut:
		return outcomeTimeout
	case res.Canceled:
		return outcomeCanceled
	case res.ExitCode != 0:
		return outcomeNonZero
	default:
		return outcomeOK
	}
}
