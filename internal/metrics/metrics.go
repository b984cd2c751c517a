package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "villagegate",
			Name:      "mode_resolutions_total",
			Help:      "Count of effective-mode resolutions by source.",
		},
		[]string{"source"},
	)

	modeChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "villagegate",
			Name:      "mode_changes_total",
			Help:      "Count of observed gate mode transitions by new mode.",
		},
		[]string{"gate_id", "mode"},
	)

	overrideActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "villagegate",
			Name:      "override_actions_total",
			Help:      "Count of override upserts and clears.",
		},
		[]string{"action"},
	)

	accessDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "villagegate",
			Name:      "access_decisions_total",
			Help:      "Count of gate access decisions.",
		},
		[]string{"decision"},
	)

	dataWarnings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "villagegate",
			Name:      "schedule_data_warnings_total",
			Help:      "Count of malformed or overlapping schedule records seen at read time.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(resolutions, modeChanges, overrideActions, accessDecisions, dataWarnings)
	})
}

func IncResolution(source string) {
	resolutions.WithLabelValues(source).Inc()
}

func IncModeChange(gateID, mode string) {
	modeChanges.WithLabelValues(gateID, mode).Inc()
}

func IncOverrideAction(action string) {
	overrideActions.WithLabelValues(action).Inc()
}

func IncAccessDecision(decision string) {
	accessDecisions.WithLabelValues(decision).Inc()
}

func IncDataWarning() {
	dataWarnings.Inc()
}
