package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	marketplace = "marketplace"

	// Offer metrics
	offersTotal = "offers_total"

	// Conversion metrics
	conversionsTotal         = "conversions_total"
	conversionEscalations    = "conversion_escalations_total"
	ledgerConfirmSeconds     = "ledger_confirm_duration_seconds"
	pendingDispositionsCount = "pending_dispositions_count"

	// Reconciler metrics
	reconcilerSweepsTotal = "reconciler_sweeps_total"

	// Labels
	outcomeLabel = "outcome"
	kindLabel    = "kind"
	resultLabel  = "result"
)

/**
* Metrics definition
**/
var offersTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: marketplace,
		Name:      offersTotal,
		Help:      "number of offer operations partitioned by outcome",
	},
	[]string{outcomeLabel},
)

var conversionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: marketplace,
		Name:      conversionsTotal,
		Help:      "number of ledger conversions partitioned by kind and outcome",
	},
	[]string{kindLabel, outcomeLabel},
)

var conversionEscalationsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: marketplace,
		Name:      conversionEscalations,
		Help:      "number of conversions handed to an operator",
	},
	[]string{kindLabel},
)

var ledgerConfirmSecondsMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: marketplace,
		Name:      ledgerConfirmSeconds,
		Help:      "time between submission and confirmation of a ledger transaction",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
	},
	[]string{kindLabel},
)

var pendingDispositionsMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: marketplace,
		Name:      pendingDispositionsCount,
		Help:      "declined offers with locked funds waiting for the employer past the disposition timeout",
	},
)

var reconcilerSweepsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: marketplace,
		Name:      reconcilerSweepsTotal,
		Help:      "number of reconciler sweeps partitioned by result",
	},
	[]string{resultLabel},
)

func IncreaseOffersTotalMetric(outcome string) {
	offersTotalMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func IncreaseConversionsTotalMetric(kind, outcome string) {
	conversionsTotalMetric.With(prometheus.Labels{kindLabel: kind, outcomeLabel: outcome}).Inc()
}

func IncreaseConversionEscalationsMetric(kind string) {
	conversionEscalationsMetric.With(prometheus.Labels{kindLabel: kind}).Inc()
}

func ObserveLedgerConfirmSeconds(kind string, seconds float64) {
	ledgerConfirmSecondsMetric.With(prometheus.Labels{kindLabel: kind}).Observe(seconds)
}

func UpdatePendingDispositionsMetric(count int) {
	pendingDispositionsMetric.Set(float64(count))
}

func IncreaseReconcilerSweepsMetric(result string) {
	reconcilerSweepsMetric.With(prometheus.Labels{resultLabel: result}).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(offersTotalMetric)
	prometheus.MustRegister(conversionsTotalMetric)
	prometheus.MustRegister(conversionEscalationsMetric)
	prometheus.MustRegister(ledgerConfirmSecondsMetric)
	prometheus.MustRegister(pendingDispositionsMetric)
	prometheus.MustRegister(reconcilerSweepsMetric)
	prometheus.MustRegister(totalUniquePartiesPerWeekMetric)
}
