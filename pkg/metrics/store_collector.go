package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/taskbridge/marketplace/internal/store"
	"go.uber.org/zap"
)

type storeStatsCollector struct {
	store              store.Store
	tasksByStatus      *prometheus.Desc
	offersByStatus     *prometheus.Desc
	conversionsByState *prometheus.Desc
	declinedWithFunds  *prometheus.Desc
	jobs               *prometheus.Desc
}

func NewStoreStatsCollector(s store.Store) prometheus.Collector {
	fqName := func(name string) string {
		return fmt.Sprintf("%s_store_%s", marketplace, name)
	}

	return &storeStatsCollector{
		store: s,
		tasksByStatus: prometheus.NewDesc(
			fqName("tasks"),
			"Number of tasks by status.",
			[]string{"status"},
			prometheus.Labels{},
		),
		offersByStatus: prometheus.NewDesc(
			fqName("offers"),
			"Number of offers by status.",
			[]string{"status"},
			prometheus.Labels{},
		),
		conversionsByState: prometheus.NewDesc(
			fqName("conversions"),
			"Number of ledger conversions by state.",
			[]string{"state"},
			prometheus.Labels{},
		),
		declinedWithFunds: prometheus.NewDesc(
			fqName("declined_offers_with_funds"),
			"Declined offers whose funds are still locked.",
			nil,
			prometheus.Labels{},
		),
		jobs: prometheus.NewDesc(
			fqName("jobs"),
			"Number of confirmed jobs referenced by the store.",
			nil,
			prometheus.Labels{},
		),
	}
}

func (c *storeStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tasksByStatus
	ch <- c.offersByStatus
	ch <- c.conversionsByState
	ch <- c.declinedWithFunds
	ch <- c.jobs
}

// Collect implements Collector.
func (c *storeStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stats, err := c.store.Statistics(context.Background())
	if err != nil {
		zap.S().Named("store_collector").Errorw("failed to collect store statistics", "error", err)
		return
	}

	for status, total := range stats.TasksByStatus {
		ch <- prometheus.MustNewConstMetric(c.tasksByStatus, prometheus.GaugeValue, float64(total), string(status))
	}
	for status, total := range stats.OffersByStatus {
		ch <- prometheus.MustNewConstMetric(c.offersByStatus, prometheus.GaugeValue, float64(total), string(status))
	}
	for state, total := range stats.ConversionsByState {
		ch <- prometheus.MustNewConstMetric(c.conversionsByState, prometheus.GaugeValue, float64(total), string(state))
	}
	ch <- prometheus.MustNewConstMetric(c.declinedWithFunds, prometheus.GaugeValue, float64(stats.PendingDispositions))
	ch <- prometheus.MustNewConstMetric(c.jobs, prometheus.GaugeValue, float64(stats.Jobs))
}
