package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type uniqueParties struct {
	counter prometheus.Gauge
	seen    map[string]struct{}
	mu      sync.Mutex
}

const partiesCountPerWeek = "parties_count_per_week"

var totalUniquePartiesPerWeekMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: marketplace,
		Name:      partiesCountPerWeek,
		Help:      "number of distinct parties calling the api this week",
	},
)

// UniquePartiesPerWeek is reset by the reconciler's weekly schedule.
var UniquePartiesPerWeek = &uniqueParties{
	counter: totalUniquePartiesPerWeekMetric,
	seen:    make(map[string]struct{}),
}

func (v *uniqueParties) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.seen = make(map[string]struct{})
	v.counter.Set(0)
}

func (v *uniqueParties) Observe(party string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.seen[party]; exists {
		return
	}

	v.seen[party] = struct{}{}
	v.counter.Inc()
}

func (v *uniqueParties) Count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}
