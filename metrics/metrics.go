// Package metrics exposes Prometheus counters for sync planning.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricName string

const (
	MetricNameBlocksProbed     MetricName = "blocks_probed"
	MetricNameBlocksRegistered MetricName = "blocks_to_register"
	MetricNameHeightsRewritten MetricName = "heights_rewritten"
	MetricNamePlansBuilt       MetricName = "plans_built"
	MetricNamePlanFailures     MetricName = "plan_failures"
)

func (m MetricName) String() string {
	return string(m)
}

const (
	NamespaceUtu     = "utu"
	SubsystemPlanner = "planner"
)

var help = map[MetricName]string{
	MetricNameBlocksProbed:     "Number of blocks fetched and checked against the relay",
	MetricNameBlocksRegistered: "Number of blocks planned for registration",
	MetricNameHeightsRewritten: "Number of heights planned for a canonical chain update",
	MetricNamePlansBuilt:       "Number of plans built",
	MetricNamePlanFailures:     "Number of planning attempts that failed",
}

// Metrics holds the planner counters. A nil *Metrics records nothing.
type Metrics struct {
	counters map[MetricName]prometheus.Counter
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{counters: make(map[MetricName]prometheus.Counter, len(help))}
	for name, text := range help {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: NamespaceUtu,
			Subsystem: SubsystemPlanner,
			Name:      name.String(),
			Help:      text,
		})
		if err := reg.Register(c); err != nil {
			return nil, err
		}
		m.counters[name] = c
	}
	return m, nil
}

// Counter returns the counter for name, or nil.
func (m *Metrics) Counter(name MetricName) prometheus.Counter {
	if m == nil {
		return nil
	}
	return m.counters[name]
}

func (m *Metrics) add(name MetricName, n int) {
	if c := m.Counter(name); c != nil && n > 0 {
		c.Add(float64(n))
	}
}

func (m *Metrics) BlockProbed()           { m.add(MetricNameBlocksProbed, 1) }
func (m *Metrics) BlocksRegistered(n int) { m.add(MetricNameBlocksRegistered, n) }
func (m *Metrics) HeightsRewritten(n int) { m.add(MetricNameHeightsRewritten, n) }
func (m *Metrics) PlanBuilt()             { m.add(MetricNamePlansBuilt, 1) }
func (m *Metrics) PlanFailed()            { m.add(MetricNamePlanFailures, 1) }

// RegisterHandlers serves the gatherer's metrics on /metrics.
func RegisterHandlers(mux *http.ServeMux, g prometheus.Gatherer) {
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
