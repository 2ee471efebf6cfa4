package unitofwork

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for commits. A nil *Metrics records
// nothing.
type Metrics struct {
	commitsTotal   *prometheus.CounterVec
	commitDuration prometheus.Histogram
	writesTotal    *prometheus.CounterVec
	managed        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when it
// is not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		commitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uow_commits_total",
			Help: "Commits by outcome (success, empty, failed)",
		}, []string{"outcome"}),
		commitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "uow_commit_duration_seconds",
			Help:    "Duration of non-empty commits",
			Buckets: prometheus.DefBuckets,
		}),
		writesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uow_writes_total",
			Help: "Storage writes issued by commits",
		}, []string{"operation"}),
		managed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "uow_managed_entities",
			Help: "Entities in the identity map after the last commit",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.commitsTotal, m.commitDuration, m.writesTotal, m.managed} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) commit(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.commitsTotal.WithLabelValues(outcome).Inc()
	if outcome != "empty" {
		m.commitDuration.Observe(time.Since(started).Seconds())
	}
}

func (m *Metrics) write(op string) {
	if m == nil {
		return
	}
	m.writesTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) setManaged(n int) {
	if m == nil {
		return
	}
	m.managed.Set(float64(n))
}
