// Package jobxprom exports job pipeline metrics to Prometheus.
package jobxprom

import (
	"context"
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/jobx"
	"github.com/Abraxas-365/profilejobs/pkg/logx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var brokerStates = []jobx.ConnState{
	jobx.StateConnecting,
	jobx.StateReady,
	jobx.StateReconnecting,
	jobx.StateDisconnected,
	jobx.StateErrored,
}

// Metrics counts job events and tracks the broker state. It implements
// jobx.EventHandler.
type Metrics struct {
	jobs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	fallbacks   prometheus.Counter
	brokerState *prometheus.GaugeVec
	transitions *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Job attempts by dispatch mode and outcome.",
		}, []string{"mode", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of a single job attempt.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"mode"}),
		fallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inline_fallbacks_total",
			Help:      "Submissions that ran inline because the broker was not ready.",
		}),
		brokerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_state",
			Help:      "1 for the current broker connection state, 0 otherwise.",
		}, []string{"state"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_transitions_total",
			Help:      "Broker connection state transitions by target state.",
		}, []string{"to"}),
	}
}

var _ jobx.EventHandler = (*Metrics)(nil)

func (m *Metrics) HandleEvent(e jobx.Event) {
	if e.Type == jobx.EventFallback {
		m.fallbacks.Inc()
		return
	}
	mode := string(e.Mode)
	m.jobs.WithLabelValues(mode, string(e.Type)).Inc()
	if e.Duration > 0 {
		m.duration.WithLabelValues(mode).Observe(e.Duration.Seconds())
	}
}

// ObserveState mirrors src into the broker_state gauge.
func (m *Metrics) ObserveState(src jobx.StateSource) (unsubscribe func()) {
	m.setState(src.State())
	return src.Subscribe(func(c jobx.StateChange) {
		m.transitions.WithLabelValues(string(c.To)).Inc()
		m.setState(c.To)
	})
}

func (m *Metrics) setState(current jobx.ConnState) {
	for _, s := range brokerStates {
		v := 0.0
		if s == current {
			v = 1
		}
		m.brokerState.WithLabelValues(string(s)).Set(v)
	}
}

// RegisterInFlight exposes the number of running attempts.
func RegisterInFlight(reg prometheus.Registerer, namespace string, inflight func() int64) error {
	return reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_in_flight",
		Help:      "Job attempts currently running in the worker pool.",
	}, func() float64 { return float64(inflight()) }))
}

// QueueCollector reads queue depth at scrape time.
type QueueCollector struct {
	reader  jobx.StatsReader
	timeout time.Duration
	depth   *prometheus.Desc
	totals  *prometheus.Desc
}

// NewQueueCollector creates a collector over reader.
func NewQueueCollector(reader jobx.StatsReader, namespace string) *QueueCollector {
	return &QueueCollector{
		reader:  reader,
		timeout: 2 * time.Second,
		depth: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "jobs"),
			"Jobs currently in the queue by status.",
			[]string{"status"}, nil),
		totals: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "finished_total"),
			"Jobs that reached a terminal status, as counted by the store.",
			[]string{"status"}, nil),
	}
}

func (c *QueueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.depth
	ch <- c.totals
}

// Collect emits nothing when the store cannot be reached.
func (c *QueueCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	stats, err := c.reader.Stats(ctx)
	if err != nil {
		logx.Component("jobxprom").WithError(err).Debug("queue stats unavailable")
		return
	}
	ch <- prometheus.MustNewConstMetric(c.depth, prometheus.GaugeValue, float64(stats.Waiting), "waiting")
	ch <- prometheus.MustNewConstMetric(c.depth, prometheus.GaugeValue, float64(stats.Delayed), "delayed")
	ch <- prometheus.MustNewConstMetric(c.depth, prometheus.GaugeValue, float64(stats.Active), "active")
	ch <- prometheus.MustNewConstMetric(c.totals, prometheus.CounterValue, float64(stats.Completed), "completed")
	ch <- prometheus.MustNewConstMetric(c.totals, prometheus.CounterValue, float64(stats.Failed), "failed")
}
