package observability

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/quire/pkg/domain"
)

// Metrics records engine activity as Prometheus collectors.
type Metrics struct {
	plans       prometheus.Counter
	planSteps   prometheus.Histogram
	transitions *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	facts       *prometheus.GaugeVec

	mu      sync.Mutex
	started map[string]time.Time
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		plans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quire_plans_total",
			Help: "Total number of plans produced",
		}),
		planSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quire_plan_steps",
			Help:    "Number of steps per produced plan",
			Buckets: prometheus.LinearBuckets(0, 4, 8),
		}),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quire_action_transitions_total",
				Help: "Action state transitions by action and status",
			},
			[]string{"action", "status"},
		),
		durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quire_action_duration_seconds",
				Help:    "Wall time from first start to terminal state of an action instance",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"action", "status"},
		),
		facts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quire_world_state_fact",
				Help: "Last published value of each world-state fact",
			},
			[]string{"fact"},
		),
		started: make(map[string]time.Time),
	}

	for _, c := range []prometheus.Collector{m.plans, m.planSteps, m.transitions, m.durations, m.facts} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return m, nil
}

// Hooks returns lifecycle callbacks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnPlan: func(_ context.Context, p *domain.Plan) {
			m.plans.Inc()
			m.planSteps.Observe(float64(p.Len()))
		},
		OnEvent: func(_ context.Context, e domain.LogEvent) {
			m.transitions.WithLabelValues(e.Action, string(e.Status)).Inc()
			m.observe(e)
		},
		OnStateChange: func(_ context.Context, c domain.StateChange) {
			for _, f := range c.Current.Facts() {
				m.facts.WithLabelValues(string(f)).Set(float64(c.Current.Int(f)))
			}
		},
	}
}

func (m *Metrics) observe(e domain.LogEvent) {
	key := e.RunID + "/" + strconv.Itoa(e.Step)

	m.mu.Lock()
	defer m.mu.Unlock()

	if e.Status == domain.StatusStarted {
		if _, ok := m.started[key]; !ok {
			m.started[key] = e.Timestamp
		}
		return
	}
	if !e.Status.Terminal() {
		return
	}
	if start, ok := m.started[key]; ok {
		m.durations.WithLabelValues(e.Action, string(e.Status)).Observe(e.Timestamp.Sub(start).Seconds())
		delete(m.started, key)
	}
}
