package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/diagramq/diagramq/pkg/domain"
	"github.com/diagramq/diagramq/pkg/persistence"
	"github.com/prometheus/client_golang/prometheus"
)

// storeCollector exposes live task counts and scheduler queue depth as
// gauges, computed at scrape time from the task store.
type storeCollector struct {
	tasks      persistence.TaskStore
	queueDepth func() int
	logger     *slog.Logger

	tasksDesc      *prometheus.Desc
	queueDepthDesc *prometheus.Desc
}

func newStoreCollector(tasks persistence.TaskStore, queueDepth func() int, logger *slog.Logger) *storeCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &storeCollector{
		tasks:      tasks,
		queueDepth: queueDepth,
		logger:     logger,
		tasksDesc: prometheus.NewDesc(
			"diagramq_tasks",
			"Current number of task records by status.",
			[]string{"status"},
			nil,
		),
		queueDepthDesc: prometheus.NewDesc(
			"diagramq_queue_depth",
			"Current number of tasks waiting in the scheduler queue.",
			nil,
			nil,
		),
	}
}

func (c *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tasksDesc
	ch <- c.queueDepthDesc
}

func (c *storeCollector) Collect(ch chan<- prometheus.Metric) {
	if c.queueDepth != nil {
		emitGauge(ch, c.queueDepthDesc, float64(c.queueDepth()))
	}
	if c.tasks == nil {
		return
	}

	// Keep store reads bounded so scrapes do not hang.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	all, err := c.tasks.List(ctx, persistence.Filter{})
	if err != nil {
		c.logger.Warn("prometheus store collector failed", "err", err)
		return
	}
	counts := make(map[domain.TaskStatus]int, len(domain.AllStatuses))
	for _, t := range all {
		counts[t.Status]++
	}
	for _, st := range domain.AllStatuses {
		emitGauge(ch, c.tasksDesc, float64(counts[st]), string(st))
	}
}

func emitGauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v float64, labelValues ...string) {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v, labelValues...)
	if err != nil {
		return
	}
	ch <- m
}

var registerStoreCollectorOnce sync.Once

// RegisterStoreCollector installs the gauge collector once per process.
func RegisterStoreCollector(tasks persistence.TaskStore, queueDepth func() int, logger *slog.Logger) {
	registerStoreCollectorOnce.Do(func() {
		prometheus.MustRegister(newStoreCollector(tasks, queueDepth, logger))
	})
}
