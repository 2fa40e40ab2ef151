package monitor

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vk/burstgraph/internal/graph"
)

// Prometheus exports task and worker activity as Prometheus metrics.
type Prometheus struct {
	Nop

	tasksStarted  *prometheus.CounterVec
	tasksFinished *prometheus.CounterVec
	workerUpdates *prometheus.CounterVec
	workersActive prometheus.Gauge
	tasksAdded    prometheus.Counter
	tasksPromoted prometheus.Counter
	tasksPruned   prometheus.Counter
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		tasksStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "burstgraph_tasks_started_total",
			Help: "Update tasks started, by worker.",
		}, []string{"worker"}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "burstgraph_tasks_finished_total",
			Help: "Update tasks finished, by worker.",
		}, []string{"worker"}),
		workerUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "burstgraph_worker_updates_total",
			Help: "Updates reported by workers when they exit.",
		}, []string{"worker"}),
		workersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "burstgraph_workers_active",
			Help: "Workers currently inside the run loop.",
		}),
		tasksAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "burstgraph_scheduler_tasks_added_total",
			Help: "Tasks accepted by the scheduler.",
		}),
		tasksPromoted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "burstgraph_scheduler_tasks_promoted_total",
			Help: "Queued tasks whose priority was raised.",
		}),
		tasksPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "burstgraph_scheduler_tasks_pruned_total",
			Help: "Tasks dropped because an equivalent task was already queued.",
		}),
	}
	for _, c := range []prometheus.Collector{
		p.tasksStarted, p.tasksFinished, p.workerUpdates, p.workersActive,
		p.tasksAdded, p.tasksPromoted, p.tasksPruned,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) TaskStart(w int, _ graph.VertexID) {
	p.tasksStarted.WithLabelValues(strconv.Itoa(w)).Inc()
}

func (p *Prometheus) TaskFinish(w int, _ graph.VertexID) {
	p.tasksFinished.WithLabelValues(strconv.Itoa(w)).Inc()
}

func (p *Prometheus) WorkerStart(int) { p.workersActive.Inc() }

func (p *Prometheus) WorkerExit(w int, updates uint64) {
	p.workersActive.Dec()
	p.workerUpdates.WithLabelValues(strconv.Itoa(w)).Add(float64(updates))
}

func (p *Prometheus) TaskAdded(graph.VertexID, float64)             { p.tasksAdded.Inc() }
func (p *Prometheus) TaskPromoted(graph.VertexID, float64, float64) { p.tasksPromoted.Inc() }
func (p *Prometheus) TaskPruned(graph.VertexID)                     { p.tasksPruned.Inc() }
