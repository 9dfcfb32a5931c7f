package prometheus

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/AndreyK641/multi-task-conveyor/core"
)

// SnapshotProvider provides current conveyor stats snapshots.
type SnapshotProvider interface {
	Stats() core.Stats
}

// SnapshotPoller periodically exports conveyor Stats() snapshots into
// Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	providersMu sync.RWMutex
	providers   map[string]SnapshotProvider

	queuedTasks   *prom.GaugeVec
	delayedTasks  *prom.GaugeVec
	activeWorkers *prom.GaugeVec
	workers       *prom.GaugeVec
	jobs          *prom.GaugeVec
	runningJobs   *prom.GaugeVec
	completedRuns *prom.GaugeVec
	shutDown      *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	queuedTasks := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "conveyor",
		Name:      "queued_tasks",
		Help:      "Tasks waiting in the shared queue per conveyor.",
	}, []string{"conveyor"})
	delayedTasks := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "conveyor",
		Name:      "delayed_tasks",
		Help:      "Tasks waiting on a delay per conveyor.",
	}, []string{"conveyor"})
	activeWorkers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "conveyor",
		Name:      "active_workers",
		Help:      "Workers currently executing a task per conveyor.",
	}, []string{"conveyor"})
	workers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "conveyor",
		Name:      "workers",
		Help:      "Worker count per conveyor.",
	}, []string{"conveyor"})
	jobs := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "conveyor",
		Name:      "jobs",
		Help:      "Registered jobs per conveyor.",
	}, []string{"conveyor"})
	runningJobs := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "conveyor",
		Name:      "running_jobs",
		Help:      "Jobs with an unfinished run per conveyor.",
	}, []string{"conveyor"})
	completedRuns := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "conveyor",
		Name:      "completed_runs",
		Help:      "Completed job run count snapshot.",
	}, []string{"conveyor"})
	shutDown := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "conveyor",
		Name:      "shut_down",
		Help:      "Conveyor shutdown state (1=shut down, 0=running).",
	}, []string{"conveyor"})

	var err error
	if queuedTasks, err = registerCollector(reg, queuedTasks); err != nil {
		return nil, err
	}
	if delayedTasks, err = registerCollector(reg, delayedTasks); err != nil {
		return nil, err
	}
	if activeWorkers, err = registerCollector(reg, activeWorkers); err != nil {
		return nil, err
	}
	if workers, err = registerCollector(reg, workers); err != nil {
		return nil, err
	}
	if jobs, err = registerCollector(reg, jobs); err != nil {
		return nil, err
	}
	if runningJobs, err = registerCollector(reg, runningJobs); err != nil {
		return nil, err
	}
	if completedRuns, err = registerCollector(reg, completedRuns); err != nil {
		return nil, err
	}
	if shutDown, err = registerCollector(reg, shutDown); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:      interval,
		providers:     make(map[string]SnapshotProvider),
		queuedTasks:   queuedTasks,
		delayedTasks:  delayedTasks,
		activeWorkers: activeWorkers,
		workers:       workers,
		jobs:          jobs,
		runningJobs:   runningJobs,
		completedRuns: completedRuns,
		shutDown:      shutDown,
	}, nil
}

// AddConveyor adds or replaces a conveyor snapshot provider by name.
func (p *SnapshotPoller) AddConveyor(name string, provider SnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "conveyor")
	p.providersMu.Lock()
	p.providers[name] = provider
	p.providersMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.providersMu.RLock()
	defer p.providersMu.RUnlock()

	for name, provider := range p.providers {
		stats := provider.Stats()
		p.queuedTasks.WithLabelValues(name).Set(float64(stats.QueuedTasks))
		p.delayedTasks.WithLabelValues(name).Set(float64(stats.DelayedTasks))
		p.activeWorkers.WithLabelValues(name).Set(float64(stats.ActiveWorkers))
		p.workers.WithLabelValues(name).Set(float64(stats.Workers))
		p.jobs.WithLabelValues(name).Set(float64(stats.Jobs))
		p.runningJobs.WithLabelValues(name).Set(float64(stats.RunningJobs))
		p.completedRuns.WithLabelValues(name).Set(float64(stats.CompletedRuns))
		if stats.ShutDown {
			p.shutDown.WithLabelValues(name).Set(1)
		} else {
			p.shutDown.WithLabelValues(name).Set(0)
		}
	}
}
