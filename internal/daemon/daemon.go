// Package daemon runs the scheduler, the status snapshot writer and the
// optional status API as one long-lived process.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/tokenkeeper/tokenkeeper/internal/api"
	"github.com/tokenkeeper/tokenkeeper/internal/config"
	"github.com/tokenkeeper/tokenkeeper/internal/credstore"
	"github.com/tokenkeeper/tokenkeeper/internal/history"
	"github.com/tokenkeeper/tokenkeeper/internal/logging"
	"github.com/tokenkeeper/tokenkeeper/internal/metrics"
	"github.com/tokenkeeper/tokenkeeper/internal/models"
	"github.com/tokenkeeper/tokenkeeper/internal/refresher"
	"github.com/tokenkeeper/tokenkeeper/internal/scheduler"
)

// snapshotHistoryLimit is how many recent executions are embedded in the
// status file. The full window stays in memory up to max_history, and
// the sqlite archive keeps everything.
const snapshotHistoryLimit = 10

const (
	jobTokenRefresh = "token_refresh"
	jobQuotaCheck   = "quota_check"
	jobHealthCheck  = "health_check"
)

// Daemon owns the process lifecycle. States move strictly forward:
// starting, running, stopping, stopped.
type Daemon struct {
	cfg    *config.Config
	orch   *refresher.Orchestrator
	sched  *scheduler.Scheduler
	api    *api.Server
	hist   *history.Store
	m      *metrics.Metrics
	logger *logging.Logger

	mu         sync.Mutex
	state      models.DaemonState
	startTime  time.Time
	jobHistory []models.JobExecutionRecord

	stopOnce sync.Once
	stopped  chan struct{}
}

// New assembles a daemon from configuration. The orchestrator is built
// by the caller so the CLI can share its construction.
func New(cfg *config.Config, orch *refresher.Orchestrator, store *credstore.Store, logger *logging.Logger) (*Daemon, error) {
	if logger == nil {
		logger = logging.NewLogger(logging.WithService("daemon"))
	}

	d := &Daemon{
		cfg:     cfg,
		orch:    orch,
		m:       metrics.NewMetrics("tokenkeeper"),
		logger:  logger,
		state:   models.DaemonStarting,
		stopped: make(chan struct{}),
	}

	d.sched = scheduler.New(cfg.Scheduler.Workers, cfg.Scheduler.MisfireGrace, logger)
	d.sched.AddListener(d.onJobComplete)

	if cfg.Paths.HistoryDB != "" {
		hist, err := history.Open(cfg.Paths.HistoryDB)
		if err != nil {
			return nil, err
		}
		d.hist = hist
	}

	orch.SetRecorder(d.m)

	if cfg.API.Enabled {
		d.api = api.NewServer(cfg.API, d, store, d.m, logger)
	}

	if err := d.registerJobs(); err != nil {
		return nil, err
	}

	// Observers see the starting state even if the daemon stalls before
	// reaching running.
	d.writeStatus()

	return d, nil
}

func (d *Daemon) registerJobs() error {
	jobs := []struct {
		id   string
		name string
		cfg  config.JobConfig
		run  func(ctx context.Context) error
	}{
		{jobTokenRefresh, "Token refresh", d.cfg.Scheduler.TokenRefresh, d.runTokenRefresh},
		{jobQuotaCheck, "Quota check", d.cfg.Scheduler.QuotaCheck, d.runQuotaCheck},
		{jobHealthCheck, "Health check", d.cfg.Scheduler.HealthCheck, d.runHealthCheck},
	}

	for _, j := range jobs {
		if !j.cfg.Enabled {
			d.logger.Info("job disabled", "job_id", j.id)
			continue
		}

		var trig scheduler.Trigger = scheduler.Interval{Every: j.cfg.Interval}
		if j.cfg.Cron != "" {
			cron, err := scheduler.ParseCron(j.cfg.Cron)
			if err != nil {
				return fmt.Errorf("job %s: %w", j.id, err)
			}
			trig = cron
		}

		if err := d.sched.Register(scheduler.Job{
			ID:      j.id,
			Name:    j.name,
			Trigger: trig,
			Run:     j.run,
		}); err != nil {
			return err
		}
	}

	return nil
}

// Run starts the daemon and blocks until a shutdown signal arrives or
// ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		d.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		d.logger.Info("context cancelled, shutting down")
	}

	d.Stop()
	return nil
}

// Start transitions starting to running and launches all components.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.state != models.DaemonStarting {
		d.mu.Unlock()
		return fmt.Errorf("daemon cannot start from state %s", d.state)
	}
	d.startTime = time.Now()
	d.mu.Unlock()

	if err := d.sched.Start(ctx); err != nil {
		return err
	}
	if d.api != nil {
		d.api.Start()
	}

	d.mu.Lock()
	d.state = models.DaemonRunning
	d.mu.Unlock()
	d.m.DaemonUp.Set(1)

	d.writeStatus()
	d.logger.Info("daemon running", "status_file", d.cfg.Paths.StatusFile)
	return nil
}

// Stop performs a graceful shutdown: no new job dispatches, in-flight
// jobs run to completion, then the final snapshot is written. Safe to
// call more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		d.setState(models.DaemonStopping)
		d.writeStatus()

		d.sched.Stop()
		if d.api != nil {
			d.api.Stop()
		}
		if d.hist != nil {
			d.hist.Close()
		}

		d.setState(models.DaemonStopped)
		d.m.DaemonUp.Set(0)
		d.writeStatus()
		close(d.stopped)
		d.logger.Info("daemon stopped")
	})
}

// Done is closed once shutdown has completed.
func (d *Daemon) Done() <-chan struct{} {
	return d.stopped
}

func (d *Daemon) setState(state models.DaemonState) {
	d.mu.Lock()
	d.state = state
	d.mu.Unlock()
}

func (d *Daemon) runTokenRefresh(ctx context.Context) error {
	result, err := d.orch.RefreshAll(ctx, false)
	if err != nil {
		return err
	}
	if !result.AllSuccessful {
		return fmt.Errorf("refresh failed for %d account(s)", len(result.Failed))
	}
	return nil
}

func (d *Daemon) runQuotaCheck(ctx context.Context) error {
	result, err := d.orch.CheckQuota(ctx)
	if err != nil {
		return err
	}
	if !result.AllSuccessful {
		return fmt.Errorf("quota check failed for %d account(s)", len(result.Failed))
	}
	return nil
}

// runHealthCheck only refreshes the snapshot. Its value is the write
// itself: a stale status file is how outside observers detect a dead
// daemon.
func (d *Daemon) runHealthCheck(ctx context.Context) error {
	d.writeStatus()
	return nil
}

// onJobComplete records every finished job run: in-memory window,
// metrics, sqlite archive, then a fresh snapshot.
func (d *Daemon) onJobComplete(rec models.JobExecutionRecord) {
	d.mu.Lock()
	d.jobHistory = append(d.jobHistory, rec)
	if max := d.cfg.Scheduler.MaxHistory; len(d.jobHistory) > max {
		d.jobHistory = d.jobHistory[len(d.jobHistory)-max:]
	}
	d.mu.Unlock()

	d.m.RecordJobExecution(rec.JobID, string(rec.Status), rec.Duration)

	if d.hist != nil {
		if err := d.hist.Append(rec); err != nil {
			d.logger.Warn("failed to archive job execution", "job_id", rec.JobID, "error", err.Error())
		}
	}

	d.writeStatus()
}

// Snapshot builds the current status document.
func (d *Daemon) Snapshot() *models.DaemonStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	uptime := 0.0
	if !d.startTime.IsZero() {
		uptime = now.Sub(d.startTime).Seconds()
	}

	recent := d.jobHistory
	if len(recent) > snapshotHistoryLimit {
		recent = recent[len(recent)-snapshotHistoryLimit:]
	}
	historyCopy := make([]models.JobExecutionRecord, len(recent))
	copy(historyCopy, recent)

	health := "healthy"
	if d.state != models.DaemonRunning {
		health = string(d.state)
	}

	return &models.DaemonStatus{
		DaemonStatus:  d.state,
		StartTime:     d.startTime,
		LastUpdate:    now,
		UptimeSeconds: uptime,
		Jobs:          d.sched.Descriptors(),
		JobHistory:    historyCopy,
		Health:        models.HealthInfo{Status: health, LastCheck: now},
	}
}

// writeStatus serializes the snapshot to the status file via temp file
// and rename. Failures are logged, never fatal.
func (d *Daemon) writeStatus() {
	path := d.cfg.Paths.StatusFile
	if path == "" {
		return
	}

	data, err := json.MarshalIndent(d.Snapshot(), "", "  ")
	if err != nil {
		d.logger.Warn("failed to serialize status", "error", err.Error())
		return
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		d.logger.Warn("failed to create status directory", "error", err.Error())
		return
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		d.logger.Warn("failed to write status", "error", err.Error())
		return
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		d.logger.Warn("failed to write status", "error", err.Error())
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		d.logger.Warn("failed to write status", "error", err.Error())
		return
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		d.logger.Warn("failed to write status", "error", err.Error())
	}
}
