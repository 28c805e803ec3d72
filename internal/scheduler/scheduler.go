// Package scheduler runs recurring jobs on a small fixed worker pool.
// At most one instance of a job runs at a time; ticks that arrive while
// the previous run is still going are dropped, and runs missed by more
// than the misfire grace window are coalesced into a single skip.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tokenkeeper/tokenkeeper/internal/logging"
	"github.com/tokenkeeper/tokenkeeper/internal/models"
)

const tickResolution = time.Second

// Job is a recurring unit of work.
type Job struct {
	ID      string
	Name    string
	Trigger Trigger
	Run     func(ctx context.Context) error
}

// Listener observes completed job executions.
type Listener func(rec models.JobExecutionRecord)

type jobState struct {
	job      Job
	nextRun  time.Time
	inFlight bool
}

type task struct {
	id        string
	scheduled time.Time
}

// Scheduler dispatches due jobs to a fixed worker pool.
type Scheduler struct {
	mu           sync.Mutex
	jobs         map[string]*jobState
	listeners    []Listener
	workers      int
	misfireGrace time.Duration
	logger       *logging.Logger
	now          func() time.Time

	taskCh  chan task
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// New creates a scheduler with the given pool size and misfire grace.
func New(workers int, misfireGrace time.Duration, logger *logging.Logger) *Scheduler {
	if workers < 2 {
		workers = 2
	}
	if workers > 4 {
		workers = 4
	}
	if logger == nil {
		logger = logging.NewLogger(logging.WithService("scheduler"))
	}
	return &Scheduler{
		jobs:         make(map[string]*jobState),
		workers:      workers,
		misfireGrace: misfireGrace,
		logger:       logger,
		now:          time.Now,
		taskCh:       make(chan task),
		stopCh:       make(chan struct{}),
	}
}

// Register adds a job. Registration after Start is rejected.
func (s *Scheduler) Register(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	if job.ID == "" || job.Trigger == nil || job.Run == nil {
		return fmt.Errorf("job requires id, trigger and run function")
	}
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s is already registered", job.ID)
	}

	s.jobs[job.ID] = &jobState{job: job}
	return nil
}

// AddListener registers a completion listener. Listeners run on the
// worker goroutine that executed the job.
func (s *Scheduler) AddListener(fn Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Start begins dispatching. Initial fire times are computed from now.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true

	start := s.now()
	for _, st := range s.jobs {
		st.nextRun = st.job.Trigger.Next(start)
	}
	s.mu.Unlock()

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	s.wg.Add(1)
	go s.dispatchLoop(ctx)

	s.logger.Info("scheduler started", "workers", s.workers, "jobs", len(s.jobs))
	return nil
}

// Stop halts dispatching and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// RunNow dispatches a job immediately, outside its schedule. The
// single-instance rule still applies.
func (s *Scheduler) RunNow(id string) error {
	s.mu.Lock()
	st, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown job %s", id)
	}
	if st.inFlight {
		s.mu.Unlock()
		return fmt.Errorf("job %s is already running", id)
	}
	st.inFlight = true
	s.mu.Unlock()

	select {
	case s.taskCh <- task{id: id, scheduled: s.now()}:
		return nil
	case <-s.stopCh:
		s.mu.Lock()
		st.inFlight = false
		s.mu.Unlock()
		return fmt.Errorf("scheduler is stopped")
	}
}

// Descriptors returns a snapshot of all registered jobs.
func (s *Scheduler) Descriptors() map[string]models.JobDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]models.JobDescriptor, len(s.jobs))
	for id, st := range s.jobs {
		desc := models.JobDescriptor{
			Name:         st.job.Name,
			Trigger:      st.job.Trigger.String(),
			MaxInstances: 1,
		}
		if !st.nextRun.IsZero() {
			next := st.nextRun
			desc.NextRunTime = &next
		}
		out[id] = desc
	}
	return out
}

func (s *Scheduler) dispatchLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(tickResolution)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue(ctx)
		}
	}
}

func (s *Scheduler) dispatchDue(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []task
	for id, st := range s.jobs {
		if st.nextRun.IsZero() || now.Before(st.nextRun) {
			continue
		}

		scheduled := st.nextRun
		st.nextRun = st.job.Trigger.Next(now)

		if now.Sub(scheduled) > s.misfireGrace {
			// Coalesce: all runs missed beyond the grace window collapse
			// into a single skipped fire.
			s.logger.Warn("job misfired, skipping run",
				"job_id", id, "scheduled", scheduled.Format(time.RFC3339))
			continue
		}

		if st.inFlight {
			s.logger.Warn("job still running, dropping tick", "job_id", id)
			continue
		}

		st.inFlight = true
		due = append(due, task{id: id, scheduled: scheduled})
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].scheduled.Before(due[j].scheduled) })
	for _, tk := range due {
		select {
		case s.taskCh <- tk:
		case <-s.stopCh:
			s.mu.Lock()
			s.jobs[tk.id].inFlight = false
			s.mu.Unlock()
			return
		case <-ctx.Done():
			s.mu.Lock()
			s.jobs[tk.id].inFlight = false
			s.mu.Unlock()
			return
		}
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case tk := <-s.taskCh:
			s.execute(ctx, tk)
		}
	}
}

// execute runs one job with a uniform error and panic boundary. A
// failing job produces an error record, never a dead scheduler.
func (s *Scheduler) execute(ctx context.Context, tk task) {
	s.mu.Lock()
	st := s.jobs[tk.id]
	s.mu.Unlock()

	started := s.now()
	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("panic: %v", r)
			}
		}()
		runErr = st.job.Run(ctx)
	}()
	finished := s.now()

	s.mu.Lock()
	st.inFlight = false
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	rec := models.JobExecutionRecord{
		JobID:         tk.id,
		ScheduledTime: tk.scheduled,
		ExecutionTime: started,
		Status:        models.JobSuccess,
		Duration:      finished.Sub(started).Seconds(),
	}
	if runErr != nil {
		rec.Status = models.JobError
		rec.Error = runErr.Error()
		s.logger.Error("job failed", "job_id", tk.id, "error", runErr.Error())
	} else {
		s.logger.Debug("job completed", "job_id", tk.id, "duration", rec.Duration)
	}

	for _, fn := range listeners {
		fn(rec)
	}
}
