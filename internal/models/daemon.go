package models

import "time"

// DaemonState is the lifecycle state of the scheduler daemon.
// Transitions: starting -> running -> stopping -> stopped. The starting
// state is entered exactly once.
type DaemonState string

const (
	DaemonStarting DaemonState = "starting"
	DaemonRunning  DaemonState = "running"
	DaemonStopping DaemonState = "stopping"
	DaemonStopped  DaemonState = "stopped"
)

// JobStatus is the outcome of one job execution.
type JobStatus string

const (
	JobSuccess JobStatus = "success"
	JobError   JobStatus = "error"
)

// JobExecutionRecord captures one completed job run. Immutable once created.
type JobExecutionRecord struct {
	JobID         string    `json:"job_id"`
	ScheduledTime time.Time `json:"scheduled_time"`
	ExecutionTime time.Time `json:"execution_time"`
	Status        JobStatus `json:"status"`
	Error         string    `json:"error,omitempty"`
	Duration      float64   `json:"duration"`
}

// JobDescriptor describes a registered job in the status snapshot.
type JobDescriptor struct {
	Name         string     `json:"name"`
	NextRunTime  *time.Time `json:"next_run_time"`
	Trigger      string     `json:"trigger"`
	MaxInstances int        `json:"max_instances"`
}

// HealthInfo is the daemon's self-reported health.
type HealthInfo struct {
	Status    string    `json:"status"`
	LastCheck time.Time `json:"last_check"`
}

// DaemonStatus is the snapshot serialized to the status file on every job
// event and health tick. It is discarded at process exit; the daemon never
// resumes from a prior snapshot.
type DaemonStatus struct {
	DaemonStatus  DaemonState              `json:"daemon_status"`
	StartTime     time.Time                `json:"start_time"`
	LastUpdate    time.Time                `json:"last_update"`
	UptimeSeconds float64                  `json:"uptime_seconds"`
	Jobs          map[string]JobDescriptor `json:"jobs"`
	JobHistory    []JobExecutionRecord     `json:"job_history"`
	Health        HealthInfo               `json:"health"`
}
