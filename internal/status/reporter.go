// Package status reads the daemon's status snapshot file. It is the
// read side used by the CLI and other processes; the daemon is the only
// writer.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tokenkeeper/tokenkeeper/internal/errors"
	"github.com/tokenkeeper/tokenkeeper/internal/models"
)

// DefaultStaleThreshold is how old a snapshot may be before the daemon
// behind it is presumed dead.
const DefaultStaleThreshold = 5 * time.Minute

// Reporter reads and caches the status snapshot. The cache is
// invalidated by file modification time, so repeated reads between
// daemon updates cost one stat call.
type Reporter struct {
	path       string
	staleAfter time.Duration

	mu        sync.Mutex
	cached    *models.DaemonStatus
	cachedMod time.Time
	now       func() time.Time
}

// New creates a reporter for the snapshot at path. A non-positive
// staleAfter falls back to the default threshold.
func New(path string, staleAfter time.Duration) *Reporter {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleThreshold
	}
	return &Reporter{path: path, staleAfter: staleAfter, now: time.Now}
}

// GetStatus returns the current snapshot, re-reading the file only when
// its modification time changed.
func (r *Reporter) GetStatus() (*models.DaemonStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, err := os.Stat(r.path)
	if err != nil {
		return nil, &errors.ErrFileRead{Path: r.path, Err: err}
	}

	if r.cached != nil && info.ModTime().Equal(r.cachedMod) {
		return r.cached, nil
	}

	content, err := os.ReadFile(r.path)
	if err != nil {
		return nil, &errors.ErrFileRead{Path: r.path, Err: err}
	}

	var st models.DaemonStatus
	if err := json.Unmarshal(content, &st); err != nil {
		return nil, fmt.Errorf("malformed status file %s: %w", r.path, err)
	}

	r.cached = &st
	r.cachedMod = info.ModTime()
	return r.cached, nil
}

// Uptime returns the daemon's uptime per the latest snapshot.
func (r *Reporter) Uptime() (time.Duration, error) {
	st, err := r.GetStatus()
	if err != nil {
		return 0, err
	}
	return time.Duration(st.UptimeSeconds * float64(time.Second)), nil
}

// IsDaemonRunning reports whether the snapshot claims a running daemon
// and is fresh enough to believe.
func (r *Reporter) IsDaemonRunning() bool {
	st, err := r.GetStatus()
	if err != nil {
		return false
	}
	if st.DaemonStatus != models.DaemonRunning {
		return false
	}
	stale, err := r.IsStale()
	return err == nil && !stale
}

// IsStale reports whether the snapshot's last update is older than the
// staleness threshold. A daemon that stopped writing is treated as gone
// even if its last recorded state was "running".
func (r *Reporter) IsStale() (bool, error) {
	st, err := r.GetStatus()
	if err != nil {
		return true, err
	}
	return r.now().Sub(st.LastUpdate) > r.staleAfter, nil
}

// RecentSuccessCount counts successful runs among the last n history
// entries.
func (r *Reporter) RecentSuccessCount(n int) (int, error) {
	return r.countRecent(n, models.JobSuccess)
}

// RecentErrorCount counts failed runs among the last n history entries.
func (r *Reporter) RecentErrorCount(n int) (int, error) {
	return r.countRecent(n, models.JobError)
}

func (r *Reporter) countRecent(n int, status models.JobStatus) (int, error) {
	st, err := r.GetStatus()
	if err != nil {
		return 0, err
	}

	history := st.JobHistory
	if n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}

	count := 0
	for _, rec := range history {
		if rec.Status == status {
			count++
		}
	}
	return count, nil
}

// Summary renders a short human-readable report.
func (r *Reporter) Summary() (string, error) {
	st, err := r.GetStatus()
	if err != nil {
		return "", err
	}

	stale, _ := r.IsStale()
	successes, _ := r.RecentSuccessCount(10)
	failures, _ := r.RecentErrorCount(10)

	var b strings.Builder
	fmt.Fprintf(&b, "Daemon: %s", st.DaemonStatus)
	if stale {
		b.WriteString(" (stale)")
	}
	fmt.Fprintf(&b, "\nUptime: %s", time.Duration(st.UptimeSeconds*float64(time.Second)).Round(time.Second))
	fmt.Fprintf(&b, "\nLast update: %s", st.LastUpdate.Format(time.RFC3339))
	fmt.Fprintf(&b, "\nRecent runs: %d ok, %d failed", successes, failures)
	fmt.Fprintf(&b, "\nJobs: %d registered", len(st.Jobs))
	return b.String(), nil
}

// Watch invokes fn with a fresh snapshot every time the status file
// changes, until ctx is cancelled. Unreadable intermediate states
// (mid-rename) are skipped.
func (r *Reporter) Watch(ctx context.Context, fn func(*models.DaemonStatus)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: the daemon replaces the file by rename, which
	// drops a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != r.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if st, err := r.GetStatus(); err == nil {
				fn(st)
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}
