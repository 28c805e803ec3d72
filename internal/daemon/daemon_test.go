package daemon

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenkeeper/tokenkeeper/internal/config"
	"github.com/tokenkeeper/tokenkeeper/internal/credstore"
	"github.com/tokenkeeper/tokenkeeper/internal/models"
	"github.com/tokenkeeper/tokenkeeper/internal/oauth"
	"github.com/tokenkeeper/tokenkeeper/internal/refresher"
)

type stubProvider struct {
	fail bool
}

func (p *stubProvider) RefreshIDToken(ctx context.Context, refreshToken string) (*oauth.TokenTriple, error) {
	return &oauth.TokenTriple{AccessToken: freshToken(), IDToken: freshToken(), RefreshToken: "rt"}, nil
}

func (p *stubProvider) RefreshAccessToken(ctx context.Context, idToken, licenseID string) (string, error) {
	if p.fail {
		return "", fmt.Errorf("provider down")
	}
	return freshToken(), nil
}

func (p *stubProvider) FetchQuota(ctx context.Context, accessToken string) (*oauth.QuotaAmounts, error) {
	return &oauth.QuotaAmounts{Current: "100", Maximum: "1000"}, nil
}

func freshToken() string {
	exp := time.Now().Add(time.Hour).Unix()
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"exp":%d}`, exp)))
	return "h." + payload + ".s"
}

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.CredentialsFile = filepath.Join(dir, "credentials.json")
	cfg.Paths.BackupFile = filepath.Join(dir, "credentials.json.backup")
	cfg.Paths.StatusFile = filepath.Join(dir, "status.json")
	cfg.Paths.HistoryDB = filepath.Join(dir, "history.db")
	cfg.Scheduler.TokenRefresh.Enabled = false
	cfg.Scheduler.QuotaCheck.Enabled = false
	cfg.Scheduler.HealthCheck.Enabled = false
	return cfg
}

func newTestDaemon(t *testing.T, provider refresher.Provider) *Daemon {
	cfg := testConfig(t)

	store := credstore.New(cfg.Paths.CredentialsFile, cfg.Paths.BackupFile, nil)
	doc := models.NewDocument()
	doc.Accounts["work"] = &models.AccountRecord{
		LicenseID:        "L-1",
		IDToken:          freshToken(),
		IDTokenExpiresAt: time.Now().Add(time.Hour).Unix(),
	}
	require.NoError(t, store.Save(doc))

	orch := refresher.New(store, provider, nil)
	d, err := New(cfg, orch, store, nil)
	require.NoError(t, err)
	return d
}

func readStatusFile(t *testing.T, path string) models.DaemonStatus {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var st models.DaemonStatus
	require.NoError(t, json.Unmarshal(data, &st))
	return st
}

func TestNewWritesStartingSnapshot(t *testing.T) {
	d := newTestDaemon(t, &stubProvider{})

	st := readStatusFile(t, d.cfg.Paths.StatusFile)
	assert.Equal(t, models.DaemonStarting, st.DaemonStatus)
}

func TestLifecycle(t *testing.T) {
	d := newTestDaemon(t, &stubProvider{})

	require.NoError(t, d.Start(context.Background()))
	st := readStatusFile(t, d.cfg.Paths.StatusFile)
	assert.Equal(t, models.DaemonRunning, st.DaemonStatus)

	d.Stop()
	st = readStatusFile(t, d.cfg.Paths.StatusFile)
	assert.Equal(t, models.DaemonStopped, st.DaemonStatus)

	// Stop is idempotent; a stopped daemon never restarts.
	d.Stop()
	assert.Error(t, d.Start(context.Background()))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	d := newTestDaemon(t, &stubProvider{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not shut down")
	}

	st := readStatusFile(t, d.cfg.Paths.StatusFile)
	assert.Equal(t, models.DaemonStopped, st.DaemonStatus)
}

func TestJobFailureProducesErrorRecord(t *testing.T) {
	d := newTestDaemon(t, &stubProvider{fail: true})
	require.NoError(t, d.Start(context.Background()))
	defer d.Stop()

	// The account has no access token yet, so a refresh is attempted and
	// fails against the stubbed provider.
	err := d.runTokenRefresh(context.Background())
	require.Error(t, err)

	d.onJobComplete(models.JobExecutionRecord{
		JobID:         jobTokenRefresh,
		ScheduledTime: time.Now(),
		ExecutionTime: time.Now(),
		Status:        models.JobError,
		Error:         err.Error(),
		Duration:      0.1,
	})

	st := readStatusFile(t, d.cfg.Paths.StatusFile)
	require.Len(t, st.JobHistory, 1)
	assert.Equal(t, models.JobError, st.JobHistory[0].Status)
	assert.Contains(t, st.JobHistory[0].Error, "1 account")

	// The archive received the record as well.
	recs, err := d.hist.Recent(jobTokenRefresh, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestHistoryWindowIsCapped(t *testing.T) {
	d := newTestDaemon(t, &stubProvider{})
	d.cfg.Scheduler.MaxHistory = 5

	for i := 0; i < 8; i++ {
		d.onJobComplete(models.JobExecutionRecord{
			JobID:         fmt.Sprintf("job-%d", i),
			ScheduledTime: time.Now(),
			ExecutionTime: time.Now(),
			Status:        models.JobSuccess,
		})
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	require.Len(t, d.jobHistory, 5)
	// Oldest entries fall off first.
	assert.Equal(t, "job-3", d.jobHistory[0].JobID)
	assert.Equal(t, "job-7", d.jobHistory[4].JobID)
}

func TestSnapshotEmbedsRecentHistoryOnly(t *testing.T) {
	d := newTestDaemon(t, &stubProvider{})

	for i := 0; i < 25; i++ {
		d.mu.Lock()
		d.jobHistory = append(d.jobHistory, models.JobExecutionRecord{JobID: fmt.Sprintf("job-%d", i)})
		d.mu.Unlock()
	}

	st := d.Snapshot()
	require.Len(t, st.JobHistory, snapshotHistoryLimit)
	assert.Equal(t, "job-15", st.JobHistory[0].JobID)
	assert.Equal(t, "job-24", st.JobHistory[9].JobID)
}

func TestSuccessfulRefreshJob(t *testing.T) {
	d := newTestDaemon(t, &stubProvider{})
	assert.NoError(t, d.runTokenRefresh(context.Background()))
	assert.NoError(t, d.runQuotaCheck(context.Background()))
}
