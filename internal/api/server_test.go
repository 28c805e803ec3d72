package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenkeeper/tokenkeeper/internal/config"
	"github.com/tokenkeeper/tokenkeeper/internal/credstore"
	"github.com/tokenkeeper/tokenkeeper/internal/metrics"
	"github.com/tokenkeeper/tokenkeeper/internal/models"
)

type staticSource struct {
	st *models.DaemonStatus
}

func (s *staticSource) Snapshot() *models.DaemonStatus { return s.st }

func testToken(exp int64) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"exp":` + jsonInt(exp) + `}`))
	return "h." + payload + ".s"
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func newTestServer(t *testing.T, state models.DaemonState) *Server {
	store := credstore.New(filepath.Join(t.TempDir(), "credentials.json"), "", nil)
	doc := models.NewDocument()
	exp := time.Now().Add(time.Hour).Unix()
	doc.Accounts["work"] = &models.AccountRecord{
		LicenseID:            "L-1",
		AccessToken:          testToken(exp),
		AccessTokenExpiresAt: exp,
		QuotaInfo:            &models.QuotaInfo{RemainingAmount: "750", UsagePercentage: 25, Status: models.QuotaNormal},
	}
	require.NoError(t, store.Save(doc))

	source := &staticSource{st: &models.DaemonStatus{
		DaemonStatus:  state,
		UptimeSeconds: 120,
		Health:        models.HealthInfo{Status: "healthy"},
	}}

	return NewServer(config.APIConfig{Enabled: true}, source, store, metrics.NewMetrics("test"), nil)
}

func doRequest(s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthRunning(t *testing.T) {
	w := doRequest(newTestServer(t, models.DaemonRunning), "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"daemon_status":"running"`)
}

func TestHealthNotRunning(t *testing.T) {
	w := doRequest(newTestServer(t, models.DaemonStopping), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusEndpoint(t *testing.T) {
	w := doRequest(newTestServer(t, models.DaemonRunning), "/status")
	require.Equal(t, http.StatusOK, w.Code)

	var st models.DaemonStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, models.DaemonRunning, st.DaemonStatus)
	assert.InDelta(t, 120.0, st.UptimeSeconds, 0.001)
}

func TestAccountsEndpointHidesTokens(t *testing.T) {
	w := doRequest(newTestServer(t, models.DaemonRunning), "/accounts")
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, `"name":"work"`)
	assert.Contains(t, body, `"access_token_valid":true`)
	assert.Contains(t, body, `"remaining_amount":"750"`)
	assert.NotContains(t, body, "h.eyJ")
}

func TestMetricsEndpoint(t *testing.T) {
	w := doRequest(newTestServer(t, models.DaemonRunning), "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
}
