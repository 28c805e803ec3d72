package refresher

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenkeeper/tokenkeeper/internal/credstore"
	"github.com/tokenkeeper/tokenkeeper/internal/errors"
	"github.com/tokenkeeper/tokenkeeper/internal/models"
	"github.com/tokenkeeper/tokenkeeper/internal/oauth"
)

type fakeProvider struct {
	idCalls     int
	accessCalls int
	quotaCalls  int

	failAccounts map[string]bool
	failAllID    bool
	quota        *oauth.QuotaAmounts
	quotaErr     error
}

func (f *fakeProvider) RefreshIDToken(ctx context.Context, refreshToken string) (*oauth.TokenTriple, error) {
	f.idCalls++
	if f.failAllID {
		return nil, &errors.ErrNetwork{Operation: "refresh_id_token", Err: stderrors.New("unreachable")}
	}
	return &oauth.TokenTriple{
		AccessToken:  tokenWithExp(futureExp()),
		IDToken:      tokenWithExp(futureExp()),
		RefreshToken: "rotated-" + refreshToken,
	}, nil
}

func (f *fakeProvider) RefreshAccessToken(ctx context.Context, idToken, licenseID string) (string, error) {
	f.accessCalls++
	if f.failAccounts[licenseID] {
		return "", &errors.ErrAuth{Reason: "license rejected"}
	}
	return tokenWithExp(futureExp()), nil
}

func (f *fakeProvider) FetchQuota(ctx context.Context, accessToken string) (*oauth.QuotaAmounts, error) {
	f.quotaCalls++
	if f.quotaErr != nil {
		return nil, f.quotaErr
	}
	return f.quota, nil
}

type fakeNotifier struct {
	messages []string
}

func (f *fakeNotifier) Notify(ctx context.Context, message string) error {
	f.messages = append(f.messages, message)
	return nil
}

func futureExp() int64 {
	return time.Now().Add(24 * time.Hour).Unix()
}

func expiredExp() int64 {
	return time.Now().Add(-time.Hour).Unix()
}

func tokenWithExp(exp int64) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"exp":%d}`, exp)))
	return "h." + payload + ".s"
}

func newTestStore(t *testing.T) *credstore.Store {
	return credstore.New(filepath.Join(t.TempDir(), "credentials.json"), "", nil)
}

func seedAccount(exp int64) *models.AccountRecord {
	return &models.AccountRecord{
		LicenseID:            "L-1",
		IDToken:              tokenWithExp(futureExp()),
		RefreshToken:         "rt-1",
		AccessToken:          tokenWithExp(exp),
		AccessTokenExpiresAt: exp,
		IDTokenExpiresAt:     futureExp(),
	}
}

func TestRefreshAllSkipsValidTokens(t *testing.T) {
	store := newTestStore(t)
	doc := models.NewDocument()
	doc.Accounts["work"] = seedAccount(futureExp())
	require.NoError(t, store.Save(doc))

	provider := &fakeProvider{}
	result, err := New(store, provider, nil).RefreshAll(context.Background(), false)
	require.NoError(t, err)

	assert.True(t, result.AllSuccessful)
	assert.Equal(t, []string{"work"}, result.Skipped)
	assert.Empty(t, result.Updated)
	assert.Zero(t, provider.accessCalls)
}

func TestRefreshAllRefreshesExpiredToken(t *testing.T) {
	store := newTestStore(t)
	doc := models.NewDocument()
	doc.Accounts["work"] = seedAccount(expiredExp())
	oldToken := doc.Accounts["work"].AccessToken
	require.NoError(t, store.Save(doc))

	provider := &fakeProvider{}
	result, err := New(store, provider, nil).RefreshAll(context.Background(), false)
	require.NoError(t, err)

	assert.True(t, result.AllSuccessful)
	assert.Equal(t, []string{"work"}, result.Updated)
	assert.Equal(t, 1, provider.accessCalls)
	assert.Zero(t, provider.idCalls)

	reloaded, err := store.Load()
	require.NoError(t, err)
	acc := reloaded.Accounts["work"]
	assert.NotEqual(t, oldToken, acc.AccessToken)
	assert.Equal(t, oldToken, acc.PreviousAccessToken)
	assert.Greater(t, acc.AccessTokenExpiresAt, time.Now().Unix())
}

func TestRefreshAllForced(t *testing.T) {
	store := newTestStore(t)
	doc := models.NewDocument()
	doc.Accounts["work"] = seedAccount(futureExp())
	require.NoError(t, store.Save(doc))

	provider := &fakeProvider{}
	result, err := New(store, provider, nil).RefreshAll(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, []string{"work"}, result.Updated)
	assert.Equal(t, 1, provider.accessCalls)
}

func TestRefreshAllFailureIsolation(t *testing.T) {
	store := newTestStore(t)
	doc := models.NewDocument()
	for i := 1; i <= 3; i++ {
		acc := seedAccount(expiredExp())
		acc.LicenseID = fmt.Sprintf("L-%d", i)
		doc.Accounts[fmt.Sprintf("acc%d", i)] = acc
	}
	require.NoError(t, store.Save(doc))

	provider := &fakeProvider{failAccounts: map[string]bool{"L-2": true}}
	notifier := &fakeNotifier{}
	orch := New(store, provider, nil)
	orch.SetNotifier(notifier)

	result, err := orch.RefreshAll(context.Background(), false)
	require.NoError(t, err)

	assert.False(t, result.AllSuccessful)
	assert.ElementsMatch(t, []string{"acc1", "acc3"}, result.Updated)
	assert.Equal(t, []string{"acc2"}, result.Failed)
	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "acc2")

	// The successful accounts were still persisted.
	reloaded, err := store.Load()
	require.NoError(t, err)
	assert.NotEmpty(t, reloaded.Accounts["acc1"].PreviousAccessToken)
}

func TestRefreshRenewsExpiredIDToken(t *testing.T) {
	store := newTestStore(t)
	doc := models.NewDocument()
	acc := seedAccount(expiredExp())
	acc.IDToken = tokenWithExp(expiredExp())
	acc.IDTokenExpiresAt = expiredExp()
	doc.Accounts["work"] = acc
	require.NoError(t, store.Save(doc))

	provider := &fakeProvider{}
	result, err := New(store, provider, nil).RefreshAll(context.Background(), false)
	require.NoError(t, err)

	assert.True(t, result.AllSuccessful)
	assert.Equal(t, 1, provider.idCalls)
	assert.Equal(t, 1, provider.accessCalls)

	reloaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "rotated-rt-1", reloaded.Accounts["work"].RefreshToken)
}

func TestRotatedRefreshTokenSurvivesFailedLicenseExchange(t *testing.T) {
	store := newTestStore(t)
	doc := models.NewDocument()
	acc := seedAccount(expiredExp())
	acc.IDToken = tokenWithExp(expiredExp())
	acc.IDTokenExpiresAt = expiredExp()
	doc.Accounts["work"] = acc
	require.NoError(t, store.Save(doc))

	// ID renewal succeeds (the provider consumes "rt-1" and hands back
	// "rotated-rt-1"), then the license exchange is rejected.
	provider := &fakeProvider{failAccounts: map[string]bool{"L-1": true}}
	result, err := New(store, provider, nil).RefreshAll(context.Background(), false)
	require.NoError(t, err)

	assert.False(t, result.AllSuccessful)
	assert.Equal(t, []string{"work"}, result.Failed)
	assert.Empty(t, result.Updated)

	// The old refresh token no longer works at the provider. The rotated
	// one must be persisted despite the failed cycle.
	reloaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "rotated-rt-1", reloaded.Accounts["work"].RefreshToken)
}

func TestRefreshOneUnknownAccount(t *testing.T) {
	store := newTestStore(t)
	doc := models.NewDocument()
	doc.Accounts["work"] = seedAccount(futureExp())
	require.NoError(t, store.Save(doc))

	_, err := New(store, &fakeProvider{}, nil).RefreshOne(context.Background(), "nope", false)
	require.Error(t, err)

	var notFound *errors.ErrAccountNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestCheckQuota(t *testing.T) {
	store := newTestStore(t)
	doc := models.NewDocument()
	doc.Accounts["work"] = seedAccount(futureExp())
	require.NoError(t, store.Save(doc))

	provider := &fakeProvider{quota: &oauth.QuotaAmounts{Current: "950.", Maximum: "1000."}}
	notifier := &fakeNotifier{}
	orch := New(store, provider, nil)
	orch.SetNotifier(notifier)

	result, err := orch.CheckQuota(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"work"}, result.Updated)

	reloaded, err := store.Load()
	require.NoError(t, err)
	info := reloaded.Accounts["work"].QuotaInfo
	require.NotNil(t, info)
	assert.Equal(t, models.QuotaCritical, info.Status)
	assert.InDelta(t, 95.0, info.UsagePercentage, 0.001)

	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "quota critical")
}

func TestCheckQuotaFailureIsolation(t *testing.T) {
	store := newTestStore(t)
	doc := models.NewDocument()
	doc.Accounts["work"] = seedAccount(futureExp())
	require.NoError(t, store.Save(doc))

	provider := &fakeProvider{quotaErr: &errors.ErrNetwork{Operation: "fetch_quota", Err: stderrors.New("timeout")}}
	result, err := New(store, provider, nil).CheckQuota(context.Background())
	require.NoError(t, err)

	assert.False(t, result.AllSuccessful)
	assert.Equal(t, []string{"work"}, result.Failed)
}
