// Package refresher coordinates credential refresh cycles across all
// accounts. One failing account never blocks the others.
package refresher

import (
	"context"
	"fmt"
	"time"

	"github.com/tokenkeeper/tokenkeeper/internal/credstore"
	"github.com/tokenkeeper/tokenkeeper/internal/errors"
	"github.com/tokenkeeper/tokenkeeper/internal/logging"
	"github.com/tokenkeeper/tokenkeeper/internal/models"
	"github.com/tokenkeeper/tokenkeeper/internal/oauth"
	"github.com/tokenkeeper/tokenkeeper/internal/token"
)

// idTokenFallbackLifetime is applied when the provider returns an ID
// token whose exp claim cannot be decoded. 72 hours, matching the
// provider's documented ID-token lifetime.
const idTokenFallbackLifetime = 259200 * time.Second

// Provider is the subset of the OAuth client the orchestrator needs.
type Provider interface {
	RefreshIDToken(ctx context.Context, refreshToken string) (*oauth.TokenTriple, error)
	RefreshAccessToken(ctx context.Context, idToken, licenseID string) (string, error)
	FetchQuota(ctx context.Context, accessToken string) (*oauth.QuotaAmounts, error)
}

// Recorder receives refresh and quota outcomes for metrics export.
type Recorder interface {
	RecordRefresh(account string, success bool)
	RecordQuotaUsage(account string, percentage float64)
}

// Notifier delivers out-of-band alerts. Delivery failures are logged and
// otherwise ignored.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Result summarizes one refresh or quota cycle. A skipped account counts
// as successful.
type Result struct {
	AllSuccessful bool
	Updated       []string
	Skipped       []string
	Failed        []string
}

// Orchestrator drives refresh cycles over the credential store.
type Orchestrator struct {
	store    *credstore.Store
	provider Provider
	eval     *token.Evaluator
	logger   *logging.Logger
	recorder Recorder
	notifier Notifier
}

// New creates an orchestrator. Recorder and notifier are optional.
func New(store *credstore.Store, provider Provider, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewLogger(logging.WithService("refresher"))
	}
	return &Orchestrator{
		store:    store,
		provider: provider,
		eval:     &token.Evaluator{},
		logger:   logger,
	}
}

// SetRecorder attaches a metrics recorder.
func (o *Orchestrator) SetRecorder(r Recorder) { o.recorder = r }

// SetNotifier attaches an alert notifier.
func (o *Orchestrator) SetNotifier(n Notifier) { o.notifier = n }

// RefreshAll refreshes every account that needs it. The document is
// saved once at the end of the cycle, and only when something changed.
func (o *Orchestrator) RefreshAll(ctx context.Context, forced bool) (*Result, error) {
	ctx = logging.WithCorrelationID(ctx, logging.GenerateCorrelationID())

	doc, err := o.store.Load()
	if err != nil {
		return nil, err
	}

	result := &Result{AllSuccessful: true}
	dirty := false
	for _, name := range doc.Names() {
		if o.refreshInto(ctx, doc, name, forced, result) {
			dirty = true
		}
	}

	if dirty {
		if err := o.store.Save(doc); err != nil {
			return nil, err
		}
	}

	o.logger.InfoWithContext(ctx, "refresh cycle complete",
		"updated", len(result.Updated), "skipped", len(result.Skipped), "failed", len(result.Failed))
	return result, nil
}

// RefreshOne refreshes a single account and saves immediately. The save
// still writes the full document.
func (o *Orchestrator) RefreshOne(ctx context.Context, name string, forced bool) (*Result, error) {
	ctx = logging.WithCorrelationID(ctx, logging.GenerateCorrelationID())

	doc, err := o.store.Load()
	if err != nil {
		return nil, err
	}
	if doc.Get(name) == nil {
		return nil, &errors.ErrAccountNotFound{Name: name}
	}

	result := &Result{AllSuccessful: true}
	if o.refreshInto(ctx, doc, name, forced, result) {
		if err := o.store.Save(doc); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// refreshInto refreshes one account in place and records the outcome. It
// reports whether the document changed, which can be true even for a
// failed account: the provider consumes the old refresh token during ID
// renewal, so the rotated one must reach disk or the account is stranded.
func (o *Orchestrator) refreshInto(ctx context.Context, doc *models.Document, name string, forced bool, result *Result) bool {
	acc := doc.Get(name)

	if !acc.CanRefreshAccess() {
		o.fail(ctx, result, name, "account is missing id_token or license_id")
		return false
	}

	if !forced && !o.accessTokenExpired(acc) {
		result.Skipped = append(result.Skipped, name)
		return false
	}

	changed := false
	if o.idTokenExpired(acc) {
		if !acc.CanRefreshID() {
			o.fail(ctx, result, name, "id_token expired and no refresh_token available")
			return false
		}
		if err := o.renewIDToken(ctx, acc); err != nil {
			o.fail(ctx, result, name, err.Error())
			return false
		}
		changed = true
	}

	accessToken, err := o.provider.RefreshAccessToken(ctx, acc.IDToken, acc.LicenseID)
	if err != nil {
		o.fail(ctx, result, name, err.Error())
		return changed
	}

	acc.RotateAccessToken(accessToken)
	if exp, err := token.ParseExpiration(accessToken); err == nil {
		acc.AccessTokenExpiresAt = exp
	} else {
		acc.AccessTokenExpiresAt = 0
		o.logger.WarnWithContext(ctx, "access token has no parsable expiry", "account", name)
	}

	result.Updated = append(result.Updated, name)
	if o.recorder != nil {
		o.recorder.RecordRefresh(name, true)
	}
	o.logger.InfoWithContext(ctx, "access token refreshed", "account", name)
	return true
}

// renewIDToken exchanges the refresh token and rotates the ID and
// refresh tokens. The returned access token is discarded; the license
// exchange that follows issues the one that gets stored.
func (o *Orchestrator) renewIDToken(ctx context.Context, acc *models.AccountRecord) error {
	triple, err := o.provider.RefreshIDToken(ctx, acc.RefreshToken)
	if err != nil {
		return err
	}

	acc.RotateIDToken(triple.IDToken)
	acc.RefreshToken = triple.RefreshToken

	if exp, err := token.ParseExpiration(triple.IDToken); err == nil {
		acc.IDTokenExpiresAt = exp
	} else {
		acc.IDTokenExpiresAt = o.eval.NowUnix() + int64(idTokenFallbackLifetime/time.Second)
	}
	return nil
}

// CheckQuota polls quota for every account holding an access token and
// stores the classified result. One batched save per cycle.
func (o *Orchestrator) CheckQuota(ctx context.Context) (*Result, error) {
	ctx = logging.WithCorrelationID(ctx, logging.GenerateCorrelationID())

	doc, err := o.store.Load()
	if err != nil {
		return nil, err
	}

	result := &Result{AllSuccessful: true}
	for _, name := range doc.Names() {
		acc := doc.Get(name)
		if acc.AccessToken == "" {
			result.Skipped = append(result.Skipped, name)
			continue
		}

		amounts, err := o.provider.FetchQuota(ctx, acc.AccessToken)
		if err != nil {
			o.fail(ctx, result, name, err.Error())
			continue
		}

		info := models.ComputeQuotaInfo(amounts.Current, amounts.Maximum)
		acc.QuotaInfo = info
		result.Updated = append(result.Updated, name)

		if o.recorder != nil && info.Status != models.QuotaUnknown {
			o.recorder.RecordQuotaUsage(name, info.UsagePercentage)
		}
		if info.Status == models.QuotaCritical {
			o.notify(ctx, fmt.Sprintf("quota critical for account %s: %.1f%% used", name, info.UsagePercentage))
		}
	}

	if len(result.Updated) > 0 {
		if err := o.store.Save(doc); err != nil {
			return nil, err
		}
	}

	o.logger.InfoWithContext(ctx, "quota cycle complete",
		"updated", len(result.Updated), "failed", len(result.Failed))
	return result, nil
}

func (o *Orchestrator) accessTokenExpired(acc *models.AccountRecord) bool {
	if acc.AccessToken == "" {
		return true
	}
	if acc.AccessTokenExpiresAt > 0 {
		return o.eval.IsExpiredAt(acc.AccessTokenExpiresAt)
	}
	return o.eval.IsExpired(acc.AccessToken)
}

func (o *Orchestrator) idTokenExpired(acc *models.AccountRecord) bool {
	if acc.IDTokenExpiresAt > 0 {
		return o.eval.IsExpiredAt(acc.IDTokenExpiresAt)
	}
	return o.eval.IsExpired(acc.IDToken)
}

func (o *Orchestrator) fail(ctx context.Context, result *Result, name, reason string) {
	result.AllSuccessful = false
	result.Failed = append(result.Failed, name)
	if o.recorder != nil {
		o.recorder.RecordRefresh(name, false)
	}
	o.logger.ErrorWithContext(ctx, "account refresh failed", "account", name, "reason", reason)
	o.notify(ctx, fmt.Sprintf("refresh failed for account %s: %s", name, reason))
}

func (o *Orchestrator) notify(ctx context.Context, message string) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(ctx, message); err != nil {
		o.logger.WarnWithContext(ctx, "notification delivery failed", "error", err.Error())
	}
}
