// Package oauth talks to the provider's token, license and quota
// endpoints. It is the only package performing network I/O.
package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tokenkeeper/tokenkeeper/internal/config"
	"github.com/tokenkeeper/tokenkeeper/internal/errors"
	"github.com/tokenkeeper/tokenkeeper/internal/logging"
)

const clientID = "ide"

// retryableStatuses are the only HTTP statuses worth retrying. Everything
// else is a definitive answer from the provider.
var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// TokenTriple is the result of an ID-token refresh.
type TokenTriple struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
}

// QuotaAmounts carries the raw amount strings from the quota endpoint.
// Amounts occasionally arrive with a trailing dot; parsing is left to the
// caller.
type QuotaAmounts struct {
	Current string
	Maximum string
}

// Client calls the provider endpoints with bounded retries.
type Client struct {
	cfg    config.OAuthConfig
	http   *rotatingClient
	logger *logging.Logger
	sleep  func(context.Context, time.Duration) error
}

// NewClient creates a provider client from the OAuth configuration.
func NewClient(cfg config.OAuthConfig, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewLogger(logging.WithService("oauth"))
	}
	return &Client{
		cfg:    cfg,
		http:   newRotatingClient(cfg.Timeout, cfg.BrowserProfile, cfg.RotateUserAgent),
		logger: logger,
		sleep:  sleepContext,
	}
}

// sleepContext waits for the backoff duration or the context, whichever
// ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RefreshIDToken exchanges a refresh token for a fresh token triple.
func (c *Client) RefreshIDToken(ctx context.Context, refreshToken string) (*TokenTriple, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", clientID)

	headers := map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
		"Accept":       "application/json",
	}

	body, err := c.postWithRetry(ctx, "refresh_id_token", c.cfg.TokenURL, headers,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}

	var triple TokenTriple
	if err := json.Unmarshal(body, &triple); err != nil {
		return nil, &errors.ErrNetwork{Operation: "refresh_id_token", Err: err}
	}
	if triple.AccessToken == "" || triple.IDToken == "" || triple.RefreshToken == "" {
		return nil, &errors.ErrAuth{Reason: "token response is missing required fields"}
	}

	return &triple, nil
}

// RefreshAccessToken exchanges an ID token plus license for a short-lived
// access token. A license in any state other than PAID is rejected by the
// provider side and reported as a non-retryable authorization error.
func (c *Client) RefreshAccessToken(ctx context.Context, idToken, licenseID string) (string, error) {
	payload, err := json.Marshal(map[string]string{"licenseId": licenseID})
	if err != nil {
		return "", &errors.ErrNetwork{Operation: "refresh_access_token", Err: err}
	}

	headers := map[string]string{
		"Accept":         "*/*",
		"Content-Type":   "application/json",
		"Accept-Charset": "UTF-8",
		"Authorization":  "Bearer " + idToken,
		"User-Agent":     "ktor-client",
	}

	body, err := c.postWithRetry(ctx, "refresh_access_token", c.cfg.LicenseURL, headers,
		bytes.NewReader(payload))
	if err != nil {
		return "", err
	}

	var resp struct {
		State string `json:"state"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &errors.ErrNetwork{Operation: "refresh_access_token", Err: err}
	}
	if resp.State != "PAID" {
		return "", &errors.ErrAuth{Reason: fmt.Sprintf("license state is %q, expected PAID", resp.State)}
	}
	if resp.Token == "" {
		return "", &errors.ErrAuth{Reason: "license response contains no token"}
	}

	return resp.Token, nil
}

// FetchQuota queries current quota usage for an access token.
func (c *Client) FetchQuota(ctx context.Context, accessToken string) (*QuotaAmounts, error) {
	agent, _ := json.Marshal(map[string]string{
		"name":    "aia:dataspell",
		"version": "251.26094.80.22:251.26927.75",
	})

	headers := map[string]string{
		"Accept":                  "*/*",
		"Content-Type":            "application/json",
		"Accept-Charset":          "UTF-8",
		"grazie-authenticate-jwt": accessToken,
		"grazie-agent":            string(agent),
		"User-Agent":              "ktor-client",
	}

	body, err := c.postWithRetry(ctx, "fetch_quota", c.cfg.QuotaURL, headers, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Current struct {
			Current struct {
				Amount string `json:"amount"`
			} `json:"current"`
			Maximum struct {
				Amount string `json:"amount"`
			} `json:"maximum"`
		} `json:"current"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &errors.ErrNetwork{Operation: "fetch_quota", Err: err}
	}

	return &QuotaAmounts{
		Current: resp.Current.Current.Amount,
		Maximum: resp.Current.Maximum.Amount,
	}, nil
}

// postWithRetry sends a POST and retries transient failures with
// exponential backoff. Non-retryable HTTP statuses surface immediately.
func (c *Client) postWithRetry(ctx context.Context, operation, endpoint string,
	headers map[string]string, body io.Reader) ([]byte, error) {

	var payload []byte
	if body != nil {
		var err error
		payload, err = io.ReadAll(body)
		if err != nil {
			return nil, &errors.ErrNetwork{Operation: operation, Err: err}
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		if attempt > 1 {
			backoff := c.cfg.RetryBackoff * time.Duration(1<<(attempt-2))
			c.logger.Debug("retrying provider call",
				"operation", operation, "attempt", attempt, "backoff", backoff.String())
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, &errors.ErrNetwork{Operation: operation, Err: err}
			}
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reqBody)
		if err != nil {
			return nil, &errors.ErrNetwork{Operation: operation, Err: err}
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return respBody, nil
		}

		if retryableStatuses[resp.StatusCode] {
			lastErr = fmt.Errorf("status %d from %s", resp.StatusCode, endpoint)
			continue
		}

		return nil, &errors.ErrAuth{
			Reason: fmt.Sprintf("%s rejected with status %d", operation, resp.StatusCode),
		}
	}

	return nil, &errors.ErrNetwork{Operation: operation, Err: lastErr}
}
