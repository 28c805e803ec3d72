package models

import (
	"fmt"
	"sort"
)

// AccountRecord holds the credential material and metadata for one account,
// keyed by account name in the Document.
type AccountRecord struct {
	LicenseID            string     `json:"license_id"`
	IDToken              string     `json:"id_token,omitempty"`
	RefreshToken         string     `json:"refresh_token,omitempty"`
	AccessToken          string     `json:"access_token"`
	PreviousAccessToken  string     `json:"previous_access_token,omitempty"`
	PreviousIDToken      string     `json:"previous_id_token,omitempty"`
	AccessTokenExpiresAt int64      `json:"access_token_expires_at,omitempty"`
	IDTokenExpiresAt     int64      `json:"id_token_expires_at,omitempty"`
	QuotaInfo            *QuotaInfo `json:"quota_info,omitempty"`
	CreatedTime          int64      `json:"created_time,omitempty"`
}

// Validate checks the fields required to mint new access tokens.
func (a *AccountRecord) Validate() error {
	if a.LicenseID == "" {
		return fmt.Errorf("license_id is required")
	}
	return nil
}

// CanRefreshAccess reports whether the record carries the identity material
// needed for an access-token refresh.
func (a *AccountRecord) CanRefreshAccess() bool {
	return a.IDToken != "" && a.LicenseID != ""
}

// CanRefreshID reports whether the record carries a refresh token for
// minting a new ID token.
func (a *AccountRecord) CanRefreshID() bool {
	return a.RefreshToken != ""
}

// RotateAccessToken installs a new access token, moving the current one
// into the rotation slot. Rotation is skipped when the incoming token is
// identical to the current one.
func (a *AccountRecord) RotateAccessToken(token string) {
	if a.AccessToken != "" && a.AccessToken != token {
		a.PreviousAccessToken = a.AccessToken
	}
	a.AccessToken = token
}

// RotateIDToken installs a new ID token under the same rotation rule.
func (a *AccountRecord) RotateIDToken(token string) {
	if a.IDToken != "" && a.IDToken != token {
		a.PreviousIDToken = a.IDToken
	}
	a.IDToken = token
}

// Document is the persisted account collection. The map key is the unique
// account name.
type Document struct {
	Accounts map[string]*AccountRecord `json:"accounts"`
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{Accounts: make(map[string]*AccountRecord)}
}

// Get returns the account with the given name, or nil.
func (d *Document) Get(name string) *AccountRecord {
	return d.Accounts[name]
}

// Names returns the account names in sorted order.
func (d *Document) Names() []string {
	names := make([]string, 0, len(d.Accounts))
	for name := range d.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the structural invariant: the accounts mapping must be
// present and non-empty. A document failing this is never considered loaded.
func (d *Document) Validate() error {
	if d.Accounts == nil {
		return fmt.Errorf("accounts mapping is missing")
	}
	if len(d.Accounts) == 0 {
		return fmt.Errorf("accounts mapping is empty")
	}
	for name, acc := range d.Accounts {
		if acc == nil {
			return fmt.Errorf("account %q has no record", name)
		}
		if err := acc.Validate(); err != nil {
			return fmt.Errorf("account %q: %w", name, err)
		}
	}
	return nil
}
