package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentValidateEmpty(t *testing.T) {
	doc := NewDocument()
	assert.Error(t, doc.Validate())
}

func TestDocumentValidateMissingAccounts(t *testing.T) {
	doc := &Document{}
	assert.Error(t, doc.Validate())
}

func TestDocumentValidateOK(t *testing.T) {
	doc := NewDocument()
	doc.Accounts["acme"] = &AccountRecord{LicenseID: "L-123", AccessToken: "a.b.c"}
	assert.NoError(t, doc.Validate())
}

func TestDocumentValidateMissingLicense(t *testing.T) {
	doc := NewDocument()
	doc.Accounts["acme"] = &AccountRecord{AccessToken: "a.b.c"}
	assert.Error(t, doc.Validate())
}

func TestDocumentNamesSorted(t *testing.T) {
	doc := NewDocument()
	doc.Accounts["zeta"] = &AccountRecord{LicenseID: "1"}
	doc.Accounts["alpha"] = &AccountRecord{LicenseID: "2"}
	doc.Accounts["mid"] = &AccountRecord{LicenseID: "3"}

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, doc.Names())
}

func TestRotateAccessToken(t *testing.T) {
	acc := &AccountRecord{AccessToken: "old.token.sig"}
	acc.RotateAccessToken("new.token.sig")

	assert.Equal(t, "new.token.sig", acc.AccessToken)
	assert.Equal(t, "old.token.sig", acc.PreviousAccessToken)
}

func TestRotateAccessTokenNoOp(t *testing.T) {
	acc := &AccountRecord{AccessToken: "same.token.sig", PreviousAccessToken: "older"}
	acc.RotateAccessToken("same.token.sig")

	// Rotation is skipped for a no-op refresh.
	assert.Equal(t, "same.token.sig", acc.AccessToken)
	assert.Equal(t, "older", acc.PreviousAccessToken)
}

func TestRotateAccessTokenFromEmpty(t *testing.T) {
	acc := &AccountRecord{}
	acc.RotateAccessToken("first.token.sig")

	assert.Equal(t, "first.token.sig", acc.AccessToken)
	assert.Empty(t, acc.PreviousAccessToken)
}

func TestCanRefresh(t *testing.T) {
	acc := &AccountRecord{LicenseID: "L", IDToken: "i.d.t"}
	assert.True(t, acc.CanRefreshAccess())
	assert.False(t, acc.CanRefreshID())

	acc.RefreshToken = "rt"
	assert.True(t, acc.CanRefreshID())
}
