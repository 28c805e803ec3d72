package credstore

import (
	"fmt"

	"github.com/tokenkeeper/tokenkeeper/internal/models"
	"github.com/tokenkeeper/tokenkeeper/internal/token"
)

// validateDocument applies structural checks on top of the model's own
// validation: every stored token must at least have a decodable shape.
// Expiry is deliberately not checked here; an expired token is valid
// data, it is the refresher's job to replace it.
func validateDocument(doc *models.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	for name, acc := range doc.Accounts {
		for field, tok := range map[string]string{
			"id_token":     acc.IDToken,
			"access_token": acc.AccessToken,
		} {
			if tok == "" {
				continue
			}
			if !token.IsWellFormed(tok) {
				return fmt.Errorf("account %s: %s is not a well-formed token", name, field)
			}
		}
	}

	return nil
}
