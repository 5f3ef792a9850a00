// Package credential resolves IMAP passwords for accounts. Passwords are
// returned to the caller only; nothing here logs them.
package credential

import (
	"context"
	"fmt"

	apperrors "github.com/brandon/mailarchive/internal/errors"
	"github.com/brandon/mailarchive/pkg/types"
)

// Static serves passwords carried in configuration, keyed by account name.
type Static struct {
	passwords map[string]string
}

// NewStatic creates a provider over a name to password map.
func NewStatic(passwords map[string]string) *Static {
	copied := make(map[string]string, len(passwords))
	for name, password := range passwords {
		copied[name] = password
	}
	return &Static{passwords: copied}
}

// Password returns the configured password for acc.
func (s *Static) Password(_ context.Context, acc *types.Account) (string, error) {
	password, ok := s.passwords[acc.Name]
	if !ok || password == "" {
		return "", fmt.Errorf("account %q: %w", acc.Name, apperrors.ErrCredentialNotFound)
	}
	return password, nil
}
