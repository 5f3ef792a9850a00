package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/99designs/keyring"

	apperrors "github.com/brandon/mailarchive/internal/errors"
	"github.com/brandon/mailarchive/pkg/types"
)

const serviceName = "mailarchive"

// ErrNoFilePassword is returned when the encrypted-file backend is needed
// but no KEYRING_PASSWORD was configured.
var ErrNoFilePassword = errors.New("KEYRING_PASSWORD is required for the file keyring")

// Keyring serves passwords from the system keyring under "imap/<account>".
type Keyring struct {
	ring keyring.Keyring
}

// KeyringConfig selects where the keyring lives.
type KeyringConfig struct {
	// FileDir is used by the encrypted-file backend.
	FileDir string
	// FilePassword unlocks the encrypted-file backend.
	FilePassword string
	// FileOnly restricts the keyring to the encrypted-file backend.
	FileOnly bool
}

// OpenKeyring opens the system keyring. The encrypted-file backend is only
// usable with a FilePassword; without one it fails instead of falling back
// to a built-in key.
func OpenKeyring(cfg KeyringConfig) (*Keyring, error) {
	if cfg.FileOnly && cfg.FilePassword == "" {
		return nil, ErrNoFilePassword
	}

	backends := []keyring.BackendType{
		keyring.KeychainBackend,
		keyring.SecretServiceBackend,
		keyring.WinCredBackend,
		keyring.PassBackend,
		keyring.FileBackend,
	}
	if cfg.FileOnly {
		backends = []keyring.BackendType{keyring.FileBackend}
	}

	fileDir := cfg.FileDir
	if fileDir == "" {
		fileDir = "~/.config/mailarchive/credentials"
	}
	ring, err := keyring.Open(keyring.Config{
		ServiceName:              serviceName,
		AllowedBackends:          backends,
		FileDir:                  fileDir,
		FilePasswordFunc:         filePasswordFunc(cfg.FilePassword),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Keyring{ring: ring}, nil
}

func filePasswordFunc(password string) keyring.PromptFunc {
	return func(string) (string, error) {
		if password == "" {
			return "", ErrNoFilePassword
		}
		return password, nil
	}
}

// Key returns the keyring key for an account name.
func Key(accountName string) string {
	return "imap/" + accountName
}

// Password retrieves the IMAP password of acc.
func (k *Keyring) Password(_ context.Context, acc *types.Account) (string, error) {
	item, err := k.ring.Get(Key(acc.Name))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("account %q: %w", acc.Name, apperrors.ErrCredentialNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", Key(acc.Name), err)
	}
	return string(item.Data), nil
}

// Set stores the IMAP password for an account name.
func (k *Keyring) Set(accountName, password string) error {
	err := k.ring.Set(keyring.Item{
		Key:   Key(accountName),
		Data:  []byte(password),
		Label: "mailarchive IMAP password for " + accountName,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", Key(accountName), err)
	}
	return nil
}

// Delete removes the stored password for an account name.
func (k *Keyring) Delete(accountName string) error {
	if err := k.ring.Remove(Key(accountName)); err != nil {
		return fmt.Errorf("deleting credential %q: %w", Key(accountName), err)
	}
	return nil
}
