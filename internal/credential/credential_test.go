package credential

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/brandon/mailarchive/internal/errors"
	"github.com/brandon/mailarchive/pkg/types"
)

func TestStatic(t *testing.T) {
	passwords := map[string]string{"work": "s3cret", "empty": ""}
	p := NewStatic(passwords)
	passwords["work"] = "changed"

	got, err := p.Password(context.Background(), &types.Account{Name: "work"})
	if err != nil {
		t.Fatalf("Password failed: %v", err)
	}
	if got != "s3cret" {
		t.Errorf("expected provider to keep its own copy, got %q", got)
	}

	for _, name := range []string{"missing", "empty"} {
		_, err := p.Password(context.Background(), &types.Account{Name: name})
		if !errors.Is(err, apperrors.ErrCredentialNotFound) {
			t.Errorf("%s: expected ErrCredentialNotFound, got %v", name, err)
		}
	}
}

func TestKeyring_FileBackend(t *testing.T) {
	k, err := OpenKeyring(KeyringConfig{
		FileDir:      t.TempDir(),
		FilePassword: "test-key",
		FileOnly:     true,
	})
	if err != nil {
		t.Fatalf("OpenKeyring failed: %v", err)
	}

	acc := &types.Account{Name: "work"}
	if _, err := k.Password(context.Background(), acc); !errors.Is(err, apperrors.ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound before Set, got %v", err)
	}

	if err := k.Set("work", "hunter2"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := k.Password(context.Background(), acc)
	if err != nil {
		t.Fatalf("Password failed: %v", err)
	}
	if got != "hunter2" {
		t.Errorf("Password = %q", got)
	}

	if err := k.Delete("work"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := k.Password(context.Background(), acc); !errors.Is(err, apperrors.ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound after Delete, got %v", err)
	}
}

func TestKey(t *testing.T) {
	if got := Key("work"); got != "imap/work" {
		t.Errorf("Key = %q", got)
	}
}

func TestKeyring_FileBackendRequiresPassword(t *testing.T) {
	_, err := OpenKeyring(KeyringConfig{
		FileDir:  t.TempDir(),
		FileOnly: true,
	})
	if !errors.Is(err, ErrNoFilePassword) {
		t.Fatalf("expected ErrNoFilePassword, got %v", err)
	}
}

func TestFilePasswordFunc(t *testing.T) {
	if _, err := filePasswordFunc("")("unlock"); !errors.Is(err, ErrNoFilePassword) {
		t.Errorf("expected ErrNoFilePassword, got %v", err)
	}
	got, err := filePasswordFunc("secret")("unlock")
	if err != nil || got != "secret" {
		t.Errorf("got %q, %v", got, err)
	}
}
