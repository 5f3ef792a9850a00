package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/brandon/mailarchive/pkg/types"
)

// Credential backends.
const (
	CredentialBackendConfig  = "config"
	CredentialBackendKeyring = "keyring"
)

// Config holds the application configuration
type Config struct {
	// Store settings
	DBPath   string
	LogLevel string

	// Sync settings
	BatchSize       int
	ConnectTimeout  time.Duration
	BodyLimit       int
	SyncConcurrency int

	// Credentials
	CredentialBackend string
	KeyringDir        string
	KeyringPassword   string

	// Accounts
	Accounts []AccountConfig
}

// AccountConfig holds configuration for a single email account
type AccountConfig struct {
	Name         string `mapstructure:"name"`
	IMAPHost     string `mapstructure:"imap_host"`
	IMAPPort     int    `mapstructure:"imap_port"`
	IMAPUsername string `mapstructure:"imap_username"`
	IMAPPassword string `mapstructure:"imap_password"`
	Enabled      bool   `mapstructure:"-"`
}

// fileAccount distinguishes an omitted enabled flag from an explicit false.
type fileAccount struct {
	AccountConfig `mapstructure:",squash"`
	Enabled       *bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", "/data/mailarchive.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("batch_size", 500)
	v.SetDefault("connect_timeout", "30s")
	v.SetDefault("body_limit", 50000)
	v.SetDefault("sync_concurrency", 2)
	v.SetDefault("credential_backend", CredentialBackendConfig)
	v.SetDefault("keyring_dir", "")
	v.SetDefault("keyring_password", "")
}

// LoadConfig loads configuration from an optional file at path and the
// environment. Environment variables win over file values; accounts from
// both sources are combined.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	timeout, err := parseTimeout(v.GetString("connect_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid CONNECT_TIMEOUT: %w", err)
	}

	cfg := &Config{
		DBPath:            v.GetString("db_path"),
		LogLevel:          v.GetString("log_level"),
		BatchSize:         v.GetInt("batch_size"),
		ConnectTimeout:    timeout,
		BodyLimit:         v.GetInt("body_limit"),
		SyncConcurrency:   v.GetInt("sync_concurrency"),
		CredentialBackend: strings.ToLower(v.GetString("credential_backend")),
		KeyringDir:        v.GetString("keyring_dir"),
		KeyringPassword:   v.GetString("keyring_password"),
	}

	var fromFile []fileAccount
	if err := v.UnmarshalKey("accounts", &fromFile); err != nil {
		return nil, fmt.Errorf("parsing accounts: %w", err)
	}
	for _, fa := range fromFile {
		acc := fa.AccountConfig
		acc.Enabled = fa.Enabled == nil || *fa.Enabled
		if acc.IMAPPort == 0 {
			acc.IMAPPort = 993
		}
		cfg.Accounts = append(cfg.Accounts, acc)
	}

	cfg.Accounts = append(cfg.Accounts, loadEnvAccounts(v)...)
	return cfg, nil
}

// parseTimeout accepts a Go duration ("45s", "1m") or a bare number of
// seconds ("30", "8.5").
func parseTimeout(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(value)
}

// loadEnvAccounts reads either a single IMAP_* account or numbered
// ACCOUNT_1_*, ACCOUNT_2_*, ... accounts.
func loadEnvAccounts(v *viper.Viper) []AccountConfig {
	// Single account configuration
	if v.GetString("imap_host") != "" {
		name := v.GetString("account_name")
		if name == "" {
			name = "default"
		}
		return []AccountConfig{readAccount(v, "", name)}
	}

	var accounts []AccountConfig
	for num := 1; ; num++ {
		prefix := fmt.Sprintf("account_%d_", num)
		name := v.GetString(prefix + "name")
		if name == "" {
			break // No more accounts
		}
		accounts = append(accounts, readAccount(v, prefix, name))
	}
	return accounts
}

func readAccount(v *viper.Viper, prefix, name string) AccountConfig {
	port := 993
	if v.IsSet(prefix + "imap_port") {
		port = v.GetInt(prefix + "imap_port")
	}
	enabled := true
	if v.IsSet(prefix + "enabled") {
		enabled = v.GetBool(prefix + "enabled")
	}
	return AccountConfig{
		Name:         name,
		IMAPHost:     v.GetString(prefix + "imap_host"),
		IMAPPort:     port,
		IMAPUsername: v.GetString(prefix + "imap_username"),
		IMAPPassword: v.GetString(prefix + "imap_password"),
		Enabled:      enabled,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}

	if c.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be at least 1")
	}

	if c.ConnectTimeout < time.Second {
		return fmt.Errorf("CONNECT_TIMEOUT must be at least 1s")
	}

	if c.BodyLimit < 1 {
		return fmt.Errorf("BODY_LIMIT must be at least 1")
	}

	if c.SyncConcurrency < 1 {
		return fmt.Errorf("SYNC_CONCURRENCY must be at least 1")
	}

	switch c.CredentialBackend {
	case CredentialBackendConfig, CredentialBackendKeyring:
	default:
		return fmt.Errorf("CREDENTIAL_BACKEND must be %q or %q", CredentialBackendConfig, CredentialBackendKeyring)
	}

	// Validate each account
	seen := make(map[string]bool, len(c.Accounts))
	for i := range c.Accounts {
		acc := &c.Accounts[i]
		if acc.Name == "" {
			return fmt.Errorf("account %d: NAME is required", i+1)
		}
		if seen[acc.Name] {
			return fmt.Errorf("account %s: configured more than once", acc.Name)
		}
		seen[acc.Name] = true

		if acc.IMAPHost == "" {
			return fmt.Errorf("account %s: IMAP_HOST is required", acc.Name)
		}
		if acc.IMAPUsername == "" {
			return fmt.Errorf("account %s: IMAP_USERNAME is required", acc.Name)
		}
		if acc.IMAPPort < 1 || acc.IMAPPort > 65535 {
			return fmt.Errorf("account %s: invalid IMAP_PORT", acc.Name)
		}
		if c.CredentialBackend == CredentialBackendConfig && acc.IMAPPassword == "" {
			return fmt.Errorf("account %s: IMAP_PASSWORD is required", acc.Name)
		}
	}

	return nil
}

// Seeds returns the store registration for every configured account.
func (c *Config) Seeds() []types.AccountSeed {
	seeds := make([]types.AccountSeed, len(c.Accounts))
	for i, acc := range c.Accounts {
		seeds[i] = types.AccountSeed{
			Name:         acc.Name,
			IMAPHost:     acc.IMAPHost,
			IMAPPort:     acc.IMAPPort,
			IMAPUsername: acc.IMAPUsername,
			Enabled:      acc.Enabled,
		}
	}
	return seeds
}

// Passwords maps account names to their configured passwords.
func (c *Config) Passwords() map[string]string {
	passwords := make(map[string]string, len(c.Accounts))
	for _, acc := range c.Accounts {
		passwords[acc.Name] = acc.IMAPPassword
	}
	return passwords
}
