package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailarchive/internal/archive"
	"github.com/brandon/mailarchive/internal/config"
	"github.com/brandon/mailarchive/internal/credential"
	"github.com/brandon/mailarchive/internal/mailbox"
	"github.com/brandon/mailarchive/internal/mcp"
	"github.com/brandon/mailarchive/internal/store"
	"github.com/brandon/mailarchive/internal/tools"
)

var (
	version     = "dev"
	showVersion = flag.Bool("version", false, "Show version information")
	configPath  = flag.String("config", os.Getenv("CONFIG_PATH"), "Path to an optional YAML/TOML/JSON config file")
	syncID      = flag.Int64("sync", 0, "Sync one account by ID and exit")
	syncAll     = flag.Bool("sync-all", false, "Sync every enabled account and exit")
	testID      = flag.Int64("test", 0, "Test the connection of one account by ID and exit")
	runsID      = flag.Int64("runs", 0, "Print recent sync runs of one account and exit")
	setPassword = flag.String("set-password", "", "Store the password read from stdin in the keyring for the named account")
	delPassword = flag.String("delete-password", "", "Remove the keyring password of the named account")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("mailarchive version %s\n", version)
		os.Exit(0)
	}

	// stdout carries MCP traffic and CLI results
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if *setPassword != "" {
		if err := storePassword(cfg, *setPassword); err != nil {
			logger.WithError(err).Fatal("Failed to store password")
		}
		logger.WithField("account", *setPassword).Info("Password stored in keyring")
		return
	}
	if *delPassword != "" {
		kr, err := openKeyring(cfg)
		if err == nil {
			err = kr.Delete(*delPassword)
		}
		if err != nil {
			logger.WithError(err).Fatal("Failed to delete password")
		}
		logger.WithField("account", *delPassword).Info("Password removed from keyring")
		return
	}

	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open archive store")
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, seed := range cfg.Seeds() {
		if _, err := st.UpsertAccount(ctx, seed); err != nil {
			logger.WithError(err).WithField("account", seed.Name).Warn("Failed to register account")
		}
	}

	creds, err := credentialProvider(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open credential store")
	}

	connector := archive.NewIMAPConnector(mailbox.NewDialer(logger), cfg.ConnectTimeout)
	manager := archive.NewManager(st, connector, creds, archive.Options{
		BatchSize: cfg.BatchSize,
		BodyLimit: cfg.BodyLimit,
	}, cfg.SyncConcurrency, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	switch {
	case *syncID != 0:
		printResult(logger, func() (interface{}, error) { return manager.SyncOne(ctx, *syncID) })
		return
	case *syncAll:
		printResult(logger, func() (interface{}, error) { return manager.SyncAllEnabled(ctx) })
		return
	case *testID != 0:
		printResult(logger, func() (interface{}, error) { return manager.TestConnection(ctx, *testID) })
		return
	case *runsID != 0:
		printResult(logger, func() (interface{}, error) { return st.ListSyncRuns(ctx, *runsID, 0) })
		return
	}

	logger.Info("Starting mail archive server")
	server := mcp.NewServer(tools.NewRegistry(manager, st, logger), version, logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Run(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-errChan:
		if err != nil {
			logger.WithError(err).Error("Server error")
		}
		cancel()
	}

	logger.Info("Shutting down mail archive server")
}

func credentialProvider(cfg *config.Config) (archive.CredentialProvider, error) {
	if cfg.CredentialBackend == config.CredentialBackendKeyring {
		kr, err := openKeyring(cfg)
		if err != nil {
			return nil, err
		}
		return kr, nil
	}
	return credential.NewStatic(cfg.Passwords()), nil
}

func openKeyring(cfg *config.Config) (*credential.Keyring, error) {
	return credential.OpenKeyring(credential.KeyringConfig{
		FileDir:      cfg.KeyringDir,
		FilePassword: cfg.KeyringPassword,
	})
}

func storePassword(cfg *config.Config, account string) error {
	kr, err := openKeyring(cfg)
	if err != nil {
		return err
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return fmt.Errorf("empty password")
	}
	return kr.Set(account, password)
}

func printResult(logger *logrus.Logger, fn func() (interface{}, error)) {
	out, err := fn()
	if err != nil {
		logger.WithError(err).Fatal("Command failed")
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.WithError(err).Fatal("Failed to write result")
	}
}
