package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"labmq/internal/audit"
	"labmq/internal/config"
	"labmq/internal/daemon"
	"labmq/internal/logging"
	"labmq/internal/preflight"
	"labmq/internal/transport"
)

// version is stamped at build time; the default marks a source build.
var version = "dev"

func run(ctx context.Context) error {
	cfg, _, _, err := config.Load("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
			continue
		}
		logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail))
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "labmqd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	conn, err := transport.Dial(ctx, transport.Options{
		URL:            cfg.Broker.URL,
		DialTimeout:    cfg.DialTimeout(),
		Heartbeat:      cfg.BrokerHeartbeat(),
		ConnectionName: "labmqd/" + version,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	store, err := openJournal(cfg, logger)
	if err != nil {
		return err
	}

	d, err := daemon.New(daemon.Options{
		Config:  cfg,
		Logger:  logger,
		Conn:    conn,
		Store:   store,
		Version: version,
	})
	if err != nil {
		if store != nil {
			store.Close()
		}
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	select {
	case <-ctx.Done():
		logger.Info("labmqd shutting down")
	case err := <-conn.NotifyClose():
		if err != nil {
			logger.Error("broker connection lost",
				logging.Error(err),
				logging.Alert("connection_lost"))
			return fmt.Errorf("broker connection lost: %w", err)
		}
		logger.Info("broker connection closed")
	}
	return nil
}

// openJournal opens the audit store, or returns nil when auditing is off.
func openJournal(cfg *config.Config, logger *slog.Logger) (*audit.Store, error) {
	if !cfg.Audit.Enabled {
		logger.Info("audit journal disabled")
		return nil, nil
	}
	store, err := audit.Open(cfg.AuditDBPath())
	if err != nil {
		return nil, fmt.Errorf("open audit journal: %w", err)
	}
	logger.Info("audit journal open", logging.String("path", store.Path()))
	return store, nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
