package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"labmq/internal/config"
	"labmq/internal/daemon"
	"labmq/internal/logging"
	"labmq/internal/testsupport"
	"labmq/internal/transport"
	"labmq/internal/transport/transporttest"
)

type cliTestEnv struct {
	cfg        *config.Config
	broker     *transporttest.Broker
	daemon     *daemon.Daemon
	configPath string
}

// setupCLITestEnv starts a daemon on an in-process broker and points the
// CLI's dialer at it, so commands run end to end without RabbitMQ.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	configPath := filepath.Join(homeDir, ".config", "labmq", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, filepath.Join(base, "data"), filepath.Join(base, "logs"))

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	store := testsupport.MustOpenJournal(t, cfg)

	broker := transporttest.NewBroker()
	d, err := daemon.New(daemon.Options{
		Config:  cfg,
		Logger:  logging.NewNop(),
		Conn:    broker.Connect(),
		Store:   store,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	previousDial := dialBroker
	dialBroker = func(context.Context, transport.Options) (transport.Connection, error) {
		return broker.Connect(), nil
	}

	t.Cleanup(func() {
		dialBroker = previousDial
		if err := d.Close(); err != nil {
			t.Errorf("daemon.Close: %v", err)
		}
		broker.Close()
	})

	return &cliTestEnv{cfg: cfg, broker: broker, daemon: d, configPath: configPath}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path, dataDir, logDir string) {
	t.Helper()
	content := fmt.Sprintf("[paths]\nlog_dir = %q\ndata_dir = %q\n", logDir, dataDir)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
