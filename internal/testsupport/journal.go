package testsupport

import (
	"testing"

	"labmq/internal/audit"
	"labmq/internal/config"
)

// MustOpenJournal opens the audit store at the config's database path and
// registers cleanup.
func MustOpenJournal(t testing.TB, cfg *config.Config) *audit.Store {
	t.Helper()

	store, err := audit.Open(cfg.AuditDBPath())
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
