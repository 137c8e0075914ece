package testsupport

import (
	"testing"

	"facegate/internal/config"
	"facegate/internal/device"
	"facegate/internal/journal"
	"facegate/internal/templatestore"
)

// MustOpenJournal opens the journal configured in cfg and registers cleanup.
func MustOpenJournal(t testing.TB, cfg *config.Config) *journal.Journal {
	t.Helper()

	j, err := journal.Open(cfg.Paths.JournalFile)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() {
		j.Close()
	})
	return j
}

// NewTemplateStore builds a store at the configured database path holding one
// entry per identity, each with the template produced by tpl.
func NewTemplateStore(t testing.TB, cfg *config.Config, tpl func(string) device.Template, identities ...string) *templatestore.Store {
	t.Helper()

	store := templatestore.New(cfg.Paths.DatabaseFile, nil)
	for _, id := range identities {
		template := tpl(id)
		if !store.Push(template, id) {
			t.Fatalf("duplicate identity %q", id)
		}
		template.Release()
	}
	return store
}
