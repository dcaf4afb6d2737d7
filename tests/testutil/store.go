package testutil

import (
	"path/filepath"
	"testing"

	"github.com/nhle/mailcheck/internal/model"
	"github.com/nhle/mailcheck/internal/store"
)

// NewTestStore creates a FileStore in a per-test temporary directory,
// seeded with settings when it is non-nil.
func NewTestStore(t *testing.T, settings *model.Settings) *store.FileStore {
	t.Helper()

	s := store.NewFileStore(filepath.Join(t.TempDir(), model.DefaultSettingsFile))
	if settings != nil {
		if err := s.Save(settings); err != nil {
			t.Fatalf("seeding test store: %v", err)
		}
	}

	return s
}
