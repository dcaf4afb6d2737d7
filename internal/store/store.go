package store

import "github.com/nhle/mailcheck/internal/model"

// Store defines the persistence interface for the settings document.
type Store interface {
	// Load returns the settings document, creating it with defaults
	// when it does not exist yet.
	Load() (*model.Settings, error)

	// Save replaces the whole settings document.
	Save(settings *model.Settings) error

	// Path returns the location of the document for user-facing messages.
	Path() string
}
