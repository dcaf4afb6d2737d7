package app

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/mailcheck/internal/mail"
	"github.com/nhle/mailcheck/internal/model"
	"github.com/nhle/mailcheck/internal/store"
)

// Env bundles everything the interactive program works with for its
// lifetime. Settings is replaced, never mutated in place, once a
// background job has saved a new document.
type Env struct {
	Config   *model.AppConfig
	Store    store.Store
	Settings *model.Settings
	Session  mail.Session
	Location *time.Location
	Log      logrus.FieldLogger

	// Now returns the current time; the date input starts on its day.
	Now func() time.Time
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Env) preserveSelection() bool {
	return e.Config != nil && e.Config.Folders.PreserveSelection
}
