package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"

	"github.com/nhle/mailcheck/internal/model"
)

const serviceName = "mailcheck"

// ErrNotFound is returned when the keyring holds no entry for a key.
var ErrNotFound = keyring.ErrKeyNotFound

// openKeyring is replaced in tests.
var openKeyring = openSystemKeyring

// openSystemKeyring returns a configured keyring instance.
func openSystemKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mailcheck/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailcheck-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Key returns the keyring key under which the password for creds is kept.
func Key(creds model.Credentials) string {
	return "imap-" + creds.Login() + "@" + creds.Server
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "mailcheck IMAP password",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// Resolve returns creds with the password filled in from the keyring when
// the settings document leaves it empty. A password present in the
// document always wins.
func Resolve(creds model.Credentials, get func(string) (string, error)) (model.Credentials, error) {
	if creds.Password != "" {
		return creds, nil
	}
	if get == nil {
		get = Get
	}

	password, err := get(Key(creds))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return creds, fmt.Errorf("no password in settings or keyring for %s", creds.Login())
		}
		return creds, err
	}

	creds.Password = password
	return creds, nil
}
