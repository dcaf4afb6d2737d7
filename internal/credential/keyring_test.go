package credential

import (
	"errors"
	"fmt"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailcheck/internal/model"
)

func TestKeyUsesLoginAndServer(t *testing.T) {
	assert.Equal(t, "imap-anna@mail.example.hu", Key(model.Credentials{
		Username: "anna",
		Server:   "mail.example.hu",
	}))
	assert.Equal(t, "imap-anna@example.hu@mail.example.hu", Key(model.Credentials{
		Email:  "anna@example.hu",
		Server: "mail.example.hu",
	}))
}

func TestResolveKeepsPasswordFromSettings(t *testing.T) {
	creds := model.Credentials{Username: "anna", Password: "titok"}
	got, err := Resolve(creds, func(string) (string, error) {
		t.Fatal("keyring must not be consulted")
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "titok", got.Password)
}

func TestResolveReadsKeyring(t *testing.T) {
	creds := model.Credentials{Username: "anna", Server: "mail.example.hu"}
	got, err := Resolve(creds, func(key string) (string, error) {
		assert.Equal(t, "imap-anna@mail.example.hu", key)
		return "from-ring", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "from-ring", got.Password)
}

func TestResolveMissingEntry(t *testing.T) {
	creds := model.Credentials{Username: "anna", Server: "mail.example.hu"}
	_, err := Resolve(creds, func(key string) (string, error) {
		return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no password")

	_, err = Resolve(creds, func(string) (string, error) {
		return "", errors.New("dbus unavailable")
	})
	require.EqualError(t, err, "dbus unavailable")
}

func useArrayKeyring(t *testing.T, items ...keyring.Item) *keyring.ArrayKeyring {
	t.Helper()
	ring := keyring.NewArrayKeyring(items)
	prev := openKeyring
	openKeyring = func() (keyring.Keyring, error) { return ring, nil }
	t.Cleanup(func() { openKeyring = prev })
	return ring
}

func TestSetGetDelete(t *testing.T) {
	useArrayKeyring(t)
	key := Key(model.Credentials{Username: "anna", Server: "mail.example.hu"})

	require.NoError(t, Set(key, "titok"))
	got, err := Get(key)
	require.NoError(t, err)
	assert.Equal(t, "titok", got)

	require.NoError(t, Delete(key))
	_, err = Get(key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteLeavesOtherAccounts(t *testing.T) {
	ring := useArrayKeyring(t,
		keyring.Item{Key: "imap-anna@mail.example.hu", Data: []byte("a")},
		keyring.Item{Key: "imap-bela@mail.example.hu", Data: []byte("b")},
	)

	require.NoError(t, Delete("imap-anna@mail.example.hu"))

	keys, err := ring.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"imap-bela@mail.example.hu"}, keys)
}

func TestOpenFailureIsReported(t *testing.T) {
	prev := openKeyring
	openKeyring = func() (keyring.Keyring, error) { return nil, errors.New("opening keyring: no backend") }
	t.Cleanup(func() { openKeyring = prev })

	assert.EqualError(t, Delete("k"), "opening keyring: no backend")
	assert.EqualError(t, Set("k", "v"), "opening keyring: no backend")
}
