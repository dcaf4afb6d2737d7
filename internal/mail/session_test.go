package mail

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapserver"
	"github.com/emersion/go-imap/v2/imapserver/imapmemserver"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailcheck/internal/model"
)

func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "mailcheck test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

type storedMessage struct {
	folder  string
	subject string
	at      time.Time
	seen    bool
}

func rawMessage(m storedMessage) []byte {
	return []byte(fmt.Sprintf(
		"From: Billing <billing@example.com>\r\n"+
			"To: anna@example.hu\r\n"+
			"Subject: %s\r\n"+
			"Date: %s\r\n"+
			"\r\n"+
			"body\r\n",
		m.subject, m.at.Format(time.RFC1123Z)))
}

// startServer serves an in-memory mailbox for user/pass over implicit TLS
// and returns its address.
func startServer(t *testing.T, folders []string, messages []storedMessage) string {
	t.Helper()

	user := imapmemserver.NewUser("user", "pass")
	for _, name := range folders {
		require.NoError(t, user.Create(name, nil))
	}
	for _, m := range messages {
		var flags []imap.Flag
		if m.seen {
			flags = append(flags, imap.FlagSeen)
		}
		_, err := user.Append(m.folder, bytes.NewReader(rawMessage(m)), &imap.AppendOptions{
			Time:  m.at,
			Flags: flags,
		})
		require.NoError(t, err)
	}

	memServer := imapmemserver.New()
	memServer.AddUser(user)

	serverLog, _ := test.NewNullLogger()
	server := imapserver.New(&imapserver.Options{
		NewSession: func(*imapserver.Conn) (imapserver.Session, *imapserver.GreetingData, error) {
			return memServer.NewSession(), nil, nil
		},
		Caps:   imap.CapSet{imap.CapIMAP4rev1: {}},
		Logger: serverLog,
	})

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{selfSignedCert(t)},
	})
	require.NoError(t, err)

	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = server.Close() })

	return ln.Addr().String()
}

func connectTo(t *testing.T, addr, password string) (*IMAPSession, error) {
	t.Helper()
	logger, _ := test.NewNullLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return Connect(ctx, model.Credentials{
		Server:   addr,
		Username: "user",
		Password: password,
	}, Options{
		TLS:                true,
		InsecureSkipVerify: true,
		Timeout:            5 * time.Second,
		Logger:             logger,
	})
}

func TestSessionAgainstServer(t *testing.T) {
	loc := budapest(t)
	day := func(d, h, m int) time.Time { return time.Date(2024, 3, d, h, m, 0, 0, loc) }

	addr := startServer(t, []string{InboxName, "Processed"}, []storedMessage{
		{folder: InboxName, subject: "Invoice 1", at: day(1, 9, 0), seen: true},
		{folder: InboxName, subject: "fw: INVOICE 2", at: day(1, 0, 30)},
		{folder: InboxName, subject: "Invoice 3", at: day(2, 0, 0)},
		{folder: InboxName, subject: "Invoice 0", at: time.Date(2024, 2, 29, 23, 59, 0, 0, loc)},
		{folder: InboxName, subject: "Receipt 9", at: day(1, 12, 0)},
		{folder: "Processed", subject: "Invoice 4", at: day(1, 15, 0)},
	})

	session, err := connectTo(t, addr, "pass")
	require.NoError(t, err)
	assert.Equal(t, "user", session.Account())

	ctx := context.Background()
	q := Query{Start: day(1, 0, 0), End: day(2, 0, 0), Subject: "invoice"}

	t.Run("walk lists every folder", func(t *testing.T) {
		tree, err := session.Walk(ctx)
		require.NoError(t, err)

		var names []string
		for _, f := range tree {
			names = append(names, f.Name)
		}
		assert.ElementsMatch(t, []string{InboxName, "Processed"}, names)
	})

	t.Run("query keeps the local day and ignores case", func(t *testing.T) {
		messages, err := session.Query(ctx, session.Inbox(), q)
		require.NoError(t, err)
		require.Len(t, messages, 2)

		assert.Equal(t, "Invoice 1", messages[0].Subject)
		assert.True(t, messages[0].Seen)
		assert.Equal(t, "billing@example.com", messages[0].From)
		assert.True(t, messages[0].Received.Equal(day(1, 9, 0)))

		assert.Equal(t, "fw: INVOICE 2", messages[1].Subject)
		assert.False(t, messages[1].Seen)
		assert.True(t, messages[1].Received.Equal(day(1, 0, 30)))
	})

	t.Run("missing folder fails without breaking the session", func(t *testing.T) {
		_, err := session.Query(ctx, Folder{Name: "Gone"}, q)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrSessionBroken)
		assert.False(t, IsTimeout(err))

		messages, err := session.Query(ctx, Folder{Name: "Processed"}, q)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, "Invoice 4", messages[0].Subject)
	})

	require.NoError(t, session.Close())
}

func TestConnectRejectsBadPassword(t *testing.T) {
	addr := startServer(t, []string{InboxName}, nil)

	_, err := connectTo(t, addr, "wrong")
	require.Error(t, err)
	assert.True(t, IsAuthError(err))

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "user", authErr.Account)
}

func TestConnectUnreachableServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = connectTo(t, addr, "pass")
	require.Error(t, err)
	assert.False(t, IsAuthError(err))
	assert.Contains(t, err.Error(), "connecting to IMAP")
}
