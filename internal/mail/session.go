package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"
	"github.com/sirupsen/logrus"

	"github.com/nhle/mailcheck/internal/model"
)

// DefaultTimeout is the fixed deadline applied to dialing and to each
// folder query when Options leaves it unset.
const DefaultTimeout = 300 * time.Second

// Options controls how Connect reaches the server.
type Options struct {
	// Port is used when the configured server has no port.
	Port string

	// TLS selects implicit TLS; otherwise STARTTLS is negotiated.
	TLS bool

	// InsecureSkipVerify disables certificate verification.
	InsecureSkipVerify bool

	// Timeout bounds the dial and every single folder query.
	Timeout time.Duration

	Logger logrus.FieldLogger
}

// OptionsFromConfig maps the application's IMAP section to Options.
func OptionsFromConfig(cfg model.IMAPConfig, logger logrus.FieldLogger) Options {
	return Options{
		Port:               cfg.Port,
		TLS:                cfg.TLS,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Timeout:            cfg.Timeout(),
		Logger:             logger,
	}
}

// IMAPSession is a Session backed by a single go-imap v2 client.
type IMAPSession struct {
	client  *imapclient.Client
	conn    net.Conn
	account string
	timeout time.Duration
	log     logrus.FieldLogger

	mu       sync.Mutex
	broken   error
	deadline time.Time
}

var _ Session = (*IMAPSession)(nil)

// Connect dials the server named in creds, authenticates with the static
// credentials, and returns the live session. The caller is responsible
// for calling Close.
func Connect(
	ctx context.Context, creds model.Credentials, opts Options,
) (*IMAPSession, error) {
	if creds.Server == "" {
		return nil, fmt.Errorf("no mail server configured")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	addr, host := serverAddress(creds.Server, opts.Port)
	log := opts.Logger.WithField("server", addr)

	dialer := &net.Dialer{Timeout: opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	tlsConfig := &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec // corporate servers with private CAs
	}
	clientOpts := &imapclient.Options{
		TLSConfig:   tlsConfig,
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	}

	_ = conn.SetDeadline(time.Now().Add(opts.Timeout))

	var client *imapclient.Client
	if opts.TLS {
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("TLS handshake with %s: %w", addr, err)
		}
		client = imapclient.New(tlsConn, clientOpts)
	} else {
		client, err = imapclient.NewStartTLS(conn, clientOpts)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("STARTTLS with %s: %w", addr, err)
		}
	}

	if err := client.WaitGreeting(); err != nil {
		client.Close()
		return nil, fmt.Errorf("waiting for greeting from %s: %w", addr, err)
	}

	account := creds.Login()
	if err := client.Login(account, creds.Password).Wait(); err != nil {
		client.Close()
		if IsTimeout(err) {
			return nil, &TimeoutError{Op: "login", Timeout: opts.Timeout, Err: err}
		}
		return nil, &AuthError{Account: account, Message: err.Error()}
	}

	_ = conn.SetDeadline(time.Time{})

	log.WithField("account", account).Info("Connected to mail server")

	return &IMAPSession{
		client:  client,
		conn:    conn,
		account: account,
		timeout: opts.Timeout,
		log:     log,
	}, nil
}

// Account returns the login the session was opened with.
func (s *IMAPSession) Account() string {
	return s.account
}

// Inbox returns the inbox folder.
func (s *IMAPSession) Inbox() Folder {
	return Folder{Name: InboxName}
}

// Walk lists the whole folder tree. Special-use attributes are requested
// when the server supports them.
func (s *IMAPSession) Walk(ctx context.Context) ([]Folder, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}

	var opts *imap.ListOptions
	caps := s.client.Caps()
	if caps.Has(imap.CapSpecialUse) && caps.Has(imap.CapListExtended) {
		opts = &imap.ListOptions{ReturnSpecialUse: true}
	}

	done := s.arm(ctx)
	defer done()

	listCmd := s.client.List("", "*", opts)

	var folders []Folder
	for {
		data := listCmd.Next()
		if data == nil {
			break
		}
		folders = append(folders, Folder{
			Name:  data.Mailbox,
			Delim: data.Delim,
			Attrs: data.Attrs,
		})
	}

	if err := listCmd.Close(); err != nil {
		return folders, s.fail("listing folders", err)
	}

	return folders, nil
}

// Query selects folder read-only and returns the messages matching q.
func (s *IMAPSession) Query(
	ctx context.Context, folder Folder, q Query,
) ([]Message, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}

	done := s.arm(ctx)
	defer done()

	if _, err := s.client.Select(folder.Name, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, s.fail(fmt.Sprintf("selecting %s", folder.Name), err)
	}

	searchData, err := s.client.UIDSearch(searchCriteria(q), nil).Wait()
	if err != nil {
		return nil, s.fail(fmt.Sprintf("searching %s", folder.Name), err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	fetchCmd := s.client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope:     true,
		Flags:        true,
		UID:          true,
		InternalDate: true,
	})
	defer fetchCmd.Close()

	messages, collectErr := collectMatches(q, func() (*imapclient.FetchMessageBuffer, bool, error) {
		fetched := fetchCmd.Next()
		if fetched == nil {
			return nil, false, nil
		}
		buf, err := fetched.Collect()
		return buf, true, err
	})

	if err := fetchCmd.Close(); err != nil {
		return nil, s.fail(fmt.Sprintf("fetching from %s", folder.Name), err)
	}

	if collectErr != nil {
		s.log.WithError(collectErr).WithField("folder", folder.Name).Warn("Reading fetched message failed")
		return nil, s.fail(fmt.Sprintf("reading messages from %s", folder.Name), collectErr)
	}

	return messages, nil
}

// Close logs out and closes the connection.
func (s *IMAPSession) Close() error {
	if s.usable() == nil {
		_ = s.conn.SetDeadline(time.Now().Add(5 * time.Second))
		if err := s.client.Logout().Wait(); err != nil {
			s.log.WithError(err).Debug("Logout failed")
		}
	}
	return s.client.Close()
}

// arm applies the fixed timeout, or the context deadline when that is
// sooner, to the underlying connection. The returned func disarms it.
func (s *IMAPSession) arm(ctx context.Context) func() {
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetDeadline(deadline)

	s.mu.Lock()
	s.deadline = deadline
	s.mu.Unlock()

	return func() {
		_ = s.conn.SetDeadline(time.Time{})
		s.mu.Lock()
		s.deadline = time.Time{}
		s.mu.Unlock()
	}
}

// fail classifies err. A network-level failure leaves the client in an
// unknown protocol state, so the session is marked broken. go-imap does
// not always wrap the net error, hence the deadline check.
func (s *IMAPSession) fail(op string, err error) error {
	s.mu.Lock()
	expired := !s.deadline.IsZero() && !time.Now().Before(s.deadline)
	s.mu.Unlock()

	if expired || IsTimeout(err) {
		s.markBroken(err)
		return &TimeoutError{Op: op, Timeout: s.timeout, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		s.markBroken(err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func (s *IMAPSession) markBroken(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken == nil {
		s.broken = err
		s.log.WithError(err).Warn("Mail session broken")
	}
}

func (s *IMAPSession) usable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken != nil {
		return fmt.Errorf("%w: %v", ErrSessionBroken, s.broken)
	}
	return nil
}

// serverAddress returns host:port for server, adding port when server
// has none, and the bare host for TLS verification.
func serverAddress(server, port string) (addr string, host string) {
	if h, _, err := net.SplitHostPort(server); err == nil {
		return server, h
	}
	if port == "" {
		port = "993"
	}
	return net.JoinHostPort(server, port), server
}
