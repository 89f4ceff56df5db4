package fetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	id "github.com/emersion/go-imap-id"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"
)

// IMAPDialer opens sessions with go-imap.
type IMAPDialer struct {
	ClientName    string
	ClientVersion string
}

// NewIMAPDialer returns a dialer that identifies itself with the given name.
func NewIMAPDialer(name, version string) *IMAPDialer {
	return &IMAPDialer{ClientName: name, ClientVersion: version}
}

type dialResult struct {
	c   *client.Client
	err error
}

// Dial connects, identifies and authenticates. A connection that completes
// after the timeout fired is logged out in the background.
func (d *IMAPDialer) Dial(ctx context.Context, cfg ConnConfig) (Session, error) {
	ch := make(chan dialResult, 1)
	go func() {
		c, err := d.connect(ctx, cfg)
		ch <- dialResult{c: c, err: err}
	}()

	var timer <-chan time.Time
	if cfg.ConnectTimeout > 0 {
		t := time.NewTimer(cfg.ConnectTimeout)
		defer t.Stop()
		timer = t.C
	}

	abandon := func() {
		go func() {
			if r := <-ch; r.c != nil {
				_ = r.c.Logout()
			}
		}()
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return &imapSession{c: r.c, folder: cfg.Folder, timeout: cfg.CommandTimeout}, nil
	case <-timer:
		abandon()
		return nil, fmt.Errorf("%w: connect to %s after %s", ErrTimeout, cfg.Host, cfg.ConnectTimeout)
	case <-ctx.Done():
		abandon()
		return nil, fmt.Errorf("connect to %s: %w", cfg.Host, ctx.Err())
	}
}

func (d *IMAPDialer) connect(ctx context.Context, cfg ConnConfig) (*client.Client, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}

	var (
		c   *client.Client
		err error
	)
	if cfg.UseTLS {
		c, err = client.DialWithDialerTLS(dialer, addr, &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: cfg.SkipTLSVerify,
		})
	} else {
		c, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	if cfg.CommandTimeout > 0 {
		c.Timeout = cfg.CommandTimeout
	}

	if cfg.SendID {
		if ok, _ := c.Support("ID"); ok {
			if _, err := id.NewClient(c).ID(id.ID{
				id.FieldName:    d.ClientName,
				id.FieldVersion: d.ClientVersion,
			}); err != nil {
				logrus.WithError(err).WithField("host", cfg.Host).Debug("IMAP ID command failed")
			}
		}
	}

	if err := authenticate(ctx, c, cfg); err != nil {
		_ = c.Logout()
		return nil, err
	}
	return c, nil
}

func authenticate(ctx context.Context, c *client.Client, cfg ConnConfig) error {
	if cfg.TokenSource != nil {
		tok, err := cfg.TokenSource.Token()
		if err != nil {
			return fmt.Errorf("%w: failed to obtain access token: %v", ErrConnect, err)
		}
		if err := c.Authenticate(&xoauth2Client{username: cfg.Username, token: tok.AccessToken}); err != nil {
			return fmt.Errorf("%w: xoauth2: %v", ErrConnect, err)
		}
		return nil
	}
	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		return fmt.Errorf("%w: login: %v", ErrConnect, err)
	}
	return nil
}

// xoauth2Client implements the XOAUTH2 SASL mechanism.
type xoauth2Client struct {
	username string
	token    string
}

func (a *xoauth2Client) Start() (string, []byte, error) {
	resp := fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", a.username, a.token)
	return "XOAUTH2", []byte(resp), nil
}

func (a *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	return nil, fmt.Errorf("xoauth2 rejected: %s", challenge)
}

type imapSession struct {
	c       *client.Client
	folder  string
	timeout time.Duration

	// mu serializes mailbox selection with the command that needs it.
	mu sync.Mutex
}

func (s *imapSession) lockMailbox(ctx context.Context) (func(), error) {
	s.mu.Lock()
	folder := s.folder
	if folder == "" {
		folder = "INBOX"
	}
	err := race(ctx, s.timeout, "select "+folder, func() error {
		_, err := s.c.Select(folder, false)
		return err
	})
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to select mailbox: %w", err)
	}
	return s.mu.Unlock, nil
}

func (s *imapSession) Fetch(ctx context.Context, since *time.Time) ([]RawMessage, error) {
	release, err := s.lockMailbox(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	criteria := imap.NewSearchCriteria()
	if since != nil {
		criteria.Since = *since
	}

	var uids []uint32
	err = race(ctx, s.timeout, "search", func() error {
		var err error
		uids, err = s.c.UidSearch(criteria)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search mailbox: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	var out []RawMessage
	err = race(ctx, s.timeout, "fetch", func() error {
		ch := make(chan *imap.Message, 16)
		done := make(chan error, 1)
		go func() {
			done <- s.c.UidFetch(seqset, items, ch)
		}()

		var msgs []RawMessage
		for msg := range ch {
			// SINCE has day granularity on the server
			if since != nil && !msg.InternalDate.IsZero() && msg.InternalDate.Before(*since) {
				continue
			}
			raw, err := fromIMAP(msg, section)
			if err != nil {
				logrus.WithError(err).WithField("uid", msg.Uid).Warn("Skipping malformed message")
				continue
			}
			msgs = append(msgs, raw)
		}
		if err := <-done; err != nil {
			return err
		}
		out = msgs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return out, nil
}

func fromIMAP(msg *imap.Message, section *imap.BodySectionName) (RawMessage, error) {
	body := msg.GetBody(section)
	if body == nil {
		return RawMessage{}, fmt.Errorf("server returned no body for uid %d", msg.Uid)
	}

	raw, err := ParseMessage(msg.Uid, body)
	if err != nil {
		return RawMessage{}, err
	}

	if env := msg.Envelope; env != nil {
		if raw.MessageID == "" {
			raw.MessageID = normalizeEnvelopeID(env.MessageId)
		}
		if raw.InReplyTo == "" {
			raw.InReplyTo = normalizeEnvelopeID(env.InReplyTo)
		}
		if raw.Subject == "" {
			raw.Subject = env.Subject
		}
		if raw.Date.IsZero() {
			raw.Date = env.Date
		}
	}
	raw.Date = receivedAt(raw, msg.InternalDate)
	return raw, nil
}

func (s *imapSession) MarkSeen(ctx context.Context, uid uint32) error {
	release, err := s.lockMailbox(ctx)
	if err != nil {
		return err
	}
	defer release()

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	err = race(ctx, s.timeout, "store", func() error {
		return s.c.UidStore(seqset, imap.FormatFlagsOp(imap.AddFlags, true), []interface{}{imap.SeenFlag}, nil)
	})
	if err != nil {
		return fmt.Errorf("failed to mark uid %d as seen: %w", uid, err)
	}
	return nil
}

func (s *imapSession) Logout() error {
	return race(context.Background(), s.timeout, "logout", s.c.Logout)
}
