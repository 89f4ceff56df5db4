// Package fetcher is the remote mailbox adapter. It connects to an IMAP
// server, fetches messages since a point in time and flags them as seen.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"task-inbox-go/internal/normalize"
)

var (
	// ErrTimeout is returned when a remote operation does not finish in time.
	ErrTimeout = errors.New("imap operation timed out")
	// ErrConnect wraps dial and authentication failures.
	ErrConnect = errors.New("imap connection failed")
)

// ConnConfig describes one mailbox connection. When TokenSource is set the
// session authenticates with XOAUTH2 instead of the password.
type ConnConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	TokenSource    oauth2.TokenSource
	UseTLS         bool
	SkipTLSVerify  bool
	Folder         string
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	SendID         bool
}

// RawAttachment is an attachment or inline part carried by a message.
type RawAttachment struct {
	Filename  string
	MimeType  string
	Size      int64
	ContentID string
	Data      []byte
}

// RawMessage is a parsed message as fetched from the mailbox. Ids are
// bracket-stripped.
type RawMessage struct {
	UID         uint32
	MessageID   string
	InReplyTo   string
	References  []string
	Subject     string
	From        normalize.Address
	To          []normalize.Address
	Cc          []normalize.Address
	Bcc         []normalize.Address
	Date        time.Time
	TextBody    string
	HTMLBody    string
	Headers     map[string][]string
	Attachments []RawAttachment
}

// Dialer opens mailbox sessions.
type Dialer interface {
	Dial(ctx context.Context, cfg ConnConfig) (Session, error)
}

// Session is an authenticated mailbox connection.
type Session interface {
	// Fetch returns every message received since the given time, or all
	// messages when since is nil. Malformed messages are skipped.
	Fetch(ctx context.Context, since *time.Time) ([]RawMessage, error)
	// MarkSeen sets the \Seen flag on one message.
	MarkSeen(ctx context.Context, uid uint32) error
	Logout() error
}

// race runs fn and gives up after timeout or when ctx is done. fn keeps
// running in the background after a timeout.
func race(ctx context.Context, timeout time.Duration, op string, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case err := <-done:
		return err
	case <-timer:
		return fmt.Errorf("%w: %s after %s", ErrTimeout, op, timeout)
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
}
