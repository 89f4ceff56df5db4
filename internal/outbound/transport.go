package outbound

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"task-inbox-go/internal/config"
	"task-inbox-go/internal/model"
)

// ErrTransport wraps connection and authentication failures.
var ErrTransport = errors.New("mail transport failed")

// Transport delivers composed messages.
type Transport interface {
	Send(ctx context.Context, env Envelope) (SendResult, error)
	Verify(ctx context.Context) error
}

// SMTPConfig holds decrypted SMTP settings.
type SMTPConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	UseTLS        bool
	StartTLS      bool
	SkipTLSVerify bool
	Timeout       time.Duration
}

// SMTPTransport sends through an SMTP relay with PLAIN auth.
type SMTPTransport struct {
	cfg SMTPConfig
}

func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPTransport{cfg: cfg}
}

func (t *SMTPTransport) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	dialer := &net.Dialer{Timeout: t.cfg.Timeout}
	tlsConfig := &tls.Config{ServerName: t.cfg.Host, InsecureSkipVerify: t.cfg.SkipTLSVerify}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	deadline := time.Now().Add(t.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if t.cfg.UseTLS {
		tc := tls.Client(conn, tlsConfig)
		if err := tc.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: tls handshake: %v", ErrTransport, err)
		}
		conn = tc
	}

	c, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if !t.cfg.UseTLS && t.cfg.StartTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			c.Close()
			return nil, fmt.Errorf("%w: server does not offer STARTTLS", ErrTransport)
		}
		if err := c.StartTLS(tlsConfig); err != nil {
			c.Close()
			return nil, fmt.Errorf("%w: starttls: %v", ErrTransport, err)
		}
	}

	if t.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)); err != nil {
				c.Close()
				return nil, fmt.Errorf("%w: auth: %v", ErrTransport, err)
			}
		}
	}
	return c, nil
}

func (t *SMTPTransport) Send(ctx context.Context, env Envelope) (SendResult, error) {
	raw, err := Build(env)
	if err != nil {
		return SendResult{}, err
	}

	c, err := t.dial(ctx)
	if err != nil {
		return SendResult{}, err
	}
	defer c.Close()

	if err := c.Mail(env.From.Email); err != nil {
		return SendResult{}, fmt.Errorf("MAIL FROM failed: %w", err)
	}
	for _, rcpt := range env.Recipients() {
		if err := c.Rcpt(rcpt); err != nil {
			return SendResult{}, fmt.Errorf("RCPT TO failed for %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return SendResult{}, fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return SendResult{}, fmt.Errorf("write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return SendResult{}, fmt.Errorf("close failed: %w", err)
	}
	// the message is accepted once DATA closes
	_ = c.Quit()

	return SendResult{MessageID: env.MessageID}, nil
}

func (t *SMTPTransport) Verify(ctx context.Context) error {
	c, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Quit()
}

// GmailTransport sends through the Gmail API with an OAuth refresh token.
type GmailTransport struct {
	service   *gmail.Service
	userEmail string
}

// NewGmailTransport builds the API client from the shared OAuth client and
// the account's refresh token.
func NewGmailTransport(ctx context.Context, cfg config.GmailConfig, userEmail, refreshToken string) (*GmailTransport, error) {
	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gmail.GmailSendScope},
		Endpoint:     google.Endpoint,
	}
	tokenSource := oauth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	service, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &GmailTransport{service: service, userEmail: userEmail}, nil
}

func (t *GmailTransport) Send(ctx context.Context, env Envelope) (SendResult, error) {
	raw, err := Build(env)
	if err != nil {
		return SendResult{}, err
	}
	message := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := t.service.Users.Messages.Send(t.userEmail, message).Context(ctx).Do()
		if err == nil {
			return SendResult{MessageID: env.MessageID}, nil
		}
		lastErr = err
		logrus.WithError(err).Warnf("Gmail send failed (attempt %d/3)", attempt)

		if !strings.Contains(err.Error(), "quota") && !strings.Contains(err.Error(), "rate") {
			break
		}
		select {
		case <-ctx.Done():
			return SendResult{}, ctx.Err()
		case <-time.After(time.Duration(attempt*attempt) * time.Second):
		}
	}
	return SendResult{}, fmt.Errorf("%w: %v", ErrTransport, lastErr)
}

func (t *GmailTransport) Verify(ctx context.Context) error {
	if _, err := t.service.Users.GetProfile(t.userEmail).Context(ctx).Do(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// Decrypter reverses the credential cipher.
type Decrypter interface {
	Decrypt(token string) (string, error)
}

// TransportFactory builds the transport configured on an account.
type TransportFactory struct {
	cipher  Decrypter
	gmail   config.GmailConfig
	timeout time.Duration
}

func NewTransportFactory(cipher Decrypter, gmailCfg config.GmailConfig, timeout time.Duration) *TransportFactory {
	return &TransportFactory{cipher: cipher, gmail: gmailCfg, timeout: timeout}
}

// ForAccount decrypts the account's credentials and returns its transport.
func (f *TransportFactory) ForAccount(ctx context.Context, account *model.EmailAccount) (Transport, error) {
	switch account.Provider {
	case model.ProviderGmail:
		token, err := f.cipher.Decrypt(account.OAuthRefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
		}
		return NewGmailTransport(ctx, f.gmail, account.EmailAddress, token)
	case model.ProviderIMAP, "":
		if account.SMTPHost == "" {
			return nil, fmt.Errorf("account %d has no SMTP host", account.ID)
		}
		password, err := f.cipher.Decrypt(account.SMTPPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt SMTP password: %w", err)
		}
		username := account.SMTPUsername
		if username == "" {
			username = account.EmailAddress
		}
		return NewSMTPTransport(SMTPConfig{
			Host:          account.SMTPHost,
			Port:          account.SMTPPort,
			Username:      username,
			Password:      password,
			UseTLS:        account.SMTPUseTLS,
			StartTLS:      account.SMTPStartTLS,
			SkipTLSVerify: account.SkipTLSVerify,
			Timeout:       f.timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", account.Provider)
	}
}
