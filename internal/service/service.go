// Package service is the operation surface consumed by the HTTP API and the
// CLI: manual sync, message listing and conversion, rule management and
// outbound comment mail.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"task-inbox-go/internal/correlate"
	"task-inbox-go/internal/model"
	"task-inbox-go/internal/outbound"
	"task-inbox-go/internal/repository"
	"task-inbox-go/internal/scheduler"
)

var (
	ErrCommentAlreadySent = errors.New("comment was already sent as email")
	ErrRepliesDisabled    = errors.New("task does not accept email replies")
	ErrNoInboundMessage   = errors.New("task has no inbound message to reply to")
	ErrInvalidAccount     = errors.New("invalid email account")
)

// ProjectSyncer runs a forced sync of one project.
type ProjectSyncer interface {
	TriggerProject(ctx context.Context, projectID uint) (scheduler.Report, error)
}

// Converter turns a stored message into a task.
type Converter interface {
	Convert(ctx context.Context, messageID, userID uint) (*model.Task, error)
}

// Replier sends a threaded reply.
type Replier interface {
	Reply(ctx context.Context, req outbound.ReplyRequest) (outbound.ReplyResult, error)
}

// Encrypter seals credentials before they are stored.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// Service implements the produced operations.
type Service struct {
	repo       *repository.Repository
	syncer     ProjectSyncer
	converter  Converter
	replier    Replier
	transports outbound.TransportProvider
	cipher     Encrypter
}

func New(repo *repository.Repository, syncer ProjectSyncer, converter Converter, replier Replier, transports outbound.TransportProvider, cipher Encrypter) *Service {
	return &Service{
		repo:       repo,
		syncer:     syncer,
		converter:  converter,
		replier:    replier,
		transports: transports,
		cipher:     cipher,
	}
}

// TriggerSync syncs the project's account now, ignoring its interval.
func (s *Service) TriggerSync(ctx context.Context, projectID uint) (scheduler.Report, error) {
	return s.syncer.TriggerProject(ctx, projectID)
}

// MessagePage is one page of ListMessages.
type MessagePage struct {
	Messages []model.InboxMessage `json:"messages"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	Limit    int                  `json:"limit"`
}

func (s *Service) ListMessages(ctx context.Context, projectID uint, filter repository.MessageFilter) (MessagePage, error) {
	if _, err := s.repo.GetInboxByProject(ctx, projectID); err != nil {
		return MessagePage{}, err
	}
	msgs, total, err := s.repo.ListMessages(ctx, projectID, filter)
	if err != nil {
		return MessagePage{}, err
	}
	if msgs == nil {
		msgs = []model.InboxMessage{}
	}
	return MessagePage{Messages: msgs, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// MessageDetail is a message with its stored attachments.
type MessageDetail struct {
	model.InboxMessage
	Attachments []model.MessageAttachment `json:"attachments"`
}

func (s *Service) GetMessage(ctx context.Context, id uint) (MessageDetail, error) {
	msg, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		return MessageDetail{}, err
	}
	atts, err := s.repo.ListMessageAttachments(ctx, id)
	if err != nil {
		return MessageDetail{}, err
	}
	return MessageDetail{InboxMessage: *msg, Attachments: atts}, nil
}

// ConvertMessage creates (or joins) a task for a message on behalf of userID.
func (s *Service) ConvertMessage(ctx context.Context, messageID, userID uint) (*model.Task, error) {
	return s.converter.Convert(ctx, messageID, userID)
}

// SendCommentAsEmail mails a task comment to the sender of the task's latest
// inbound message and records the outbound message id on the comment.
func (s *Service) SendCommentAsEmail(ctx context.Context, commentID uint) (outbound.ReplyResult, error) {
	comment, err := s.repo.GetComment(ctx, commentID)
	if err != nil {
		return outbound.ReplyResult{}, err
	}
	if comment.SentAsEmail {
		return outbound.ReplyResult{}, ErrCommentAlreadySent
	}

	task, err := s.repo.GetTask(ctx, comment.TaskID)
	if err != nil {
		return outbound.ReplyResult{}, err
	}
	if !task.AllowEmailReplies {
		return outbound.ReplyResult{}, ErrRepliesDisabled
	}

	original, err := s.repo.LatestTaskMessage(ctx, task.ID)
	if errors.Is(err, repository.ErrMessageNotFound) {
		return outbound.ReplyResult{}, ErrNoInboundMessage
	}
	if err != nil {
		return outbound.ReplyResult{}, err
	}

	inbox, err := s.repo.GetInbox(ctx, original.InboxID)
	if err != nil {
		return outbound.ReplyResult{}, err
	}
	account, err := s.repo.GetAccountByInbox(ctx, inbox.ID)
	if err != nil {
		return outbound.ReplyResult{}, err
	}

	res, err := s.replier.Reply(ctx, outbound.ReplyRequest{
		Inbox:    inbox,
		Account:  account,
		Original: original,
		HTML:     comment.Body,
	})
	if err != nil {
		return outbound.ReplyResult{}, err
	}

	if err := s.repo.MarkCommentSent(ctx, comment.ID, res.MessageID); err != nil {
		// the mail is out; a retry would send it twice
		logrus.WithError(err).WithFields(logrus.Fields{
			"comment_id": comment.ID,
			"message_id": res.MessageID,
		}).Error("Comment sent but not recorded")
		return res, err
	}

	logrus.WithFields(logrus.Fields{
		"comment_id": comment.ID,
		"task_id":    task.ID,
		"message_id": res.MessageID,
	}).Info("Comment sent as email")
	return res, nil
}

// AccountStatus is the sync state of a project's mail account.
type AccountStatus struct {
	AccountID           uint       `json:"account_id"`
	InboxID             uint       `json:"inbox_id"`
	EmailAddress        string     `json:"email_address"`
	Provider            string     `json:"provider"`
	Enabled             bool       `json:"enabled"`
	SyncIntervalMinutes int        `json:"sync_interval_minutes"`
	LastSyncAt          *time.Time `json:"last_sync_at"`
	LastSyncError       *string    `json:"last_sync_error"`
}

func (s *Service) AccountStatus(ctx context.Context, projectID uint) (AccountStatus, error) {
	account, err := s.projectAccount(ctx, projectID)
	if err != nil {
		return AccountStatus{}, err
	}
	return AccountStatus{
		AccountID:           account.ID,
		InboxID:             account.InboxID,
		EmailAddress:        account.EmailAddress,
		Provider:            account.Provider,
		Enabled:             account.Enabled,
		SyncIntervalMinutes: account.SyncIntervalMinutes,
		LastSyncAt:          account.LastSyncAt,
		LastSyncError:       account.LastSyncError,
	}, nil
}

// VerifyTransport checks that the project's outbound transport accepts the
// stored credentials.
func (s *Service) VerifyTransport(ctx context.Context, projectID uint) error {
	account, err := s.projectAccount(ctx, projectID)
	if err != nil {
		return err
	}
	transport, err := s.transports.ForAccount(ctx, account)
	if err != nil {
		return err
	}
	return transport.Verify(ctx)
}

func (s *Service) projectAccount(ctx context.Context, projectID uint) (*model.EmailAccount, error) {
	inbox, err := s.repo.GetInboxByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetAccountByInbox(ctx, inbox.ID)
}

// AccountInput carries plaintext credentials. Empty secrets keep the stored
// value on update.
type AccountInput struct {
	EmailAddress        string `json:"email_address"`
	DisplayName         string `json:"display_name"`
	Provider            string `json:"provider"`
	IMAPHost            string `json:"imap_host"`
	IMAPPort            int    `json:"imap_port"`
	IMAPUsername        string `json:"imap_username"`
	IMAPPassword        string `json:"imap_password"`
	IMAPUseTLS          bool   `json:"imap_use_tls"`
	SMTPHost            string `json:"smtp_host"`
	SMTPPort            int    `json:"smtp_port"`
	SMTPUsername        string `json:"smtp_username"`
	SMTPPassword        string `json:"smtp_password"`
	SMTPUseTLS          bool   `json:"smtp_use_tls"`
	SMTPStartTLS        bool   `json:"smtp_starttls"`
	SkipTLSVerify       bool   `json:"skip_tls_verify"`
	Folder              string `json:"folder"`
	OAuthRefreshToken   string `json:"oauth_refresh_token"`
	Enabled             bool   `json:"enabled"`
	SyncIntervalMinutes int    `json:"sync_interval_minutes"`
}

// ConfigureAccount creates or replaces the mail account of a project's
// inbox. Secrets are encrypted before they reach the store.
func (s *Service) ConfigureAccount(ctx context.Context, projectID uint, in AccountInput) (*model.EmailAccount, error) {
	if err := validateAccount(in); err != nil {
		return nil, err
	}
	inbox, err := s.repo.GetInboxByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	account, err := s.repo.GetAccountByInbox(ctx, inbox.ID)
	creating := errors.Is(err, repository.ErrAccountNotFound)
	if err != nil && !creating {
		return nil, err
	}
	if creating {
		account = &model.EmailAccount{InboxID: inbox.ID}
	}

	account.EmailAddress = strings.ToLower(strings.TrimSpace(in.EmailAddress))
	account.DisplayName = in.DisplayName
	account.Provider = in.Provider
	if account.Provider == "" {
		account.Provider = model.ProviderIMAP
	}
	account.IMAPHost = in.IMAPHost
	account.IMAPPort = in.IMAPPort
	account.IMAPUsername = in.IMAPUsername
	account.IMAPUseTLS = in.IMAPUseTLS
	account.SMTPHost = in.SMTPHost
	account.SMTPPort = in.SMTPPort
	account.SMTPUsername = in.SMTPUsername
	account.SMTPUseTLS = in.SMTPUseTLS
	account.SMTPStartTLS = in.SMTPStartTLS
	account.SkipTLSVerify = in.SkipTLSVerify
	account.Folder = in.Folder
	account.Enabled = in.Enabled
	account.SyncIntervalMinutes = in.SyncIntervalMinutes

	secrets := []struct {
		plain string
		dst   *string
	}{
		{in.IMAPPassword, &account.IMAPPassword},
		{in.SMTPPassword, &account.SMTPPassword},
		{in.OAuthRefreshToken, &account.OAuthRefreshToken},
	}
	for _, sec := range secrets {
		if sec.plain == "" {
			continue
		}
		sealed, err := s.cipher.Encrypt(sec.plain)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt credential: %w", err)
		}
		*sec.dst = sealed
	}

	if creating {
		err = s.repo.CreateAccount(ctx, account)
	} else {
		account.Inbox = nil
		err = s.repo.SaveAccount(ctx, account)
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"account_id": account.ID,
		"inbox_id":   inbox.ID,
		"provider":   account.Provider,
	}).Info("Email account configured")
	return account, nil
}

func validateAccount(in AccountInput) error {
	if !strings.Contains(in.EmailAddress, "@") {
		return fmt.Errorf("%w: email_address is required", ErrInvalidAccount)
	}
	if in.SyncIntervalMinutes < 0 {
		return fmt.Errorf("%w: sync_interval_minutes must not be negative", ErrInvalidAccount)
	}
	switch in.Provider {
	case "", model.ProviderIMAP:
		if in.IMAPHost == "" || in.IMAPPort <= 0 {
			return fmt.Errorf("%w: imap_host and imap_port are required", ErrInvalidAccount)
		}
	case model.ProviderGmail:
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidAccount, in.Provider)
	}
	return nil
}

var _ Converter = (*correlate.Resolver)(nil)
