package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"task-inbox-go/internal/config"
	"task-inbox-go/internal/fetcher"
	"task-inbox-go/internal/ingest"
	"task-inbox-go/internal/metrics"
	"task-inbox-go/internal/model"
	"task-inbox-go/internal/repository"
	"task-inbox-go/internal/synclock"
)

const gmailIMAPScope = "https://mail.google.com/"

var (
	ErrAccountDisabled = errors.New("email account or inbox is disabled")
	ErrSyncLocked      = errors.New("account sync already in progress")
)

// Processor ingests one fetched message.
type Processor interface {
	Process(ctx context.Context, src ingest.Source, raw fetcher.RawMessage) (ingest.Result, error)
}

// Decrypter reverses the credential cipher.
type Decrypter interface {
	Decrypt(token string) (string, error)
}

// AccountReport is the outcome of syncing one account.
type AccountReport struct {
	AccountID uint   `json:"account_id"`
	InboxID   uint   `json:"inbox_id"`
	Skipped   bool   `json:"skipped,omitempty"`
	Locked    bool   `json:"locked,omitempty"`
	Fetched   int    `json:"fetched"`
	Ingested  int    `json:"ingested"`
	Duplicate int    `json:"duplicate"`
	Converted int    `json:"converted"`
	Ignored   int    `json:"ignored"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// Report is the outcome of one sync job.
type Report struct {
	JobID      string          `json:"job_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Accounts   []AccountReport `json:"accounts"`
}

// Options bounds remote operations.
type Options struct {
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	SendID         bool
	LockTTL        time.Duration
	Gmail          config.GmailConfig
}

// Syncer fetches due accounts and feeds their messages to the pipeline.
type Syncer struct {
	repo      *repository.Repository
	dialer    fetcher.Dialer
	processor Processor
	cipher    Decrypter
	locker    synclock.Locker
	metrics   *metrics.Metrics
	opts      Options
	now       func() time.Time
}

func NewSyncer(repo *repository.Repository, dialer fetcher.Dialer, processor Processor, cipher Decrypter, locker synclock.Locker, m *metrics.Metrics, opts Options) *Syncer {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	return &Syncer{
		repo:      repo,
		dialer:    dialer,
		processor: processor,
		cipher:    cipher,
		locker:    locker,
		metrics:   m,
		opts:      opts,
		now:       time.Now,
	}
}

// ShouldSync reports whether an account with the given interval is due.
// A zero interval disables scheduled sync.
func ShouldSync(lastSyncAt *time.Time, interval time.Duration, now time.Time) bool {
	if interval <= 0 {
		return false
	}
	return lastSyncAt == nil || now.Sub(*lastSyncAt) >= interval
}

// SyncDue syncs every eligible account that is due, one at a time. A failing
// account is recorded and the loop moves on.
func (s *Syncer) SyncDue(ctx context.Context, now time.Time) (Report, error) {
	report := Report{JobID: uuid.NewString(), StartedAt: s.now()}

	accounts, err := s.repo.ListSyncableAccounts(ctx)
	if err != nil {
		return report, err
	}

	for i := range accounts {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		account := &accounts[i]
		if !ShouldSync(account.LastSyncAt, account.SyncInterval(), now) {
			logrus.WithField("account_id", account.ID).Debug("Account not due for sync")
			report.Accounts = append(report.Accounts, AccountReport{AccountID: account.ID, InboxID: account.InboxID, Skipped: true})
			continue
		}
		report.Accounts = append(report.Accounts, s.syncAccount(ctx, account))
	}

	report.FinishedAt = s.now()
	return report, nil
}

// SyncAccount syncs one account. force bypasses the interval check.
func (s *Syncer) SyncAccount(ctx context.Context, accountID uint, force bool) (AccountReport, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return AccountReport{}, err
	}
	if !account.Enabled || account.Inbox == nil || !account.Inbox.Enabled {
		return AccountReport{AccountID: account.ID, InboxID: account.InboxID}, ErrAccountDisabled
	}
	if !force && !ShouldSync(account.LastSyncAt, account.SyncInterval(), s.now()) {
		return AccountReport{AccountID: account.ID, InboxID: account.InboxID, Skipped: true}, nil
	}
	return s.syncAccount(ctx, account), nil
}

// TriggerProject runs a manual sync of the project's account.
func (s *Syncer) TriggerProject(ctx context.Context, projectID uint) (Report, error) {
	report := Report{JobID: uuid.NewString(), StartedAt: s.now()}

	inbox, err := s.repo.GetInboxByProject(ctx, projectID)
	if err != nil {
		return report, err
	}
	account, err := s.repo.GetAccountByInbox(ctx, inbox.ID)
	if err != nil {
		return report, err
	}

	logrus.WithFields(logrus.Fields{"job_id": report.JobID, "project_id": projectID}).Info("Manual sync triggered")
	ar, err := s.SyncAccount(ctx, account.ID, true)
	if err != nil {
		return report, err
	}
	report.Accounts = append(report.Accounts, ar)
	report.FinishedAt = s.now()
	if ar.Locked {
		return report, ErrSyncLocked
	}
	return report, nil
}

func (s *Syncer) syncAccount(ctx context.Context, account *model.EmailAccount) AccountReport {
	report := AccountReport{AccountID: account.ID, InboxID: account.InboxID}
	log := logrus.WithFields(logrus.Fields{"account_id": account.ID, "inbox_id": account.InboxID})

	unlock, ok, err := s.locker.TryLock(ctx, "account:"+strconv.FormatUint(uint64(account.ID), 10), s.opts.LockTTL)
	if err != nil {
		log.WithError(err).Error("Failed to acquire sync lock")
		report.Error = err.Error()
		return report
	}
	if !ok {
		log.Info("Account sync already running elsewhere, skipping")
		report.Locked = true
		return report
	}
	defer unlock()

	s.metrics.SyncRuns.Inc()
	timer := prometheus.NewTimer(s.metrics.SyncDuration)
	defer timer.ObserveDuration()

	// the window opens before the fetch so mail arriving mid-sync is
	// picked up by the next run
	windowStart := s.now()

	if err := s.fetchAndProcess(ctx, account, &report, log); err != nil {
		s.metrics.SyncFailures.Inc()
		report.Error = err.Error()
		log.WithError(err).Error("Account sync failed")
		if rerr := s.repo.RecordSyncFailure(context.WithoutCancel(ctx), account.ID, err.Error()); rerr != nil {
			log.WithError(rerr).Error("Failed to record sync failure")
		}
		return report
	}

	if err := s.repo.RecordSyncSuccess(context.WithoutCancel(ctx), account.ID, windowStart); err != nil {
		log.WithError(err).Error("Failed to record sync success")
		report.Error = err.Error()
		return report
	}

	log.WithFields(logrus.Fields{
		"fetched":   report.Fetched,
		"ingested":  report.Ingested,
		"duplicate": report.Duplicate,
		"failed":    report.Failed,
	}).Info("Account sync completed")
	return report
}

func (s *Syncer) fetchAndProcess(ctx context.Context, account *model.EmailAccount, report *AccountReport, log *logrus.Entry) error {
	if account.Inbox == nil {
		return fmt.Errorf("account %d has no inbox", account.ID)
	}

	cfg, err := s.connConfig(ctx, account)
	if err != nil {
		return err
	}

	session, err := s.dialer.Dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Logout(); err != nil {
			log.WithError(err).Debug("Logout failed")
		}
	}()

	messages, err := session.Fetch(ctx, account.LastSyncAt)
	if err != nil {
		return err
	}
	report.Fetched = len(messages)
	s.metrics.MessagesFetched.Add(float64(len(messages)))

	SortOldestFirst(messages)

	// cancellation is honoured between messages only
	work := context.WithoutCancel(ctx)
	src := ingest.Source{Inbox: account.Inbox, Account: account, MarkRead: session.MarkSeen}
	for _, raw := range messages {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := s.processor.Process(work, src, raw)
		if err != nil {
			report.Failed++
			s.metrics.MessageFailures.Inc()
			log.WithError(err).WithFields(logrus.Fields{"uid": raw.UID, "message_id": res.MessageID}).Warn("Failed to process message")
			continue
		}
		switch res.Status {
		case ingest.StatusSkipped:
			report.Duplicate++
		case ingest.StatusConverted:
			report.Ingested++
			report.Converted++
		case ingest.StatusIgnored:
			report.Ingested++
			report.Ignored++
		default:
			report.Ingested++
		}
	}
	return nil
}

// connConfig decrypts the account's credentials into a connection config.
// Gmail accounts authenticate with XOAUTH2.
func (s *Syncer) connConfig(ctx context.Context, account *model.EmailAccount) (fetcher.ConnConfig, error) {
	cfg := fetcher.ConnConfig{
		Host:           account.IMAPHost,
		Port:           account.IMAPPort,
		Username:       account.IMAPUsername,
		UseTLS:         account.IMAPUseTLS,
		SkipTLSVerify:  account.SkipTLSVerify,
		Folder:         account.MailFolder(),
		ConnectTimeout: s.opts.ConnectTimeout,
		CommandTimeout: s.opts.CommandTimeout,
		SendID:         s.opts.SendID,
	}
	if cfg.Username == "" {
		cfg.Username = account.EmailAddress
	}

	if account.Provider == model.ProviderGmail {
		if cfg.Host == "" {
			cfg.Host, cfg.Port, cfg.UseTLS = "imap.gmail.com", 993, true
		}
		refresh, err := s.cipher.Decrypt(account.OAuthRefreshToken)
		if err != nil {
			return cfg, fmt.Errorf("failed to decrypt refresh token: %w", err)
		}
		oc := &oauth2.Config{
			ClientID:     s.opts.Gmail.ClientID,
			ClientSecret: s.opts.Gmail.ClientSecret,
			Scopes:       []string{gmailIMAPScope},
			Endpoint:     google.Endpoint,
		}
		cfg.TokenSource = oc.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh})
		return cfg, nil
	}

	password, err := s.cipher.Decrypt(account.IMAPPassword)
	if err != nil {
		return cfg, fmt.Errorf("failed to decrypt IMAP password: %w", err)
	}
	cfg.Password = password
	return cfg, nil
}

// SortOldestFirst orders messages by date, then UID.
func SortOldestFirst(msgs []fetcher.RawMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i], msgs[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.UID < b.UID
	})
}
