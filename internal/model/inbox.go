package model

import "time"

// Mail providers an account can use for inbound and outbound traffic.
const (
	ProviderIMAP  = "imap"
	ProviderGmail = "gmail"
)

// ProjectInbox is the inbound address of a project and its routing defaults.
type ProjectInbox struct {
	ID                uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	ProjectID         uint      `json:"project_id" gorm:"not null;uniqueIndex"`
	EmailAddress      string    `json:"email_address" gorm:"type:varchar(320);not null;uniqueIndex"`
	Name              string    `json:"name" gorm:"type:varchar(255)"`
	Enabled           bool      `json:"enabled" gorm:"not null"`
	DefaultTaskType   string    `json:"default_task_type" gorm:"type:varchar(50)"`
	DefaultPriority   string    `json:"default_priority" gorm:"type:varchar(50)"`
	DefaultStatus     string    `json:"default_status" gorm:"type:varchar(50)"`
	DefaultAssigneeID *uint     `json:"default_assignee_id"`
	DefaultAuthorID   *uint     `json:"default_author_id"`
	AutoReplyEnabled  bool      `json:"auto_reply_enabled" gorm:"not null"`
	AutoReplyTemplate string    `json:"auto_reply_template" gorm:"type:text"`
	AutoCreateTask    bool      `json:"auto_create_task" gorm:"not null"`
	Signature         string    `json:"signature" gorm:"type:text"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName specifies the table name for ProjectInbox
func (ProjectInbox) TableName() string {
	return "project_inboxes"
}

// EmailAccount holds the inbound and outbound connection settings of an inbox.
// Password and token columns hold cipher output, never plaintext.
type EmailAccount struct {
	ID                  uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	InboxID             uint       `json:"inbox_id" gorm:"not null;uniqueIndex"`
	EmailAddress        string     `json:"email_address" gorm:"type:varchar(320);not null"`
	DisplayName         string     `json:"display_name" gorm:"type:varchar(255)"`
	Provider            string     `json:"provider" gorm:"type:varchar(20);not null"`
	IMAPHost            string     `json:"imap_host" gorm:"type:varchar(255)"`
	IMAPPort            int        `json:"imap_port"`
	IMAPUsername        string     `json:"imap_username" gorm:"type:varchar(255)"`
	IMAPPassword        string     `json:"-" gorm:"type:text"`
	IMAPUseTLS          bool       `json:"imap_use_tls" gorm:"not null"`
	SMTPHost            string     `json:"smtp_host" gorm:"type:varchar(255)"`
	SMTPPort            int        `json:"smtp_port"`
	SMTPUsername        string     `json:"smtp_username" gorm:"type:varchar(255)"`
	SMTPPassword        string     `json:"-" gorm:"type:text"`
	SMTPUseTLS          bool       `json:"smtp_use_tls" gorm:"not null"`
	SMTPStartTLS        bool       `json:"smtp_starttls" gorm:"not null"`
	SkipTLSVerify       bool       `json:"skip_tls_verify" gorm:"not null"`
	Folder              string     `json:"folder" gorm:"type:varchar(255)"`
	OAuthRefreshToken   string     `json:"-" gorm:"type:text"`
	Enabled             bool       `json:"enabled" gorm:"not null;index"`
	SyncIntervalMinutes int        `json:"sync_interval_minutes"`
	LastSyncAt          *time.Time `json:"last_sync_at"`
	LastSyncError       *string    `json:"last_sync_error" gorm:"type:text"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`

	Inbox *ProjectInbox `json:"inbox,omitempty" gorm:"foreignKey:InboxID"`
}

// TableName specifies the table name for EmailAccount
func (EmailAccount) TableName() string {
	return "email_accounts"
}

// SyncInterval returns the configured interval as a duration.
func (a *EmailAccount) SyncInterval() time.Duration {
	return time.Duration(a.SyncIntervalMinutes) * time.Minute
}

// MailFolder returns the folder to sync, INBOX when unset.
func (a *EmailAccount) MailFolder() string {
	if a.Folder == "" {
		return "INBOX"
	}
	return a.Folder
}
