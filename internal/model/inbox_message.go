package model

import (
	"time"

	"task-inbox-go/internal/normalize"
)

// Message lifecycle states.
const (
	MessageStatusPending   = "PENDING"
	MessageStatusConverted = "CONVERTED"
	MessageStatusIgnored   = "IGNORED"
)

// InboxMessage is one ingested email. MessageID is stored bracket-stripped and
// is unique across all inboxes.
type InboxMessage struct {
	ID            uint                `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageID     string              `json:"message_id" gorm:"type:varchar(512);not null;uniqueIndex"`
	InboxID       uint                `json:"inbox_id" gorm:"not null;index"`
	ProjectID     uint                `json:"project_id" gorm:"not null;index"`
	AccountID     uint                `json:"account_id" gorm:"index"`
	IMAPUID       uint32              `json:"imap_uid"`
	ThreadID      string              `json:"thread_id" gorm:"type:varchar(512);index"`
	InReplyTo     string              `json:"in_reply_to" gorm:"type:varchar(512);index"`
	References    []string            `json:"references" gorm:"type:text;serializer:json"`
	Subject       string              `json:"subject" gorm:"type:text"`
	FromEmail     string              `json:"from_email" gorm:"type:varchar(320);index"`
	FromName      string              `json:"from_name" gorm:"type:varchar(255)"`
	To            []normalize.Address `json:"to" gorm:"type:text;serializer:json"`
	Cc            []normalize.Address `json:"cc" gorm:"type:text;serializer:json"`
	Bcc           []normalize.Address `json:"bcc" gorm:"type:text;serializer:json"`
	TextBody      string              `json:"text_body" gorm:"type:text"`
	HTMLBody      string              `json:"html_body" gorm:"type:text"`
	Snippet       string              `json:"snippet" gorm:"type:varchar(300)"`
	TextSignature string              `json:"text_signature" gorm:"type:text"`
	HTMLSignature string              `json:"html_signature" gorm:"type:text"`
	Headers       map[string][]string `json:"headers" gorm:"type:text;serializer:json"`
	IsSpam        bool                `json:"is_spam" gorm:"not null"`
	IsConverted   bool                `json:"is_converted" gorm:"not null;index"`
	AutoReplied   bool                `json:"auto_replied" gorm:"not null"`
	Status        string              `json:"status" gorm:"type:varchar(20);not null;index"`
	TaskID        *uint               `json:"task_id" gorm:"index"`
	ReceivedAt    time.Time           `json:"received_at" gorm:"index"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`

	Attachments []MessageAttachment `json:"attachments,omitempty" gorm:"foreignKey:InboxMessageID"`
}

// TableName specifies the table name for InboxMessage
func (InboxMessage) TableName() string {
	return "inbox_messages"
}

// From returns the sender as an address.
func (m *InboxMessage) From() normalize.Address {
	return normalize.Address{Email: m.FromEmail, Name: m.FromName}
}

// Body returns the HTML body, falling back to the plaintext body.
func (m *InboxMessage) Body() string {
	if m.HTMLBody != "" {
		return m.HTMLBody
	}
	return m.TextBody
}

// MessageAttachment is an uploaded attachment of an inbox message.
type MessageAttachment struct {
	ID             uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	InboxMessageID uint      `json:"inbox_message_id" gorm:"not null;index"`
	Filename       string    `json:"filename" gorm:"type:varchar(255)"`
	MimeType       string    `json:"mime_type" gorm:"type:varchar(255)"`
	Size           int64     `json:"size"`
	ContentID      string    `json:"content_id" gorm:"type:varchar(255)"`
	StorageKey     string    `json:"storage_key" gorm:"type:varchar(512)"`
	URL            string    `json:"url" gorm:"type:varchar(1024)"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName specifies the table name for MessageAttachment
func (MessageAttachment) TableName() string {
	return "message_attachments"
}
