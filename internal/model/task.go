package model

import "time"

// Task is a project task. EmailThreadID links the task to a mail thread and is
// unique per project.
type Task struct {
	ID                uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	ProjectID         uint      `json:"project_id" gorm:"not null;uniqueIndex:idx_task_project_thread"`
	EmailThreadID     *string   `json:"email_thread_id" gorm:"type:varchar(512);uniqueIndex:idx_task_project_thread"`
	Title             string    `json:"title" gorm:"type:text"`
	Description       string    `json:"description" gorm:"type:text"`
	AllowEmailReplies bool      `json:"allow_email_replies" gorm:"not null"`
	ReporterID        *uint     `json:"reporter_id"`
	AssigneeID        *uint     `json:"assignee_id"`
	Priority          string    `json:"priority" gorm:"type:varchar(50)"`
	TaskType          string    `json:"task_type" gorm:"type:varchar(50)"`
	Status            string    `json:"status" gorm:"type:varchar(50)"`
	Labels            []string  `json:"labels" gorm:"type:text;serializer:json"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName specifies the table name for Task
func (Task) TableName() string {
	return "tasks"
}

// TaskComment is a comment on a task. InboundMessageID is set when the comment
// came from an email; EmailMessageID is set when it was sent out as one.
type TaskComment struct {
	ID               uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	TaskID           uint      `json:"task_id" gorm:"not null;index"`
	AuthorID         *uint     `json:"author_id"`
	Body             string    `json:"body" gorm:"type:text"`
	InboundMessageID *uint     `json:"inbound_message_id" gorm:"index"`
	EmailMessageID   *string   `json:"email_message_id" gorm:"type:varchar(512);index"`
	SentAsEmail      bool      `json:"sent_as_email" gorm:"not null"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName specifies the table name for TaskComment
func (TaskComment) TableName() string {
	return "task_comments"
}

// TaskAttachment references a stored file from a task. Attachments copied from
// an inbox message share its storage key and URL.
type TaskAttachment struct {
	ID                 uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	TaskID             uint      `json:"task_id" gorm:"not null;index"`
	CommentID          *uint     `json:"comment_id" gorm:"index"`
	SourceAttachmentID *uint     `json:"source_attachment_id"`
	Filename           string    `json:"filename" gorm:"type:varchar(255)"`
	MimeType           string    `json:"mime_type" gorm:"type:varchar(255)"`
	Size               int64     `json:"size"`
	StorageKey         string    `json:"storage_key" gorm:"type:varchar(512)"`
	URL                string    `json:"url" gorm:"type:varchar(1024)"`
	CreatedAt          time.Time `json:"created_at"`
}

// TableName specifies the table name for TaskAttachment
func (TaskAttachment) TableName() string {
	return "task_attachments"
}
