// Package dbtest provides a migrated sqlite database and seeded fixtures for
// store-backed tests.
package dbtest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"task-inbox-go/internal/db"
	"task-inbox-go/internal/model"
)

// NewDB returns a migrated database in a temp dir.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "inbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return conn
}

// Fixture is one project with an enabled inbox and account.
type Fixture struct {
	Organization model.Organization
	Workspace    model.Workspace
	Project      model.Project
	Author       model.User
	Inbox        model.ProjectInbox
	Account      model.EmailAccount
}

// Seed creates a project hierarchy, a default author, an inbox that
// auto-creates tasks and an enabled account syncing every 5 minutes.
func Seed(t testing.TB, conn *gorm.DB, name string) *Fixture {
	t.Helper()
	f := &Fixture{}

	f.Organization = model.Organization{Name: name + " org"}
	require.NoError(t, conn.Create(&f.Organization).Error)

	f.Workspace = model.Workspace{OrganizationID: f.Organization.ID, Name: name + " ws"}
	require.NoError(t, conn.Create(&f.Workspace).Error)

	f.Project = model.Project{WorkspaceID: f.Workspace.ID, Name: name}
	require.NoError(t, conn.Create(&f.Project).Error)

	f.Author = model.User{Email: name + "-owner@example.com", Username: name + "-owner", PasswordHash: "x"}
	require.NoError(t, conn.Create(&f.Author).Error)

	f.Inbox = model.ProjectInbox{
		ProjectID:       f.Project.ID,
		EmailAddress:    name + "@inbox.example.com",
		Name:            name,
		Enabled:         true,
		DefaultTaskType: "task",
		DefaultPriority: "medium",
		DefaultStatus:   "todo",
		DefaultAuthorID: &f.Author.ID,
		AutoCreateTask:  true,
	}
	require.NoError(t, conn.Create(&f.Inbox).Error)

	f.Account = model.EmailAccount{
		InboxID:             f.Inbox.ID,
		EmailAddress:        f.Inbox.EmailAddress,
		Provider:            model.ProviderIMAP,
		IMAPHost:            "imap.example.com",
		IMAPPort:            993,
		IMAPUseTLS:          true,
		SMTPHost:            "smtp.example.com",
		SMTPPort:            465,
		SMTPUseTLS:          true,
		Enabled:             true,
		SyncIntervalMinutes: 5,
	}
	require.NoError(t, conn.Omit("Inbox").Create(&f.Account).Error)

	return f
}

// Message builds a pending message of the fixture's inbox.
func (f *Fixture) Message(messageID string, received time.Time) model.InboxMessage {
	return model.InboxMessage{
		MessageID:  messageID,
		InboxID:    f.Inbox.ID,
		ProjectID:  f.Project.ID,
		AccountID:  f.Account.ID,
		ThreadID:   messageID,
		Subject:    "subject " + messageID,
		FromEmail:  "sender@example.com",
		Status:     model.MessageStatusPending,
		ReceivedAt: received,
	}
}
