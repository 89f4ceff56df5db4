package db

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"task-inbox-go/internal/model"
)

func TestOpenSQLiteMigratesAndDetectsDuplicates(t *testing.T) {
	conn, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "test.db"))
	require.NoError(t, err)

	for _, m := range model.All() {
		assert.True(t, conn.Migrator().HasTable(m))
	}

	inbox := model.ProjectInbox{ProjectID: 1, EmailAddress: "a@example.com"}
	require.NoError(t, conn.Create(&inbox).Error)

	msg := model.InboxMessage{MessageID: "one@example.com", InboxID: inbox.ID, ProjectID: 1, Status: model.MessageStatusPending}
	require.NoError(t, conn.Create(&msg).Error)

	dup := model.InboxMessage{MessageID: "one@example.com", InboxID: inbox.ID, ProjectID: 1, Status: model.MessageStatusPending}
	err = conn.Create(&dup).Error
	require.Error(t, err)
	assert.True(t, IsDuplicate(err))
}

func TestIsDuplicate(t *testing.T) {
	assert.False(t, IsDuplicate(nil))
	assert.True(t, IsDuplicate(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicate(errors.New("Error 1062 (23000): Duplicate entry 'x' for key 'idx'")))
	assert.True(t, IsDuplicate(errors.New(`ERROR: duplicate key value violates unique constraint "idx"`)))
	assert.False(t, IsDuplicate(errors.New("connection refused")))
}
