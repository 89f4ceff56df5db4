package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-inbox-go/internal/dbtest"
	"task-inbox-go/internal/model"
	"task-inbox-go/internal/repository"
)

func TestListSyncableAccounts(t *testing.T) {
	conn := dbtest.NewDB(t)
	ctx := context.Background()

	active := dbtest.Seed(t, conn, "active")
	disabledInbox := dbtest.Seed(t, conn, "quiet")
	noInterval := dbtest.Seed(t, conn, "manual")

	require.NoError(t, conn.Model(&model.ProjectInbox{}).Where("id = ?", disabledInbox.Inbox.ID).Update("enabled", false).Error)
	require.NoError(t, conn.Model(&model.EmailAccount{}).Where("id = ?", noInterval.Account.ID).Update("sync_interval_minutes", 0).Error)

	repo := repository.New(conn)
	accounts, err := repo.ListSyncableAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, active.Account.ID, accounts[0].ID)
	require.NotNil(t, accounts[0].Inbox)
	assert.Equal(t, active.Inbox.ID, accounts[0].Inbox.ID)
}

func TestSyncBookkeeping(t *testing.T) {
	conn := dbtest.NewDB(t)
	ctx := context.Background()
	f := dbtest.Seed(t, conn, "book")
	repo := repository.New(conn)

	require.NoError(t, repo.RecordSyncFailure(ctx, f.Account.ID, "dial tcp: timeout"))
	acc, err := repo.GetAccount(ctx, f.Account.ID)
	require.NoError(t, err)
	require.NotNil(t, acc.LastSyncError)
	assert.Equal(t, "dial tcp: timeout", *acc.LastSyncError)
	assert.Nil(t, acc.LastSyncAt)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.RecordSyncSuccess(ctx, f.Account.ID, at))
	acc, err = repo.GetAccount(ctx, f.Account.ID)
	require.NoError(t, err)
	assert.Nil(t, acc.LastSyncError)
	require.NotNil(t, acc.LastSyncAt)
	assert.True(t, at.Equal(*acc.LastSyncAt))
}

func TestRulesOrderedByPriorityThenCreation(t *testing.T) {
	conn := dbtest.NewDB(t)
	ctx := context.Background()
	f := dbtest.Seed(t, conn, "rules")
	repo := repository.New(conn)

	base := time.Now().Add(-time.Hour)
	rules := []model.InboxRule{
		{InboxID: f.Inbox.ID, Name: "low", Priority: 1, Enabled: true, CreatedAt: base},
		{InboxID: f.Inbox.ID, Name: "high-late", Priority: 10, Enabled: true, CreatedAt: base.Add(2 * time.Minute)},
		{InboxID: f.Inbox.ID, Name: "high-early", Priority: 10, Enabled: true, CreatedAt: base.Add(time.Minute)},
		{InboxID: f.Inbox.ID, Name: "off", Priority: 50, Enabled: false, CreatedAt: base},
	}
	for i := range rules {
		require.NoError(t, repo.CreateRule(ctx, &rules[i]))
	}

	got, err := repo.ListEnabledRules(ctx, f.Inbox.ID)
	require.NoError(t, err)
	var names []string
	for _, r := range got {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"high-early", "high-late", "low"}, names)

	require.NoError(t, repo.DeleteRule(ctx, rules[0].ID))
	assert.ErrorIs(t, repo.DeleteRule(ctx, rules[0].ID), repository.ErrRuleNotFound)
	_, err = repo.GetRule(ctx, rules[0].ID)
	assert.ErrorIs(t, err, repository.ErrRuleNotFound)
}

func TestInsertRuleResultIsIdempotent(t *testing.T) {
	conn := dbtest.NewDB(t)
	ctx := context.Background()
	f := dbtest.Seed(t, conn, "results")
	repo := repository.New(conn)

	msg := f.Message("m1@example.com", time.Now())
	require.NoError(t, repo.CreateMessage(ctx, &msg))

	high := "high"
	require.NoError(t, repo.InsertRuleResult(ctx, &model.MessageRuleResult{InboxMessageID: msg.ID, RuleID: 7, Priority: &high}))
	low := "low"
	require.NoError(t, repo.InsertRuleResult(ctx, &model.MessageRuleResult{InboxMessageID: msg.ID, RuleID: 7, Priority: &low}))

	results, err := repo.ListRuleResults(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "high", *results[0].Priority)
}

func TestListMessagesFilters(t *testing.T) {
	conn := dbtest.NewDB(t)
	ctx := context.Background()
	f := dbtest.Seed(t, conn, "list")
	repo := repository.New(conn)

	now := time.Now()
	a := f.Message("a@example.com", now.Add(-3*time.Hour))
	a.FromEmail = "alice@customer.com"
	a.Subject = "Invoice overdue"
	b := f.Message("b@example.com", now.Add(-2*time.Hour))
	b.FromEmail = "bob@vendor.com"
	b.Subject = "Weekly report"
	c := f.Message("c@example.com", now.Add(-1*time.Hour))
	c.FromEmail = "spam@junk.com"
	c.IsSpam = true
	c.Status = model.MessageStatusIgnored
	for _, m := range []*model.InboxMessage{&a, &b, &c} {
		require.NoError(t, repo.CreateMessage(ctx, m))
	}

	msgs, total, err := repo.ListMessages(ctx, f.Project.ID, repository.MessageFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, "b@example.com", msgs[0].MessageID)

	msgs, total, err = repo.ListMessages(ctx, f.Project.ID, repository.MessageFilter{IncludeSpam: true})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Equal(t, "c@example.com", msgs[0].MessageID)

	msgs, _, err = repo.ListMessages(ctx, f.Project.ID, repository.MessageFilter{FromEmail: "VENDOR"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "b@example.com", msgs[0].MessageID)

	msgs, _, err = repo.ListMessages(ctx, f.Project.ID, repository.MessageFilter{Search: "invoice"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "a@example.com", msgs[0].MessageID)

	since := now.Add(-150 * time.Minute)
	msgs, _, err = repo.ListMessages(ctx, f.Project.ID, repository.MessageFilter{Since: &since, IncludeSpam: true, Status: "ignored"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "c@example.com", msgs[0].MessageID)

	msgs, total, err = repo.ListMessages(ctx, f.Project.ID, repository.MessageFilter{Limit: 1, Page: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, msgs, 1)
	assert.Equal(t, "a@example.com", msgs[0].MessageID)
}

func TestFindTaskByThreadAndCommentEmail(t *testing.T) {
	conn := dbtest.NewDB(t)
	ctx := context.Background()
	f := dbtest.Seed(t, conn, "tasks")
	other := dbtest.Seed(t, conn, "other")
	repo := repository.New(conn)

	thread := "<root@example.com>"
	task := model.Task{ProjectID: f.Project.ID, EmailThreadID: &thread, Title: "legacy"}
	require.NoError(t, repo.CreateTask(ctx, &task))

	found, err := repo.FindTaskByThread(ctx, f.Project.ID, []string{"root@example.com", "<root@example.com>"})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, task.ID, found.ID)

	found, err = repo.FindTaskByThread(ctx, other.Project.ID, []string{"root@example.com", "<root@example.com>"})
	require.NoError(t, err)
	assert.Nil(t, found)

	comment := model.TaskComment{TaskID: task.ID, Body: "reply"}
	require.NoError(t, repo.CreateComment(ctx, &comment))
	require.NoError(t, repo.MarkCommentSent(ctx, comment.ID, "<123.abc@inbox.example.com>"))

	found, err = repo.FindTaskByCommentEmail(ctx, f.Project.ID, []string{"123.abc@inbox.example.com", "<123.abc@inbox.example.com>"})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, task.ID, found.ID)
}

func TestUpsertMembershipsInTransaction(t *testing.T) {
	conn := dbtest.NewDB(t)
	ctx := context.Background()
	f := dbtest.Seed(t, conn, "members")
	repo := repository.New(conn)

	h, err := repo.ProjectHierarchy(ctx, f.Project.ID)
	require.NoError(t, err)
	assert.Equal(t, f.Organization.ID, h.OrganizationID)
	assert.Equal(t, f.Workspace.ID, h.WorkspaceID)

	for i := 0; i < 2; i++ {
		err := repo.Transaction(ctx, func(tx *repository.Repository) error {
			return tx.UpsertMemberships(ctx, f.Author.ID, h, model.RoleViewer)
		})
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, conn.Model(&model.ProjectMember{}).Where("user_id = ?", f.Author.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
	require.NoError(t, conn.Model(&model.OrganizationMember{}).Where("user_id = ?", f.Author.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
