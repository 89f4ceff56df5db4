package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"task-inbox-go/internal/scheduler"
)

type recorder struct {
	served    int
	migrated  int
	projectID *uint
	syncErr   error
}

func (r *recorder) actions() Actions {
	return Actions{
		Serve: func() error { r.served++; return nil },
		Sync: func(_ context.Context, projectID uint) (scheduler.Report, error) {
			r.projectID = &projectID
			return scheduler.Report{JobID: "job-1", Accounts: []scheduler.AccountReport{{AccountID: 3, Ingested: 2}}}, r.syncErr
		},
		Migrate: func() error { r.migrated++; return nil },
	}
}

func run(t *testing.T, r *recorder, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(r.actions())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestServeIsDefault(t *testing.T) {
	r := &recorder{}
	_, err := run(t, r)
	require.NoError(t, err)
	_, err = run(t, r, "serve")
	require.NoError(t, err)
	assert.Equal(t, 2, r.served)
}

func TestSyncPrintsReport(t *testing.T) {
	r := &recorder{}
	out, err := run(t, r, "sync", "--project", "42")
	require.NoError(t, err)
	require.NotNil(t, r.projectID)
	assert.EqualValues(t, 42, *r.projectID)

	var report scheduler.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "job-1", report.JobID)
	require.Len(t, report.Accounts, 1)
	assert.Equal(t, 2, report.Accounts[0].Ingested)

	_, err = run(t, r, "sync")
	require.NoError(t, err)
	assert.EqualValues(t, 0, *r.projectID)
}

func TestSyncFailure(t *testing.T) {
	r := &recorder{syncErr: errors.New("inbox not found")}
	_, err := run(t, r, "sync", "--project", "7")
	assert.EqualError(t, err, "inbox not found")

	_, err = run(t, r, "sync", "--project", "x")
	assert.Error(t, err)
}

func TestMigrate(t *testing.T) {
	r := &recorder{}
	out, err := run(t, r, "migrate")
	require.NoError(t, err)
	assert.Equal(t, 1, r.migrated)
	assert.Contains(t, out, "migrations applied")
}

func TestGmailTokenExchangesCode(t *testing.T) {
	var gotCode string
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotCode = r.PostForm.Get("code")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer","refresh_token":"rt-123","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	r := &recorder{}
	actions := r.actions()
	actions.GmailOAuth = func() (*oauth2.Config, error) {
		return &oauth2.Config{
			ClientID:     "client",
			ClientSecret: "secret",
			Endpoint:     oauth2.Endpoint{AuthURL: tokenServer.URL + "/auth", TokenURL: tokenServer.URL + "/token"},
			RedirectURL:  "http://localhost:8080/callback",
		}, nil
	}

	cmd := NewRootCommand(actions)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("code-abc\n"))
	cmd.SetArgs([]string{"gmail-token"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "code-abc", gotCode)
	assert.Contains(t, out.String(), tokenServer.URL+"/auth?")
	assert.Contains(t, out.String(), "access_type=offline")
	assert.Contains(t, out.String(), "Refresh Token: rt-123")

	cmd = NewRootCommand(actions)
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("\n"))
	cmd.SetArgs([]string{"gmail-token"})
	assert.Error(t, cmd.Execute())
}
