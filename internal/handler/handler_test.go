package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-inbox-go/internal/correlate"
	"task-inbox-go/internal/credential"
	"task-inbox-go/internal/dbtest"
	"task-inbox-go/internal/handler"
	"task-inbox-go/internal/model"
	"task-inbox-go/internal/outbound"
	"task-inbox-go/internal/repository"
	"task-inbox-go/internal/scheduler"
	"task-inbox-go/internal/service"
)

type stubSyncer struct {
	err error
}

func (s *stubSyncer) TriggerProject(_ context.Context, projectID uint) (scheduler.Report, error) {
	if s.err != nil {
		return scheduler.Report{}, s.err
	}
	return scheduler.Report{JobID: "job-" + strconv.Itoa(int(projectID))}, nil
}

type stubScheduler struct {
	running bool
	runErr  error
	lastRun time.Time
}

func (s *stubScheduler) Start() error    { s.running = true; return nil }
func (s *stubScheduler) Stop() error     { s.running = false; return nil }
func (s *stubScheduler) IsRunning() bool { return s.running }
func (s *stubScheduler) RunOnce(context.Context) (scheduler.Report, error) {
	return scheduler.Report{JobID: "tick"}, s.runErr
}
func (s *stubScheduler) GetLastRun() time.Time { return s.lastRun }
func (s *stubScheduler) Status() scheduler.Status {
	return scheduler.Status{Running: s.running, IntervalMinutes: 5, NextRun: time.Now().Add(time.Minute)}
}

type noTransports struct{}

func (noTransports) ForAccount(context.Context, *model.EmailAccount) (outbound.Transport, error) {
	return nil, outbound.ErrTransport
}

type noReplies struct{}

func (noReplies) Reply(context.Context, outbound.ReplyRequest) (outbound.ReplyResult, error) {
	return outbound.ReplyResult{}, outbound.ErrTransport
}

type server struct {
	t      *testing.T
	engine *gin.Engine
	repo   *repository.Repository
	f      *dbtest.Fixture
	sched  *stubScheduler
	syncer *stubSyncer
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn := dbtest.NewDB(t)
	repo := repository.New(conn)
	cipher, err := credential.New("handler-test")
	require.NoError(t, err)

	s := &server{t: t, repo: repo, f: dbtest.Seed(t, conn, "api"), sched: &stubScheduler{running: true}, syncer: &stubSyncer{}}
	resolver := correlate.NewResolver(repo, correlate.NewProvisioner(repo))
	svc := service.New(repo, s.syncer, resolver, noReplies{}, noTransports{}, cipher)

	s.engine = gin.New()
	handler.NewHandlers(conn, svc, s.sched).SetupRoutes(s.engine)
	return s
}

func (s *server) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *server) project(suffix string) string {
	return "/api/v1/projects/" + strconv.Itoa(int(s.f.Project.ID)) + suffix
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var resp handler.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	s := newServer(t)
	w := s.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp handler.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "running", resp.Scheduler)
	assert.NotNil(t, resp.NextRun)
	assert.Nil(t, resp.LastRun)

	last := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	s.sched.lastRun = last
	w = s.do(http.MethodGet, "/healthz", nil)
	resp = handler.HealthResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.LastRun)
	assert.True(t, last.Equal(*resp.LastRun))
}

func TestTriggerSync(t *testing.T) {
	s := newServer(t)
	w := s.do(http.MethodPost, s.project("/sync"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report scheduler.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "job-"+strconv.Itoa(int(s.f.Project.ID)), report.JobID)

	s.syncer.err = scheduler.ErrSyncLocked
	w = s.do(http.MethodPost, s.project("/sync"), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	s.syncer.err = repository.ErrInboxNotFound
	w = s.do(http.MethodPost, "/api/v1/projects/999/sync", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w).Error)

	w = s.do(http.MethodPost, "/api/v1/projects/abc/sync", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_id", decodeError(t, w).Error)
}

func TestListMessages(t *testing.T) {
	s := newServer(t)
	msg := s.f.Message("hello@customer.com", time.Now())
	require.NoError(t, s.repo.CreateMessage(context.Background(), &msg))

	w := s.do(http.MethodGet, s.project("/messages?q=hello"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page service.MessagePage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.EqualValues(t, 1, page.Total)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "hello@customer.com", page.Messages[0].MessageID)

	w = s.do(http.MethodGet, s.project("/messages?since=yesterday"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/messages/"+strconv.Itoa(int(msg.ID)), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConvertMessage(t *testing.T) {
	s := newServer(t)
	msg := s.f.Message("convert@customer.com", time.Now())
	require.NoError(t, s.repo.CreateMessage(context.Background(), &msg))
	path := "/api/v1/messages/" + strconv.Itoa(int(msg.ID)) + "/convert"

	w := s.do(http.MethodPost, path, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, path, handler.ConvertRequest{UserID: s.f.Author.ID})
	require.Equal(t, http.StatusOK, w.Code)
	var task model.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
	assert.NotZero(t, task.ID)
}

func TestRuleEndpoints(t *testing.T) {
	s := newServer(t)

	valid := map[string]interface{}{
		"name":       "urgent",
		"priority":   10,
		"conditions": map[string]string{"field": "subject", "operator": "contains", "value": "urgent"},
		"actions":    []map[string]interface{}{{"type": "setPriority", "value": "high"}},
	}
	w := s.do(http.MethodPost, s.project("/rules"), valid)
	require.Equal(t, http.StatusCreated, w.Code)
	var rule model.InboxRule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rule))
	assert.True(t, rule.Enabled)

	invalid := map[string]interface{}{
		"name":       "broken",
		"conditions": map[string]string{"field": "nope", "operator": "contains", "value": "x"},
		"actions":    []map[string]interface{}{{"type": "setPriority", "value": "high"}},
	}
	w = s.do(http.MethodPost, s.project("/rules"), invalid)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decodeError(t, w).Error)

	rulePath := "/api/v1/rules/" + strconv.Itoa(int(rule.ID))
	w = s.do(http.MethodPatch, rulePath+"/disable", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rule))
	assert.False(t, rule.Enabled)

	w = s.do(http.MethodGet, s.project("/rules"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.InboxRule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = s.do(http.MethodDelete, rulePath, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, rulePath, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendCommentWithoutThread(t *testing.T) {
	s := newServer(t)
	task := &model.Task{ProjectID: s.f.Project.ID, Title: "manual", AllowEmailReplies: true}
	require.NoError(t, s.repo.CreateTask(context.Background(), task))
	comment := &model.TaskComment{TaskID: task.ID, Body: "hi"}
	require.NoError(t, s.repo.CreateComment(context.Background(), comment))

	w := s.do(http.MethodPost, "/api/v1/comments/"+strconv.Itoa(int(comment.ID))+"/send", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAccountEndpoints(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodGet, s.project("/account"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status service.AccountStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, s.f.Account.ID, status.AccountID)

	w = s.do(http.MethodPut, s.project("/account"), service.AccountInput{EmailAddress: "x@example.com", Provider: "pop3"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, s.project("/account"), service.AccountInput{
		EmailAddress: "x@example.com", IMAPHost: "imap.example.com", IMAPPort: 993, IMAPPassword: "pw", Enabled: true,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "pw\"")

	w = s.do(http.MethodPost, s.project("/account/verify"), nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestSchedulerEndpoints(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodPost, "/api/v1/scheduler/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, s.sched.running)

	w = s.do(http.MethodGet, "/api/v1/scheduler/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st scheduler.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.False(t, st.Running)

	w = s.do(http.MethodPost, "/api/v1/scheduler/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, s.sched.running)

	w = s.do(http.MethodPost, "/api/v1/scheduler/run-once", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	s.sched.runErr = scheduler.ErrSyncInProgress
	w = s.do(http.MethodPost, "/api/v1/scheduler/run-once", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}
