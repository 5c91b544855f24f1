package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskagent/internal/agent"
	"taskagent/internal/middleware"
	"taskagent/internal/models"
	"taskagent/internal/pdf"
	"taskagent/internal/repositories"
	"taskagent/internal/repositories/repotest"
	"taskagent/internal/services"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeEngine struct {
	mu    sync.Mutex
	res   *agent.TurnResult
	err   error
	turns []string
}

func (f *fakeEngine) HandleTurn(_ context.Context, userID, content string) (*agent.TurnResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, userID+":"+content)
	return f.res, f.err
}

// asUser stands in for the auth middleware.
func asUser(id string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id != "" {
			c.Set(middleware.UserIDKey, id)
		}
		c.Next()
	}
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func chatRouter(user string, engine TurnHandler, memory services.ChatMemory) *gin.Engine {
	h := NewChatHandler(engine, memory, nil)
	r := gin.New()
	r.Use(asUser(user))
	r.POST("/agents/task", h.Send)
	r.GET("/messages", h.History)
	r.DELETE("/messages", h.Clear)
	return r
}

func TestAgentTaskSuccess(t *testing.T) {
	engine := &fakeEngine{res: &agent.TurnResult{Text: "Task created: Buy milk"}}
	r := chatRouter("u1", engine, services.NewChatMemory(repotest.NewMessageRepo(), 50))

	w := do(r, http.MethodPost, "/agents/task", map[string]string{"input": "Create a task to buy milk"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"result":"Task created: Buy milk"}`, w.Body.String())
	assert.Equal(t, []string{"u1:Create a task to buy milk"}, engine.turns)
}

func TestAgentTaskErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"bad input", &agent.TurnError{Kind: agent.BadInput, Message: "Please enter a message."}, http.StatusBadRequest, `{"error":"Please enter a message."}`},
		{"unauthorized", &agent.TurnError{Kind: agent.Unauthorized, Message: agent.MsgUnauthorized}, http.StatusUnauthorized, `{"error":"Unauthorized"}`},
		{"rate limited", &agent.TurnError{Kind: agent.RateLimited, Message: agent.MsgRateLimited, RetryAfter: 42 * time.Second}, http.StatusTooManyRequests, `{"error":"Rate limit exceeded. Please try again later.","retryAfter":42}`},
		{"internal", &agent.TurnError{Kind: agent.Internal, Message: agent.MsgInternal, Err: errors.New("db password wrong")}, http.StatusInternalServerError, `{"error":"Internal server error"}`},
		{"untyped", errors.New("boom"), http.StatusInternalServerError, `{"error":"Internal server error"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chatRouter("u1", &fakeEngine{err: tt.err}, nil)
			w := do(r, http.MethodPost, "/agents/task", map[string]string{"input": "x"})
			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
			if tt.status == http.StatusTooManyRequests {
				assert.Equal(t, "42", w.Header().Get("Retry-After"))
			}
		})
	}
}

func TestAgentTaskRequiresUser(t *testing.T) {
	engine := &fakeEngine{res: &agent.TurnResult{}}
	w := do(chatRouter("", engine, nil), http.MethodPost, "/agents/task", map[string]string{"input": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, engine.turns)
}

func TestAgentTaskBadBody(t *testing.T) {
	r := chatRouter("u1", &fakeEngine{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/agents/task", strings.NewReader("{"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMessagesHistoryAndClear(t *testing.T) {
	memory := services.NewChatMemory(repotest.NewMessageRepo(), 50)
	ctx := context.Background()
	require.NoError(t, memory.AppendTurn(ctx, "chat-u1", "hello", "hi there"))
	require.NoError(t, memory.AppendTurn(ctx, "chat-u2", "other", "user"))
	r := chatRouter("u1", &fakeEngine{}, memory)

	w := do(r, http.MethodGet, "/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var msgs []models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)

	w = do(r, http.MethodDelete, "/messages", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, http.MethodGet, "/messages", nil)
	assert.JSONEq(t, `[]`, w.Body.String())

	left, err := memory.GetMessages(ctx, "chat-u2")
	require.NoError(t, err)
	assert.Len(t, left, 2)
}

func newTaskRepo() *repotest.TaskRepo {
	now := time.Date(2025, 10, 12, 9, 0, 0, 0, time.UTC)
	past := now.Add(-72 * time.Hour)
	return repotest.NewTaskRepo(
		models.Task{ID: "a", UserID: "u1", Title: "Write report", Priority: models.PriorityHigh, Status: models.StatusPending, CreatedAt: now, UpdatedAt: now},
		models.Task{ID: "b", UserID: "u1", Title: "Old chore", Priority: models.PriorityLow, Status: models.StatusPending, CreatedAt: past, UpdatedAt: past, DueDate: &past},
		models.Task{ID: "c", UserID: "u2", Title: "Not mine", Priority: models.PriorityHigh, Status: models.StatusPending, CreatedAt: now, UpdatedAt: now},
	)
}

func TestListTasks(t *testing.T) {
	svc := services.NewTaskService(newTaskRepo(), nil, nil)
	h := NewTaskHandler(svc, nil)
	r := gin.New()
	r.Use(asUser("u1"))
	r.GET("/tasks", h.List)

	w := do(r, http.MethodGet, "/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tasks []models.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tasks))
	require.Len(t, tasks, 2)

	w = do(r, http.MethodGet, "/tasks?status=over_due", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "b", tasks[0].ID)

	w = do(r, http.MethodGet, "/tasks?priority=high&created_date=2025-10-12", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "a", tasks[0].ID)

	for _, q := range []string{"status=done", "priority=urgent", "due_date=tomorrow"} {
		w = do(r, http.MethodGet, "/tasks?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

type stubPDF struct {
	got pdf.TaskReportData
	err error
}

func (s *stubPDF) GenerateTaskReport(w io.Writer, data pdf.TaskReportData) error {
	s.got = data
	if s.err != nil {
		return s.err
	}
	_, err := io.WriteString(w, "%PDF-stub")
	return err
}

func TestTaskReport(t *testing.T) {
	gen := &stubPDF{}
	h := NewReportHandler(services.NewTaskService(newTaskRepo(), nil, nil), gen, nil)
	r := gin.New()
	r.Use(asUser("u1"))
	r.GET("/tasks/report.pdf", h.TaskReport)

	w := do(r, http.MethodGet, "/tasks/report.pdf?priority=high", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment;")
	assert.Equal(t, "%PDF-stub", w.Body.String())
	assert.Equal(t, map[string]string{"priority": "high"}, gen.got.Filters)
	require.Len(t, gen.got.Tasks, 1)
	assert.Equal(t, "a", gen.got.Tasks[0].ID)

	gen.err = errors.New("font missing")
	w = do(r, http.MethodGet, "/tasks/report.pdf", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "font missing")
}

type sentChat struct {
	chatID int64
	text   string
}

type fakeSender struct {
	sent []sentChat
}

func (f *fakeSender) SendMessage(chatID int64, text string) error {
	f.sent = append(f.sent, sentChat{chatID, text})
	return nil
}

func (f *fakeSender) last() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].text
}

type fakeLinks struct {
	codes map[string]string // code -> user id
}

func (f *fakeLinks) Create(_ context.Context, userID, code string, ttl time.Duration) (*models.TelegramLink, error) {
	f.codes[code] = userID
	return &models.TelegramLink{UserID: userID, Code: code, ExpiresAt: time.Now().Add(ttl)}, nil
}

func (f *fakeLinks) UseByCode(_ context.Context, code string) (*models.TelegramLink, error) {
	userID, ok := f.codes[code]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	delete(f.codes, code)
	return &models.TelegramLink{UserID: userID, Code: code, Used: true}, nil
}

type chatUsers struct {
	byChat map[int64]string
}

func (u *chatUsers) GetByID(context.Context, string) (*models.User, error) {
	return nil, repositories.ErrNotFound
}
func (u *chatUsers) ListNotifiable(context.Context) ([]models.User, error) { return nil, nil }

func (u *chatUsers) UpdateTelegramChat(_ context.Context, userID string, chatID int64) error {
	u.byChat[chatID] = userID
	return nil
}

func (u *chatUsers) GetByChatID(_ context.Context, chatID int64) (*models.User, error) {
	id, ok := u.byChat[chatID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &models.User{ID: id}, nil
}

func update(chatID int64, text string) map[string]any {
	return map[string]any{
		"update_id": 1,
		"message": map[string]any{
			"message_id": 1,
			"date":       0,
			"text":       text,
			"chat":       map[string]any{"id": chatID, "type": "private"},
		},
	}
}

const hookSecret = "hook_secret-1"

// hook posts a webhook update signed with secret.
func hook(r http.Handler, path, secret string, body any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(TelegramSecretHeader, secret)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTelegramLinkFlow(t *testing.T) {
	sender := &fakeSender{}
	links := &fakeLinks{codes: map[string]string{}}
	users := &chatUsers{byChat: map[int64]string{}}
	engine := &fakeEngine{res: &agent.TurnResult{Text: "You have 2 tasks."}}
	h := NewIntegrationsHandler(hookSecret, sender, links, users, engine, nil)

	r := gin.New()
	r.POST("/integrations/telegram/webhook", h.Webhook)
	authed := r.Group("/", asUser("u1"))
	authed.POST("/integrations/telegram/request-link", h.RequestTelegramLink)

	// Unlinked chats are told to link first.
	w := hook(r, "/integrations/telegram/webhook", hookSecret, update(77, "show my tasks"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tgNotLinked, sender.last())
	assert.Empty(t, engine.turns)

	w = do(r, http.MethodPost, "/integrations/telegram/request-link", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var link linkCodeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &link))
	assert.Len(t, link.Code, 32)

	hook(r, "/integrations/telegram/webhook", hookSecret, update(77, "/link 1234"))
	assert.Equal(t, tgBadCode, sender.last())

	hook(r, "/integrations/telegram/webhook", hookSecret, update(77, "/link "+strings.ToLower(link.Code)))
	assert.Equal(t, tgLinked, sender.last())
	assert.Equal(t, "u1", users.byChat[77])

	// Codes are single use.
	hook(r, "/integrations/telegram/webhook", hookSecret, update(78, "/link "+link.Code))
	assert.Equal(t, tgCodeExpired, sender.last())

	hook(r, "/integrations/telegram/webhook", hookSecret, update(77, "show my tasks"))
	assert.Equal(t, "You have 2 tasks.", sender.last())
	assert.Equal(t, []string{"u1:show my tasks"}, engine.turns)

	engine.res, engine.err = nil, &agent.TurnError{Kind: agent.RateLimited, Message: agent.MsgRateLimited}
	hook(r, "/integrations/telegram/webhook", hookSecret, update(77, "show my tasks"))
	assert.Equal(t, agent.MsgRateLimited, sender.last())
}

func TestTelegramWebhookIgnoresJunk(t *testing.T) {
	sender := &fakeSender{}
	h := NewIntegrationsHandler(hookSecret, sender, &fakeLinks{codes: map[string]string{}}, &chatUsers{byChat: map[int64]string{}}, &fakeEngine{}, nil)
	r := gin.New()
	r.POST("/hook", h.Webhook)

	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader("not json"))
	req.Header.Set(TelegramSecretHeader, hookSecret)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = hook(r, "/hook", hookSecret, map[string]any{"update_id": 2})
	assert.Equal(t, http.StatusOK, w.Code)

	hook(r, "/hook", hookSecret, update(5, "/start"))
	assert.Equal(t, tgWelcome, sender.last())
}

func TestTelegramWebhookRejectsUnsignedUpdates(t *testing.T) {
	sender := &fakeSender{}
	links := &fakeLinks{codes: map[string]string{"0123456789ABCDEF0123456789ABCDEF": "attacker"}}
	users := &chatUsers{byChat: map[int64]string{77: "victim"}}
	engine := &fakeEngine{res: &agent.TurnResult{Text: "Task deleted: Write report"}}
	r := gin.New()
	r.POST("/hook", NewIntegrationsHandler(hookSecret, sender, links, users, engine, nil).Webhook)

	for _, secret := range []string{"", "hook_secret-2", hookSecret + "x"} {
		w := hook(r, "/hook", secret, update(77, "delete the report task"))
		assert.Equal(t, http.StatusUnauthorized, w.Code, secret)

		w = hook(r, "/hook", secret, update(99, "/link 0123456789ABCDEF0123456789ABCDEF"))
		assert.Equal(t, http.StatusUnauthorized, w.Code, secret)
	}
	assert.Empty(t, engine.turns)
	assert.Empty(t, sender.sent)
	assert.Equal(t, "victim", users.byChat[77])
	_, rebound := users.byChat[99]
	assert.False(t, rebound)

	// A handler without a configured secret accepts nothing.
	open := gin.New()
	open.POST("/hook", NewIntegrationsHandler("", sender, links, users, engine, nil).Webhook)
	assert.Equal(t, http.StatusUnauthorized, hook(open, "/hook", "", update(77, "show my tasks")).Code)
	assert.Empty(t, engine.turns)
}
