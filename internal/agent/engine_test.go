package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskagent/internal/guardrails"
	"taskagent/internal/models"
	"taskagent/internal/ratelimit"
	"taskagent/internal/repositories/repotest"
	"taskagent/internal/services"
	"taskagent/internal/tools"
)

// scriptedInterpreter replays steps in order and records every request.
type scriptedInterpreter struct {
	mu       sync.Mutex
	steps    []func(Request) (*Step, error)
	requests []Request
}

func (s *scriptedInterpreter) Interpret(_ context.Context, req Request) (*Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		return &Step{Text: "done"}, nil
	}
	next := s.steps[0]
	if len(s.steps) > 1 {
		s.steps = s.steps[1:]
	}
	return next(req)
}

func (s *scriptedInterpreter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func reply(text string) func(Request) (*Step, error) {
	return func(Request) (*Step, error) { return &Step{Text: text}, nil }
}

func callTool(name string, args map[string]any) func(Request) (*Step, error) {
	return func(Request) (*Step, error) {
		return &Step{Calls: []tools.Call{{ID: name, Name: name, Args: args}}}, nil
	}
}

type fixture struct {
	engine   *Engine
	interp   *scriptedInterpreter
	tasks    *repotest.TaskRepo
	messages *repotest.MessageRepo
	memory   services.ChatMemory
}

func newFixture(t *testing.T, policy ratelimit.Policy, steps ...func(Request) (*Step, error)) *fixture {
	t.Helper()
	f := &fixture{
		interp:   &scriptedInterpreter{steps: steps},
		tasks:    repotest.NewTaskRepo(),
		messages: repotest.NewMessageRepo(),
	}
	f.memory = services.NewChatMemory(f.messages, 50)
	registry := tools.NewRegistry(services.NewTaskService(f.tasks, nil, nil), nil, 3, nil)
	f.engine = NewEngine(f.interp, registry, f.memory, ratelimit.NewMemoryLimiter(), guardrails.New(nil), nil, Config{Policy: policy})
	return f
}

func turnError(t *testing.T, err error) *TurnError {
	t.Helper()
	var te *TurnError
	require.True(t, errors.As(err, &te), "want *TurnError, got %v", err)
	return te
}

func TestHandleTurnRequiresUser(t *testing.T) {
	f := newFixture(t, ratelimit.AgentPolicy)
	_, err := f.engine.HandleTurn(context.Background(), " ", "Show my tasks")
	te := turnError(t, err)
	assert.Equal(t, Unauthorized, te.Kind)
	assert.Equal(t, MsgUnauthorized, te.Message)
	assert.Zero(t, f.interp.calls())
}

func TestHandleTurnRateLimited(t *testing.T) {
	f := newFixture(t, ratelimit.Policy{Name: "agent", MaxRequests: 1, Window: time.Minute})
	_, err := f.engine.HandleTurn(context.Background(), "u1", "Show my tasks")
	require.NoError(t, err)

	_, err = f.engine.HandleTurn(context.Background(), "u1", "Show my tasks")
	te := turnError(t, err)
	assert.Equal(t, RateLimited, te.Kind)
	assert.Equal(t, MsgRateLimited, te.Message)
	assert.GreaterOrEqual(t, te.RetryAfterSeconds(), 1)
	assert.LessOrEqual(t, te.RetryAfterSeconds(), 60)

	// Other users keep their own budget.
	_, err = f.engine.HandleTurn(context.Background(), "u2", "Show my tasks")
	require.NoError(t, err)
}

func TestHandleTurnRejectsInjectionWithoutPersisting(t *testing.T) {
	f := newFixture(t, ratelimit.AgentPolicy)
	_, err := f.engine.HandleTurn(context.Background(), "u1", "'; DROP TABLE tasks; --")
	te := turnError(t, err)
	assert.Equal(t, BadInput, te.Kind)
	assert.Equal(t, guardrails.MsgInvalidInput, te.Message)
	assert.Zero(t, f.interp.calls())

	msgs, err := f.memory.GetMessages(context.Background(), "chat-u1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestHandleTurnCreatesTask(t *testing.T) {
	f := newFixture(t, ratelimit.AgentPolicy,
		callTool("create-task", map[string]any{"title": "Review PRs", "priority": "high", "dueDate": "2025-10-17"}),
		func(req Request) (*Step, error) {
			require.Len(t, req.Rounds, 1)
			return &Step{Text: "Done. " + req.Rounds[0].Results[0].Text}, nil
		},
	)
	res, err := f.engine.HandleTurn(context.Background(), "u1", "Create a high priority task to review PRs by Friday")
	require.NoError(t, err)
	assert.Contains(t, res.Text, "Task created: Review PRs")
	assert.Equal(t, 1, res.Rounds)

	all, _ := f.tasks.ListAll(context.Background())
	require.Len(t, all, 1)
	assert.Equal(t, "u1", all[0].UserID)
	assert.Equal(t, models.PriorityHigh, all[0].Priority)

	first := f.interp.requests[0]
	assert.Equal(t, SystemPrompt, first.System)
	assert.Equal(t, "Create a high priority task to review PRs by Friday", first.Input)
	assert.NotEmpty(t, first.Tools)

	msgs, err := f.memory.GetMessages(context.Background(), "chat-u1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, res.Text, msgs[1].Content)
}

func TestHandleTurnAmbiguityShortCircuits(t *testing.T) {
	f := newFixture(t, ratelimit.AgentPolicy,
		callTool("update-task", map[string]any{"title": "report", "status": "completed"}),
		reply("should not be reached"),
	)
	now := time.Now().UTC()
	for _, id := range []string{"t1", "t2"} {
		require.NoError(t, f.tasks.Store(context.Background(), &models.Task{
			ID: id, UserID: "u1", Title: "Report " + id,
			Priority: models.PriorityMedium, Status: models.StatusPending, CreatedAt: now, UpdatedAt: now,
		}))
	}

	res, err := f.engine.HandleTurn(context.Background(), "u1", "Mark the report task as completed")
	require.NoError(t, err)
	assert.True(t, res.Ambiguous)
	assert.Contains(t, res.Text, "t1 | Report t1")
	assert.Contains(t, res.Text, "t2 | Report t2")
	assert.Equal(t, 1, f.interp.calls())

	for _, id := range []string{"t1", "t2"} {
		got, _ := f.tasks.Get(id)
		assert.Equal(t, models.StatusPending, got.Status)
	}
}

func TestHandleTurnRoundLimit(t *testing.T) {
	f := newFixture(t, ratelimit.AgentPolicy, callTool("get-current-date", nil))
	res, err := f.engine.HandleTurn(context.Background(), "u1", "Show my tasks for today")
	require.NoError(t, err)
	assert.Equal(t, MsgRoundsExhausted, res.Text)
	assert.Equal(t, DefaultMaxRounds+1, f.interp.calls())

	msgs, _ := f.memory.GetMessages(context.Background(), "chat-u1")
	require.Len(t, msgs, 2)
	assert.Equal(t, MsgRoundsExhausted, msgs[1].Content)
}

func TestHandleTurnStoreFailureIsInternal(t *testing.T) {
	f := newFixture(t, ratelimit.AgentPolicy, callTool("fetch-tasks", nil), reply("unreachable"))
	f.tasks.Err = errors.New("connection refused")

	_, err := f.engine.HandleTurn(context.Background(), "u1", "Show my tasks")
	te := turnError(t, err)
	assert.Equal(t, Internal, te.Kind)
	assert.Equal(t, MsgInternal, te.Message)
	assert.NotContains(t, te.Message, "connection refused")
}

func TestHandleTurnDomainErrorGoesBackToInterpreter(t *testing.T) {
	f := newFixture(t, ratelimit.AgentPolicy,
		callTool("delete-task", map[string]any{"id": "missing"}),
		func(req Request) (*Step, error) {
			return &Step{Text: "I could not find it: " + req.Rounds[0].Results[0].Text}, nil
		},
	)
	res, err := f.engine.HandleTurn(context.Background(), "u1", "Delete task missing")
	require.NoError(t, err)
	assert.Contains(t, res.Text, "Error: ")
}

func TestHandleTurnRecoversPanics(t *testing.T) {
	f := newFixture(t, ratelimit.AgentPolicy, func(Request) (*Step, error) { panic("boom") })
	_, err := f.engine.HandleTurn(context.Background(), "u1", "Show my tasks")
	te := turnError(t, err)
	assert.Equal(t, Internal, te.Kind)
	assert.Equal(t, MsgInternal, te.Message)
}

func TestHandleTurnInterpreterFailureNotPersisted(t *testing.T) {
	f := newFixture(t, ratelimit.AgentPolicy, func(Request) (*Step, error) { return nil, errors.New("quota") })
	_, err := f.engine.HandleTurn(context.Background(), "u1", "Show my tasks")
	assert.Equal(t, Internal, turnError(t, err).Kind)

	msgs, _ := f.memory.GetMessages(context.Background(), "chat-u1")
	assert.Empty(t, msgs)
}

func TestHandleTurnRedactsOutput(t *testing.T) {
	f := newFixture(t, ratelimit.AgentPolicy, reply("I emailed alice@example.com about the task."))
	res, err := f.engine.HandleTurn(context.Background(), "u1", "Show my tasks")
	require.NoError(t, err)
	assert.NotContains(t, res.Text, "alice@example.com")
	assert.Contains(t, res.Text, "[EMAIL REDACTED]")
}

func TestHandleTurnHistoryAlternates(t *testing.T) {
	f := newFixture(t, ratelimit.AgentPolicy)
	const n = 5
	for i := 0; i < n; i++ {
		_, err := f.engine.HandleTurn(context.Background(), "u1", fmt.Sprintf("Show task number %d", i))
		require.NoError(t, err)
	}

	msgs, err := f.memory.GetMessages(context.Background(), "chat-u1")
	require.NoError(t, err)
	require.Len(t, msgs, 2*n)
	for i, m := range msgs {
		if i%2 == 0 {
			assert.Equal(t, models.RoleUser, m.Role)
			assert.True(t, strings.HasSuffix(m.Content, fmt.Sprint(i/2)))
		} else {
			assert.Equal(t, models.RoleAssistant, m.Role)
		}
	}

	// The latest request sees every earlier exchange.
	last := f.interp.requests[len(f.interp.requests)-1]
	assert.Len(t, last.History, 2*(n-1))
}
