// Package agent runs one conversational turn: it checks the caller, lets the
// interpreter pick tools, executes them and records the exchange.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"taskagent/internal/guardrails"
	"taskagent/internal/models"
	"taskagent/internal/ratelimit"
	"taskagent/internal/services"
	"taskagent/internal/tools"
)

const (
	DefaultMaxRounds = 6
	persistTimeout   = 5 * time.Second
)

// Round is one batch of tool calls and what they returned.
type Round struct {
	Calls   []tools.Call
	Results []tools.Result
}

type Request struct {
	System  string
	History []models.Message
	Input   string
	Tools   []tools.Declaration
	// Rounds already executed in this turn, oldest first.
	Rounds []Round
}

// Step is the interpreter's decision: either tool calls or a final answer.
type Step struct {
	Calls []tools.Call
	Text  string
}

type Interpreter interface {
	Interpret(ctx context.Context, req Request) (*Step, error)
}

type ToolSet interface {
	Declarations() []tools.Declaration
	Execute(ctx context.Context, userID string, call tools.Call) tools.Result
}

type TurnResult struct {
	Text      string
	Ambiguous bool
	Rounds    int
}

type Config struct {
	MaxRounds   int
	TurnTimeout time.Duration
	Policy      ratelimit.Policy
}

type Engine struct {
	interpreter Interpreter
	tools       ToolSet
	memory      services.ChatMemory
	limiter     ratelimit.Limiter
	guard       *guardrails.Guard
	logger      *zap.Logger
	cfg         Config
}

func NewEngine(interpreter Interpreter, toolset ToolSet, memory services.ChatMemory, limiter ratelimit.Limiter, guard *guardrails.Guard, logger *zap.Logger, cfg Config) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if guard == nil {
		guard = guardrails.New(logger)
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.Policy.MaxRequests == 0 {
		cfg.Policy = ratelimit.AgentPolicy
	}
	return &Engine{
		interpreter: interpreter,
		tools:       toolset,
		memory:      memory,
		limiter:     limiter,
		guard:       guard,
		logger:      logger,
		cfg:         cfg,
	}
}

// HandleTurn answers one user message. Errors are always *TurnError.
func (e *Engine) HandleTurn(ctx context.Context, userID, content string) (*TurnResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, &TurnError{Kind: Unauthorized, Message: MsgUnauthorized}
	}

	rl, err := e.limiter.Check(ctx, e.cfg.Policy.Key(userID), e.cfg.Policy)
	if err != nil {
		e.logger.Error("[agent][ratelimit][err]", zap.String("user_id", userID), zap.Error(err))
		return nil, internalError(fmt.Errorf("rate limit check: %w", err))
	}
	if !rl.Success {
		e.logger.Info("[agent][ratelimit] rejected", zap.String("user_id", userID))
		return nil, &TurnError{Kind: RateLimited, Message: MsgRateLimited, RetryAfter: rl.RetryAfter(time.Now())}
	}

	if e.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.TurnTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := e.protectedTurn(ctx, userID, content)
	if err != nil {
		return nil, err
	}
	e.logger.Info("[agent][turn]",
		zap.String("user_id", userID),
		zap.Int("rounds", res.Rounds),
		zap.Bool("ambiguous", res.Ambiguous),
		zap.Duration("took", time.Since(start)))
	return res, nil
}

func (e *Engine) protectedTurn(ctx context.Context, userID, content string) (res *TurnResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("[agent][turn][panic]", zap.String("user_id", userID), zap.Any("panic", r), zap.Stack("stack"))
			res, err = nil, internalError(fmt.Errorf("panic: %v", r))
		}
	}()
	return e.turn(ctx, userID, content)
}

func (e *Engine) turn(ctx context.Context, userID, content string) (*TurnResult, error) {
	in := e.guard.ApplyInputGuardrails(content)
	if !in.Passed {
		return nil, &TurnError{Kind: BadInput, Message: in.Message}
	}

	chatID := models.ChatIDForUser(userID)
	history, err := e.memory.GetMessages(ctx, chatID)
	if err != nil {
		e.logger.Error("[agent][history][err]", zap.String("chat_id", chatID), zap.Error(err))
		return nil, internalError(fmt.Errorf("load history: %w", err))
	}

	res, err := e.resolve(ctx, userID, Request{
		System:  SystemPrompt,
		History: history,
		Input:   in.SanitizedInput,
		Tools:   e.tools.Declarations(),
	})
	if err != nil {
		return nil, err
	}
	res.Text = e.guard.ApplyOutputGuardrails(res.Text)

	// The exchange is recorded even if the client went away mid-turn.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := e.memory.AppendTurn(pctx, chatID, in.SanitizedInput, res.Text); err != nil {
		e.logger.Error("[agent][persist][err]", zap.String("chat_id", chatID), zap.Error(err))
		return nil, internalError(fmt.Errorf("persist turn: %w", err))
	}
	return res, nil
}

// resolve runs interpretation rounds until the interpreter answers in text,
// a tool reports an ambiguous reference or the round budget runs out.
func (e *Engine) resolve(ctx context.Context, userID string, req Request) (*TurnResult, error) {
	for round := 0; ; round++ {
		step, err := e.interpreter.Interpret(ctx, req)
		if err != nil {
			e.logger.Error("[agent][interpret][err]", zap.String("user_id", userID), zap.Int("round", round), zap.Error(err))
			return nil, internalError(fmt.Errorf("interpret: %w", err))
		}
		if len(step.Calls) == 0 {
			return &TurnResult{Text: step.Text, Rounds: round}, nil
		}
		if round == e.cfg.MaxRounds {
			e.logger.Warn("[agent][turn] tool round limit reached", zap.String("user_id", userID), zap.Int("rounds", round))
			return &TurnResult{Text: MsgRoundsExhausted, Rounds: round}, nil
		}

		results := make([]tools.Result, 0, len(step.Calls))
		infraOnly := true
		for _, call := range step.Calls {
			r := e.tools.Execute(ctx, userID, call)
			if r.Ambiguous {
				return &TurnResult{Text: r.Text, Ambiguous: true, Rounds: round + 1}, nil
			}
			if !r.Infra {
				infraOnly = false
			}
			results = append(results, r)
		}
		if infraOnly {
			return nil, internalError(fmt.Errorf("round %d: %w", round, results[0].Err))
		}
		req.Rounds = append(req.Rounds, Round{Calls: step.Calls, Results: results})
	}
}
