// Package tools maps interpreter tool calls onto task operations.
package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"taskagent/internal/embeddings"
	"taskagent/internal/models"
	"taskagent/internal/services"
)

// RelatedFinder answers semantic queries scoped to one user.
type RelatedFinder interface {
	Related(ctx context.Context, userID, query string, topK int) ([]embeddings.Match, error)
}

// Call is one tool invocation requested by the interpreter.
type Call struct {
	ID   string
	Name string
	Args map[string]any
}

// Result is what a tool hands back to the interpreter. Text is always set;
// Err is set when the call failed.
type Result struct {
	CallID string
	Name   string
	Text   string
	Err    error
	// Ambiguous is set when a title reference matched several tasks.
	Ambiguous bool
	// Infra is set when the failure came from storage rather than from the
	// request itself.
	Infra bool
}

func (r Result) Failed() bool { return r.Err != nil }

type Registry struct {
	tasks    services.TaskService
	related  RelatedFinder
	topK     int
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewRegistry builds the tool set. related may be nil, in which case the
// semantic tools are not offered.
func NewRegistry(tasks services.TaskService, related RelatedFinder, topK int, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if topK <= 0 {
		topK = 3
	}
	return &Registry{
		tasks:    tasks,
		related:  related,
		topK:     topK,
		validate: newValidator(),
		logger:   logger,
		now:      time.Now,
	}
}

// Kinds lists the tools on offer in declaration order.
func (r *Registry) Kinds() []Kind {
	kinds := []Kind{KindCreateTask, KindFetchTasks, KindUpdateTask, KindDeleteTask, KindSearchTask}
	if r.related != nil {
		kinds = append(kinds, KindDeleteRelatedTask, KindSearchRelatedTasks)
	}
	return append(kinds, KindGetCurrentDate)
}

func (r *Registry) offers(kind Kind) bool {
	for _, k := range r.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// Execute runs call on behalf of userID. The user id never comes from the
// call arguments.
func (r *Registry) Execute(ctx context.Context, userID string, call Call) Result {
	res := Result{CallID: call.ID, Name: call.Name}
	res.Text, res.Err = r.run(ctx, userID, call)
	if res.Err == nil {
		return res
	}

	var amb *services.AmbiguousMatchError
	switch {
	case errors.As(res.Err, &amb):
		res.Ambiguous = true
		res.Text = ambiguity(amb.Query, amb.Matches)
	default:
		res.Infra = !isRequestError(res.Err)
		res.Text = "Error: " + res.Err.Error()
	}
	r.logger.Info("[tool][execute][fail]",
		zap.String("tool", call.Name),
		zap.String("user_id", userID),
		zap.Bool("infra", res.Infra),
		zap.Error(res.Err))
	return res
}

func isRequestError(err error) bool {
	var argErr *ArgumentError
	var unknown *UnknownToolError
	return errors.As(err, &argErr) || errors.As(err, &unknown) || services.IsDomainError(err)
}

// UnknownToolError is returned for a tool name that is not on offer.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string { return fmt.Sprintf("unknown tool %q", e.Name) }

func (r *Registry) run(ctx context.Context, userID string, call Call) (string, error) {
	kind := Kind(call.Name)
	if !r.offers(kind) {
		return "", &UnknownToolError{Name: call.Name}
	}
	args, err := decode(r.validate, kind, call.Args)
	if err != nil {
		return "", err
	}

	switch a := args.(type) {
	case *CreateTaskArgs:
		return r.create(ctx, userID, a)
	case *FetchTasksArgs:
		return r.fetch(ctx, userID, a)
	case *UpdateTaskArgs:
		return r.update(ctx, userID, a)
	case *DeleteTaskArgs:
		return r.delete(ctx, userID, a.ID)
	case *SearchTaskArgs:
		return r.searchTitle(ctx, userID, a.Query)
	case *DeleteRelatedTaskArgs:
		return r.deleteRelated(ctx, userID, a.Query)
	case *SearchRelatedTasksArgs:
		return r.searchRelated(ctx, userID, a.Query)
	case *GetCurrentDateArgs:
		return r.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"), nil
	}
	return "", &UnknownToolError{Name: call.Name}
}

func (r *Registry) create(ctx context.Context, userID string, a *CreateTaskArgs) (string, error) {
	in := services.CreateTaskInput{
		UserID:      userID,
		Title:       a.Title,
		Description: a.Description,
		Priority:    models.TaskPriority(a.Priority),
	}
	if a.DueDate != "" {
		due, _ := parseDate(a.DueDate)
		in.DueDate = &due
	}
	task, err := r.tasks.Create(ctx, in)
	if err != nil {
		return "", err
	}
	return "Task created: " + SummaryLine(*task), nil
}

func (r *Registry) fetch(ctx context.Context, userID string, a *FetchTasksArgs) (string, error) {
	filter := models.TaskFilter{UserID: &userID}
	if a.Status != "" {
		s := models.TaskStatus(a.Status)
		filter.Status = &s
	}
	if a.Priority != "" {
		p := models.TaskPriority(a.Priority)
		filter.Priority = &p
	}
	if a.Title != "" {
		filter.TitleContains = &a.Title
	}
	if a.CreatedDate != "" {
		from, to, _ := dayRange(a.CreatedDate)
		filter.CreatedFrom, filter.CreatedTo = &from, &to
	}
	if a.DueDate != "" {
		from, to, _ := dayRange(a.DueDate)
		filter.DueFrom, filter.DueTo = &from, &to
	}
	tasks, err := r.tasks.List(ctx, filter)
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return noTasksFound, nil
	}
	return bulletList(tasks), nil
}

func (r *Registry) update(ctx context.Context, userID string, a *UpdateTaskArgs) (string, error) {
	var ch services.TaskChanges
	if a.NewTitle != "" {
		ch.Title = &a.NewTitle
	}
	if a.Description != "" {
		ch.Description = &a.Description
	}
	if a.Priority != "" {
		p := models.TaskPriority(a.Priority)
		ch.Priority = &p
	}
	if a.Status != "" {
		s := models.TaskStatus(a.Status)
		ch.Status = &s
	}
	if a.DueDate != "" {
		due, _ := parseDate(a.DueDate)
		ch.DueDate = &due
	}
	task, err := r.tasks.Update(ctx, userID, services.TaskRef{ID: a.ID, Title: a.Title}, ch)
	if err != nil {
		return "", err
	}
	return "Task updated: " + SummaryLine(*task), nil
}

func (r *Registry) delete(ctx context.Context, userID, id string) (string, error) {
	task, err := r.tasks.Delete(ctx, userID, id)
	if err != nil {
		return "", err
	}
	return "Task deleted: " + SummaryLine(*task), nil
}

func (r *Registry) searchTitle(ctx context.Context, userID, query string) (string, error) {
	tasks, err := r.tasks.SearchByTitle(ctx, userID, query)
	if err != nil {
		return "", err
	}
	return titleHits(query, tasks), nil
}

// nearest logs index failures and reports them as no matches.
func (r *Registry) nearest(ctx context.Context, userID, query string, topK int) []embeddings.Match {
	matches, err := r.related.Related(ctx, userID, query, topK)
	if err != nil {
		r.logger.Warn("[tool][semantic][err]", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	return matches
}

func (r *Registry) searchRelated(ctx context.Context, userID, query string) (string, error) {
	return relatedHits(query, r.nearest(ctx, userID, query, r.topK)), nil
}

// deleteRelated removes the closest task that still exists. The index can
// briefly outlive a row, so stale hits fall through to the next match.
func (r *Registry) deleteRelated(ctx context.Context, userID, query string) (string, error) {
	for _, m := range r.nearest(ctx, userID, query, r.topK) {
		text, err := r.delete(ctx, userID, m.TaskID)
		if errors.Is(err, services.ErrTaskNotFound) {
			continue
		}
		return text, err
	}
	return noRelated(query), nil
}
