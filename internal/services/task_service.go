package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskagent/internal/models"
	"taskagent/internal/repositories"
)

var (
	ErrTaskNotFound            = errors.New("task not found")
	ErrNothingToUpdate         = errors.New("nothing to update")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrEmptyTitle              = errors.New("title is required")
	ErrMissingReference        = errors.New("either id or title is required")
	ErrInvalidValue            = errors.New("invalid value")
)

// IsDomainError reports whether err is a rule violation the caller can act
// on, as opposed to an infrastructure failure.
func IsDomainError(err error) bool {
	var amb *AmbiguousMatchError
	var none *NoMatchError
	switch {
	case errors.As(err, &amb), errors.As(err, &none):
		return true
	}
	for _, target := range []error{ErrTaskNotFound, ErrNothingToUpdate, ErrInvalidStatusTransition,
		ErrEmptyTitle, ErrMissingReference, ErrInvalidValue} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// AmbiguousMatchError is returned when a title reference matches more than
// one task. No task is modified.
type AmbiguousMatchError struct {
	Query   string
	Matches []models.Task
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("%d tasks match %q", len(e.Matches), e.Query)
}

// NoMatchError is returned when a title reference matches nothing.
type NoMatchError struct {
	Query string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no task found matching %q", e.Query)
}

func (e *NoMatchError) Is(target error) bool { return target == ErrTaskNotFound }

// TaskIndexer receives task mutations for the semantic index. Calls must not
// block.
type TaskIndexer interface {
	EnqueueUpsert(task models.Task)
	EnqueueDelete(taskID string)
}

type CreateTaskInput struct {
	UserID      string
	Title       string
	Description string
	Priority    models.TaskPriority
	DueDate     *time.Time
}

// TaskRef points at a task either by id or by a title fragment. ID wins
// when both are set.
type TaskRef struct {
	ID    string
	Title string
}

// TaskChanges carries the fields an update sets. Nil means unchanged.
type TaskChanges struct {
	Title       *string
	Description *string
	Priority    *models.TaskPriority
	Status      *models.TaskStatus
	DueDate     *time.Time
}

func (c TaskChanges) empty() bool {
	return c.Title == nil && c.Description == nil && c.Priority == nil && c.Status == nil && c.DueDate == nil
}

type TaskService interface {
	Create(ctx context.Context, in CreateTaskInput) (*models.Task, error)
	GetByID(ctx context.Context, userID, id string) (*models.Task, error)
	// List runs the overdue sweep for filter.UserID before querying.
	List(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
	Update(ctx context.Context, userID string, ref TaskRef, changes TaskChanges) (*models.Task, error)
	Delete(ctx context.Context, userID, id string) (*models.Task, error)
	SearchByTitle(ctx context.Context, userID, query string) ([]models.Task, error)

	ListDueForDeadline(ctx context.Context, window time.Duration) ([]models.Task, error)
	MarkDeadlineNotified(ctx context.Context, id string) error
	ListAll(ctx context.Context) ([]models.Task, error)
}

type taskService struct {
	repo    repositories.TaskRepository
	indexer TaskIndexer
	logger  *zap.Logger
	now     func() time.Time
}

// NewTaskService builds the task gateway. indexer may be nil when the
// semantic index is disabled.
func NewTaskService(repo repositories.TaskRepository, indexer TaskIndexer, logger *zap.Logger) TaskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &taskService{repo: repo, indexer: indexer, logger: logger, now: time.Now}
}

func (s *taskService) Create(ctx context.Context, in CreateTaskInput) (*models.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, fmt.Errorf("%w: priority %q", ErrInvalidValue, in.Priority)
	}

	now := s.now().UTC()
	task := &models.Task{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		Title:       title,
		Description: in.Description,
		Priority:    in.Priority,
		Status:      models.StatusPending,
		DueDate:     in.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Store(ctx, task); err != nil {
		s.logger.Error("[task][create][err]", zap.String("user_id", in.UserID), zap.Error(err))
		return nil, fmt.Errorf("store task: %w", err)
	}
	s.logger.Info("[task][create]", zap.String("user_id", in.UserID), zap.String("task_id", task.ID))
	s.index(*task)
	return task, nil
}

func (s *taskService) GetByID(ctx context.Context, userID, id string) (*models.Task, error) {
	task, err := s.repo.FindByID(ctx, userID, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	return task, err
}

func (s *taskService) List(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	if filter.UserID != nil {
		if err := s.sweep(ctx, *filter.UserID); err != nil {
			return nil, err
		}
	}
	tasks, err := s.repo.FindAll(ctx, filter)
	if err != nil {
		s.logger.Error("[task][fetch][err]", zap.Error(err))
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (s *taskService) sweep(ctx context.Context, userID string) error {
	marked, err := s.repo.MarkOverdue(ctx, userID, s.now().UTC())
	if err != nil {
		s.logger.Error("[task][sweep][err]", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("overdue sweep: %w", err)
	}
	if len(marked) > 0 {
		s.logger.Info("[task][sweep]", zap.String("user_id", userID), zap.Int("marked", len(marked)))
	}
	for _, t := range marked {
		s.index(t)
	}
	return nil
}

func (s *taskService) resolve(ctx context.Context, userID string, ref TaskRef) (*models.Task, error) {
	if ref.ID != "" {
		return s.GetByID(ctx, userID, ref.ID)
	}
	query := strings.TrimSpace(ref.Title)
	if query == "" {
		return nil, ErrMissingReference
	}
	matches, err := s.repo.FindAll(ctx, models.TaskFilter{UserID: &userID, TitleContains: &query})
	if err != nil {
		return nil, fmt.Errorf("resolve task by title: %w", err)
	}
	switch len(matches) {
	case 0:
		return nil, &NoMatchError{Query: query}
	case 1:
		return &matches[0], nil
	default:
		return nil, &AmbiguousMatchError{Query: query, Matches: matches}
	}
}

func (s *taskService) Update(ctx context.Context, userID string, ref TaskRef, ch TaskChanges) (*models.Task, error) {
	task, err := s.resolve(ctx, userID, ref)
	if err != nil {
		return nil, err
	}
	if ch.empty() {
		return nil, ErrNothingToUpdate
	}

	changed := false
	if ch.Title != nil {
		title := strings.TrimSpace(*ch.Title)
		if title == "" {
			return nil, ErrEmptyTitle
		}
		if title != task.Title {
			task.Title = title
			changed = true
		}
	}
	if ch.Description != nil && *ch.Description != task.Description {
		task.Description = *ch.Description
		changed = true
	}
	if ch.Priority != nil && *ch.Priority != task.Priority {
		if !ch.Priority.Valid() {
			return nil, fmt.Errorf("%w: priority %q", ErrInvalidValue, *ch.Priority)
		}
		task.Priority = *ch.Priority
		changed = true
	}
	if ch.DueDate != nil && (task.DueDate == nil || !task.DueDate.Equal(*ch.DueDate)) {
		due := ch.DueDate.UTC()
		task.DueDate = &due
		task.DeadlineNotified = false
		changed = true
	}
	if ch.Status != nil && *ch.Status != task.Status {
		if err := s.checkTransition(task, *ch.Status); err != nil {
			return nil, err
		}
		task.Status = *ch.Status
		changed = true
	}
	if !changed {
		return nil, ErrNothingToUpdate
	}

	task.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, task); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		s.logger.Error("[task][update][err]", zap.String("task_id", task.ID), zap.Error(err))
		return nil, fmt.Errorf("update task: %w", err)
	}
	s.logger.Info("[task][update]", zap.String("user_id", userID), zap.String("task_id", task.ID))
	s.index(*task)
	return task, nil
}

func (s *taskService) checkTransition(task *models.Task, to models.TaskStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidValue, to)
	}
	if !canTransition(task.Status, to, TaskTransitions) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, task.Status, to)
	}
	if to == models.StatusOverDue && (task.DueDate == nil || !task.DueDate.Before(s.now())) {
		return fmt.Errorf("%w: task is not past its due date", ErrInvalidStatusTransition)
	}
	return nil
}

func (s *taskService) Delete(ctx context.Context, userID, id string) (*models.Task, error) {
	task, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		s.logger.Error("[task][delete][err]", zap.String("task_id", id), zap.Error(err))
		return nil, fmt.Errorf("delete task: %w", err)
	}
	s.logger.Info("[task][delete]", zap.String("user_id", userID), zap.String("task_id", id))
	if s.indexer != nil {
		s.indexer.EnqueueDelete(id)
	}
	return task, nil
}

func (s *taskService) SearchByTitle(ctx context.Context, userID, query string) ([]models.Task, error) {
	q := strings.TrimSpace(query)
	tasks, err := s.repo.FindAll(ctx, models.TaskFilter{UserID: &userID, TitleContains: &q})
	if err != nil {
		return nil, fmt.Errorf("search tasks: %w", err)
	}
	return tasks, nil
}

func (s *taskService) ListDueForDeadline(ctx context.Context, window time.Duration) ([]models.Task, error) {
	now := s.now().UTC()
	return s.repo.ListDueForDeadline(ctx, now, now.Add(window))
}

func (s *taskService) MarkDeadlineNotified(ctx context.Context, id string) error {
	return s.repo.SetDeadlineNotified(ctx, id)
}

func (s *taskService) ListAll(ctx context.Context) ([]models.Task, error) {
	return s.repo.ListAll(ctx)
}

func (s *taskService) index(task models.Task) {
	if s.indexer != nil {
		s.indexer.EnqueueUpsert(task)
	}
}
