// Package repotest provides in-memory repositories for tests.
package repotest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"taskagent/internal/models"
	"taskagent/internal/repositories"
)

// TaskRepo is an in-memory repositories.TaskRepository. Set Err to make
// every call fail.
type TaskRepo struct {
	mu    sync.Mutex
	tasks map[string]models.Task
	Err   error
}

func NewTaskRepo(tasks ...models.Task) *TaskRepo {
	r := &TaskRepo{tasks: make(map[string]models.Task)}
	for _, t := range tasks {
		r.tasks[t.ID] = t
	}
	return r
}

var _ repositories.TaskRepository = (*TaskRepo)(nil)

func (r *TaskRepo) Store(_ context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.tasks[task.ID]; ok {
		return errors.New("duplicate id")
	}
	r.tasks[task.ID] = cloneTask(*task)
	return nil
}

func (r *TaskRepo) FindByID(_ context.Context, userID, id string) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	t, ok := r.tasks[id]
	if !ok || t.UserID != userID {
		return nil, repositories.ErrNotFound
	}
	t = cloneTask(t)
	return &t, nil
}

func (r *TaskRepo) FindAll(_ context.Context, f models.TaskFilter) ([]models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	var out []models.Task
	for _, t := range r.tasks {
		if matches(t, f) {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func matches(t models.Task, f models.TaskFilter) bool {
	switch {
	case f.UserID != nil && t.UserID != *f.UserID:
		return false
	case f.Status != nil && t.Status != *f.Status:
		return false
	case f.Priority != nil && t.Priority != *f.Priority:
		return false
	case f.TitleContains != nil && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(*f.TitleContains)):
		return false
	case f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom):
		return false
	case f.CreatedTo != nil && !t.CreatedAt.Before(*f.CreatedTo):
		return false
	}
	if f.DueFrom != nil || f.DueTo != nil {
		if t.DueDate == nil {
			return false
		}
		if f.DueFrom != nil && t.DueDate.Before(*f.DueFrom) {
			return false
		}
		if f.DueTo != nil && !t.DueDate.Before(*f.DueTo) {
			return false
		}
	}
	return true
}

func (r *TaskRepo) Update(_ context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	cur, ok := r.tasks[task.ID]
	if !ok || cur.UserID != task.UserID {
		return repositories.ErrNotFound
	}
	r.tasks[task.ID] = cloneTask(*task)
	return nil
}

func (r *TaskRepo) Delete(_ context.Context, userID, id string) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	t, ok := r.tasks[id]
	if !ok || t.UserID != userID {
		return nil, repositories.ErrNotFound
	}
	delete(r.tasks, id)
	return &t, nil
}

func (r *TaskRepo) MarkOverdue(_ context.Context, userID string, now time.Time) ([]models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	var marked []models.Task
	for id, t := range r.tasks {
		if t.UserID == userID && t.IsOverdue(now) {
			t.Status = models.StatusOverDue
			t.UpdatedAt = now
			r.tasks[id] = t
			marked = append(marked, t)
		}
	}
	return marked, nil
}

func (r *TaskRepo) ListDueForDeadline(_ context.Context, from, to time.Time) ([]models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	var out []models.Task
	for _, t := range r.tasks {
		if t.DueDate == nil || t.DeadlineNotified || t.Status == models.StatusCompleted {
			continue
		}
		if !t.DueDate.Before(from) && !t.DueDate.After(to) {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(*out[j].DueDate) })
	return out, nil
}

func (r *TaskRepo) SetDeadlineNotified(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	t, ok := r.tasks[id]
	if !ok {
		return repositories.ErrNotFound
	}
	t.DeadlineNotified = true
	r.tasks[id] = t
	return nil
}

func (r *TaskRepo) ListAll(_ context.Context) ([]models.Task, error) {
	return r.FindAll(context.Background(), models.TaskFilter{})
}

// Get returns the stored task without ownership checks.
func (r *TaskRepo) Get(id string) (models.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	return cloneTask(t), ok
}

func (r *TaskRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

func cloneTask(t models.Task) models.Task {
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	return t
}

// MessageRepo is an in-memory repositories.MessageRepository.
type MessageRepo struct {
	mu   sync.Mutex
	seq  int64
	rows []models.Message
	Err  error
}

func NewMessageRepo() *MessageRepo { return &MessageRepo{} }

var _ repositories.MessageRepository = (*MessageRepo)(nil)

func (r *MessageRepo) ListRecent(_ context.Context, chatID string, limit int) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	var out []models.Message
	for _, m := range r.rows {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *MessageRepo) Append(_ context.Context, msgs ...*models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	for _, m := range msgs {
		r.seq++
		m.Seq = r.seq
		r.rows = append(r.rows, *m)
	}
	return nil
}

func (r *MessageRepo) DeleteByChat(_ context.Context, chatID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	kept := r.rows[:0]
	var n int64
	for _, m := range r.rows {
		if m.ChatID == chatID {
			n++
			continue
		}
		kept = append(kept, m)
	}
	r.rows = kept
	return n, nil
}
