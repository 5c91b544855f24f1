package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskagent/internal/models"
)

var ErrNotFound = errors.New("not found")

type TaskRepository interface {
	Store(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, userID, id string) (*models.Task, error)
	FindAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, userID, id string) (*models.Task, error)

	// MarkOverdue flips open tasks whose due date is before now to over_due
	// and returns them as updated.
	MarkOverdue(ctx context.Context, userID string, now time.Time) ([]models.Task, error)
	ListDueForDeadline(ctx context.Context, from, to time.Time) ([]models.Task, error)
	SetDeadlineNotified(ctx context.Context, id string) error
	ListAll(ctx context.Context) ([]models.Task, error)
}

type taskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) TaskRepository {
	return &taskRepository{db: db}
}

const taskColumns = `id, user_id, title, description, priority, status, due_date,
       deadline_notified, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(s rowScanner) (*models.Task, error) {
	var (
		t   models.Task
		due sql.NullTime
	)
	if err := s.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Priority, &t.Status,
		&due, &t.DeadlineNotified, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if due.Valid {
		d := due.Time.UTC()
		t.DueDate = &d
	}
	return &t, nil
}

func (r *taskRepository) Store(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (
			id, user_id, title, description, priority, status, due_date,
			deadline_notified, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := r.db.ExecContext(ctx, query,
		task.ID, task.UserID, task.Title, task.Description, task.Priority, task.Status,
		task.DueDate, task.DeadlineNotified, task.CreatedAt, task.UpdatedAt,
	)
	return err
}

func (r *taskRepository) FindByID(ctx context.Context, userID, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2`
	task, err := scanTask(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return task, nil
}

func (r *taskRepository) FindAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	baseQuery := `SELECT ` + taskColumns + ` FROM tasks`

	conditions := []string{}
	args := []any{}
	argID := 1
	add := func(cond string, v any) {
		conditions = append(conditions, fmt.Sprintf(cond, argID))
		args = append(args, v)
		argID++
	}

	if filter.UserID != nil {
		add("user_id = $%d", *filter.UserID)
	}
	if filter.Status != nil {
		add("status = $%d", *filter.Status)
	}
	if filter.Priority != nil {
		add("priority = $%d", *filter.Priority)
	}
	if filter.TitleContains != nil {
		add("position(lower($%d) in lower(title)) > 0", *filter.TitleContains)
	}
	if filter.CreatedFrom != nil {
		add("created_at >= $%d", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		add("created_at < $%d", *filter.CreatedTo)
	}
	if filter.DueFrom != nil {
		add("due_date >= $%d", *filter.DueFrom)
	}
	if filter.DueTo != nil {
		add("due_date < $%d", *filter.DueTo)
	}

	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	baseQuery += " ORDER BY created_at DESC"

	return r.query(ctx, baseQuery, args...)
}

func (r *taskRepository) query(ctx context.Context, q string, args ...any) ([]models.Task, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (r *taskRepository) Update(ctx context.Context, task *models.Task) error {
	query := `
		UPDATE tasks SET
			title=$1, description=$2, priority=$3, status=$4, due_date=$5,
			deadline_notified=$6, updated_at=$7
		WHERE id=$8 AND user_id=$9`
	res, err := r.db.ExecContext(ctx, query,
		task.Title, task.Description, task.Priority, task.Status, task.DueDate,
		task.DeadlineNotified, task.UpdatedAt, task.ID, task.UserID,
	)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// Delete removes the task and returns the row as it was.
func (r *taskRepository) Delete(ctx context.Context, userID, id string) (*models.Task, error) {
	query := `DELETE FROM tasks WHERE id = $1 AND user_id = $2 RETURNING ` + taskColumns
	task, err := scanTask(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return task, nil
}

func (r *taskRepository) MarkOverdue(ctx context.Context, userID string, now time.Time) ([]models.Task, error) {
	q := `UPDATE tasks SET status=$1, updated_at=$2
		WHERE user_id=$3 AND status IN ($4, $5) AND due_date IS NOT NULL AND due_date < $2
		RETURNING ` + taskColumns
	return r.query(ctx, q, models.StatusOverDue, now, userID, models.StatusPending, models.StatusInProgress)
}

func (r *taskRepository) ListDueForDeadline(ctx context.Context, from, to time.Time) ([]models.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks
		WHERE due_date >= $1 AND due_date <= $2
		  AND status <> $3 AND deadline_notified = false
		ORDER BY due_date ASC`
	return r.query(ctx, q, from, to, models.StatusCompleted)
}

func (r *taskRepository) SetDeadlineNotified(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET deadline_notified=true, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (r *taskRepository) ListAll(ctx context.Context) ([]models.Task, error) {
	return r.query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at ASC`)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
