package repositories

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskagent/internal/models"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TASKAGENT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TASKAGENT_TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	require.NoError(t, EnsureSchema(ctx, db))
	return db
}

func newTask(userID, title string, status models.TaskStatus, due *time.Time) *models.Task {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Task{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Priority:  models.PriorityMedium,
		Status:    status,
		DueDate:   due,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestTaskRepositoryCRUD(t *testing.T) {
	db := setupDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()
	userID := uuid.NewString()

	task := newTask(userID, "Quarterly Report", models.StatusPending, nil)
	require.NoError(t, repo.Store(ctx, task))

	got, err := repo.FindByID(ctx, userID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Report", got.Title)

	_, err = repo.FindByID(ctx, uuid.NewString(), task.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	title := "report"
	found, err := repo.FindAll(ctx, models.TaskFilter{UserID: &userID, TitleContains: &title})
	require.NoError(t, err)
	require.Len(t, found, 1)

	got.Priority = models.PriorityHigh
	got.UpdatedAt = time.Now().UTC()
	require.NoError(t, repo.Update(ctx, got))

	deleted, err := repo.Delete(ctx, userID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, deleted.Priority)

	_, err = repo.Delete(ctx, userID, task.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTaskRepositoryMarkOverdueIsIdempotent(t *testing.T) {
	db := setupDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()
	userID := uuid.NewString()

	past := time.Now().Add(-48 * time.Hour).UTC()
	future := time.Now().Add(48 * time.Hour).UTC()
	require.NoError(t, repo.Store(ctx, newTask(userID, "late", models.StatusPending, &past)))
	require.NoError(t, repo.Store(ctx, newTask(userID, "done", models.StatusCompleted, &past)))
	require.NoError(t, repo.Store(ctx, newTask(userID, "soon", models.StatusInProgress, &future)))

	marked, err := repo.MarkOverdue(ctx, userID, time.Now())
	require.NoError(t, err)
	require.Len(t, marked, 1)
	assert.Equal(t, "late", marked[0].Title)
	assert.Equal(t, models.StatusOverDue, marked[0].Status)

	marked, err = repo.MarkOverdue(ctx, userID, time.Now())
	require.NoError(t, err)
	assert.Empty(t, marked)

	overdue := models.StatusOverDue
	tasks, err := repo.FindAll(ctx, models.TaskFilter{UserID: &userID, Status: &overdue})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "late", tasks[0].Title)
}

func TestMessageRepositoryOrdering(t *testing.T) {
	db := setupDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()
	chatID := models.ChatIDForUser(uuid.NewString())

	// Identical timestamps must still come back in insertion order.
	at := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Append(ctx,
			&models.Message{ID: uuid.NewString(), ChatID: chatID, Role: models.RoleUser, Content: "q", CreatedAt: at},
			&models.Message{ID: uuid.NewString(), ChatID: chatID, Role: models.RoleAssistant, Content: "a", CreatedAt: at},
		))
	}

	msgs, err := repo.ListRecent(ctx, chatID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 6)
	for i, m := range msgs {
		want := models.RoleUser
		if i%2 == 1 {
			want = models.RoleAssistant
		}
		assert.Equal(t, want, m.Role)
	}

	recent, err := repo.ListRecent(ctx, chatID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, msgs[4].ID, recent[0].ID)

	n, err := repo.DeleteByChat(ctx, chatID)
	require.NoError(t, err)
	assert.EqualValues(t, 6, n)
}

func TestTelegramLinkIsSingleUse(t *testing.T) {
	db := setupDB(t)
	repo := NewTelegramLinkRepository(db)
	ctx := context.Background()
	userID := uuid.NewString()
	code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))

	link, err := repo.Create(ctx, userID, code, time.Minute)
	require.NoError(t, err)
	assert.False(t, link.Used)

	used, err := repo.UseByCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, userID, used.UserID)
	assert.True(t, used.Used)

	_, err = repo.UseByCode(ctx, code)
	assert.ErrorIs(t, err, ErrNotFound)

	expired := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	_, err = repo.Create(ctx, userID, expired, -time.Minute)
	require.NoError(t, err)
	_, err = repo.UseByCode(ctx, expired)
	assert.ErrorIs(t, err, ErrNotFound)
}
