package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskagent/internal/models"
	"taskagent/internal/repositories"
	"taskagent/internal/repositories/repotest"
)

type fakeUsers struct {
	users []models.User
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			u := u
			return &u, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeUsers) ListNotifiable(context.Context) ([]models.User, error) {
	var out []models.User
	for _, u := range f.users {
		if u.NotificationsEnabled {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUsers) UpdateTelegramChat(context.Context, string, int64) error { return nil }

func (f *fakeUsers) GetByChatID(context.Context, int64) (*models.User, error) {
	return nil, repositories.ErrNotFound
}

type sentMail struct{ to, subject, body string }

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

type fakeSummarizer struct {
	text string
	err  error
}

func (f fakeSummarizer) SummarizeTasks(context.Context, []models.Task) (string, error) {
	return f.text, f.err
}

type fakeChat struct {
	mu  sync.Mutex
	msg map[int64][]string
}

func (f *fakeChat) SendMessage(chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.msg == nil {
		f.msg = map[int64][]string{}
	}
	f.msg[chatID] = append(f.msg[chatID], text)
	return nil
}

func TestDigestLine(t *testing.T) {
	now := fixedNow
	at := func(d time.Duration) *time.Time { v := now.Add(d); return &v }

	cases := []struct {
		due  *time.Time
		want string
	}{
		{nil, "Pay rent"},
		{at(-25 * time.Hour), "Overdue: Pay rent"},
		{at(-time.Hour), "Due Today: Pay rent"},
		{at(5 * time.Hour), "Upcoming in 1 day(s): Pay rent"},
		{at(50 * time.Hour), "Upcoming in 3 day(s): Pay rent"},
		{at(100 * time.Hour), "Pay rent"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DigestLine(models.Task{Title: "Pay rent", DueDate: tc.due}, now))
	}
}

func newNotifier(users *fakeUsers, repo *repotest.TaskRepo, mailer *fakeMailer, sum Summarizer, chat ChatSender) *NotificationService {
	tasks := newTestService(repo, nil)
	n := NewNotificationService(users, tasks, mailer, sum, chat, nil, 2)
	n.now = func() time.Time { return fixedNow }
	return n
}

func TestSendDailyDigests(t *testing.T) {
	// fixedNow is 10:45 UTC, 15:45 in Karachi.
	users := &fakeUsers{users: []models.User{
		{ID: "u1", Email: "u1@example.com", NotificationsEnabled: true, DailyNotificationTime: "10:45", TimeZone: "UTC"},
		{ID: "u2", Email: "u2@example.com", NotificationsEnabled: true, DailyNotificationTime: "15:45", TimeZone: "Asia/Karachi"},
		{ID: "u3", Email: "u3@example.com", NotificationsEnabled: true, DailyNotificationTime: "09:00", TimeZone: "UTC"},
		{ID: "u4", Email: "u4@example.com", NotificationsEnabled: true, DailyNotificationTime: "10:45", TimeZone: "UTC"},
	}}
	due := fixedNow.Add(30 * time.Hour)
	repo := repotest.NewTaskRepo(
		seed("u1", "t1", "Ship release", models.StatusPending, &due),
		seed("u2", "t2", "Call bank", models.StatusInProgress, nil),
		seed("u3", "t3", "Not now", models.StatusPending, nil),
		seed("u4", "t4", "Finished", models.StatusCompleted, nil),
	)
	mailer := &fakeMailer{}
	n := newNotifier(users, repo, mailer, fakeSummarizer{text: "One release due tomorrow."}, nil)

	sent, err := n.SendDailyDigests(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	byUser := map[string]sentMail{}
	for _, m := range mailer.sent {
		byUser[m.to] = m
	}
	require.Contains(t, byUser, "u1@example.com")
	require.Contains(t, byUser, "u2@example.com")
	assert.Contains(t, byUser["u1@example.com"].body, "Upcoming in 2 day(s): Ship release")
	assert.Contains(t, byUser["u1@example.com"].body, "One release due tomorrow.")
	assert.Equal(t, "Your Daily Task Summary", byUser["u2@example.com"].subject)
}

func TestSendDailyDigestsSummaryFallback(t *testing.T) {
	users := &fakeUsers{users: []models.User{
		{ID: "u1", Email: "u1@example.com", NotificationsEnabled: true, DailyNotificationTime: "10:45", TimeZone: "UTC"},
	}}
	repo := repotest.NewTaskRepo(seed("u1", "t1", "Ship release", models.StatusPending, nil))
	mailer := &fakeMailer{}
	n := newNotifier(users, repo, mailer, fakeSummarizer{err: errors.New("quota")}, nil)

	sent, err := n.SendDailyDigests(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sent)
	assert.Contains(t, mailer.sent[0].body, SummaryFallback)
}

func TestSendDeadlineNotifications(t *testing.T) {
	chatID := int64(777)
	users := &fakeUsers{users: []models.User{
		{ID: "u1", Email: "u1@example.com", TelegramChatID: &chatID},
	}}
	soon := fixedNow.Add(2 * time.Hour)
	repo := repotest.NewTaskRepo(
		seed("u1", "t1", "Submit <report>", models.StatusPending, &soon),
		seed("ghost", "t2", "No owner", models.StatusPending, &soon),
	)
	mailer := &fakeMailer{}
	chat := &fakeChat{}
	n := newNotifier(users, repo, mailer, nil, chat)
	ctx := context.Background()

	sent, err := n.SendDeadlineNotifications(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, mailer.sent, 1)
	assert.True(t, strings.HasPrefix(mailer.sent[0].subject, "Task deadline approaching"))
	assert.Contains(t, mailer.sent[0].body, "Submit &lt;report&gt;")
	assert.Len(t, chat.msg[chatID], 1)

	flagged, _ := repo.Get("t1")
	assert.True(t, flagged.DeadlineNotified)

	sent, err = n.SendDeadlineNotifications(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestSendDeadlineNotificationsMailFailureKeepsTaskPending(t *testing.T) {
	users := &fakeUsers{users: []models.User{{ID: "u1", Email: "u1@example.com"}}}
	soon := fixedNow.Add(2 * time.Hour)
	repo := repotest.NewTaskRepo(seed("u1", "t1", "Submit report", models.StatusPending, &soon))
	mailer := &fakeMailer{err: errors.New("smtp down")}
	n := newNotifier(users, repo, mailer, nil, nil)

	sent, err := n.SendDeadlineNotifications(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	task, _ := repo.Get("t1")
	assert.False(t, task.DeadlineNotified)
}
