package services

import (
	"context"
	"fmt"
	"html"
	"math"
	"strings"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"taskagent/internal/models"
	"taskagent/internal/repositories"
)

const SummaryFallback = "Could not generate AI summary at this time."

// Summarizer condenses a task list into one or two sentences.
type Summarizer interface {
	SummarizeTasks(ctx context.Context, tasks []models.Task) (string, error)
}

// ChatSender pushes a plain-text message to a linked chat.
type ChatSender interface {
	SendMessage(chatID int64, text string) error
}

type NotificationService struct {
	users       repositories.UserRepository
	tasks       TaskService
	mailer      EmailService
	summarizer  Summarizer
	chat        ChatSender
	logger      *zap.Logger
	concurrency int
	now         func() time.Time
}

// NewNotificationService wires the digest and deadline jobs. chat may be nil
// when Telegram is not configured.
func NewNotificationService(
	users repositories.UserRepository,
	tasks TaskService,
	mailer EmailService,
	summarizer Summarizer,
	chat ChatSender,
	logger *zap.Logger,
	concurrency int,
) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &NotificationService{
		users:       users,
		tasks:       tasks,
		mailer:      mailer,
		summarizer:  summarizer,
		chat:        chat,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// SendDailyDigests mails every user whose local clock reads their configured
// notification time. Per-user failures are logged and skipped.
func (s *NotificationService) SendDailyDigests(ctx context.Context) (int, error) {
	users, err := s.users.ListNotifiable(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	nowUTC := s.now().UTC()

	var sent atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, u := range users {
		if !dueForDigest(u, nowUTC) {
			continue
		}
		g.Go(func() error {
			ok, err := s.sendDigest(gctx, u, nowUTC)
			if err != nil {
				s.logger.Error("[notify][daily][err]", zap.String("user_id", u.ID), zap.Error(err))
				return nil
			}
			if ok {
				sent.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(sent.Load()), err
	}
	return int(sent.Load()), ctx.Err()
}

func dueForDigest(u models.User, nowUTC time.Time) bool {
	if u.DailyNotificationTime == "" || u.TimeZone == "" {
		return false
	}
	loc, err := time.LoadLocation(u.TimeZone)
	if err != nil {
		return false
	}
	return nowUTC.In(loc).Format("15:04") == u.DailyNotificationTime
}

func (s *NotificationService) sendDigest(ctx context.Context, u models.User, now time.Time) (bool, error) {
	tasks, err := s.tasks.List(ctx, models.TaskFilter{UserID: &u.ID})
	if err != nil {
		return false, err
	}
	open := tasks[:0]
	for _, t := range tasks {
		if t.Status != models.StatusCompleted {
			open = append(open, t)
		}
	}
	if len(open) == 0 {
		s.logger.Info("[notify][daily] no tasks", zap.String("user_id", u.ID))
		return false, nil
	}

	summary := SummaryFallback
	if s.summarizer != nil {
		text, err := s.summarizer.SummarizeTasks(ctx, open)
		if err != nil {
			s.logger.Warn("[notify][daily] summary failed", zap.String("user_id", u.ID), zap.Error(err))
		} else if strings.TrimSpace(text) != "" {
			summary = text
		}
	}

	if err := s.mailer.Send(u.Email, "Your Daily Task Summary", DigestHTML(open, summary, now)); err != nil {
		return false, err
	}
	s.logger.Info("[notify][daily] sent", zap.String("user_id", u.ID), zap.Int("tasks", len(open)))
	return true, nil
}

// DigestLine labels a task by how far its due date is from now.
func DigestLine(t models.Task, now time.Time) string {
	if t.DueDate == nil {
		return t.Title
	}
	days := int(math.Ceil(t.DueDate.Sub(now).Hours() / 24))
	switch {
	case days < 0:
		return "Overdue: " + t.Title
	case days == 0:
		return "Due Today: " + t.Title
	case days <= 3:
		return fmt.Sprintf("Upcoming in %d day(s): %s", days, t.Title)
	default:
		return t.Title
	}
}

func DigestHTML(tasks []models.Task, summary string, now time.Time) string {
	var b strings.Builder
	b.WriteString("<h2>Your Task Summary</h2>\n<ul>\n")
	for _, t := range tasks {
		b.WriteString("<li>" + html.EscapeString(DigestLine(t, now)) + "</li>\n")
	}
	b.WriteString("</ul>\n")
	if summary != "" {
		b.WriteString("<p>" + html.EscapeString(summary) + "</p>\n")
	}
	b.WriteString("<p>Keep up the productivity!</p>\n")
	return b.String()
}

// SendDeadlineNotifications alerts owners of tasks due within window that
// have not been notified yet, then flags the tasks.
func (s *NotificationService) SendDeadlineNotifications(ctx context.Context, window time.Duration) (int, error) {
	tasks, err := s.tasks.ListDueForDeadline(ctx, window)
	if err != nil {
		return 0, fmt.Errorf("list due tasks: %w", err)
	}

	sent := 0
	users := map[string]*models.User{}
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		u, ok := users[t.UserID]
		if !ok {
			u, err = s.users.GetByID(ctx, t.UserID)
			if err != nil {
				s.logger.Error("[notify][deadline][err] user lookup", zap.String("user_id", t.UserID), zap.Error(err))
				users[t.UserID] = nil
				continue
			}
			users[t.UserID] = u
		}
		if u == nil {
			continue
		}

		due := t.DueDate.UTC().Format("Mon Jan 02 2006 15:04 MST")
		body := fmt.Sprintf("<h2>Task deadline approaching</h2>\n<p><strong>%s</strong> (priority %s) is due %s.</p>\n",
			html.EscapeString(t.Title), t.Priority, due)
		if err := s.mailer.Send(u.Email, "Task deadline approaching: "+t.Title, body); err != nil {
			s.logger.Error("[notify][deadline][err] mail", zap.String("task_id", t.ID), zap.Error(err))
			continue
		}
		if s.chat != nil && u.TelegramChatID != nil {
			msg := fmt.Sprintf("Reminder: %q is due %s.", t.Title, due)
			if err := s.chat.SendMessage(*u.TelegramChatID, msg); err != nil {
				s.logger.Warn("[notify][deadline] telegram failed", zap.String("task_id", t.ID), zap.Error(err))
			}
		}
		if err := s.tasks.MarkDeadlineNotified(ctx, t.ID); err != nil {
			s.logger.Error("[notify][deadline][err] flag", zap.String("task_id", t.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}
