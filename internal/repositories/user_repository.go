package repositories

import (
	"context"
	"database/sql"
	"errors"

	"taskagent/internal/models"
)

// UserRepository reads notification recipients. Accounts themselves are
// owned elsewhere; the only write is the Telegram chat binding.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	ListNotifiable(ctx context.Context) ([]models.User, error)
	UpdateTelegramChat(ctx context.Context, userID string, chatID int64) error
	GetByChatID(ctx context.Context, chatID int64) (*models.User, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, email, notifications_enabled, daily_notification_time, time_zone, telegram_chat_id`

func scanUser(s rowScanner) (*models.User, error) {
	var (
		u    models.User
		chat sql.NullInt64
	)
	if err := s.Scan(&u.ID, &u.Email, &u.NotificationsEnabled, &u.DailyNotificationTime, &u.TimeZone, &chat); err != nil {
		return nil, err
	}
	if chat.Valid {
		id := chat.Int64
		u.TelegramChatID = &id
	}
	return &u, nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

func (r *userRepository) ListNotifiable(ctx context.Context) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE notifications_enabled = true ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (r *userRepository) UpdateTelegramChat(ctx context.Context, userID string, chatID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET telegram_chat_id = $1 WHERE id = $2`, chatID, userID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (r *userRepository) GetByChatID(ctx context.Context, chatID int64) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_chat_id = $1`, chatID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}
