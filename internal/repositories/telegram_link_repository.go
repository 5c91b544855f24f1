package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taskagent/internal/models"
)

type TelegramLinkRepository interface {
	Create(ctx context.Context, userID, code string, ttl time.Duration) (*models.TelegramLink, error)
	// UseByCode consumes a live code exactly once.
	UseByCode(ctx context.Context, code string) (*models.TelegramLink, error)
}

type telegramLinkRepository struct{ db *sql.DB }

func NewTelegramLinkRepository(db *sql.DB) TelegramLinkRepository {
	return &telegramLinkRepository{db: db}
}

const linkColumns = `id, user_id, code, expires_at, used, created_at`

func scanLink(s rowScanner) (*models.TelegramLink, error) {
	var l models.TelegramLink
	if err := s.Scan(&l.ID, &l.UserID, &l.Code, &l.ExpiresAt, &l.Used, &l.CreatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *telegramLinkRepository) Create(ctx context.Context, userID, code string, ttl time.Duration) (*models.TelegramLink, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO telegram_links (user_id, code, expires_at)
		VALUES ($1, $2, $3)
		RETURNING `+linkColumns, userID, code, time.Now().Add(ttl))
	l, err := scanLink(row)
	if err != nil {
		return nil, fmt.Errorf("create link code: %w", err)
	}
	return l, nil
}

func (r *telegramLinkRepository) UseByCode(ctx context.Context, code string) (*models.TelegramLink, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE telegram_links
		SET used = true
		WHERE code = $1 AND NOT used AND expires_at > NOW()
		RETURNING `+linkColumns, code)
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("use link code: %w", err)
	}
	return l, nil
}
