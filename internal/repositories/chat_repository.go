package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"taskagent/internal/models"
)

type MessageRepository interface {
	// ListRecent returns at most limit of the newest messages, oldest first.
	// A limit of zero or less returns the whole history.
	ListRecent(ctx context.Context, chatID string, limit int) ([]models.Message, error)
	Append(ctx context.Context, msgs ...*models.Message) error
	DeleteByChat(ctx context.Context, chatID string) (int64, error)
}

type messageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) ListRecent(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		const q = `
			SELECT id, chat_id, role, content, seq, created_at FROM (
				SELECT id, chat_id, role, content, seq, created_at
				FROM messages
				WHERE chat_id = $1
				ORDER BY created_at DESC, seq DESC
				LIMIT $2
			) recent
			ORDER BY created_at ASC, seq ASC`
		rows, err = r.db.QueryContext(ctx, q, chatID, limit)
	} else {
		const q = `
			SELECT id, chat_id, role, content, seq, created_at
			FROM messages
			WHERE chat_id = $1
			ORDER BY created_at ASC, seq ASC`
		rows, err = r.db.QueryContext(ctx, q, chatID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.Seq, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Append inserts msgs in order inside one transaction and fills Seq.
func (r *messageRepository) Append(ctx context.Context, msgs ...*models.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const q = `
		INSERT INTO messages (id, chat_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq`
	for _, m := range msgs {
		if err := tx.QueryRowContext(ctx, q, m.ID, m.ChatID, m.Role, m.Content, m.CreatedAt).Scan(&m.Seq); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	return tx.Commit()
}

func (r *messageRepository) DeleteByChat(ctx context.Context, chatID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = $1`, chatID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
