package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskagent/internal/models"
	"taskagent/internal/repositories"
)

// ChatMemory is the per-chat conversation log. Appends for one chat are
// applied in arrival order.
type ChatMemory interface {
	GetMessages(ctx context.Context, chatID string) ([]models.Message, error)
	AddMessage(ctx context.Context, chatID string, role models.MessageRole, content string) (*models.Message, error)
	// AppendTurn stores the user text followed by the assistant reply
	// atomically.
	AppendTurn(ctx context.Context, chatID, userText, assistantText string) error
	Clear(ctx context.Context, chatID string) error
}

type chatMemory struct {
	repo  repositories.MessageRepository
	limit int
	locks *keyedMutex
	now   func() time.Time
}

// NewChatMemory returns a ChatMemory whose reads are bounded to the limit
// most recent messages. limit <= 0 reads the full history.
func NewChatMemory(repo repositories.MessageRepository, limit int) ChatMemory {
	return &chatMemory{repo: repo, limit: limit, locks: newKeyedMutex(), now: time.Now}
}

func (m *chatMemory) GetMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	msgs, err := m.repo.ListRecent(ctx, chatID, m.limit)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", chatID, err)
	}
	return msgs, nil
}

func (m *chatMemory) AddMessage(ctx context.Context, chatID string, role models.MessageRole, content string) (*models.Message, error) {
	if role != models.RoleUser && role != models.RoleAssistant {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	unlock := m.locks.Lock(chatID)
	defer unlock()

	msg := m.newMessage(chatID, role, content)
	if err := m.repo.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

func (m *chatMemory) AppendTurn(ctx context.Context, chatID, userText, assistantText string) error {
	unlock := m.locks.Lock(chatID)
	defer unlock()

	user := m.newMessage(chatID, models.RoleUser, userText)
	reply := m.newMessage(chatID, models.RoleAssistant, assistantText)
	if err := m.repo.Append(ctx, user, reply); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (m *chatMemory) Clear(ctx context.Context, chatID string) error {
	unlock := m.locks.Lock(chatID)
	defer unlock()

	if _, err := m.repo.DeleteByChat(ctx, chatID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func (m *chatMemory) newMessage(chatID string, role models.MessageRole, content string) *models.Message {
	return &models.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: m.now().UTC(),
	}
}

// keyedMutex hands out one mutex per key and forgets it once no goroutine
// holds or waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
