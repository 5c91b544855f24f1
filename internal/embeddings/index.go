// Package embeddings keeps a vector index of task text for meaning-based
// lookup. The index trails the task store and may be stale.
package embeddings

import (
	"context"
	"fmt"
	"time"

	"taskagent/internal/models"
)

type Metadata struct {
	Title    string `json:"title"`
	UserID   string `json:"user_id"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
}

type Match struct {
	TaskID   string
	Score    float64
	Metadata Metadata
}

type Index interface {
	Upsert(ctx context.Context, taskID string, vector []float32, meta Metadata) error
	// QueryNearest ranks the entries owned by userID by cosine similarity,
	// best first. An empty userID searches every entry.
	QueryNearest(ctx context.Context, vector []float32, topK int, userID string) ([]Match, error)
	Delete(ctx context.Context, taskID string) error
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// TaskText is the text embedded for a task.
func TaskText(t models.Task) string {
	due := "none"
	if t.DueDate != nil {
		due = t.DueDate.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%s. Priority: %s. Status: %s. Due: %s", t.Title, t.Priority, t.Status, due)
}

func MetadataFor(t models.Task) Metadata {
	return Metadata{
		Title:    t.Title,
		UserID:   t.UserID,
		Status:   string(t.Status),
		Priority: string(t.Priority),
	}
}
