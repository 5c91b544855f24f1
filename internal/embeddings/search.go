package embeddings

import (
	"context"
	"fmt"
	"strings"
)

// Search answers free-text queries against the index.
type Search struct {
	embedder Embedder
	index    Index
}

func NewSearch(embedder Embedder, index Index) *Search {
	return &Search{embedder: embedder, index: index}
}

// Related returns up to topK of userID's tasks closest in meaning to query.
func (s *Search) Related(ctx context.Context, userID, query string, topK int) ([]Match, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := s.index.QueryNearest(ctx, vec, topK, userID)
	if err != nil {
		return nil, err
	}
	out := matches[:0]
	for _, m := range matches {
		if m.Metadata.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}
