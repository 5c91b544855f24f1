package embeddings

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{`
CREATE TABLE IF NOT EXISTS task_embeddings (
	task_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	status TEXT NOT NULL,
	priority TEXT NOT NULL,
	dims INTEGER NOT NULL,
	embedding BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS task_embeddings_user_idx ON task_embeddings(user_id)`,
}

// SQLiteIndex stores vectors as little-endian float32 blobs and ranks them
// in process.
type SQLiteIndex struct {
	db *sql.DB
}

// OpenSQLiteIndex opens (creating if needed) the index at path. Use
// ":memory:" for a throwaway index.
func OpenSQLiteIndex(ctx context.Context, path string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases shared across calls.
	db.SetMaxOpenConns(1)
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init index schema: %w", err)
		}
	}
	return &SQLiteIndex{db: db}, nil
}

func (x *SQLiteIndex) Close() error { return x.db.Close() }

func (x *SQLiteIndex) Upsert(ctx context.Context, taskID string, vector []float32, meta Metadata) error {
	if len(vector) == 0 {
		return errors.New("empty vector")
	}
	_, err := x.db.ExecContext(ctx, `
		INSERT INTO task_embeddings (task_id, user_id, title, status, priority, dims, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(task_id) DO UPDATE SET
			user_id=excluded.user_id, title=excluded.title, status=excluded.status,
			priority=excluded.priority, dims=excluded.dims, embedding=excluded.embedding,
			updated_at=CURRENT_TIMESTAMP`,
		taskID, meta.UserID, meta.Title, meta.Status, meta.Priority, len(vector), encodeVector(vector))
	if err != nil {
		return fmt.Errorf("upsert embedding %s: %w", taskID, err)
	}
	return nil
}

func (x *SQLiteIndex) QueryNearest(ctx context.Context, vector []float32, topK int, userID string) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	q := `SELECT task_id, user_id, title, status, priority, embedding FROM task_embeddings`
	var args []any
	if userID != "" {
		q += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	rows, err := x.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m    Match
			blob []byte
		)
		if err := rows.Scan(&m.TaskID, &m.Metadata.UserID, &m.Metadata.Title, &m.Metadata.Status, &m.Metadata.Priority, &blob); err != nil {
			return nil, err
		}
		stored, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("embedding %s: %w", m.TaskID, err)
		}
		if len(stored) != len(vector) {
			continue
		}
		m.Score = cosine(vector, stored)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (x *SQLiteIndex) Delete(ctx context.Context, taskID string) error {
	if _, err := x.db.ExecContext(ctx, `DELETE FROM task_embeddings WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("delete embedding %s: %w", taskID, err)
	}
	return nil
}

// Count reports the number of indexed tasks.
func (x *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_embeddings`).Scan(&n)
	return n, err
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length %d", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
