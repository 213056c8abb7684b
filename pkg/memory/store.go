package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// Fact is one remembered item for a user
type Fact struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Score     float64           `json:"score"`
	CreatedAt time.Time         `json:"created_at"`
}

// Store persists and retrieves per-user facts
type Store struct {
	db       *sql.DB
	embedder EmbeddingProvider
	logger   zerolog.Logger
	mu       sync.Mutex
	closed   bool
}

// StoreConfig holds fact store configuration
type StoreConfig struct {
	DBPath   string
	Embedder EmbeddingProvider // Optional, if nil search is keyword-only
	Logger   zerolog.Logger
}

// NewStore opens the fact store, creating the schema as needed
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_fts5=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:       db,
		embedder: cfg.Embedder,
		logger:   cfg.Logger.With().Str("component", "memory").Logger(),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().Bool("vector_search", cfg.Embedder != nil).Msg("Fact store ready")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS facts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_facts_user ON facts(user_id);
		CREATE INDEX IF NOT EXISTS idx_facts_created ON facts(created_at);

		CREATE VIRTUAL TABLE IF NOT EXISTS facts_fts USING fts5(
			fact_id UNINDEXED,
			content,
			tokenize='porter unicode61'
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	if s.embedder != nil {
		vectorSchema := fmt.Sprintf(`
			CREATE VIRTUAL TABLE IF NOT EXISTS fact_embeddings USING vec0(
				fact_id TEXT PRIMARY KEY,
				embedding float[%d] distance_metric=cosine
			);
		`, s.embedder.Dimension())

		if _, err := s.db.Exec(vectorSchema); err != nil {
			return fmt.Errorf("failed to create vector table: %w", err)
		}
	}

	return nil
}

// Add remembers a fact for a user and returns its id
func (s *Store) Add(ctx context.Context, text, userID string, metadata map[string]string) (string, error) {
	if text == "" {
		return "", errors.New("text is required")
	}
	if userID == "" {
		return "", errors.New("user id is required")
	}

	id := uuid.NewString()

	var metaJSON []byte
	if len(metadata) > 0 {
		var err error
		metaJSON, err = json.Marshal(metadata)
		if err != nil {
			return "", fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO facts (id, user_id, content, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, userID, text, string(metaJSON), time.Now().Unix(),
	); err != nil {
		return "", fmt.Errorf("failed to insert fact: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO facts_fts (fact_id, content) VALUES (?, ?)`,
		id, text,
	); err != nil {
		return "", fmt.Errorf("failed to index fact: %w", err)
	}

	if s.embedder != nil {
		embedding, err := s.embedder.GenerateEmbedding(ctx, text)
		if err != nil {
			// Keyword retrieval still works without the vector.
			s.logger.Warn().Err(err).Msg("Embedding failed, storing fact without vector")
		} else {
			vecJSON, err := json.Marshal(embedding)
			if err != nil {
				return "", fmt.Errorf("failed to marshal embedding: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO fact_embeddings (fact_id, embedding) VALUES (?, ?)`,
				id, string(vecJSON),
			); err != nil {
				return "", fmt.Errorf("failed to store embedding: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit fact: %w", err)
	}

	return id, nil
}

// Search returns the most relevant facts for a user, best first
func (s *Store) Search(ctx context.Context, query, userID string, limit int) ([]Fact, error) {
	if query == "" || userID == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	vectorScores := map[string]float64{}
	if s.embedder != nil {
		scores, err := s.vectorSearch(ctx, query, userID, limit*4)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Vector search failed, using keyword only")
		} else {
			vectorScores = scores
		}
	}

	keywordScores, err := s.keywordSearch(ctx, query, userID, limit*4)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Keyword search failed")
		if len(vectorScores) == 0 {
			return nil, fmt.Errorf("fact search failed: %w", err)
		}
		keywordScores = map[string]float64{}
	}

	merged := mergeScores(vectorScores, keywordScores)
	if len(merged) > limit {
		merged = merged[:limit]
	}

	facts := make([]Fact, 0, len(merged))
	for _, m := range merged {
		fact, err := s.getFact(ctx, m.id)
		if err != nil {
			s.logger.Warn().Err(err).Str("fact_id", m.id).Msg("Failed to load fact")
			continue
		}
		fact.Score = m.score
		facts = append(facts, *fact)
	}

	return facts, nil
}

func (s *Store) vectorSearch(ctx context.Context, query, userID string, limit int) (map[string]float64, error) {
	embedding, err := s.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	vecJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.fact_id, vec_distance_cosine(e.embedding, ?) AS distance
		FROM fact_embeddings e
		JOIN facts f ON f.id = e.fact_id
		WHERE f.user_id = ?
		ORDER BY distance ASC
		LIMIT ?
	`, string(vecJSON), userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scores := map[string]float64{}
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, err
		}
		// Cosine distance in [0, 2] mapped to similarity in [0, 1].
		scores[id] = 1.0 - distance/2.0
	}

	return scores, rows.Err()
}

func (s *Store) keywordSearch(ctx context.Context, query, userID string, limit int) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fts.fact_id, bm25(facts_fts) AS score
		FROM facts_fts fts
		JOIN facts f ON f.id = fts.fact_id
		WHERE facts_fts MATCH ? AND f.user_id = ?
		ORDER BY score
		LIMIT ?
	`, ftsQuery(query), userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	raw := map[string]float64{}
	var max float64
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, err
		}
		// BM25 scores are negative, lower is better.
		score = -score
		raw[id] = score
		if score > max {
			max = score
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if max > 0 {
		for id := range raw {
			raw[id] /= max
		}
	}

	return raw, nil
}

type scoredID struct {
	id    string
	score float64
}

// mergeScores combines vector and keyword scores, 0.7/0.3 weighted
func mergeScores(vector, keyword map[string]float64) []scoredID {
	ids := map[string]bool{}
	for id := range vector {
		ids[id] = true
	}
	for id := range keyword {
		ids[id] = true
	}

	merged := make([]scoredID, 0, len(ids))
	for id := range ids {
		merged = append(merged, scoredID{
			id:    id,
			score: vector[id]*0.7 + keyword[id]*0.3,
		})
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].score > merged[j].score
	})

	return merged
}

func (s *Store) getFact(ctx context.Context, id string) (*Fact, error) {
	var fact Fact
	var metaJSON sql.NullString
	var createdAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, content, metadata, created_at FROM facts WHERE id = ?`, id,
	).Scan(&fact.ID, &fact.UserID, &fact.Content, &metaJSON, &createdAt)
	if err != nil {
		return nil, err
	}

	fact.CreatedAt = time.Unix(createdAt, 0)
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &fact.Metadata); err != nil {
			s.logger.Warn().Err(err).Str("fact_id", id).Msg("Malformed fact metadata")
		}
	}

	return &fact, nil
}

// PruneOlderThan deletes facts older than the given age and returns
// how many were removed.
func (s *Store) PruneOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age).Unix()

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM facts WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to find stale facts: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM facts WHERE id = ?`, id); err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM facts_fts WHERE fact_id = ?`, id); err != nil {
			return 0, err
		}
		if s.embedder != nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM fact_embeddings WHERE fact_id = ?`, id); err != nil {
				return 0, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}

	s.logger.Info().Int("pruned", len(ids)).Msg("Pruned stale facts")
	return int64(len(ids)), nil
}

// Count returns the number of stored facts for a user
func (s *Store) Count(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM facts WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

// Close shuts down the store. Safe to call multiple times.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.db.Close()
}

// ftsQuery quotes each term so FTS5 treats the query as plain words
// rather than match syntax, matching any of them.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " OR ")
}
