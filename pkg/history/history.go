// Package history persists finished conversation turns to Qdrant so
// later sessions can pull prior exchanges and semantically similar
// ones back into context.
package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/mfadhlan/selia/pkg/memory"
)

// maxChatExchanges caps how many prior turns one chat lookup returns.
const maxChatExchanges = 64

// Exchange is one stored question/answer turn
type Exchange struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	ChatID    string    `json:"chat_id"`
	Timestamp time.Time `json:"timestamp"`
	Score     float32   `json:"score,omitempty"`
}

// vectorClient is the subset of the Qdrant client the store uses.
type vectorClient interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Scroll(ctx context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	Close() error
}

// Store reads and writes conversation turns in one Qdrant collection
type Store struct {
	client     vectorClient
	collection string
	embedder   memory.EmbeddingProvider
	logger     zerolog.Logger
}

// StoreConfig holds conversation store configuration
type StoreConfig struct {
	Host       string
	Port       int
	UseTLS     bool
	APIKey     string
	Collection string
	Embedder   memory.EmbeddingProvider
	Logger     zerolog.Logger
}

// NewStore connects to Qdrant and ensures the collection exists
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	qcfg := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		APIKey: cfg.APIKey,
	}
	if !cfg.UseTLS {
		qcfg.GrpcOptions = append(qcfg.GrpcOptions,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}

	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &Store{
		client:     client,
		collection: cfg.Collection,
		embedder:   cfg.Embedder,
		logger:     cfg.Logger.With().Str("component", "history").Logger(),
	}

	if _, err := client.HealthCheck(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("qdrant health check failed: %w", err)
	}

	if err := s.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}

	s.logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("collection", cfg.Collection).
		Msg("Conversation store ready")

	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.embedder.Dimension()),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
	}

	s.logger.Info().Str("collection", s.collection).Msg("Created conversation collection")
	return nil
}

// StoreConversation saves one finished turn
func (s *Store) StoreConversation(ctx context.Context, ex Exchange) error {
	if ex.Question == "" || ex.Answer == "" {
		return fmt.Errorf("question and answer are required")
	}
	if ex.TenantID == "" {
		return fmt.Errorf("tenant id is required")
	}

	vector, err := s.embedder.GenerateEmbedding(ctx, ex.Question+"\n"+ex.Answer)
	if err != nil {
		return fmt.Errorf("failed to embed conversation: %w", err)
	}

	id := ex.ID
	if id == "" {
		id = uuid.NewString()
	}
	ts := ex.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	payload := map[string]*qdrant.Value{
		"question":  {Kind: &qdrant.Value_StringValue{StringValue: ex.Question}},
		"answer":    {Kind: &qdrant.Value_StringValue{StringValue: ex.Answer}},
		"tenant_id": {Kind: &qdrant.Value_StringValue{StringValue: ex.TenantID}},
		"user_id":   {Kind: &qdrant.Value_StringValue{StringValue: ex.UserID}},
		"chat_id":   {Kind: &qdrant.Value_StringValue{StringValue: ex.ChatID}},
		"timestamp": {Kind: &qdrant.Value_IntegerValue{IntegerValue: ts.Unix()}},
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDUUID(id),
				Vectors: qdrant.NewVectors(vector...),
				Payload: payload,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to store conversation: %w", err)
	}

	return nil
}

// GetChatByID returns the prior exchanges of one chat for one tenant
// and user, oldest first.
func (s *Store) GetChatByID(ctx context.Context, tenantID, userID, chatID string) ([]Exchange, error) {
	if tenantID == "" || userID == "" || chatID == "" {
		return nil, fmt.Errorf("tenant id, user id and chat id are required")
	}

	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				keywordCondition("tenant_id", tenantID),
				keywordCondition("user_id", userID),
				keywordCondition("chat_id", chatID),
			},
		},
		Limit:       qdrant.PtrOf(uint32(maxChatExchanges)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chat %s: %w", chatID, err)
	}

	exchanges := make([]Exchange, 0, len(points))
	for _, p := range points {
		exchanges = append(exchanges, exchangeFromPayload(pointID(p.Id), p.Payload, 0))
	}

	sort.Slice(exchanges, func(i, j int) bool {
		return exchanges[i].Timestamp.Before(exchanges[j].Timestamp)
	})

	return exchanges, nil
}

// SearchSimilar finds past exchanges semantically close to the query
// within one tenant.
func (s *Store) SearchSimilar(ctx context.Context, query, tenantID string, limit int) ([]Exchange, error) {
	if query == "" || tenantID == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 3
	}

	vector, err := s.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				keywordCondition("tenant_id", tenantID),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	exchanges := make([]Exchange, 0, len(points))
	for _, p := range points {
		exchanges = append(exchanges, exchangeFromPayload(pointID(p.Id), p.Payload, p.Score))
	}

	return exchanges, nil
}

// Close releases the Qdrant connection
func (s *Store) Close() error {
	return s.client.Close()
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	return id.GetUuid()
}

func exchangeFromPayload(id string, payload map[string]*qdrant.Value, score float32) Exchange {
	ex := Exchange{ID: id, Score: score}
	if payload == nil {
		return ex
	}

	ex.Question = payload["question"].GetStringValue()
	ex.Answer = payload["answer"].GetStringValue()
	ex.TenantID = payload["tenant_id"].GetStringValue()
	ex.UserID = payload["user_id"].GetStringValue()
	ex.ChatID = payload["chat_id"].GetStringValue()
	if ts := payload["timestamp"].GetIntegerValue(); ts > 0 {
		ex.Timestamp = time.Unix(ts, 0)
	}

	return ex
}
