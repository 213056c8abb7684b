package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct{}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }

type fakeQdrant struct {
	collections map[string]bool
	upserts     []*qdrant.UpsertPoints
	scrollHits  []*qdrant.RetrievedPoint
	queryHits   []*qdrant.ScoredPoint
	scrollErr   error
	upsertErr   error
	closed      bool
}

func (f *fakeQdrant) CollectionExists(ctx context.Context, name string) (bool, error) {
	return f.collections[name], nil
}

func (f *fakeQdrant) CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error {
	if f.collections == nil {
		f.collections = map[string]bool{}
	}
	f.collections[req.CollectionName] = true
	return nil
}

func (f *fakeQdrant) Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	f.upserts = append(f.upserts, req)
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeQdrant) Scroll(ctx context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error) {
	return f.scrollHits, f.scrollErr
}

func (f *fakeQdrant) Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	return f.queryHits, nil
}

func (f *fakeQdrant) HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error) {
	return &qdrant.HealthCheckReply{}, nil
}

func (f *fakeQdrant) Close() error {
	f.closed = true
	return nil
}

func testStore(client vectorClient) *Store {
	return &Store{
		client:     client,
		collection: "conversations",
		embedder:   &fakeEmbedder{},
		logger:     zerolog.Nop(),
	}
}

func payloadFor(question, answer string, ts int64) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		"question":  {Kind: &qdrant.Value_StringValue{StringValue: question}},
		"answer":    {Kind: &qdrant.Value_StringValue{StringValue: answer}},
		"tenant_id": {Kind: &qdrant.Value_StringValue{StringValue: "tenant-1"}},
		"user_id":   {Kind: &qdrant.Value_StringValue{StringValue: "user-1"}},
		"chat_id":   {Kind: &qdrant.Value_StringValue{StringValue: "chat-1"}},
		"timestamp": {Kind: &qdrant.Value_IntegerValue{IntegerValue: ts}},
	}
}

func TestStore_StoreConversation(t *testing.T) {
	ctx := context.Background()

	t.Run("should upsert one point with the full payload", func(t *testing.T) {
		client := &fakeQdrant{}
		store := testStore(client)

		err := store.StoreConversation(ctx, Exchange{
			Question: "What is Go?",
			Answer:   "A programming language.",
			TenantID: "tenant-1",
			UserID:   "user-1",
			ChatID:   "chat-1",
		})
		require.NoError(t, err)

		require.Len(t, client.upserts, 1)
		req := client.upserts[0]
		assert.Equal(t, "conversations", req.CollectionName)
		require.Len(t, req.Points, 1)

		payload := req.Points[0].Payload
		assert.Equal(t, "What is Go?", payload["question"].GetStringValue())
		assert.Equal(t, "A programming language.", payload["answer"].GetStringValue())
		assert.Equal(t, "tenant-1", payload["tenant_id"].GetStringValue())
		assert.NotZero(t, payload["timestamp"].GetIntegerValue())
	})

	t.Run("should require question, answer and tenant", func(t *testing.T) {
		store := testStore(&fakeQdrant{})

		err := store.StoreConversation(ctx, Exchange{Answer: "a", TenantID: "t"})
		require.Error(t, err)

		err = store.StoreConversation(ctx, Exchange{Question: "q", Answer: "a"})
		require.Error(t, err)
	})

	t.Run("should surface upsert failures", func(t *testing.T) {
		store := testStore(&fakeQdrant{upsertErr: errors.New("unavailable")})

		err := store.StoreConversation(ctx, Exchange{
			Question: "q", Answer: "a", TenantID: "tenant-1",
		})
		require.Error(t, err)
	})
}

func TestStore_GetChatByID(t *testing.T) {
	ctx := context.Background()

	t.Run("should return exchanges sorted oldest first", func(t *testing.T) {
		now := time.Now().Unix()
		client := &fakeQdrant{
			scrollHits: []*qdrant.RetrievedPoint{
				{Id: qdrant.NewIDUUID("22222222-2222-2222-2222-222222222222"), Payload: payloadFor("second", "b", now)},
				{Id: qdrant.NewIDUUID("11111111-1111-1111-1111-111111111111"), Payload: payloadFor("first", "a", now-60)},
			},
		}
		store := testStore(client)

		exchanges, err := store.GetChatByID(ctx, "tenant-1", "user-1", "chat-1")
		require.NoError(t, err)
		require.Len(t, exchanges, 2)
		assert.Equal(t, "first", exchanges[0].Question)
		assert.Equal(t, "second", exchanges[1].Question)
	})

	t.Run("should require all identifiers", func(t *testing.T) {
		store := testStore(&fakeQdrant{})

		_, err := store.GetChatByID(ctx, "tenant-1", "", "chat-1")
		require.Error(t, err)
	})

	t.Run("should surface scroll failures", func(t *testing.T) {
		store := testStore(&fakeQdrant{scrollErr: errors.New("unavailable")})

		_, err := store.GetChatByID(ctx, "tenant-1", "user-1", "chat-1")
		require.Error(t, err)
	})
}

func TestStore_SearchSimilar(t *testing.T) {
	ctx := context.Background()

	t.Run("should map scored points to exchanges", func(t *testing.T) {
		client := &fakeQdrant{
			queryHits: []*qdrant.ScoredPoint{
				{
					Id:      qdrant.NewIDUUID("11111111-1111-1111-1111-111111111111"),
					Payload: payloadFor("old question", "old answer", time.Now().Unix()),
					Score:   0.91,
				},
			},
		}
		store := testStore(client)

		exchanges, err := store.SearchSimilar(ctx, "related question", "tenant-1", 3)
		require.NoError(t, err)
		require.Len(t, exchanges, 1)
		assert.Equal(t, "old question", exchanges[0].Question)
		assert.InDelta(t, 0.91, exchanges[0].Score, 0.001)
	})

	t.Run("should return nothing for empty input", func(t *testing.T) {
		store := testStore(&fakeQdrant{})

		exchanges, err := store.SearchSimilar(ctx, "", "tenant-1", 3)
		require.NoError(t, err)
		assert.Empty(t, exchanges)
	})
}

func TestStore_EnsureCollection(t *testing.T) {
	ctx := context.Background()

	t.Run("should create a missing collection", func(t *testing.T) {
		client := &fakeQdrant{}
		store := testStore(client)

		require.NoError(t, store.ensureCollection(ctx))
		assert.True(t, client.collections["conversations"])
	})

	t.Run("should leave an existing collection alone", func(t *testing.T) {
		client := &fakeQdrant{collections: map[string]bool{"conversations": true}}
		store := testStore(client)

		require.NoError(t, store.ensureCollection(ctx))
	})
}
