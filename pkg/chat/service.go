// Package chat is the session entry point. One Ask call builds the
// initial orchestration state from remembered facts and prior chat
// turns, drives the graph to completion, and persists the exchange.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/mfadhlan/selia/internal/metrics"
	"github.com/mfadhlan/selia/pkg/history"
	"github.com/mfadhlan/selia/pkg/memory"
	"github.com/mfadhlan/selia/pkg/orchestrator"
)

const fallbackAnswer = "I was not able to produce an answer for that request. Please try rephrasing it."

// Runner drives one orchestration state to its terminal state.
// *orchestrator.Graph satisfies this.
type Runner interface {
	Run(ctx context.Context, state *orchestrator.State) error
}

// FactStore is the long-term memory collaborator
type FactStore interface {
	Search(ctx context.Context, query, userID string, limit int) ([]memory.Fact, error)
	Add(ctx context.Context, text, userID string, metadata map[string]string) (string, error)
}

// ConversationStore is the prior-chat collaborator
type ConversationStore interface {
	StoreConversation(ctx context.Context, ex history.Exchange) error
	GetChatByID(ctx context.Context, tenantID, userID, chatID string) ([]history.Exchange, error)
	SearchSimilar(ctx context.Context, query, tenantID string, limit int) ([]history.Exchange, error)
}

// Request is one user turn
type Request struct {
	Question string `json:"question"`
	UserID   string `json:"user_id"`
	ChatID   string `json:"chat_id,omitempty"`
	TenantID string `json:"tenant_id"`
}

// Reply is the outcome of one user turn
type Reply struct {
	Answer     string `json:"answer"`
	ChatID     string `json:"chat_id"`
	Iterations int    `json:"iterations"`
}

// Service answers user questions through the orchestration graph
type Service struct {
	graph          Runner
	workers        []string
	facts          FactStore         // Optional
	conversations  ConversationStore // Optional
	maxIterations  int
	sessionTimeout time.Duration
	logger         zerolog.Logger
	metrics        *metrics.Metrics // Optional
}

// ServiceConfig contains dependencies for the chat service
type ServiceConfig struct {
	Graph          Runner
	Workers        []string
	Facts          FactStore
	Conversations  ConversationStore
	MaxIterations  int
	SessionTimeout time.Duration
	Logger         zerolog.Logger
	Metrics        *metrics.Metrics
}

// NewService creates the chat service
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Graph == nil {
		return nil, fmt.Errorf("graph is required")
	}
	if len(cfg.Workers) == 0 {
		return nil, fmt.Errorf("at least one worker is required")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 3
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 120 * time.Second
	}

	return &Service{
		graph:          cfg.Graph,
		workers:        cfg.Workers,
		facts:          cfg.Facts,
		conversations:  cfg.Conversations,
		maxIterations:  cfg.MaxIterations,
		sessionTimeout: cfg.SessionTimeout,
		logger:         cfg.Logger.With().Str("component", "chat").Logger(),
		metrics:        cfg.Metrics,
	}, nil
}

// Ask runs one user turn end to end. Memory and history lookups are
// best-effort context enrichment; only an unready graph fails the
// session outright.
func (s *Service) Ask(ctx context.Context, req Request) (*Reply, error) {
	if req.Question == "" {
		return nil, fmt.Errorf("question is required")
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if req.TenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}

	chatID := req.ChatID
	if chatID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate chat id: %w", err)
		}
		chatID = id
	}

	start := time.Now()
	if s.metrics != nil {
		s.metrics.SessionsTotal.Inc()
		s.metrics.SessionsActive.Inc()
		defer func() {
			s.metrics.SessionsActive.Dec()
			s.metrics.SessionDuration.Observe(time.Since(start).Seconds())
		}()
	}

	ctx, cancel := context.WithTimeout(ctx, s.sessionTimeout)
	defer cancel()

	logger := s.logger.With().
		Str("user_id", req.UserID).
		Str("chat_id", chatID).
		Str("tenant_id", req.TenantID).
		Logger()

	state := s.buildState(ctx, req, chatID, logger)

	if err := s.graph.Run(ctx, state); err != nil {
		if errors.Is(err, orchestrator.ErrGraphNotReady) {
			return nil, err
		}
		logger.Error().Err(err).Msg("Session run failed")
		return &Reply{Answer: fallbackAnswer, ChatID: chatID, Iterations: state.Iterations}, nil
	}

	answer := orchestrator.ExtractAnswer(state, s.workers)
	if answer == "" {
		logger.Warn().Msg("Terminal state produced no answer")
		answer = fallbackAnswer
	} else {
		go s.persist(req, chatID, answer, logger)
	}

	logger.Info().
		Int("iterations", state.Iterations).
		Dur("elapsed", time.Since(start)).
		Msg("Session finished")

	return &Reply{Answer: answer, ChatID: chatID, Iterations: state.Iterations}, nil
}

// buildState assembles the initial orchestration state, folding in
// remembered facts and prior turns of the same chat.
func (s *Service) buildState(ctx context.Context, req Request, chatID string, logger zerolog.Logger) *orchestrator.State {
	var contextParts []string

	if s.facts != nil {
		facts, err := s.facts.Search(ctx, req.Question, req.UserID, 5)
		if err != nil {
			logger.Warn().Err(err).Msg("Memory search failed, continuing without facts")
		} else if len(facts) > 0 {
			var lines []string
			for _, f := range facts {
				lines = append(lines, "- "+f.Content)
			}
			contextParts = append(contextParts, "Known facts about this user:\n"+strings.Join(lines, "\n"))
		}
		if s.metrics != nil {
			s.metrics.MemorySearchesTotal.Inc()
		}
	}

	if s.conversations != nil {
		exchanges, err := s.conversations.GetChatByID(ctx, req.TenantID, req.UserID, chatID)
		if err != nil {
			logger.Warn().Err(err).Msg("Chat history fetch failed, continuing without it")
		} else if len(exchanges) > 0 {
			var lines []string
			for _, ex := range exchanges {
				lines = append(lines, fmt.Sprintf("User: %s\nAssistant: %s", ex.Question, ex.Answer))
			}
			contextParts = append(contextParts, "Earlier in this conversation:\n"+strings.Join(lines, "\n"))
		}

		related, err := s.conversations.SearchSimilar(ctx, req.Question, req.TenantID, 3)
		if err != nil {
			logger.Warn().Err(err).Msg("Similarity search failed, continuing without it")
		} else {
			var lines []string
			for _, ex := range related {
				// The current chat is already covered above.
				if ex.ChatID == chatID {
					continue
				}
				lines = append(lines, fmt.Sprintf("User: %s\nAssistant: %s", ex.Question, ex.Answer))
			}
			if len(lines) > 0 {
				contextParts = append(contextParts, "Related past conversations:\n"+strings.Join(lines, "\n"))
			}
		}
	}

	state := &orchestrator.State{MaxIterations: s.maxIterations}
	if len(contextParts) > 0 {
		state.Messages = append(state.Messages, orchestrator.Message{
			Role:    "system",
			Content: strings.Join(contextParts, "\n\n"),
		})
	}
	state.Messages = append(state.Messages, orchestrator.Message{
		Role:    "human",
		Content: req.Question,
	})

	return state
}

// persist writes the finished exchange to memory and the conversation
// store. It runs in the background with its own deadline after the
// reply has been sent. Failures degrade future context, they never
// fail the session.
func (s *Service) persist(req Request, chatID, answer string, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if s.conversations != nil {
		err := s.conversations.StoreConversation(ctx, history.Exchange{
			Question: req.Question,
			Answer:   answer,
			TenantID: req.TenantID,
			UserID:   req.UserID,
			ChatID:   chatID,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to store conversation")
		}
	}

	if s.facts != nil {
		_, err := s.facts.Add(ctx, fmt.Sprintf("Asked: %s\nAnswered: %s", req.Question, answer), req.UserID, map[string]string{
			"chat_id":   chatID,
			"tenant_id": req.TenantID,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to write memory")
		} else if s.metrics != nil {
			s.metrics.MemoryWritesTotal.Inc()
		}
	}
}
