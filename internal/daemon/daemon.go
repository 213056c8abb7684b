package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/mfadhlan/selia/internal/config"
	"github.com/mfadhlan/selia/internal/httpapi"
	"github.com/mfadhlan/selia/internal/logger"
	"github.com/mfadhlan/selia/internal/metrics"
	"github.com/mfadhlan/selia/pkg/agent"
	"github.com/mfadhlan/selia/pkg/chat"
	"github.com/mfadhlan/selia/pkg/history"
	"github.com/mfadhlan/selia/pkg/mcppool"
	"github.com/mfadhlan/selia/pkg/memory"
	"github.com/mfadhlan/selia/pkg/orchestrator"
	"github.com/robfig/cron/v3"
)

// Daemon represents the Selia daemon service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	metrics      *metrics.Metrics
	provider     agent.Provider
	embedder     *memory.OpenAIEmbedder
	factStore    *memory.Store
	historyStore *history.Store
	pool         *mcppool.Pool
	graph        *orchestrator.Graph
	workers      []string
	chatService  *chat.Service

	// Services
	httpServer *httpapi.Server
	pruner     *cron.Cron

	// Internal
	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config: cfg,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}

	// Initialize core modules in dependency order
	if err := d.initializeCoreModules(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	d.lifecycle = NewLifecycleManager(cfg.DataDir, log.GetZerolog())

	return d, nil
}

// initializeCoreModules initializes all core modules
func (d *Daemon) initializeCoreModules() error {
	d.metrics = metrics.New()
	d.logger.Info().Msg("Metrics registry initialized")

	provider, err := agent.NewProvider(d.config.LLM.Provider, d.config.LLM.APIKey)
	if err != nil {
		return fmt.Errorf("failed to create llm provider: %w", err)
	}
	d.provider = provider
	d.logger.Info().Str("provider", d.config.LLM.Provider).Str("model", d.config.LLM.Model).Msg("LLM provider initialized")

	if !d.config.Memory.DisableEmbedding {
		embedder, err := memory.NewOpenAIEmbedder(d.config.LLM.APIKey, d.config.LLM.EmbeddingModel, d.config.LLM.EmbeddingDims)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Failed to create embedder, memory search falls back to keyword-only")
		} else {
			d.embedder = embedder
			d.logger.Info().Str("model", d.config.LLM.EmbeddingModel).Msg("Embedding provider initialized")
		}
	}

	dbPath := d.config.Memory.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(d.config.DataDir, "memory.db")
	}
	var embedder memory.EmbeddingProvider
	if d.embedder != nil {
		embedder = d.embedder
	}
	factStore, err := memory.NewStore(memory.StoreConfig{
		DBPath:   dbPath,
		Embedder: embedder,
		Logger:   d.logger.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to open fact store: %w", err)
	}
	d.factStore = factStore
	d.logger.Info().Str("path", dbPath).Msg("Fact store initialized")

	if d.config.History.Enabled {
		historyStore, err := history.NewStore(d.ctx, history.StoreConfig{
			Host:       d.config.History.Host,
			Port:       d.config.History.Port,
			UseTLS:     d.config.History.UseTLS,
			APIKey:     d.config.History.APIKey,
			Collection: d.config.History.Collection,
			Embedder:   embedder,
			Logger:     d.logger.GetZerolog(),
		})
		if err != nil {
			d.logger.Warn().Err(err).Msg("Conversation store unavailable, continuing without chat history")
		} else {
			d.historyStore = historyStore
			d.logger.Info().Str("collection", d.config.History.Collection).Msg("Conversation store initialized")
		}
	}

	servers := make([]mcppool.ServerConfig, 0, len(d.config.ToolServers))
	for _, s := range d.config.ToolServers {
		servers = append(servers, mcppool.ServerConfig{Role: s.Role, Endpoint: s.Endpoint})
	}
	pool, err := mcppool.NewPool(d.ctx, mcppool.PoolConfig{
		Servers: servers,
		Logger:  d.logger.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to create tool client pool: %w", err)
	}
	d.pool = pool
	d.logger.Info().Int("clients", len(pool.Clients())).Msg("Tool client pool initialized")

	if err := d.initializeGraph(); err != nil {
		return err
	}

	chatService, err := chat.NewService(chat.ServiceConfig{
		Graph:          d.graph,
		Workers:        d.workers,
		Facts:          d.factStore,
		Conversations:  d.conversationStore(),
		MaxIterations:  d.config.Orchestrator.MaxIterations,
		SessionTimeout: time.Duration(d.config.Orchestrator.SessionTimeoutSec) * time.Second,
		Logger:         d.logger.GetZerolog(),
		Metrics:        d.metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create chat service: %w", err)
	}
	d.chatService = chatService
	d.logger.Info().Msg("Chat service initialized")

	httpServer, err := httpapi.NewServer(httpapi.ServerConfig{
		Port:    d.config.Server.Port,
		Chat:    chatService,
		Metrics: d.metrics,
		Logger:  d.logger.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}
	d.httpServer = httpServer
	d.logger.Info().Int("port", d.config.Server.Port).Msg("HTTP server initialized")

	if err := d.initializePruner(); err != nil {
		return err
	}

	return nil
}

// initializeGraph builds the supervisor, one worker per configured
// role, and the orchestration graph. Roles whose tool servers expose
// no tools are skipped.
func (d *Daemon) initializeGraph() error {
	var workerNodes []orchestrator.Node

	for _, role := range d.config.Roles() {
		tools, err := d.pool.ToolsForRole(role)
		if err != nil {
			if errors.Is(err, mcppool.ErrNoTools) {
				d.logger.Warn().Str("role", role).Msg("No tools available for role, skipping worker")
				continue
			}
			return fmt.Errorf("failed to list tools for %s: %w", role, err)
		}

		worker, err := orchestrator.NewWorker(orchestrator.WorkerConfig{
			Name:     role,
			Provider: d.provider,
			Model:    d.config.LLM.Model,
			Tools:    tools,
			Caller:   d.pool,
			Logger:   d.logger.GetZerolog(),
			Metrics:  d.metrics,
		})
		if err != nil {
			return fmt.Errorf("failed to create worker %s: %w", role, err)
		}
		workerNodes = append(workerNodes, worker)
		d.workers = append(d.workers, role)
		d.logger.Info().Str("worker", role).Int("tools", len(tools)).Msg("Worker initialized")
	}

	if len(workerNodes) == 0 {
		return fmt.Errorf("no workers available, check tool server connectivity")
	}

	supervisor, err := orchestrator.NewSupervisor(orchestrator.SupervisorConfig{
		Provider: d.provider,
		Model:    d.config.LLM.Model,
		Workers:  d.workers,
		Logger:   d.logger.GetZerolog(),
		Metrics:  d.metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create supervisor: %w", err)
	}

	graph, err := orchestrator.NewGraph(orchestrator.GraphConfig{
		Supervisor: supervisor,
		Workers:    workerNodes,
		Logger:     d.logger.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to create graph: %w", err)
	}
	d.graph = graph
	d.logger.Info().Strs("workers", d.workers).Msg("Orchestration graph initialized")

	return nil
}

// initializePruner schedules the nightly memory prune job when
// configured.
func (d *Daemon) initializePruner() error {
	schedule := d.config.Memory.PruneSchedule
	days := d.config.Memory.PruneAfterDays
	if schedule == "" || days <= 0 {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(d.ctx, 5*time.Minute)
		defer cancel()

		age := time.Duration(days) * 24 * time.Hour
		pruned, err := d.factStore.PruneOlderThan(ctx, age)
		if err != nil {
			d.logger.Error().Err(err).Msg("Memory prune failed")
			return
		}
		d.logger.Info().Int64("pruned", pruned).Int("older_than_days", days).Msg("Memory prune completed")
	})
	if err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	d.pruner = c
	d.logger.Info().Str("schedule", schedule).Msg("Memory pruner initialized")

	return nil
}

func (d *Daemon) conversationStore() chat.ConversationStore {
	if d.historyStore == nil {
		return nil
	}
	return d.historyStore
}

// Chat returns the chat service, for callers that talk to the daemon
// in-process.
func (d *Daemon) Chat() *chat.Service {
	return d.chatService
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.logger.Info().Msg("Starting Selia daemon")

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start http server: %w", err)
	}
	d.logger.Info().Msg("HTTP server started")

	if d.pruner != nil {
		d.pruner.Start()
		d.logger.Info().Msg("Memory pruner started")
	}

	d.logger.Info().Msg("Daemon started successfully")

	return nil
}

// Stop stops the daemon service gracefully. Teardown runs in reverse
// start order.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping Selia daemon")

	if d.pruner != nil {
		<-d.pruner.Stop().Done()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.httpServer.Stop(ctx); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop http server")
	}

	if d.historyStore != nil {
		if err := d.historyStore.Close(); err != nil {
			d.logger.Error().Err(err).Msg("Failed to close conversation store")
		}
	}

	if err := d.factStore.Close(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to close fact store")
	}

	if err := d.pool.Close(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to close tool client pool")
	}

	if err := d.lifecycle.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.cancel()

	d.logger.Info().Msg("Daemon stopped")

	return nil
}

// Status describes the daemon's runtime state
type Status struct {
	Running bool          `json:"running"`
	Uptime  time.Duration `json:"uptime"`
	Workers []string      `json:"workers"`
}

// Status returns the daemon's current status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := Status{
		Running: d.running,
		Workers: append([]string(nil), d.workers...),
	}
	if d.running {
		s.Uptime = time.Since(d.startTime)
	}
	return s
}
