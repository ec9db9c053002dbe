package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/josedcape/codestorm-preeliminar/internal/agent"
	"github.com/josedcape/codestorm-preeliminar/internal/build"
	"github.com/josedcape/codestorm-preeliminar/internal/cache"
	"github.com/josedcape/codestorm-preeliminar/internal/commands"
	"github.com/josedcape/codestorm-preeliminar/internal/config"
	"github.com/josedcape/codestorm-preeliminar/internal/conversation"
	"github.com/josedcape/codestorm-preeliminar/internal/documents"
	"github.com/josedcape/codestorm-preeliminar/internal/history"
	"github.com/josedcape/codestorm-preeliminar/internal/llm/configbuilder"
	"github.com/josedcape/codestorm-preeliminar/internal/observability"
	"github.com/josedcape/codestorm-preeliminar/internal/router"
	"github.com/josedcape/codestorm-preeliminar/internal/rpc"
	chatrpc "github.com/josedcape/codestorm-preeliminar/internal/rpc/chat"
	"github.com/josedcape/codestorm-preeliminar/internal/rpc/constructor"
	docsrpc "github.com/josedcape/codestorm-preeliminar/internal/rpc/documents"
	"github.com/josedcape/codestorm-preeliminar/internal/rpc/workspace"
	"github.com/josedcape/codestorm-preeliminar/internal/storage"
	"github.com/josedcape/codestorm-preeliminar/internal/tools"
	"github.com/josedcape/codestorm-preeliminar/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Server hosts the chat, workspace and constructor APIs.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics

	db       *gorm.DB
	cache    cache.Cache
	sessions *conversation.Store
	agent    *agent.Agent
	runner   chatrpc.Runner
	tools    *tools.Registry
	exec     *commands.Executor
	builder  *build.Builder
	docs     *documents.Store

	closeOnce sync.Once
}

// NewServer wires every component from cfg. Close releases them when Run is
// not used.
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}
	if err := s.init(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) init(ctx context.Context) error {
	cfg := s.cfg

	db, err := storage.Open(cfg.Builder.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	s.db = db
	s.cache = cache.New(ctx, cfg.Cache, s.logger.Named("cache"))

	registry, err := configbuilder.BuildRegistryFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}
	rt, err := router.FromConfig(cfg.Router, s.logger, s.metrics)
	if err != nil {
		return err
	}

	sandbox, err := tools.NewSandbox(cfg.Sandbox.WorkingDir, cfg.Sandbox, cfg.Tools)
	if err != nil {
		return fmt.Errorf("build sandbox: %w", err)
	}
	s.tools = tools.FromSandbox(sandbox)

	recorder, err := history.NewGormRecorder(db)
	if err != nil {
		return err
	}
	s.exec = commands.NewExecutor(s.tools, recorder, s.metrics, s.logger)

	s.sessions = conversation.NewStore()
	s.agent = agent.New(agent.Deps{
		Strategy: agent.NewStrategyEngine(registry, cfg.Strategy),
		Router:   rt,
		Sessions: s.sessions,
		Executor: s.exec,
		Logger:   s.logger,
		Metrics:  s.metrics,
	}, cfg.Chat)
	s.runner = chatrpc.NewAgentRunner(s.agent, s.logger)

	s.docs, err = documents.NewStore(cfg.Documents.Dir, cfg.Documents.MaxUploadBytes)
	if err != nil {
		return fmt.Errorf("documents store: %w", err)
	}

	s.builder, err = newBuilder(cfg, sandbox.Terminal, db, s.logger, s.metrics)
	return err
}

// newBuilder gives the builder its own writable workspace. The install step
// reuses the sandbox terminal rules from inside that workspace.
func newBuilder(cfg *config.Config, term *tools.Terminal, db *gorm.DB, logger *zap.Logger, metrics *observability.Metrics) (*build.Builder, error) {
	fs, err := tools.NewFilesystem(cfg.Builder.WorkspaceDir, true)
	if err != nil {
		return nil, fmt.Errorf("build workspace: %w", err)
	}
	store, err := build.NewStore(db)
	if err != nil {
		return nil, err
	}
	var buildTerm *tools.Terminal
	if term != nil {
		t := *term
		t.WorkingDir = fs.Base()
		buildTerm = &t
	}
	return build.New(build.Options{
		Store:     store,
		FS:        fs,
		Terminal:  buildTerm,
		StepDelay: cfg.Builder.StepDelay,
		Logger:    logger,
		Metrics:   metrics,
	})
}

// Handler returns the daemon's routes. Connect streaming needs h2c unless the
// transport is ndjson.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /metrics", s.metricsHandler)

	chatrpc.NewAPI(s.agent, s.logger).WithDocuments(s.docs).Register(mux)
	docsrpc.NewHandler(s.docs, s.logger).Register(mux)
	mux.Handle("/api/chat/stream", chatrpc.NewStreamHandler(s.runner, s.metrics))

	ndjsonOnly := strings.EqualFold(strings.TrimSpace(s.cfg.Server.Transport), "ndjson")
	if !ndjsonOnly {
		path, handler := chatrpc.NewConnectHandler(s.runner, s.metrics)
		mux.Handle(path, handler)
	}

	workspace.NewHandler(workspace.Options{
		Tools:    s.tools,
		Executor: s.exec,
		Cache:    s.cache,
		CacheTTL: s.cfg.Cache.TTL,
		Logger:   s.logger,
	}).Register(mux)

	constructor.NewHandler(s.builder, constructor.Options{
		Logger:    s.logger,
		Metrics:   s.metrics,
		Websocket: s.cfg.Server.WebsocketEnabled,
	}).Register(mux)

	if ndjsonOnly {
		return mux
	}
	return h2c.NewHandler(mux, &http2.Server{})
}

// Run serves until ctx ends or the listener fails, then shuts down and
// releases every component.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	server := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("starting codestorm daemon",
			zap.String("addr", s.cfg.Server.Addr),
			zap.String("transport", s.cfg.Server.Transport),
			zap.String("store", s.cfg.Builder.Store.Driver),
			zap.String("workspace", s.tools.Root()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.sessions.RunJanitor(gctx, 0, s.cfg.Chat.SessionTTL, func(n int) {
			s.logger.Debug("pruned idle sessions", zap.Int("count", n))
		})
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down codestorm daemon")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Close stops running builds and releases the cache and database.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		if s.builder != nil {
			s.builder.Close()
		}
		if s.cache != nil {
			if err := s.cache.Close(); err != nil {
				s.logger.Warn("close cache", zap.Error(err))
			}
		}
		if err := storage.Close(s.db); err != nil {
			s.logger.Warn("close store", zap.Error(err))
		}
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	rpc.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": version.Get()})
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.MetricsEnabled {
		http.NotFound(w, r)
		return
	}
	promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
