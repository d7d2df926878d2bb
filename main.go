package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ddsprasad/data-sense-ai/pkg/adapters/datasource"
	_ "github.com/ddsprasad/data-sense-ai/pkg/adapters/datasource/mssql"
	_ "github.com/ddsprasad/data-sense-ai/pkg/adapters/datasource/postgres"
	"github.com/ddsprasad/data-sense-ai/pkg/catalog"
	"github.com/ddsprasad/data-sense-ai/pkg/config"
	"github.com/ddsprasad/data-sense-ai/pkg/handlers"
	"github.com/ddsprasad/data-sense-ai/pkg/llm"
	"github.com/ddsprasad/data-sense-ai/pkg/logging"
	"github.com/ddsprasad/data-sense-ai/pkg/mcp"
	"github.com/ddsprasad/data-sense-ai/pkg/mcp/tools"
	"github.com/ddsprasad/data-sense-ai/pkg/middleware"
	"github.com/ddsprasad/data-sense-ai/pkg/prompts"
	"github.com/ddsprasad/data-sense-ai/pkg/rules"
	"github.com/ddsprasad/data-sense-ai/pkg/services"
	"github.com/ddsprasad/data-sense-ai/pkg/topics"
)

// Version is set at build time via ldflags
var Version = "dev"

// maxCachedResolutions bounds the response cache.
const maxCachedResolutions = 1024

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("datasource", cfg.Datasource.Type),
		zap.String("database", fmt.Sprintf("%s@%s:%d/%s", cfg.Datasource.User, cfg.Datasource.Host, cfg.Datasource.Port, cfg.Datasource.Database)),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.String("dialect", cfg.Pipeline.Dialect),
		zap.String("topics_embedder", cfg.Topics.Embedder))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	knowledge, err := config.LoadKnowledge(cfg.Knowledge)
	if err != nil {
		return fmt.Errorf("load knowledge: %w", err)
	}
	for _, w := range knowledge.Warnings {
		logger.Warn(w)
	}
	ruleStore := rules.NewStore(knowledge.RulesVersion, knowledge.Rules)

	dsConfig := cfg.Datasource.Map()
	checkWarehouse(ctx, cfg, dsConfig, logger)

	reader, err := datasource.NewCatalogReader(ctx, cfg.Datasource.Type, dsConfig)
	if err != nil {
		return fmt.Errorf("create catalog reader: %w", err)
	}
	defer reader.Close()

	executor, err := datasource.NewQueryExecutor(ctx, cfg.Datasource.Type, dsConfig)
	if err != nil {
		return fmt.Errorf("create query executor: %w", err)
	}
	defer executor.Close()

	catalogStore := catalog.NewStore(catalog.NewBuilder(reader, catalog.BuilderConfig{
		SampleRows: cfg.Pipeline.SampleRows,
		CachePath:  cfg.Debug.CatalogCachePath,
	}, logger))

	// The service starts without a catalog when the warehouse is down;
	// questions fail as catalog-unavailable until a refresh succeeds.
	refreshCtx, cancel := context.WithTimeout(ctx, cfg.Pipeline.CatalogTimeout)
	if err := catalogStore.Refresh(refreshCtx); err != nil {
		logger.Warn("Initial catalog build failed", zap.String("error", logging.SanitizeError(err)))
	}
	cancel()

	providerCfg := llm.ProviderConfig{
		Provider:          cfg.LLM.Provider,
		Endpoint:          cfg.LLM.Endpoint,
		Model:             cfg.LLM.Model,
		APIVersion:        cfg.LLM.APIVersion,
		APIKey:            cfg.LLM.APIKey,
		Temperature:       cfg.LLM.Temperature,
		MaxTokens:         cfg.LLM.MaxTokens,
		Timeout:           cfg.LLM.Timeout,
		MaxRetries:        cfg.LLM.MaxRetries,
		RetryDelay:        cfg.LLM.RetryDelay,
		BreakerThreshold:  cfg.LLM.BreakerThreshold,
		BreakerResetAfter: cfg.LLM.BreakerResetAfter,
	}
	provider, err := llm.NewProvider(providerCfg, logger)
	if err != nil {
		return err
	}
	generator := llm.NewGenerator(provider, providerCfg.GeneratorConfig(prompts.SystemMessage), logger)
	pool := llm.NewWorkerPool(llm.WorkerPoolConfig{MaxConcurrent: cfg.Pipeline.MaxConcurrent}, logger)

	index, err := buildTopicIndex(ctx, cfg, knowledge.Topics, provider, pool, logger)
	if err != nil {
		logger.Warn("Topic index degraded, lookups will use default tables", zap.Error(err))
	}

	resolver := services.NewResolverService(
		catalogStore,
		index,
		generator,
		executor,
		services.NewResponseCache(cfg.Pipeline.CacheTTL, maxCachedResolutions),
		pool,
		services.ResolverConfig{
			Dialect:        cfg.Pipeline.Dialect,
			MaxAttempts:    cfg.Pipeline.MaxAttempts,
			MaxRows:        cfg.Pipeline.MaxRows,
			DisplayRows:    cfg.Pipeline.DisplayRows,
			ExecuteTimeout: cfg.Pipeline.ExecuteTimeout,
			Rules:          ruleStore,
			Temporal:       knowledge.Temporal,
		},
		logger)

	sessionKey := cfg.SessionKey
	if sessionKey == "" {
		sessionKey, err = randomKey()
		if err != nil {
			return fmt.Errorf("generate session key: %w", err)
		}
		logger.Warn("SESSION_KEY not set, conversations will not survive a restart")
	}
	sessionStore := handlers.NewSessionStore(sessionKey, cfg.Env != "local", cfg.Pipeline.ConversationTTL)
	conversations := handlers.NewConversationStore(cfg.Pipeline.ConversationTTL)

	mcpServer := mcp.NewServer("data-sense-ai", cfg.Version, logger)
	tools.RegisterQuestionTools(mcpServer.MCP(), &tools.ToolDeps{Resolver: resolver, Logger: logger})
	tools.RegisterHealthTool(mcpServer.MCP(), cfg.Version, resolver)

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, resolver, logger).RegisterRoutes(mux)
	handlers.NewQuestionHandler(resolver, conversations, sessionStore, logger).RegisterRoutes(mux)
	handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = middleware.Timeout(cfg.Pipeline.RequestTimeout)(handler)
	handler = middleware.RequestLogger(logger)(handler)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting data-sense-ai",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// checkWarehouse logs whether the warehouse accepts the configured
// credentials. Startup continues either way.
func checkWarehouse(ctx context.Context, cfg *config.Config, dsConfig map[string]any, logger *zap.Logger) {
	var types []string
	for _, info := range datasource.RegisteredAdapters() {
		types = append(types, info.Type)
	}
	logger.Debug("Datasource adapters registered", zap.Strings("types", types))

	tester, err := datasource.NewConnectionTester(ctx, cfg.Datasource.Type, dsConfig)
	if err != nil {
		logger.Warn("Cannot create warehouse connection tester", zap.String("error", logging.SanitizeError(err)))
		return
	}
	defer tester.Close()

	testCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Datasource.ConnectionTimeoutSec)*time.Second)
	defer cancel()
	if err := tester.TestConnection(testCtx); err != nil {
		logger.Warn("Warehouse connection test failed", zap.String("error", logging.SanitizeError(err)))
		return
	}
	logger.Info("Warehouse reachable", zap.String("type", cfg.Datasource.Type))
}

func buildTopicIndex(ctx context.Context, cfg *config.Config, entries []topics.Entry, provider llm.Provider, pool *llm.WorkerPool, logger *zap.Logger) (*topics.Index, error) {
	var embedder topics.Embedder = topics.NewLexicalEmbedder(0)
	if cfg.Topics.Embedder == "openai" {
		client, ok := provider.(llm.Embedder)
		if ok {
			embedder = topics.NewRemoteEmbedder(client, cfg.LLM.EmbeddingModel, 0, pool)
		} else {
			logger.Warn("LLM provider has no embeddings endpoint, using lexical topic matching",
				zap.String("provider", provider.Name()))
		}
	}

	buildCtx, cancel := context.WithTimeout(ctx, cfg.Pipeline.CatalogTimeout)
	defer cancel()
	return topics.Build(buildCtx, topics.Config{
		Fanout:        cfg.Topics.Fanout,
		Threshold:     cfg.Topics.Threshold,
		DefaultTables: cfg.Topics.DefaultTables,
	}, embedder, entries, logger)
}

func randomKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
