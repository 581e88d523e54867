package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/lumina-data/lumina-engine/pkg/config"
	"github.com/lumina-data/lumina-engine/pkg/crypto"
	"github.com/lumina-data/lumina-engine/pkg/database"
	"github.com/lumina-data/lumina-engine/pkg/datasource"
	dspostgres "github.com/lumina-data/lumina-engine/pkg/datasource/postgres"
	"github.com/lumina-data/lumina-engine/pkg/handlers"
	"github.com/lumina-data/lumina-engine/pkg/llm"
	"github.com/lumina-data/lumina-engine/pkg/repositories"
	"github.com/lumina-data/lumina-engine/pkg/services"
	"github.com/lumina-data/lumina-engine/pkg/vector"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", cfg.Database.Host),
		zap.String("vector_store", cfg.Vector.Host),
		zap.String("llm_model", cfg.AI.LLMModel))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Migrations run over database/sql; the pool below uses pgx natively.
	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(migrationDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = migrationDB.Close()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	encryptor, err := crypto.NewCredentialEncryptor(cfg.CredentialsKey)
	if err != nil {
		logger.Fatal("Failed to initialize credential encryption", zap.Error(err))
	}

	generationClient, embeddingClient, err := llm.NewFromConfig(&cfg.AI, logger)
	if err != nil {
		logger.Fatal("Failed to initialize LLM clients", zap.Error(err))
	}

	store, err := vector.NewQdrantStore(&vector.QdrantConfig{
		Host:       cfg.Vector.Host,
		Port:       cfg.Vector.Port,
		APIKey:     cfg.Vector.APIKey,
		UseTLS:     cfg.Vector.UseTLS,
		Collection: cfg.Vector.Collection,
		Dimension:  cfg.Vector.Dimension,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to connect to vector store", zap.Error(err))
	}
	vectorManager := vector.NewManager(store, embeddingClient, cfg.AI.EmbeddingModel, logger)

	connRepo := repositories.NewConnectionRepository(db)
	insightRepo := repositories.NewInsightRepository(db)
	chatRepo := repositories.NewChatRepository(db)

	workerPool := llm.NewWorkerPool(llm.WorkerPoolConfig{
		MaxConcurrent: cfg.Analysis.AdvisoryConcurrency,
	}, logger)
	decider := services.NewStrategyDecider(services.StrategyDeciderConfig{
		CategoryThreshold: cfg.Analysis.CategoryThreshold,
		AdvisoryEnabled:   cfg.Analysis.AdvisoryEnabled,
		Temperature:       cfg.AI.Temperature,
	}, generationClient, workerPool, logger)

	extractorCfg := dspostgres.ExtractorConfig{
		CategoryThreshold: cfg.Analysis.CategoryThreshold,
		SampleSize:        cfg.Analysis.SampleSize,
		StatsTimeout:      time.Duration(cfg.Analysis.StatsTimeoutSeconds) * time.Second,
	}
	newExtractor := func(ctx context.Context, params *datasource.ConnParams) (datasource.Extractor, error) {
		return dspostgres.NewExtractor(ctx, params, extractorCfg, logger)
	}
	newExecutor := func(ctx context.Context, params *datasource.ConnParams) (datasource.Executor, error) {
		return dspostgres.NewExecutor(ctx, params)
	}

	analysisSvc := services.NewAnalysisService(
		cfg.Analysis, connRepo, insightRepo, decider, vectorManager, encryptor, newExtractor, logger)
	agentSvc := services.NewAgentService(
		cfg.Analysis, cfg.AI.Temperature, connRepo, chatRepo, vectorManager, generationClient, encryptor, newExecutor, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewConnectionHandler(connRepo, analysisSvc, encryptor, logger).RegisterRoutes(mux)
	handlers.NewChatHandler(agentSvc, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:    cfg.BindAddr + ":" + cfg.Port,
		Handler: mux,
	}

	go func() {
		logger.Info("Starting lumina-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
