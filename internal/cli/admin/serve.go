package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inkwell-labs/quill/internal/api/handlers"
	"github.com/inkwell-labs/quill/internal/config"
	"github.com/inkwell-labs/quill/internal/database"
	"github.com/inkwell-labs/quill/internal/domain"
	"github.com/inkwell-labs/quill/internal/jobs"
	"github.com/inkwell-labs/quill/internal/openai"
	"github.com/inkwell-labs/quill/internal/repository"
	"github.com/inkwell-labs/quill/internal/server"
	"github.com/inkwell-labs/quill/internal/service"
	"github.com/inkwell-labs/quill/internal/storage"
	"github.com/inkwell-labs/quill/internal/telemetry"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the quill API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	docRepo := repository.NewDocumentRepository(pool)
	segmentRepo := repository.NewSegmentRepository(pool)
	indexJobRepo := repository.NewIndexJobRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(userRepo, apiKeyRepo, uuidGen)

	if cfg.InitUserName != "" {
		if err := bootstrapInitialUser(ctx, cfg, authSvc, userRepo); err != nil {
			return fmt.Errorf("failed to bootstrap initial user: %w", err)
		}
	}

	var storageClient service.StorageClientInterface
	if cfg.HasS3() {
		s3Config := storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		}
		s3Client, err := storage.NewS3Client(ctx, s3Config)
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		storageClient = &S3StorageAdapter{client: s3Client}
	}

	docSvc := service.NewDocumentServiceWithStorage(docRepo, indexJobRepo, storageClient, txRunner, cfg.MessagePageMax)
	messageSvc := service.NewMessageService(messageRepo, docRepo, cfg.MessagePageMax)

	var generatorSvc *service.GeneratorService
	var indexWorker *jobs.Worker
	if cfg.HasOpenAI() {
		openaiClient := openai.NewClient(cfg.OpenAIAPIKey)

		indexerSvc := service.NewIndexerServiceWithTx(openaiClient, docRepo, segmentRepo, txRunner)
		indexProcessor := jobs.NewIndexWorker(indexJobRepo, indexerSvc)
		indexWorker = jobs.NewWorker(indexProcessor, 10*time.Second)
		go indexWorker.Start(ctx)
		log.Println("index worker started")

		retrieverSvc := service.NewRetrieverService(segmentRepo)
		generatorSvc = service.NewGeneratorService(
			openaiClient,
			openaiClient,
			retrieverSvc,
			messageRepo,
			cfg.RetrievalTopK,
			cfg.HistoryTurns,
		)
	}

	documentHandler := handlers.NewDocumentHandler(docSvc)

	var messageHandler *handlers.MessageHandler
	if generatorSvc != nil {
		messageHandler = handlers.NewMessageHandler(messageSvc, generatorSvc)
	} else {
		messageHandler = handlers.NewMessageHandler(messageSvc, &NoOpAnswerGenerator{})
	}

	routerCfg := server.RouterConfig{
		AuthValidator:   authSvc,
		DocumentHandler: documentHandler,
		MessageHandler:  messageHandler,
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if indexWorker != nil {
		indexWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

type S3StorageAdapter struct {
	client *storage.S3Client
}

func (a *S3StorageAdapter) GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error) {
	return a.client.GenerateUploadURL(ctx, key, contentType)
}

func (a *S3StorageAdapter) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	return a.client.GenerateDownloadURL(ctx, key)
}

func (a *S3StorageAdapter) DeleteObject(ctx context.Context, key string) error {
	return a.client.DeleteObject(ctx, key)
}

func (a *S3StorageAdapter) HeadObject(ctx context.Context, key string) (*service.ObjectMetadata, error) {
	meta, err := a.client.HeadObject(ctx, key)
	if err != nil {
		return nil, err
	}
	return &service.ObjectMetadata{
		ContentLength: meta.ContentLength,
		ContentType:   meta.ContentType,
		ETag:          meta.ETag,
	}, nil
}

type NoOpAnswerGenerator struct{}

func (g *NoOpAnswerGenerator) Answer(ctx context.Context, input service.AnswerInput, emit func(fragment string) error) (*domain.Message, error) {
	return nil, domain.NewDomainError(domain.ErrCodeUnavailable, "answer generation not configured: OPENAI_API_KEY required")
}

func bootstrapInitialUser(ctx context.Context, cfg *config.Config, authSvc *service.AuthService, userRepo *repository.UserRepository) error {
	user, err := userRepo.GetByName(ctx, cfg.InitUserName)
	if err != nil && err != domain.ErrUserNotFound {
		return fmt.Errorf("failed to check existing user: %w", err)
	}

	if user == nil {
		user, err = authSvc.CreateUser(ctx, cfg.InitUserName, "")
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		log.Printf("bootstrap: created user '%s' (id: %s)", user.Name, user.ID)
	} else {
		log.Printf("bootstrap: user '%s' already exists (id: %s)", user.Name, user.ID)
	}

	if cfg.InitAPIKey != "" {
		if !service.IsValidAPIToken(cfg.InitAPIKey) {
			return fmt.Errorf("invalid QUILL_INIT_API_KEY format (expected 'qll_<64 hex chars>')")
		}

		if _, err := authSvc.ValidateAPIKey(ctx, cfg.InitAPIKey); err == nil {
			log.Printf("bootstrap: API key already exists")
			return nil
		}

		if err := authSvc.CreateAPIKeyWithToken(ctx, user.ID, "bootstrap", cfg.InitAPIKey); err != nil {
			return fmt.Errorf("failed to create API key: %w", err)
		}
		log.Printf("bootstrap: created API key")
	}

	return nil
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	// Create postgres driver instance
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Create migrate instance with file source
	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Run migrations
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Get migration version and status
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
