package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "taskagent/docs"
	"taskagent/internal/agent"
	"taskagent/internal/config"
	"taskagent/internal/embeddings"
	"taskagent/internal/guardrails"
	"taskagent/internal/handlers"
	"taskagent/internal/llm"
	"taskagent/internal/pdf"
	"taskagent/internal/ratelimit"
	"taskagent/internal/repositories"
	"taskagent/internal/routes"
	"taskagent/internal/services"
	"taskagent/internal/tools"
)

// App holds the wired object graph shared by every command.
type App struct {
	Config        *config.Config
	Logger        *zap.Logger
	DB            *sql.DB
	Tasks         services.TaskService
	Engine        *agent.Engine
	Notifications *services.NotificationService
	// Syncer and Index are nil when the semantic index is disabled.
	Syncer *embeddings.Syncer
	Index  *embeddings.SQLiteIndex
	// Telegram is nil when no bot token is configured.
	Telegram *services.TelegramService

	limiter ratelimit.Limiter
	redis   *redis.Client
	chat    services.ChatMemory
	links   repositories.TelegramLinkRepository
	users   repositories.UserRepository
}

// New connects the stores and builds every service. Close releases them.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	a := &App{Config: cfg, Logger: logger}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, logger := a.Config, a.Logger

	// === DB ===
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.DB = db
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if err := repositories.EnsureSchema(ctx, db); err != nil {
		return err
	}

	// === Repos ===
	taskRepo := repositories.NewTaskRepository(db)
	messageRepo := repositories.NewMessageRepository(db)
	a.users = repositories.NewUserRepository(db)
	a.links = repositories.NewTelegramLinkRepository(db)

	// === Rate limiting ===
	switch cfg.RateLimit.Backend {
	case "redis":
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RateLimit.RedisAddr, DB: cfg.RateLimit.RedisDB})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis %s: %w", cfg.RateLimit.RedisAddr, err)
		}
		a.limiter = ratelimit.NewRedisLimiter(a.redis, cfg.RateLimit.KeyPrefix)
	default:
		a.limiter = ratelimit.NewMemoryLimiter()
	}

	// === Gemini ===
	client, err := llm.NewClient(ctx, cfg.Gemini.APIKey)
	if err != nil {
		return err
	}

	// === Semantic index ===
	var (
		indexer services.TaskIndexer
		related tools.RelatedFinder
	)
	if cfg.Index.Path != "" {
		embedder, err := embeddings.NewGenAIEmbedder(client, cfg.Gemini.EmbeddingModel)
		if err != nil {
			return err
		}
		if err := a.openIndex(ctx, embedder); err != nil {
			return err
		}
		indexer = a.Syncer
		related = embeddings.NewSearch(embedder, a.Index)
	} else {
		logger.Info("[app] semantic index disabled")
	}

	// === Services ===
	a.Tasks = services.NewTaskService(taskRepo, indexer, logger)
	a.chat = services.NewChatMemory(messageRepo, cfg.Agent.HistoryLimit)
	registry := tools.NewRegistry(a.Tasks, related, cfg.Index.TopK, logger)
	interpreter := llm.NewGeminiInterpreter(client, cfg.Gemini.Model, cfg.Gemini.Temperature)
	a.Engine = agent.NewEngine(interpreter, registry, a.chat, a.limiter, guardrails.New(logger), logger, agent.Config{
		MaxRounds:   cfg.Agent.MaxToolRounds,
		TurnTimeout: cfg.Agent.TurnTimeout,
		Policy:      ratelimit.AgentPolicy,
	})

	var sender services.ChatSender
	if cfg.Telegram.BotToken != "" {
		a.Telegram, err = services.NewTelegramService(cfg.Telegram.BotToken, logger)
		if err != nil {
			return err
		}
		sender = a.Telegram
	}

	emailService := services.NewEmailService(
		cfg.Email.SMTPHost,
		cfg.Email.SMTPPort,
		cfg.Email.SMTPUser,
		cfg.Email.SMTPPassword,
		cfg.Email.FromEmail,
		cfg.Email.ReplyTo,
	)
	a.Notifications = services.NewNotificationService(
		a.users,
		a.Tasks,
		emailService,
		llm.NewSummarizer(client, cfg.Gemini.Model),
		sender,
		logger,
		cfg.Notifications.Concurrency,
	)
	return nil
}

func (a *App) openIndex(ctx context.Context, embedder embeddings.Embedder) error {
	idx, err := embeddings.OpenSQLiteIndex(ctx, a.Config.Index.Path)
	if err != nil {
		return err
	}
	a.Index = idx

	sc := embeddings.DefaultSyncerConfig()
	sc.Workers = a.Config.Index.Workers
	sc.QueueSize = a.Config.Index.QueueSize
	sc.Retries = a.Config.Index.MaxRetries
	a.Syncer = embeddings.NewSyncer(sc, embedder, idx, a.Logger)
	return nil
}

// Router builds the HTTP surface.
func (a *App) Router() *gin.Engine {
	if !a.Config.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(a.Logger))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	h := routes.Handlers{
		Chat:    handlers.NewChatHandler(a.Engine, a.chat, a.Logger),
		Tasks:   handlers.NewTaskHandler(a.Tasks, a.Logger),
		Reports: handlers.NewReportHandler(a.Tasks, pdf.NewReportGenerator(a.Config.Report.FontPath), a.Logger),
	}
	if a.Telegram != nil {
		h.Integrations = handlers.NewIntegrationsHandler(a.Config.Telegram.WebhookSecret, a.Telegram, a.links, a.users, a.Engine, a.Logger)
	}
	return routes.SetupRoutes(router, h, []byte(a.Config.Auth.JWTSecret), a.limiter, a.Logger)
}

// Server wraps the router in an http.Server bound to the configured port.
func (a *App) Server() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Close releases the stores. It is safe on a partially built App.
func (a *App) Close() error {
	var errs []error
	if a.Index != nil {
		errs = append(errs, a.Index.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("[http]",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Retry-After, X-RateLimit-Remaining, X-RateLimit-Reset")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
