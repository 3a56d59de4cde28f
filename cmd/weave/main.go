package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	app "github.com/weave-services/weave/engine"
	"github.com/weave-services/weave/engine/internal/config"
	"github.com/weave-services/weave/engine/internal/dispatch"
	"github.com/weave-services/weave/engine/internal/events"
	"github.com/weave-services/weave/engine/internal/executor"
	"github.com/weave-services/weave/engine/internal/server"
	"github.com/weave-services/weave/engine/internal/state"
	"github.com/weave-services/weave/engine/internal/store"
	"github.com/weave-services/weave/engine/pkg/api"
	"github.com/weave-services/weave/engine/pkg/log"
)

type weave struct {
	cfg        *config.Config
	rdb        *redis.Client
	stateStore *state.Store
	execStore  store.ExecutionStore
	archiver   *store.Archiver
	chatModel  model.BaseChatModel
	queue      *dispatch.Queue
	hub        *events.Hub
	apiServer  *server.Server
	httpServer *http.Server
	quit       chan os.Signal
}

var (
	ErrConnectRedis = errors.New("failed to connect to redis")
	ErrConnectMongo = errors.New("failed to connect to mongo")
	ErrOpenArchive  = errors.New("failed to open archive bucket")
	ErrCreateModel  = errors.New("failed to create chat model")
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func main() {
	_ = godotenv.Load()

	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}

	s := &weave{
		cfg:  cfg,
		quit: make(chan os.Signal, 1),
	}
	s.setupLogging()

	if err := s.run(); err != nil {
		slog.Error("Failed to start application", log.Error(err))
		os.Exit(1)
	}
}

func (s *weave) run() error {
	if err := s.initializeStores(); err != nil {
		return err
	}
	if err := s.initializeChatModel(); err != nil {
		return err
	}
	s.startServer()

	signal.Notify(s.quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(s.quit)
	<-s.quit

	s.shutdown()
	return nil
}

func (s *weave) setupLogging() {
	level, ok := logLevels[s.cfg.LogLevel]
	if !ok {
		level = slog.LevelInfo
	}

	env := os.Getenv("ENV")
	logger := log.NewWithLevel(app.Name, env, app.Version, level)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	slog.Info("Weave Engine starting",
		slog.String("log_level", s.cfg.LogLevel))

	slog.Info("Configuration loaded",
		slog.String("redis_addr", s.cfg.Redis.Addr),
		slog.Int("redis_db", s.cfg.Redis.DB),
		slog.Bool("mongo_enabled", s.cfg.Mongo.URI != ""),
		slog.Bool("archive_enabled", s.cfg.Archive.BucketURL != ""),
		slog.Bool("chat_enabled", s.cfg.Chat.APIKey != ""),
		slog.String("api_host", s.cfg.APIHost),
		slog.Int("api_port", s.cfg.APIPort))
}

func (s *weave) initializeStores() error {
	ctx := context.Background()

	s.rdb = redis.NewClient(&redis.Options{
		Addr:     s.cfg.Redis.Addr,
		Password: s.cfg.Redis.Password,
		DB:       s.cfg.Redis.DB,
	})
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectRedis, err)
	}
	s.stateStore = state.New(s.rdb, s.cfg.Redis.Prefix, s.cfg.Redis.TTL)

	if s.cfg.Mongo.URI != "" {
		mongoStore, err := store.NewMongoStore(ctx, s.cfg.Mongo)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrConnectMongo, err)
		}
		s.execStore = mongoStore
	} else {
		slog.Warn("No Mongo URI configured, storing executions in memory")
		s.execStore = store.NewMemoryStore()
	}

	if s.cfg.Archive.BucketURL != "" {
		archiver, err := store.NewArchiver(ctx, s.cfg.Archive)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrOpenArchive, err)
		}
		s.archiver = archiver
	}

	return nil
}

func (s *weave) initializeChatModel() error {
	if s.cfg.Chat.APIKey == "" {
		slog.Warn("No chat API key configured, chat nodes disabled")
		return nil
	}

	chatModel, err := openai.NewChatModel(
		context.Background(), &openai.ChatModelConfig{
			APIKey:  s.cfg.Chat.APIKey,
			BaseURL: s.cfg.Chat.BaseURL,
			Model:   s.cfg.Chat.Model,
		},
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreateModel, err)
	}
	s.chatModel = chatModel
	return nil
}

func (s *weave) startServer() {
	s.queue = dispatch.NewQueue(s.cfg.TaskTimeout, s.cfg.QueueBatchSize)
	s.queue.Start()

	s.hub = events.NewHub()

	reg := executor.NewRegistry(s.cfg.NodeTimeout)
	reg.Register(api.NodeTypeHTTP,
		executor.NewHTTPInvoker(s.cfg.NodeTimeout).Handler())
	reg.Register(api.NodeTypeScript, executor.NewLuaEnv().Handler())
	reg.Register(api.NodeTypeTransform, executor.NewTransformHandler())
	reg.Register(api.NodeTypeChat,
		executor.NewChatRunner(s.chatModel, s.cfg.Chat.Model).Handler())

	s.apiServer = server.NewServer(server.Options{
		Executor:   reg,
		State:      s.stateStore,
		Executions: s.execStore,
		Archiver:   s.archiver,
		Queue:      s.queue,
		Hub:        s.hub,
	})
	mux := s.apiServer.SetupRoutes()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.APIHost, s.cfg.APIPort),
		Handler: mux,
	}

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", log.Error(err))
		}
	}()
}

func (s *weave) shutdown() {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", log.Error(err))
	}

	s.apiServer.CloseWebSockets()
	s.hub.Close()
	s.queue.Flush()

	if err := s.execStore.Close(ctx); err != nil {
		slog.Error("Execution store shutdown failed", log.Error(err))
	}
	if s.archiver != nil {
		if err := s.archiver.Close(); err != nil {
			slog.Error("Archive shutdown failed", log.Error(err))
		}
	}
	_ = s.rdb.Close()

	slog.Info("Server exited")
}
