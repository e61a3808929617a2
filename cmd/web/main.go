package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"certprep/internal/app"
	"certprep/internal/app/observability"
	"certprep/internal/assistant"
	"certprep/internal/content"
	"certprep/internal/db"
	"certprep/internal/exam"
	"certprep/internal/identity"
	"certprep/internal/quiz"
	"certprep/internal/report"
	"certprep/internal/results"
)

func main() {
	app.LoadDotEnv()
	cfg := app.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		log.Printf("config error: %v", err)
		os.Exit(1)
	}
	dbConn, err := db.Open(ctx, driver, cfg.DBDSN, db.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifeMins) * time.Minute,
	})
	if err != nil {
		log.Printf("database error: %v", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	store := results.NewSQLStore(dbConn)
	publisher, err := results.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		log.Printf("amqp error: %v", err)
		os.Exit(1)
	}
	defer publisher.Close()

	dirSource := content.NewDirSource(cfg.ContentDir)
	var upstream content.Source = dirSource
	if cfg.ContentBaseURL != "" {
		upstream = content.NewHTTPSource(content.HTTPSourceConfig{
			BaseURL:    cfg.ContentBaseURL,
			AuthHeader: cfg.ContentAuthHeader,
		})
	}
	var cacheClient redis.Cmdable
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("redis unavailable, content cache limited to request coalescing: %v", err)
		}
		cacheClient = rdb
	}
	source := content.NewCachedSource(upstream, cacheClient, cfg.ContentCacheTTL)

	ai := assistant.NewService(assistant.ServiceConfig{
		GeminiAPIKey: cfg.GeminiAPIKey,
		GeminiModel:  cfg.GeminiModel,
		LLMBaseURL:   cfg.LLMBaseURL,
		LLMAPIKey:    cfg.LLMAPIKey,
		LLMModel:     cfg.LLMModel,
	})
	log.Printf("assistant source: %s", ai.Source())

	secret := cfg.JWTSecret
	if secret == "" {
		if cfg.IsProduction() {
			log.Printf("config error: JWT_SECRET is required in production")
			os.Exit(1)
		}
		secret = "certprep-dev-secret-change-me"
	}
	var devAccounts []identity.DevAccount
	if cfg.DevLoginUser != "" && cfg.DevLoginPasswordHash != "" {
		devAccounts = append(devAccounts, identity.DevAccount{
			Username:     cfg.DevLoginUser,
			PasswordHash: cfg.DevLoginPasswordHash,
			Role:         identity.RoleAdmin,
		})
	}
	ids, err := identity.NewService(identity.Config{Secret: secret, DevAccounts: devAccounts})
	if err != nil {
		log.Printf("identity error: %v", err)
		os.Exit(1)
	}

	collector := observability.NewCollector(dbConn)
	svc := exam.NewService(exam.ServiceConfig{
		Source:    source,
		Explainer: ai,
		Sink:      results.Fanout{store, publisher},
		Policy:    quiz.Policy{MaxAttempts: cfg.QuizMaxAttempts, PassThreshold: cfg.QuizPassThreshold},
		AITimeout: cfg.AITimeout,
		IdleTTL:   cfg.SessionIdleTTL,
		Events:    collector,
	})
	collector.TrackActiveSessions(svc.ActiveSessions)
	go svc.RunSweeper(ctx, time.Minute)

	r := app.NewRouter(cfg, collector, app.Handlers{
		Identity:  identity.NewHandler(ids),
		Exam:      exam.NewHandler(svc),
		Reports:   report.NewHandler(report.NewService(store)),
		Assistant: assistant.NewHandler(ai),
		Content:   content.NewAdminHandler(dirSource, source),
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("certprep web listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Printf("server stopped: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	svc.Shutdown()
}
