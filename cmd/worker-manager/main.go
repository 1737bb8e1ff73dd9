package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"destination-discovery/internal/common/aws"
	"destination-discovery/internal/common/camunda"
	"destination-discovery/internal/common/config"
	"destination-discovery/internal/common/database"
	"destination-discovery/internal/common/logger"
	"destination-discovery/internal/common/observability"
	"destination-discovery/internal/conversation"
	"destination-discovery/internal/discovery"
	"destination-discovery/internal/llm"
	"destination-discovery/internal/notification"
	"destination-discovery/internal/search"
	"destination-discovery/internal/store"

	chat "destination-discovery/internal/workers/destination-discovery/chat-message"
	getconv "destination-discovery/internal/workers/destination-discovery/get-conversation"
	reset "destination-discovery/internal/workers/destination-discovery/reset-conversation"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

func main() {
	bootLog := logger.New("info", "console")

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewFromConfig(cfg.Logging)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting destination discovery workers...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx := context.Background()

	obs := observability.New(cfg.App.Name, log)
	shutdownTracer, err := observability.InitTracer(ctx, cfg.App.Name, cfg.Tracing)
	if err != nil {
		zapLog.Fatal("tracer init failed", zap.Error(err))
	}

	// --- Zeebe ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(camunda.ConfigFromApp(cfg.Camunda))
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	conversations := store.NewConversationStore(pg.DB)
	if cfg.Database.Postgres.AutoMigrate {
		if err := conversations.EnsureSchema(ctx); err != nil {
			zapLog.Fatal("schema migration failed", zap.Error(err))
		}
	}

	// --- Redis ---
	redis := database.NewRedis(cfg.Database.Redis)
	err = retryWithBackoff(func() error {
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	checks := []readinessCheck{
		{"zeebe", zeebe.HealthCheck},
		{"postgres", pg.Ping},
		{"redis", redis.Ping},
	}

	var svcOpts []conversation.Option

	// --- Elasticsearch (optional) ---
	if cfg.Database.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}

		indexer := search.NewRecommendationIndexer(esClient.Client, cfg.Discovery.RecommendationIndex, log)
		if err := indexer.EnsureIndex(ctx); err != nil {
			zapLog.Warn("recommendation index not ready", zap.Error(err))
		}
		svcOpts = append(svcOpts, conversation.WithIndexer(indexer))
		checks = append(checks, readinessCheck{"elasticsearch", esClient.Ping})
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Notifications (optional) ---
	if n := cfg.Notifications; n.SES.Enabled || n.SNS.Enabled {
		var (
			email  notification.EmailSender
			events notification.EventPublisher
		)
		if n.SES.Enabled {
			ses, err := aws.NewSESClient(ctx, n.AWS.Region, n.SES.FromEmail)
			if err != nil {
				zapLog.Fatal("ses client failed", zap.Error(err))
			}
			email = ses
		}
		if n.SNS.Enabled {
			sns, err := aws.NewSNSClient(ctx, n.AWS.Region, n.SNS.TopicARN)
			if err != nil {
				zapLog.Fatal("sns client failed", zap.Error(err))
			}
			events = sns
		}
		svcOpts = append(svcOpts, conversation.WithNotifier(notification.NewCommitmentNotifier(email, events, log)))
		zapLog.Info("Commitment notifications enabled",
			zap.Bool("ses", n.SES.Enabled),
			zap.Bool("sns", n.SNS.Enabled),
		)
	}

	// --- Discovery ---
	gateway, err := llm.NewGeminiGateway(ctx, cfg.LLM, log)
	if err != nil {
		zapLog.Fatal("llm gateway init failed", zap.Error(err))
	}

	manager := discovery.NewManager(gateway, log,
		discovery.WithMaxQuestions(cfg.Discovery.MaxQuestions),
		discovery.WithMaxQuestionIterations(cfg.Discovery.MaxQuestionIterations),
		discovery.WithMaxDestinationIterations(cfg.Discovery.MaxDestIterations),
		discovery.WithCommitmentPhrases(cfg.Discovery.CommitmentPhrases),
	)

	locker := store.NewRedisLocker(redis.Client, config.GetDuration(cfg.Discovery.LockTTL))
	service := conversation.NewService(conversations, conversation.RedisLocker(locker), manager, log, svcOpts...)

	// --- Workers ---
	var workers []worker.JobWorker

	chatHandler, err := chat.NewHandler(chat.HandlerOptions{AppConfig: cfg, Service: service, Observability: obs, Logger: log})
	if err != nil {
		zapLog.Fatal("failed to create chat-message handler", zap.Error(err))
	}
	workers = append(workers, camunda.StartWorker(zeebe.GetClient(), chat.TaskType, config.GetWorkerConfig(cfg, chat.TaskType), chatHandler.Handle, log))

	getHandler, err := getconv.NewHandler(getconv.HandlerOptions{AppConfig: cfg, Service: service, Observability: obs, Logger: log})
	if err != nil {
		zapLog.Fatal("failed to create get-conversation handler", zap.Error(err))
	}
	workers = append(workers, camunda.StartWorker(zeebe.GetClient(), getconv.TaskType, config.GetWorkerConfig(cfg, getconv.TaskType), getHandler.Handle, log))

	resetHandler, err := reset.NewHandler(reset.HandlerOptions{AppConfig: cfg, Service: service, Observability: obs, Logger: log})
	if err != nil {
		zapLog.Fatal("failed to create reset-conversation handler", zap.Error(err))
	}
	workers = append(workers, camunda.StartWorker(zeebe.GetClient(), reset.TaskType, config.GetWorkerConfig(cfg, reset.TaskType), resetHandler.Handle, log))

	zapLog.Info("Discovery workers registered")

	// --- Health & Metrics Server ---
	addr := cfg.Server.HealthAddress
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{Addr: addr, Handler: healthMux(checks), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		if w != nil {
			w.Close()
			w.AwaitClose()
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		zapLog.Error("Error flushing traces", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping meter provider", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func healthMux(checks []readinessCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status, code := "ready", http.StatusOK
		deps := map[string]string{}
		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				deps[c.name] = err.Error()
				status, code = "not_ready", http.StatusServiceUnavailable
				continue
			}
			deps[c.name] = "ok"
		}
		writeJSON(w, code, map[string]interface{}{
			"status":       status,
			"dependencies": deps,
			"time":         time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
