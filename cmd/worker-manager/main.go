// cmd/worker-manager/main.go
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

	"ambient-pro/internal/api"
	"ambient-pro/internal/commission"
	"ambient-pro/internal/common/aws"
	"ambient-pro/internal/common/camunda"
	"ambient-pro/internal/common/config"
	"ambient-pro/internal/common/database"
	"ambient-pro/internal/common/logger"
	"ambient-pro/internal/common/observability"
	"ambient-pro/internal/invites"
	"ambient-pro/internal/lifecycle"
	"ambient-pro/internal/search"
	"ambient-pro/internal/store"
	"ambient-pro/internal/store/memory"
	"ambient-pro/internal/store/postgres"

	ns "ambient-pro/internal/workers/communication/notify-set-closed"
	ac "ambient-pro/internal/workers/lifecycle/assign-closer"
	cs "ambient-pro/internal/workers/lifecycle/close-set"
	ap "ambient-pro/internal/workers/pipeline/advance-project"
	ci "ambient-pro/internal/workers/recruiting/create-invite"
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

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog, err := logger.NewFromConfig(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)
	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("environment", cfg.App.Environment),
		zap.String("storeDriver", cfg.Database.Driver),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Record store ---
	var pg *database.PostgresClient
	var st store.Store
	switch cfg.Database.Driver {
	case config.DriverPostgres:
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

		pgStore := postgres.New(pg.DB,
			postgres.WithListenerDSN(pg.DSN()),
			postgres.WithLogger(log),
		)
		if err := pgStore.Migrate(ctx); err != nil {
			zapLog.Fatal("schema migration failed", zap.Error(err))
		}
		st = pgStore
		zapLog.Info("PostgreSQL store ready")
	default:
		st = memory.New()
		zapLog.Warn("using in-memory store, records are lost on restart")
	}
	defer st.Close()

	// --- Redis (invites, preferences) ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()

	inviteSvc := invites.NewService(rdb.Client,
		invites.WithTTL(cfg.Invites.TTL()),
		invites.WithBaseURL(cfg.Invites.BaseURL),
		invites.WithLogger(log),
	)

	// --- Commission policy and engine ---
	policy, err := commission.FromConfig(cfg.Commission)
	if err != nil {
		zapLog.Fatal("invalid commission policy", zap.Error(err))
	}

	engineOpts := []lifecycle.Option{
		lifecycle.WithPolicy(policy),
		lifecycle.WithMirrorCreditToCloser(cfg.Commission.MirrorCreditToCloser),
		lifecycle.WithLogger(log),
		lifecycle.WithObservability(obs),
	}
	apiOpts := []api.Option{
		api.WithInvites(inviteSvc),
		api.WithLogger(log),
	}

	// --- Elasticsearch (project search) ---
	if cfg.Database.Elasticsearch.Enabled() {
		esClient, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			zapLog.Fatal("elasticsearch client failed", zap.Error(err))
		}
		projects := search.NewProjectIndex(esClient.Client,
			search.WithIndex(cfg.Search.ProjectIndex),
			search.WithLogger(log),
		)
		err = retryWithBackoff(func() error {
			if err := esClient.Ping(ctx); err != nil {
				return err
			}
			return projects.EnsureIndex(ctx)
		}, 10, 2*time.Second, zapLog, "Elasticsearch index setup")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		engineOpts = append(engineOpts, lifecycle.WithIndexer(projects))
		apiOpts = append(apiOpts, api.WithSearch(projects))
		zapLog.Info("Elasticsearch project index ready", zap.String("index", projects.Index()))
	}

	engine := lifecycle.NewEngine(st, engineOpts...)

	// --- Job workers ---
	var zeebe *camunda.Client
	var workers []worker.JobWorker
	if cfg.Camunda.Enabled {
		zeebe, err = camunda.NewClientWithConfig(ctx, &camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		if err != nil {
			zapLog.Fatal("zeebe client failed", zap.Error(err))
		}
		defer zeebe.Close()
		zapLog.Info("Zeebe client connected successfully")

		workers = startWorkers(ctx, cfg, zeebe, engine, inviteSvc, st, log, zapLog)
		zapLog.Info("workers registered", zap.Int("count", len(workers)))
	}

	// --- HTTP API, health and metrics ---
	limiter := api.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, log)
	go limiter.Run(ctx, time.Minute)
	apiOpts = append(apiOpts, api.WithRateLimiter(limiter))

	server := api.NewServer(engine, st, apiOpts...)

	mux := http.NewServeMux()
	mux.Handle("/api/", server.Routes())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := ready(r.Context(), pg, rdb, zeebe); err != nil {
			zapLog.Warn("readiness check failed", zap.Error(err))
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      mux,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Close()
		w.AwaitClose()
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func startWorkers(ctx context.Context, cfg *config.Config, zeebe *camunda.Client, engine *lifecycle.Engine,
	inviteSvc *invites.Service, users store.UserStore, log logger.Logger, zapLog *zap.Logger) []worker.JobWorker {
	client := zeebe.GetClient()
	var started []worker.JobWorker
	add := func(w worker.JobWorker) {
		if w != nil {
			started = append(started, w)
		}
	}

	if config.IsWorkerEnabled(cfg, cs.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, cs.TaskType)
		handler := cs.NewHandler(&cs.Config{Timeout: config.GetDuration(wcfg.Timeout)}, engine, log)
		add(camunda.StartWorker(client, cs.TaskType, wcfg, handler.Handle, zapLog))
	}

	if config.IsWorkerEnabled(cfg, ac.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, ac.TaskType)
		handler := ac.NewHandler(&ac.Config{Timeout: config.GetDuration(wcfg.Timeout)}, engine, log)
		add(camunda.StartWorker(client, ac.TaskType, wcfg, handler.Handle, zapLog))
	}

	if config.IsWorkerEnabled(cfg, ap.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, ap.TaskType)
		apCfg := ap.LoadConfig()
		apCfg.Timeout = config.GetDuration(wcfg.Timeout)
		handler := ap.NewHandler(apCfg, engine, log)
		add(camunda.StartWorker(client, ap.TaskType, wcfg, handler.Handle, zapLog))
	}

	if config.IsWorkerEnabled(cfg, ci.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, ci.TaskType)
		handler := ci.NewHandler(&ci.Config{Timeout: config.GetDuration(wcfg.Timeout)}, inviteSvc, log)
		add(camunda.StartWorker(client, ci.TaskType, wcfg, handler.Handle, zapLog))
	}

	if config.IsWorkerEnabled(cfg, ns.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, ns.TaskType)
		nsCfg := &ns.Config{
			EmailEnabled: cfg.Notifications.Email.Enabled,
			SMSEnabled:   cfg.Notifications.SMS.Enabled,
			FromEmail:    cfg.Notifications.Email.FromEmail,
			SenderID:     cfg.Notifications.SMS.SenderID,
			Timeout:      config.GetDuration(wcfg.Timeout),
		}

		var email ns.EmailSender
		if nsCfg.EmailEnabled {
			ses, err := aws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
			if err != nil {
				zapLog.Fatal("failed to create SES client", zap.Error(err))
			}
			email = ses
		}
		var sms ns.SMSSender
		if nsCfg.SMSEnabled {
			sns, err := aws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
			if err != nil {
				zapLog.Fatal("failed to create SNS client", zap.Error(err))
			}
			sms = sns
		}
		handler := ns.NewHandler(nsCfg, users, email, sms, log)
		add(camunda.StartWorker(client, ns.TaskType, wcfg, handler.Handle, zapLog))
	}

	return started
}

func ready(ctx context.Context, pg *database.PostgresClient, rdb *database.RedisClient, zeebe *camunda.Client) error {
	if pg != nil {
		if err := pg.Ping(ctx); err != nil {
			return err
		}
	}
	if err := rdb.Ping(ctx); err != nil {
		return err
	}
	if zeebe != nil {
		return zeebe.HealthCheck(ctx)
	}
	return nil
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}
