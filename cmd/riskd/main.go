package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/usagerisk/internal/api"
	"github.com/xela07ax/usagerisk/internal/artifact"
	"github.com/xela07ax/usagerisk/internal/audit"
	"github.com/xela07ax/usagerisk/internal/engine"
	"github.com/xela07ax/usagerisk/internal/infra"
	"github.com/xela07ax/usagerisk/internal/infra/auth"
	"github.com/xela07ax/usagerisk/internal/notify"
	"github.com/xela07ax/usagerisk/internal/repository/postgres"
)

func main() {
	// .env удобен локально, в контейнере его нет
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Контекст жизни фоновых горутин: SIGTERM/SIGINT гасит watcher и прогрев
	appCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Хранилище
	repo, err := postgres.Open(cfg.Database.Driver, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Fatal("database open failed", zap.Error(err))
	}
	pingCtx, cancel := context.WithTimeout(appCtx, 5*time.Second)
	if err := repo.Ping(pingCtx); err != nil {
		cancel()
		logger.Fatal("database unreachable", zap.Error(err))
	}
	cancel()
	if cfg.Database.Driver == postgres.DriverSQLite {
		if err := repo.Migrate(appCtx); err != nil {
			logger.Fatal("schema migration failed", zap.Error(err))
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// 2. Метрики
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	// 3. Арбитр и артефакт модели
	arbiter := engine.NewArbiter(engine.ArbiterConfig{
		WorkerPath: cfg.Engine.WorkerPath,
		WorkerArgs: []string{"--threshold-hours", strconv.FormatFloat(cfg.Engine.ThresholdHour, 'f', -1, 64)},
		Timeout:    cfg.Engine.Timeout,
		KillGrace:  cfg.Engine.KillGrace,
		CBFailures: cfg.Engine.CBFailures,
		CBTimeout:  cfg.Engine.CBTimeout,
	}, metrics, logger)

	hs := api.NewHealthServer()
	store := artifact.NewStore(cfg.Engine.ModelRoot, cfg.Engine.ModelVersion, logger)
	if path, err := store.Resolve(); err != nil {
		// Без модели хост поднимается, /health отдает 503 до появления артефакта
		logger.Warn("no model artifact yet", zap.String("root", cfg.Engine.ModelRoot), zap.Error(err))
	} else {
		if err := artifact.Verify(path); err != nil {
			logger.Fatal("model artifact corrupted", zap.String("path", path), zap.Error(err))
		}
		arbiter.SetModelPath(path)
		hs.SetReady(true)
	}
	go func() {
		err := store.Watch(appCtx, func(path string) {
			if err := artifact.Verify(path); err != nil {
				logger.Error("new model artifact rejected", zap.String("path", path), zap.Error(err))
				return
			}
			arbiter.SetModelPath(path)
			hs.SetReady(true)
		})
		if err != nil {
			logger.Error("artifact watcher stopped", zap.Error(err))
		}
	}()

	// 4. Журнал предсказаний, пачками в базу
	journal := audit.NewJournal(repo, cfg.Engine.LogBufferSize, cfg.Engine.LogFlushInterval, logger)
	journal.OnFill(func(n int) { metrics.LogBufferFill.Set(float64(n)) })
	journal.Start()

	// 5. Уведомления
	counter := notify.NewRedisCounter(rdb)
	if err := notify.WarmupCounters(appCtx, counter, repo.NotifiedUsersSince, logger, time.Now().In(cfg.Engine.Location)); err != nil {
		// Не фатально: без прогрева лимит посчитается с нуля
		logger.Warn("notification counters warmup failed", zap.Error(err))
	}
	dispatcher, err := notify.NewDispatcher(cfg.Notify.Backend, rdb, logger)
	if err != nil {
		logger.Fatal("notification backend", zap.Error(err))
	}
	mutes := notify.NewMuteList(notify.NewRedisMuteStore(rdb), logger)
	if err := mutes.Init(appCtx); err != nil {
		logger.Warn("mute list not loaded", zap.Error(err))
	}
	go mutes.StartListener(appCtx, rdb)
	notifier := notify.NewNotifier(notify.NewLimiter(counter, cfg.Notify.DailyLimit).WithLocation(cfg.Engine.Location), dispatcher, repo, logger).WithMutes(mutes)

	// 6. Ядро
	svc := engine.NewPredictionService(repo, arbiter, journal, notifier, metrics, logger).
		WithLocation(cfg.Engine.Location)

	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("auth public key", zap.Error(err))
	}
	validator := auth.NewBaseValidator(pubKey)

	// 7. HTTP
	handler := api.NewServer(svc, validator, api.Options{
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
		Gatherer:  reg,
		Ready:     func() bool { return arbiter.ModelPath() != "" },
	}, logger)

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 8. gRPC: health для оркестратора
	grpcSrv := api.NewGRPCServer(hs, validator, logger)
	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			logger.Fatal("failed to listen gRPC", zap.Error(err))
		}
		logger.Info("gRPC server started", zap.String("addr", lis.Addr().String()))
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("gRPC serve failed", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("risk host started", zap.String("addr", srv.Addr), zap.String("model", arbiter.ModelPath()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	// 9. Graceful Shutdown
	<-appCtx.Done()
	logger.Info("shutting down")

	hs.Shutdown()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()

	// Сначала дожидаемся фоновых уведомлений, потом сбрасываем журнал
	svc.Wait()
	journal.Stop()

	if err := rdb.Close(); err != nil {
		logger.Warn("redis close", zap.Error(err))
	}
	if err := repo.Close(); err != nil {
		logger.Warn("database close", zap.Error(err))
	}
	logger.Info("server exited")
}
