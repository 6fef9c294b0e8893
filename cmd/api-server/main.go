package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/account"
	"github.com/hackgods/clinic-booking/internal/api"
	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logger"
	"github.com/hackgods/clinic-booking/internal/notify"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	zl, err := logger.NewZapLogger(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	zl.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("store", cfg.StoreDriver),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, accounts, closeStore, err := openStore(rootCtx, cfg, zl)
	if err != nil {
		zl.Fatal("store init error", zap.Error(err))
	}
	defer closeStore()

	// Redis only narrows the booking race, so the server runs without it.
	var (
		rdb    *redis.Client
		locker redisclient.Locker
	)
	if cfg.RedisAddr != "" {
		rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			zl.Warn("redis unavailable, booking lock disabled", zap.Error(err))
		} else {
			defer func() {
				if err := rdb.Close(); err != nil {
					zl.Warn("error closing redis", zap.Error(err))
				}
			}()
			locker = redisclient.NewRedisBookingLocker(rdb, cfg.LockTTL)
			zl.Info("connected to Redis", zap.Duration("lock_ttl", cfg.LockTTL))
		}
	}

	var notifier notify.Notifier
	if cfg.AMQPURL != "" {
		conn, err := notify.Dial(cfg.AMQPURL)
		if err != nil {
			zl.Fatal("amqp connection error", zap.Error(err))
		}
		defer conn.Close()

		pub, err := notify.NewPublisher(conn, cfg.NotifyQueue, zl)
		if err != nil {
			zl.Fatal("amqp publisher error", zap.Error(err))
		}
		defer pub.Close()
		notifier = pub
		zl.Info("publishing notifications", zap.String("queue", cfg.NotifyQueue))
	}

	svc := appointment.NewService(repo, accounts, notifier, locker, cfg, zl)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer)

	if cfg.StoreDriver == config.DriverMemory {
		seedMemory(rootCtx, accounts, tokens, zl)
	}

	handler := api.NewRouter(api.RouterConfig{
		Service:      svc,
		Tokens:       tokens,
		Redis:        rdb,
		Log:          zl,
		Env:          cfg.Env,
		Version:      version,
		CORSOrigins:  cfg.CORSOrigins,
		RateLimitRPS: cfg.RateLimitRPS,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		zl.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("http server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	zl.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("graceful shutdown failed", zap.Error(err))
	}
}

// openStore wires the appointment repository and account directory for the
// configured driver.
func openStore(ctx context.Context, cfg config.Config, zl *zap.Logger) (appointment.Repository, account.Directory, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := db.Migrate(pgCtx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		zl.Info("connected to Postgres")
		return appointment.NewPgRepository(pool), account.NewPgDirectory(pool), pool.Close, nil

	case config.DriverMongo:
		mCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		client, database, err := db.ConnectMongo(mCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, nil, err
		}
		repo := appointment.NewMongoRepository(database)
		if err := repo.EnsureIndexes(mCtx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, nil, err
		}
		dir := account.NewMongoDirectory(database)
		if err := dir.EnsureIndexes(mCtx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, nil, err
		}
		zl.Info("connected to MongoDB", zap.String("database", cfg.MongoDatabase))
		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				zl.Warn("error disconnecting mongo", zap.Error(err))
			}
		}
		return repo, dir, closeFn, nil

	default:
		zl.Warn("using in-memory store, data is lost on restart")
		return appointment.NewMemoryRepository(), account.NewMemoryDirectory(), func() {}, nil
	}
}

// seedMemory fills an empty in-memory directory with demo accounts and logs a
// token for each so the API can be exercised right away.
func seedMemory(ctx context.Context, accounts account.Directory, tokens *auth.TokenManager, zl *zap.Logger) {
	reg, ok := accounts.(account.Registry)
	if !ok {
		return
	}

	res, err := account.Seed(ctx, reg, account.NewFaker(0), 3, 3)
	if err != nil {
		zl.Warn("demo seed failed", zap.Error(err))
		return
	}

	all := append(append(append([]account.Account{}, res.Doctors...), res.Patients...), res.Admins...)
	for _, a := range all {
		tok, err := tokens.Issue(auth.Identity{ID: a.ID, Role: a.Role}, 24*time.Hour)
		if err != nil {
			zl.Warn("demo token failed", zap.Error(err))
			continue
		}
		zl.Info("demo account",
			zap.String("role", string(a.Role)),
			zap.String("id", a.ID.String()),
			zap.String("name", a.Name),
			zap.String("token", tok),
		)
	}
}
