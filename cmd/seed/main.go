package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/account"
	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logger"
)

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

	doctors := getInt("SEED_DOCTORS", 20)
	patients := getInt("SEED_PATIENTS", 500)
	seed := uint64(getInt("SEED_RANDOM", 0))

	zl.Info("seed starting",
		zap.String("store", cfg.StoreDriver),
		zap.Int("doctors", doctors),
		zap.Int("patients", patients),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var reg account.Registry
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			zl.Fatal("connect postgres", zap.Error(err))
		}
		defer pool.Close()

		if err := db.Migrate(ctx, pool); err != nil {
			zl.Fatal("migrate", zap.Error(err))
		}
		reg = account.NewPgDirectory(pool)

	case config.DriverMongo:
		client, database, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			zl.Fatal("connect mongo", zap.Error(err))
		}
		defer func() { _ = client.Disconnect(context.Background()) }()

		if err := appointment.NewMongoRepository(database).EnsureIndexes(ctx); err != nil {
			zl.Fatal("ensure indexes", zap.Error(err))
		}
		dir := account.NewMongoDirectory(database)
		if err := dir.EnsureIndexes(ctx); err != nil {
			zl.Fatal("ensure indexes", zap.Error(err))
		}
		reg = dir

	default:
		zl.Fatal("seed needs a persistent store", zap.String("store", cfg.StoreDriver))
	}

	res, err := account.Seed(ctx, reg, account.NewFaker(seed), doctors, patients)
	if err != nil {
		zl.Fatal("seed accounts", zap.Error(err))
	}

	zl.Info("seed complete",
		zap.Int("doctors", len(res.Doctors)),
		zap.Int("patients", len(res.Patients)),
		zap.Int("admins", len(res.Admins)),
	)

	// A few ready-made tokens for manual testing.
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer)
	sample := append([]account.Account{}, first(res.Doctors, 2)...)
	sample = append(sample, first(res.Patients, 2)...)
	sample = append(sample, res.Admins...)
	for _, a := range sample {
		tok, err := tokens.Issue(auth.Identity{ID: a.ID, Role: a.Role}, 7*24*time.Hour)
		if err != nil {
			zl.Fatal("issue token", zap.Error(err))
		}
		fmt.Printf("%-8s %s %s\n  %s\n", a.Role, a.ID, a.Name, tok)
	}
}

func first(accounts []account.Account, n int) []account.Account {
	if len(accounts) < n {
		return accounts
	}
	return accounts[:n]
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
