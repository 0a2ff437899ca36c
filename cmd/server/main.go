package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"

	"github.com/facebookgo/clock"
	"github.com/franckalain/livestockweight/internal/cache"
	"github.com/franckalain/livestockweight/internal/config"
	"github.com/franckalain/livestockweight/internal/database"
	"github.com/franckalain/livestockweight/internal/logger"
	"github.com/franckalain/livestockweight/internal/ml"
	"github.com/franckalain/livestockweight/internal/observation"
	"github.com/franckalain/livestockweight/internal/server"
	"github.com/franckalain/livestockweight/internal/transport"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using system environment variables")
	}

	configPath := flag.String("config", config.GetConfigPath(), "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logg, err := logger.New(cfg.Server.LogMode, cfg.Server.Debug)
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logg.Sync()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		logg.Fatal("failed to open cache store", "store", cfg.Cache.Store, "error", err)
	}
	defer closeStore()

	clk := clock.New()
	client := transport.NewClient(cfg.Backend.URL, cfg.Backend.Token, cfg.BackendTimeout(), logg)
	dashboard := cache.NewDashboardCache(store, clk, logg, cfg.DashboardTTL())
	observations := cache.NewObservationCache(store, clk, logg, cfg.ObservationTTL())
	repo := observation.NewRepository(client, observations, dashboard, logg)

	model, err := ml.NewModel(cfg.ML.Type, cfg.ML.ConfigPath, client, logg)
	if err != nil {
		logg.Fatal("failed to create ML model", "type", cfg.ML.Type, "error", err)
	}
	if err := model.Load(context.Background()); err != nil {
		logg.Fatal("failed to load ML model", "type", cfg.ML.Type, "error", err)
	}
	if closer, ok := model.(io.Closer); ok {
		defer closer.Close()
	}

	srv := server.New(server.Deps{
		Observations: repo,
		Subjects:     client,
		Model:        model,
		Dashboard:    dashboard,
		Clock:        clk,
		Log:          logg,
	}, cfg.Server.Debug)
	if err := srv.Start(cfg.Server.Port, cfg.Server.StaticDir); err != nil {
		logg.Error("server stopped", "error", err)
	}
}

func openStore(cfg *config.Config) (cache.Store, func(), error) {
	switch cfg.Cache.Store {
	case "sqlite":
		db, err := database.NewSQLiteDB(cfg.Cache.Path, cfg.Cache.CapacityBytes)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { db.Close() }, nil
	case "redis":
		rdb, err := database.NewRedisStore(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return rdb, func() { rdb.Close() }, nil
	case "memory":
		return cache.NewMemoryStore(int(cfg.Cache.CapacityBytes)), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported cache store: %s", cfg.Cache.Store)
	}
}
