package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/solquant/soltrader/internal/config"
	"github.com/solquant/soltrader/internal/database"
	"github.com/solquant/soltrader/internal/database/repositories"
	"github.com/solquant/soltrader/internal/domain"
	"github.com/solquant/soltrader/internal/events"
	"github.com/solquant/soltrader/internal/features"
	"github.com/solquant/soltrader/internal/market"
	"github.com/solquant/soltrader/internal/scheduler"
	"github.com/solquant/soltrader/internal/server"
	"github.com/solquant/soltrader/pkg/logger"
)

func main() {
	// Load configuration first so the logger picks up the configured level.
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("symbol", cfg.Symbol).Msg("Starting soltrader")

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	ev := events.NewManager(log)
	barRepo := repositories.NewBarRepository(db.Conn(), log)
	resultRepo := repositories.NewResultRepository(db.Conn(), log)

	// Load the bar series and compute the feature matrix.
	data, err := loadDataset(cfg, barRepo, ev, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load dataset")
	}

	// Initialize scheduler
	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	refresh := scheduler.NewDataRefreshJob(log, ev, barRepo, cfg.BarsCSVPath, cfg.Symbol)
	if err := sched.AddJob("@hourly", refresh); err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}

	// Prime the stored bars now instead of waiting for the first hourly tick.
	if err := sched.RunNow(refresh); err != nil {
		log.Error().Err(err).Msg("Initial bar refresh failed")
	}

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:    cfg.Port,
		Log:     log,
		Cfg:     cfg,
		Data:    data,
		Results: resultRepo,
		Bars:    barRepo,
		Events:  ev,
		DevMode: cfg.DevMode,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// loadDataset prefers stored bars and falls back to a one-time CSV ingest
// when the database is still empty.
func loadDataset(cfg *config.Config, barRepo *repositories.BarRepository, ev *events.Manager, log zerolog.Logger) (*market.Dataset, error) {
	bars, err := barRepo.LoadBars(cfg.Symbol)
	if err != nil {
		return nil, err
	}

	if len(bars) == 0 && cfg.BarsCSVPath != "" {
		log.Info().Str("path", cfg.BarsCSVPath).Msg("No stored bars, ingesting CSV")
		bars, err = market.LoadCSV(cfg.BarsCSVPath)
		if err != nil {
			return nil, err
		}
		if err := barRepo.SaveBars(cfg.Symbol, bars); err != nil {
			return nil, err
		}
	}

	data, err := buildDataset(cfg.Symbol, bars, log)
	if err != nil {
		return nil, err
	}

	ev.Emit(events.DatasetLoaded, "main", map[string]interface{}{
		"symbol": cfg.Symbol,
		"bars":   data.Len(),
	})
	return data, nil
}

func buildDataset(symbol string, bars []domain.Bar, log zerolog.Logger) (*market.Dataset, error) {
	data, err := market.NewDataset(symbol, bars)
	if err != nil {
		return nil, err
	}
	if err := features.NewCalculator(log).Calculate(data); err != nil {
		return nil, err
	}
	return data, nil
}
