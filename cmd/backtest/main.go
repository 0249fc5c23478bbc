package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/solquant/soltrader/internal/backtest"
	"github.com/solquant/soltrader/internal/config"
	"github.com/solquant/soltrader/internal/database"
	"github.com/solquant/soltrader/internal/database/repositories"
	"github.com/solquant/soltrader/internal/features"
	"github.com/solquant/soltrader/internal/market"
	"github.com/solquant/soltrader/internal/policy"
	"github.com/solquant/soltrader/pkg/logger"
)

func main() {
	var (
		csvPath    = flag.String("csv", "", "bars CSV path (overrides BARS_CSV_PATH)")
		policyName = flag.String("policy", "buy_and_hold", "policy: buy_and_hold|flat|random|sma_crossover|rsi_reversion")
		reward     = flag.String("reward", "", "reward strategy (overrides SIM_REWARD)")
		runs       = flag.Int("runs", 1, "number of runs to aggregate")
		trainSize  = flag.Int("train", 0, "walk-forward train window size (enables walk-forward with -test and -step)")
		testSize   = flag.Int("test", 0, "walk-forward test window size")
		stepSize   = flag.Int("step", 0, "walk-forward stride")
		persist    = flag.Bool("persist", false, "store the run in the database")
		asJSON     = flag.Bool("json", false, "print results as JSON instead of a report")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if *csvPath != "" {
		cfg.BarsCSVPath = *csvPath
	}
	if *reward != "" {
		cfg.RewardType = *reward
	}
	if cfg.BarsCSVPath == "" {
		fmt.Fprintln(os.Stderr, "a bars CSV is required: pass -csv or set BARS_CSV_PATH")
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})

	bars, err := market.LoadCSV(cfg.BarsCSVPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load bars")
	}
	data, err := market.NewDataset(cfg.Symbol, bars)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build dataset")
	}
	if err := features.NewCalculator(log).Calculate(data); err != nil {
		log.Fatal().Err(err).Msg("Failed to calculate features")
	}

	opts := backtest.OptionsFromConfig(cfg)

	// Batch modes take the factory so stateful policies are rebuilt for every
	// window or run.
	if *trainSize > 0 || *testSize > 0 || *stepSize > 0 {
		result, err := backtest.WalkForward(data, policy.NamedFactory(*policyName), opts, *trainSize, *testSize, *stepSize, nil, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Walk-forward failed")
		}
		printJSON(result.Summary)
		if *asJSON {
			printJSON(result.Results)
		}
		return
	}

	b, err := backtest.New(data, opts, nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build backtester")
	}

	if *runs > 1 {
		_, summary, err := b.RunMany(policy.NamedFactory(*policyName), *runs)
		if err != nil {
			log.Fatal().Err(err).Msg("Backtest failed")
		}
		printJSON(summary)
		return
	}

	p, err := policy.Named(*policyName, data, opts.Engine.WindowSize-1)
	if err != nil {
		log.Fatal().Err(err).Msg("Unknown policy")
	}

	result, err := b.Run(p)
	if err != nil {
		log.Fatal().Err(err).Msg("Backtest failed")
	}

	if *asJSON {
		printJSON(result)
	} else {
		fmt.Print(backtest.FormatReport(result.Metrics))
	}

	if *persist {
		db, err := database.New(cfg.DatabasePath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open database")
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}

		repo := repositories.NewResultRepository(db.Conn(), log)
		if err := repo.SaveResult(result, cfg.Symbol, *policyName, opts.RewardType); err != nil {
			log.Fatal().Err(err).Msg("Failed to persist run")
		}
		log.Info().Str("run_id", result.RunID).Msg("Run persisted")
	}
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "encode:", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
