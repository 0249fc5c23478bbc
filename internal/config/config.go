package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Reward strategy names accepted by SIM_REWARD.
const (
	RewardProfit      = "profit"
	RewardIncremental = "incremental"
	RewardSharpe      = "sharpe"
	RewardSortino     = "sortino"
	RewardMulti       = "multi"
)

// Config holds application configuration
type Config struct {
	// Simulation
	InitialCapital     float64
	CommissionRate     float64
	WindowSize         int
	MaxPositionSize    float64
	EnableShort        bool
	MaxStopDistance    float64
	TruncationFraction float64
	MaxSteps           int

	// Reward strategy
	RewardType     string
	RiskFreeRate   float64
	RewardWindow   int
	HoldPenalty    float64
	ProfitWeight   float64
	RiskWeight     float64
	DrawdownWeight float64

	// Metrics
	PeriodsPerYear int

	// Service
	DatabasePath string
	BarsCSVPath  string
	Symbol       string
	LogLevel     string
	Port         int
	DevMode      bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		InitialCapital:     getEnvAsFloat("SIM_INITIAL_CAPITAL", 10000.0),
		CommissionRate:     getEnvAsFloat("SIM_COMMISSION", 0.001), // 0.1%
		WindowSize:         getEnvAsInt("SIM_WINDOW_SIZE", 50),
		MaxPositionSize:    getEnvAsFloat("SIM_MAX_POSITION_SIZE", 1.0),
		EnableShort:        getEnvAsBool("SIM_ENABLE_SHORT", true),
		MaxStopDistance:    getEnvAsFloat("SIM_MAX_STOP_DISTANCE", 0.2),
		TruncationFraction: getEnvAsFloat("SIM_TRUNCATION_FRACTION", 0.2),
		MaxSteps:           getEnvAsInt("SIM_MAX_STEPS", 1_000_000),

		RewardType:     getEnv("SIM_REWARD", RewardProfit),
		RiskFreeRate:   getEnvAsFloat("SIM_RISK_FREE_RATE", 0.0),
		RewardWindow:   getEnvAsInt("SIM_REWARD_WINDOW", 50),
		HoldPenalty:    getEnvAsFloat("SIM_HOLD_PENALTY", 0.01),
		ProfitWeight:   getEnvAsFloat("SIM_PROFIT_WEIGHT", 0.5),
		RiskWeight:     getEnvAsFloat("SIM_RISK_WEIGHT", 0.3),
		DrawdownWeight: getEnvAsFloat("SIM_DRAWDOWN_WEIGHT", 0.2),

		// 252 trading periods per year assumes daily bars; override for
		// intraday data. Preserved as the default rather than derived from
		// bar spacing.
		PeriodsPerYear: getEnvAsInt("SIM_PERIODS_PER_YEAR", 252),

		DatabasePath: getEnv("DATABASE_PATH", "./data/soltrader.db"),
		BarsCSVPath:  getEnv("BARS_CSV_PATH", ""),
		Symbol:       getEnv("SYMBOL", "SOLUSDT"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		Port:         getEnvAsInt("GO_PORT", 8001),
		DevMode:      getEnvAsBool("DEV_MODE", false),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration invariants. Invalid configuration fails here,
// at construction; clamping is reserved for per-action runtime inputs.
func (c *Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("SIM_INITIAL_CAPITAL must be positive, got %v", c.InitialCapital)
	}
	if c.CommissionRate < 0 || c.CommissionRate >= 1 {
		return fmt.Errorf("SIM_COMMISSION must be in [0, 1), got %v", c.CommissionRate)
	}
	if c.WindowSize < 2 {
		return fmt.Errorf("SIM_WINDOW_SIZE must be at least 2, got %d", c.WindowSize)
	}
	if c.MaxPositionSize <= 0 || c.MaxPositionSize > 1 {
		return fmt.Errorf("SIM_MAX_POSITION_SIZE must be in (0, 1], got %v", c.MaxPositionSize)
	}
	if c.MaxStopDistance < 0 || c.MaxStopDistance >= 1 {
		return fmt.Errorf("SIM_MAX_STOP_DISTANCE must be in [0, 1), got %v", c.MaxStopDistance)
	}
	if c.TruncationFraction < 0 || c.TruncationFraction >= 1 {
		return fmt.Errorf("SIM_TRUNCATION_FRACTION must be in [0, 1), got %v", c.TruncationFraction)
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("SIM_MAX_STEPS must be positive, got %d", c.MaxSteps)
	}

	switch c.RewardType {
	case RewardProfit, RewardIncremental, RewardSharpe, RewardSortino, RewardMulti:
	default:
		return fmt.Errorf("SIM_REWARD must be one of profit|incremental|sharpe|sortino|multi, got %q", c.RewardType)
	}

	if c.RewardWindow < 2 {
		return fmt.Errorf("SIM_REWARD_WINDOW must be at least 2, got %d", c.RewardWindow)
	}
	if c.ProfitWeight < 0 || c.RiskWeight < 0 || c.DrawdownWeight < 0 {
		return fmt.Errorf("multi-objective weights must be non-negative")
	}
	if c.ProfitWeight+c.RiskWeight+c.DrawdownWeight == 0 {
		return fmt.Errorf("multi-objective weights must not all be zero")
	}
	if c.PeriodsPerYear <= 0 {
		return fmt.Errorf("SIM_PERIODS_PER_YEAR must be positive, got %d", c.PeriodsPerYear)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
