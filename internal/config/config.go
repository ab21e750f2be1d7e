package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	LedgerFile     = "file"
	LedgerRedis    = "redis"
	LedgerPostgres = "postgres"
	LedgerHTTP     = "http"
)

type Config struct {
	Env             string
	Port            string
	UserServicePort string

	LedgerBackend  string
	DefaultBalance float64
	DataFile       string

	RedisURL  string
	RedisPass string
	RedisDB   int

	PostgresDSN string

	UserServiceURL string
	CORSOrigins    []string

	GameConfigPath string
	Game           GameConfig
}

// GameConfig holds the tunables of both games.
type GameConfig struct {
	Mines MinesConfig `yaml:"mines"`
	Crash CrashConfig `yaml:"crash"`
}

type MinesConfig struct {
	GridSize       int     `yaml:"grid_size"`
	MultiplierStep float64 `yaml:"multiplier_step"`
}

type CrashConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	StartDelay   time.Duration `yaml:"start_delay"`
	Intermission time.Duration `yaml:"intermission"`
	MinStep      float64       `yaml:"min_step"`
	MaxStep      float64       `yaml:"max_step"`
	Ceiling      float64       `yaml:"ceiling"`
	ProvablyFair bool          `yaml:"provably_fair"`
	HouseEdge    float64       `yaml:"house_edge"`
	HistorySize  int           `yaml:"history_size"`
}

func DefaultGameConfig() GameConfig {
	return GameConfig{
		Mines: MinesConfig{
			GridSize:       25,
			MultiplierStep: 0.1,
		},
		Crash: CrashConfig{
			TickInterval: time.Second,
			StartDelay:   5 * time.Second,
			Intermission: 5 * time.Second,
			MinStep:      0.1,
			MaxStep:      0.2,
			Ceiling:      10.0,
			ProvablyFair: true,
			HouseEdge:    0.01,
			HistorySize:  20,
		},
	}
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:             getEnvOrDefault("APP_ENV", "development"),
		Port:            getEnvOrDefault("PORT", "3000"),
		UserServicePort: getEnvOrDefault("USER_SERVICE_PORT", "3001"),
		LedgerBackend:   getEnvOrDefault("LEDGER_BACKEND", LedgerFile),
		DataFile:        getEnvOrDefault("DATA_FILE", "users.json"),
		RedisURL:        getEnvOrDefault("REDIS_URL", "localhost:6379"),
		RedisPass:       os.Getenv("REDIS_PASSWORD"),
		PostgresDSN:     os.Getenv("PG_DSN"),
		UserServiceURL:  getEnvOrDefault("USER_SERVICE_URL", "http://localhost:3001/api"),
		GameConfigPath:  os.Getenv("GAME_CONFIG"),
	}

	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
			}
		}
	}

	var err error
	if cfg.RedisDB, err = strconv.Atoi(getEnvOrDefault("REDIS_DB", "0")); err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	if cfg.DefaultBalance, err = strconv.ParseFloat(getEnvOrDefault("DEFAULT_BALANCE", "1000"), 64); err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_BALANCE: %w", err)
	}

	switch cfg.LedgerBackend {
	case LedgerFile, LedgerRedis, LedgerHTTP:
	case LedgerPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("PG_DSN is required for the postgres ledger")
		}
	default:
		return nil, fmt.Errorf("unknown ledger backend: %s", cfg.LedgerBackend)
	}

	cfg.Game = DefaultGameConfig()
	if cfg.GameConfigPath != "" {
		game, err := LoadGameConfig(cfg.GameConfigPath)
		if err != nil {
			return nil, err
		}
		cfg.Game = game
	}

	return cfg, nil
}

// LoadGameConfig reads a YAML tuning file. Keys missing from the file keep their defaults.
func LoadGameConfig(path string) (GameConfig, error) {
	game := DefaultGameConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return game, fmt.Errorf("failed to read game config: %w", err)
	}
	if err := yaml.Unmarshal(data, &game); err != nil {
		return game, fmt.Errorf("failed to parse game config: %w", err)
	}
	if err := game.Validate(); err != nil {
		return game, err
	}

	return game, nil
}

func (g GameConfig) Validate() error {
	if g.Mines.GridSize < 2 {
		return fmt.Errorf("mines grid_size must be at least 2, got %d", g.Mines.GridSize)
	}
	if g.Mines.MultiplierStep <= 0 {
		return fmt.Errorf("mines multiplier_step must be positive")
	}
	if g.Crash.TickInterval <= 0 {
		return fmt.Errorf("crash tick_interval must be positive")
	}
	if g.Crash.MinStep <= 0 || g.Crash.MaxStep < g.Crash.MinStep {
		return fmt.Errorf("crash step range [%v, %v) is invalid", g.Crash.MinStep, g.Crash.MaxStep)
	}
	if g.Crash.Ceiling <= 1 {
		return fmt.Errorf("crash ceiling must be above 1.0")
	}
	if g.Crash.HouseEdge < 0 || g.Crash.HouseEdge >= 1 {
		return fmt.Errorf("crash house_edge must be in [0, 1)")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnvOrDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
