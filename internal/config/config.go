package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Local     LocalConfig     `yaml:"local"`
	Game      GameConfig      `yaml:"game"`
	Cache     CacheConfig     `yaml:"cache"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig describes the hosted Postgres store. An empty host runs the
// service on the local store only.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type LocalConfig struct {
	StateDir string `yaml:"state_dir"`
}

// GameConfig holds the game-balance knobs. HistoryLimit bounds GET /workouts
// only; recomputation always reads full history.
type GameConfig struct {
	Timezone              string  `yaml:"timezone"`
	WeeklyGoal            int     `yaml:"weekly_goal"`
	XPPerLevel            int     `yaml:"xp_per_level"`
	RankingPeriodDays     int     `yaml:"ranking_period_days"`
	RankingVolumeTargetKg float64 `yaml:"ranking_volume_target_kg"`
	RankingWorkoutTarget  int     `yaml:"ranking_workout_target"`
	HistoryLimit          int     `yaml:"history_limit"`
}

type CacheConfig struct {
	LeaderboardTTLSeconds int `yaml:"leaderboard_ttl_seconds"`
	SizeMB                int `yaml:"size_mb"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// Hosted reports whether a hosted database is configured.
func (d DatabaseConfig) Hosted() bool {
	return d.Host != ""
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Location returns the configured time zone. Calendar days, streaks and weekly
// windows are all cut in this zone.
func (g GameConfig) Location() *time.Location {
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LeaderboardTTL returns the leaderboard cache TTL.
func (c CacheConfig) LeaderboardTTL() time.Duration {
	return time.Duration(c.LeaderboardTTLSeconds) * time.Second
}

// Load reads config from a YAML file, then applies environment variable overrides
// and defaults. Env vars use the prefix VOLT_ and underscore-separated paths:
//
//	VOLT_SERVER_HOST, VOLT_SERVER_PORT,
//	VOLT_DB_HOST, VOLT_DB_PORT, VOLT_DB_NAME,
//	VOLT_DB_USER, VOLT_DB_PASSWORD, VOLT_DB_SSLMODE,
//	VOLT_AUTH_API_KEY, VOLT_LOCAL_STATE_DIR, VOLT_GAME_TIMEZONE,
//	VOLT_GAME_WEEKLY_GOAL, VOLT_TAILSCALE_ENABLED, VOLT_TAILSCALE_HOSTNAME
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	envString("VOLT_SERVER_HOST", &cfg.Server.Host)
	envInt("VOLT_SERVER_PORT", &cfg.Server.Port)
	envString("VOLT_DB_HOST", &cfg.Database.Host)
	envInt("VOLT_DB_PORT", &cfg.Database.Port)
	envString("VOLT_DB_NAME", &cfg.Database.Name)
	envString("VOLT_DB_USER", &cfg.Database.User)
	envString("VOLT_DB_PASSWORD", &cfg.Database.Password)
	envString("VOLT_DB_SSLMODE", &cfg.Database.SSLMode)
	envString("VOLT_AUTH_API_KEY", &cfg.Auth.APIKey)
	envString("VOLT_LOCAL_STATE_DIR", &cfg.Local.StateDir)
	envString("VOLT_GAME_TIMEZONE", &cfg.Game.Timezone)
	envInt("VOLT_GAME_WEEKLY_GOAL", &cfg.Game.WeeklyGoal)
	envBool("VOLT_TAILSCALE_ENABLED", &cfg.Tailscale.Enabled)
	envString("VOLT_TAILSCALE_HOSTNAME", &cfg.Tailscale.Hostname)
}

func (c *Config) applyDefaults() {
	if c.Local.StateDir == "" {
		c.Local.StateDir = "state"
	}
	if c.Game.Timezone == "" {
		c.Game.Timezone = "UTC"
	}
	if c.Game.WeeklyGoal == 0 {
		c.Game.WeeklyGoal = 4
	}
	if c.Game.XPPerLevel == 0 {
		c.Game.XPPerLevel = 100
	}
	if c.Game.RankingPeriodDays == 0 {
		c.Game.RankingPeriodDays = 30
	}
	if c.Game.RankingVolumeTargetKg == 0 {
		c.Game.RankingVolumeTargetKg = 50000
	}
	if c.Game.RankingWorkoutTarget == 0 {
		c.Game.RankingWorkoutTarget = 20
	}
	if c.Game.HistoryLimit == 0 {
		c.Game.HistoryLimit = 1000
	}
	if c.Cache.LeaderboardTTLSeconds == 0 {
		c.Cache.LeaderboardTTLSeconds = 60
	}
	if c.Cache.SizeMB == 0 {
		c.Cache.SizeMB = 8
	}
	if c.Tailscale.Hostname == "" {
		c.Tailscale.Hostname = "volt"
	}
	if c.Tailscale.StateDir == "" {
		c.Tailscale.StateDir = "tsnet-state"
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 && !c.Tailscale.Enabled {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Hosted() {
		if c.Database.Port == 0 {
			return fmt.Errorf("database.port is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if _, err := time.LoadLocation(c.Game.Timezone); err != nil {
		return fmt.Errorf("game.timezone: %w", err)
	}
	if c.Game.WeeklyGoal < 0 || c.Game.XPPerLevel < 0 || c.Game.RankingPeriodDays < 0 ||
		c.Game.RankingVolumeTargetKg < 0 || c.Game.RankingWorkoutTarget < 0 || c.Game.HistoryLimit < 0 {
		return fmt.Errorf("game settings must not be negative")
	}
	if c.Cache.LeaderboardTTLSeconds < 0 || c.Cache.SizeMB < 0 {
		return fmt.Errorf("cache settings must not be negative")
	}
	return nil
}
