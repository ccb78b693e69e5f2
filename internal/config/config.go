// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for server, match and arena settings.
//
// Values are resolved in three layers: compiled defaults, an optional YAML
// file named by CONFIG_FILE, then environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	DebugAddr      string   `yaml:"debug_addr"`      // pprof + /metrics, localhost only
	DisableDebug   bool     `yaml:"disable_debug"`   // skip the debug server entirely
	DebugUser      string   `yaml:"debug_user"`      // optional basic auth on the debug server
	DebugPassword  string   `yaml:"debug_password"`
	AllowedOrigins []string `yaml:"allowed_origins"` // CORS + WebSocket origin allow-list, "*" allows all
	LogLevel       string   `yaml:"log_level"`
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:      5060,
		DebugAddr: "127.0.0.1:6060",
		AllowedOrigins: []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		},
		LogLevel: "info",
	}
}

// =============================================================================
// MATCH ENGINE CONFIGURATION
// =============================================================================

// GameConfig holds the match engine's timing and scoring rules.
// These are server-authoritative and cannot be modified by clients.
type GameConfig struct {
	TickRate       int           `yaml:"tick_rate"`       // snapshots per second
	ReaperInterval time.Duration `yaml:"reaper_interval"` // how often empty waiting rooms are swept
	WaitingTimeout time.Duration `yaml:"waiting_timeout"` // lifetime of a room that never starts
	ActiveTimeout  time.Duration `yaml:"active_timeout"`  // duration of a started match
	RespawnDelay   time.Duration `yaml:"respawn_delay"`
	PersistTimeout time.Duration `yaml:"persist_timeout"` // budget for writing a completed match

	BulletDamage int `yaml:"bullet_damage"`
	DamageScore  int `yaml:"damage_score"`
	KillScore    int `yaml:"kill_score"`
	MaxHealth    int `yaml:"max_health"`
	CodeDigits   int `yaml:"code_digits"` // length of the public room code
}

// DefaultGame returns the default engine rules.
func DefaultGame() GameConfig {
	return GameConfig{
		TickRate:       10,
		ReaperInterval: time.Minute,
		WaitingTimeout: 5 * time.Minute,
		ActiveTimeout:  7 * time.Minute,
		RespawnDelay:   15 * time.Second,
		PersistTimeout: 10 * time.Second,
		BulletDamage:   20,
		DamageScore:    20,
		KillScore:      100,
		MaxHealth:      100,
		CodeDigits:     6,
	}
}

// =============================================================================
// ARENA GENERATION CONFIGURATION
// =============================================================================

// ArenaConfig holds the generator parameters used when a room is created.
type ArenaConfig struct {
	Size               int     `yaml:"size"`
	FillPercent        float64 `yaml:"fill_percent"`
	SimulationSteps    int     `yaml:"simulation_steps"`
	SurvivalThreshold  int     `yaml:"survival_threshold"`
	BirthThreshold     int     `yaml:"birth_threshold"`
	MinRegionSize      int     `yaml:"min_region_size"`
	TunnelRadius       int     `yaml:"tunnel_radius"`
	MaxSpawnAttempts   int     `yaml:"max_spawn_attempts"`
	GenerationAttempts int     `yaml:"generation_attempts"` // regenerate when too few spawns fit
}

// DefaultArena returns the generator settings for match rooms.
func DefaultArena() ArenaConfig {
	return ArenaConfig{
		Size:               33,
		FillPercent:        0.47,
		SimulationSteps:    17,
		SurvivalThreshold:  4,
		BirthThreshold:     5,
		MinRegionSize:      20,
		TunnelRadius:       1,
		MaxSpawnAttempts:   1000,
		GenerationAttempts: 5,
	}
}

// =============================================================================
// PERSISTENCE CONFIGURATION
// =============================================================================

// Store drivers
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// StoreConfig selects where completed matches are recorded.
type StoreConfig struct {
	Driver        string `yaml:"driver"`
	DatabaseURL   string `yaml:"database_url"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// DefaultStore keeps records in memory.
func DefaultStore() StoreConfig {
	return StoreConfig{
		Driver:    StoreMemory,
		RedisAddr: "localhost:6379",
	}
}

// =============================================================================
// AUTH CONFIGURATION
// =============================================================================

// AuthConfig holds the identity verification settings.
type AuthConfig struct {
	SecretKey string `yaml:"secret_key"` // HS256 signing key shared with the auth service
}

// =============================================================================
// RESOURCE LIMITS
// =============================================================================

// ResourceLimits controls DoS protection.
type ResourceLimits struct {
	MaxWSConnections  int     `yaml:"max_ws_connections"`
	MaxWSPerIP        int     `yaml:"max_ws_per_ip"`
	EventsPerSecond   float64 `yaml:"events_per_second"` // per connection
	EventBurst        int     `yaml:"event_burst"`
	RequestsPerSecond float64 `yaml:"requests_per_second"` // HTTP, per IP
	RequestBurst      int     `yaml:"request_burst"`
	SendQueue         int     `yaml:"send_queue"` // outbound messages buffered per connection
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		MaxWSConnections:  500,
		MaxWSPerIP:        10,
		EventsPerSecond:   30,
		EventBurst:        60,
		RequestsPerSecond: 10,
		RequestBurst:      20,
		SendQueue:         64,
	}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server ServerConfig   `yaml:"server"`
	Game   GameConfig     `yaml:"game"`
	Arena  ArenaConfig    `yaml:"arena"`
	Store  StoreConfig    `yaml:"store"`
	Auth   AuthConfig     `yaml:"auth"`
	Limits ResourceLimits `yaml:"limits"`
}

// Default returns the compiled-in configuration.
func Default() AppConfig {
	return AppConfig{
		Server: DefaultServer(),
		Game:   DefaultGame(),
		Arena:  DefaultArena(),
		Store:  DefaultStore(),
		Limits: DefaultLimits(),
	}
}

// Load returns the complete configuration with file and environment overrides.
func Load() (AppConfig, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// mergeFile overlays the YAML document at path onto cfg.
// Keys missing from the file keep their current values.
func (c *AppConfig) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() {
	if p := getEnvInt("PORT", 0); p > 0 {
		c.Server.Port = p
	}
	if v := os.Getenv("DEBUG_ADDR"); v != "" {
		c.Server.DebugAddr = v
	}
	if os.Getenv("DISABLE_DEBUG_SERVER") == "true" {
		c.Server.DisableDebug = true
	}
	if v := os.Getenv("DEBUG_USER"); v != "" {
		c.Server.DebugUser = v
		c.Server.DebugPassword = os.Getenv("DEBUG_PASSWORD")
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}

	if tr := getEnvInt("TICK_RATE", 0); tr > 0 {
		c.Game.TickRate = tr
	}
	c.Game.WaitingTimeout = getEnvDuration("WAITING_TIMEOUT", c.Game.WaitingTimeout)
	c.Game.ActiveTimeout = getEnvDuration("ACTIVE_TIMEOUT", c.Game.ActiveTimeout)
	c.Game.RespawnDelay = getEnvDuration("RESPAWN_DELAY", c.Game.RespawnDelay)
	c.Game.ReaperInterval = getEnvDuration("REAPER_INTERVAL", c.Game.ReaperInterval)

	if s := getEnvInt("ARENA_SIZE", 0); s > 0 {
		c.Arena.Size = s
	}

	if v := os.Getenv("STORE_DRIVER"); v != "" {
		c.Store.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Store.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Store.RedisPassword = v
	}
	c.Store.RedisDB = getEnvInt("REDIS_DB", c.Store.RedisDB)

	if v := os.Getenv("SECRET_KEY"); v != "" {
		c.Auth.SecretKey = v
	}
}

// Validate rejects settings the server cannot run with.
func (c AppConfig) Validate() error {
	if c.Game.TickRate <= 0 {
		return fmt.Errorf("config: tick rate must be positive, got %d", c.Game.TickRate)
	}
	if c.Game.MaxHealth <= 0 || c.Game.BulletDamage <= 0 {
		return fmt.Errorf("config: max health and bullet damage must be positive")
	}
	if c.Game.CodeDigits < 4 || c.Game.CodeDigits > 9 {
		return fmt.Errorf("config: code digits must be in [4,9], got %d", c.Game.CodeDigits)
	}
	if c.Game.WaitingTimeout <= 0 || c.Game.ActiveTimeout <= 0 || c.Game.RespawnDelay <= 0 {
		return fmt.Errorf("config: match timeouts must be positive")
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres store")
		}
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("config: REDIS_ADDR is required for the redis store")
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
