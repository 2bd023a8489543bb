package config

import (
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
}

// BackendConfig describes one storage backend.
type BackendConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Mode       string        `mapstructure:"mode"` // sqlite, memory, mysql
	SQLitePath string        `mapstructure:"sqlite_path"`
	MemoryName string        `mapstructure:"memory_name"`
	MySQLDSN   string        `mapstructure:"mysql_dsn"`
	MaxOpen    int           `mapstructure:"max_open"`
	MaxIdle    int           `mapstructure:"max_idle"`
	MaxLife    time.Duration `mapstructure:"max_life"`
}

// DatabaseConfig pairs the local backend with the optional remote one.
type DatabaseConfig struct {
	Local  BackendConfig `mapstructure:"local"`
	Remote BackendConfig `mapstructure:"remote"`
}

// CacheConfig selects the cache backend. Empty RedisAddr means the
// in-process cache.
type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	GCInterval    time.Duration `mapstructure:"gc_interval"`
	RankingTTL    time.Duration `mapstructure:"ranking_ttl"`
}

// SyncConfig controls background reconciliation between backends.
type SyncConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	Direction      string        `mapstructure:"direction"` // bidirectional, local_to_remote, remote_to_local
	PairLimit      int           `mapstructure:"pair_limit"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// PointsConfig tunes the gift exchange rules.
type PointsConfig struct {
	DailyGiftLimit    int           `mapstructure:"daily_gift_limit"`
	ClaimSharePercent int           `mapstructure:"claim_share_percent"`
	SessionTTL        time.Duration `mapstructure:"session_ttl"`
	BackupDir         string        `mapstructure:"backup_dir"`
}

// SecurityConfig holds auth and abuse-protection settings.
type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTL         time.Duration `mapstructure:"jwt_ttl"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	AdminIPs       []string      `mapstructure:"admin_ips"`
}

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Points   PointsConfig   `mapstructure:"points"`
	Security SecurityConfig `mapstructure:"security"`
}

// SetDefaults installs the default values on a viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.admin_key", "")

	v.SetDefault("database.local.enabled", true)
	v.SetDefault("database.local.mode", "sqlite")
	v.SetDefault("database.local.sqlite_path", "data/giftpoints.db")
	v.SetDefault("database.remote.enabled", false)
	v.SetDefault("database.remote.mode", "mysql")
	v.SetDefault("database.remote.max_open", 20)
	v.SetDefault("database.remote.max_idle", 5)
	v.SetDefault("database.remote.max_life", time.Hour)

	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.gc_interval", time.Minute)
	v.SetDefault("cache.ranking_ttl", 30*time.Second)

	v.SetDefault("sync.interval", 5*time.Minute)
	v.SetDefault("sync.direction", "bidirectional")
	v.SetDefault("sync.pair_limit", 10000)
	v.SetDefault("sync.health_interval", 30*time.Second)

	v.SetDefault("points.daily_gift_limit", 20)
	v.SetDefault("points.claim_share_percent", 100)
	v.SetDefault("points.session_ttl", 5*time.Minute)
	v.SetDefault("points.backup_dir", "data/backups")

	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_ttl", 24*time.Hour)
	v.SetDefault("security.rate_limit_rps", 20)
	v.SetDefault("security.rate_limit_burst", 40)
}

// Load reads the config file at path (optional) merged over defaults
// and GIFTPOINTS_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("GIFTPOINTS")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
