package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	ReportCacheTTLSeconds int
	AuthSecret            string
	AccessTokenTTLMinutes int
	AppEnv                string
	LogLevel              string
	LogFormat             string
	// SeedAdminPassword creates the first admin account in an empty
	// PostgreSQL database. Ignored by the memory store, which reads it itself.
	SeedAdminPassword string
}

// Load reads configuration from the environment. Keys match the variable
// names, e.g. REPORT_CACHE_TTL_SECONDS.
func Load() Config {
	v := viper.New()
	v.SetDefault("port", "8080")
	v.SetDefault("allowed_origin", "http://127.0.0.1:3000")
	v.SetDefault("redis_db", 0)
	v.SetDefault("report_cache_ttl_seconds", 60)
	v.SetDefault("access_token_ttl_minutes", 480)
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	for _, key := range []string{"database_url", "redis_addr", "redis_password", "auth_secret", "seed_admin_password"} {
		_ = v.BindEnv(key)
	}
	v.AutomaticEnv()

	ttl := v.GetInt("report_cache_ttl_seconds")
	if ttl < 1 {
		ttl = 60
	}
	tokenTTL := v.GetInt("access_token_ttl_minutes")
	if tokenTTL < 1 {
		tokenTTL = 480
	}

	return Config{
		Port:                  v.GetString("port"),
		AllowedOrigin:         v.GetString("allowed_origin"),
		DatabaseURL:           v.GetString("database_url"),
		RedisAddr:             v.GetString("redis_addr"),
		RedisPassword:         v.GetString("redis_password"),
		RedisDB:               v.GetInt("redis_db"),
		ReportCacheTTLSeconds: ttl,
		AuthSecret:            strings.TrimSpace(v.GetString("auth_secret")),
		AccessTokenTTLMinutes: tokenTTL,
		AppEnv:                strings.ToLower(v.GetString("app_env")),
		LogLevel:              v.GetString("log_level"),
		LogFormat:             v.GetString("log_format"),
		SeedAdminPassword:     v.GetString("seed_admin_password"),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) Production() bool {
	return c.AppEnv == "production"
}
