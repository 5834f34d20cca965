package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Cron     CronConfig     `mapstructure:"cron"`
	Platform PlatformConfig `mapstructure:"platform"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Assign   AssignConfig   `mapstructure:"assign"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Ingest  string `mapstructure:"ingest"`
	Assign  string `mapstructure:"assign"`
}

type PlatformConfig struct {
	PaxfulBaseURL  string        `mapstructure:"paxful_base_url"`
	PaxfulTokenURL string        `mapstructure:"paxful_token_url"`
	NoonesBaseURL  string        `mapstructure:"noones_base_url"`
	NoonesTokenURL string        `mapstructure:"noones_token_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type IngestConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// AutoEscalate turns on automatic escalation of trades whose platform
	// status reports an open dispute. Off unless explicitly enabled.
	AutoEscalate bool `mapstructure:"auto_escalate"`
}

type AssignConfig struct {
	Enabled bool  `mapstructure:"enabled"`
	LockKey int64 `mapstructure:"lock_key"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.ingest", "@every 2m")
	v.SetDefault("cron.assign", "@every 30s")
	v.SetDefault("platform.paxful_base_url", "")
	v.SetDefault("platform.paxful_token_url", "")
	v.SetDefault("platform.noones_base_url", "")
	v.SetDefault("platform.noones_token_url", "")
	v.SetDefault("platform.timeout", "30s")
	v.SetDefault("ingest.enabled", true)
	v.SetDefault("ingest.auto_escalate", false)
	v.SetDefault("assign.enabled", true)
	v.SetDefault("assign.lock_key", 7401)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
