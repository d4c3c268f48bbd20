package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/timchenkailiang/bilibili-live-bot/pkg/config"
)

type Config struct {
	RoomID        string `mapstructure:"room_id"`
	SessData      string `mapstructure:"sessdata"`
	UID           int64  `mapstructure:"uid"`
	Log           LogConfig
	Server        ServerConfig
	Adapter       AdapterConfig
	Dedup         DedupConfig
	Forward       ForwardConfig
	StatsInterval time.Duration `mapstructure:"stats_interval"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

type ServerConfig struct {
	Host string
	Port int
}

type AdapterConfig struct {
	DedupWindow time.Duration    `mapstructure:"dedup_window"`
	Heartbeat   time.Duration    `mapstructure:"heartbeat"`
	CoinRates   map[string]int64 `mapstructure:"coin_rates"`
}

type DedupConfig struct {
	Driver string
	Redis  RedisConfig
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type ForwardConfig struct {
	Enabled    bool
	Brokers    string
	Topic      string
	Partitions int
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("room_id", "")
	v.SetDefault("sessdata", "")
	v.SetDefault("uid", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8099)
	v.SetDefault("adapter.dedup_window", "3s")
	v.SetDefault("adapter.heartbeat", "30s")
	v.SetDefault("adapter.coin_rates", map[string]int64{"gold": 1000})
	v.SetDefault("dedup.driver", "memory")
	v.SetDefault("dedup.redis.address", "localhost:6379")
	v.SetDefault("dedup.redis.password", "")
	v.SetDefault("dedup.redis.db", 0)
	v.SetDefault("forward.enabled", false)
	v.SetDefault("forward.brokers", "localhost:9092")
	v.SetDefault("forward.topic", "live-events")
	v.SetDefault("forward.partitions", 4)
	v.SetDefault("stats_interval", "5m")

	// Override from environment
	v.BindEnv("room_id", "ROOM_ID")
	v.BindEnv("sessdata", "SESSDATA")
	v.BindEnv("uid", "BILI_UID")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("server.port", "PORT")
	v.BindEnv("dedup.driver", "DEDUP_DRIVER")
	v.BindEnv("dedup.redis.address", "REDIS_ADDRESS")
	v.BindEnv("dedup.redis.password", "REDIS_PASSWORD")
	v.BindEnv("forward.enabled", "FORWARD_ENABLED")
	v.BindEnv("forward.brokers", "KAFKA_BROKERS")
	v.BindEnv("forward.topic", "KAFKA_TOPIC")
	v.BindEnv("forward.partitions", "KAFKA_PARTITIONS")
	v.BindEnv("stats_interval", "STATS_INTERVAL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Adapter.DedupWindow = parseDuration(v, "adapter.dedup_window", 3*time.Second)
	cfg.Adapter.Heartbeat = parseDuration(v, "adapter.heartbeat", 30*time.Second)
	cfg.StatsInterval = parseDuration(v, "stats_interval", 5*time.Minute)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
