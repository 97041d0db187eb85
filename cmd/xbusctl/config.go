package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/omeyang/xbus/pkg/config/xconf"
	"github.com/omeyang/xbus/pkg/mq/xstream"
	"github.com/omeyang/xbus/pkg/observability/xlog"
)

// Config serve 命令的配置文件结构（YAML 或 JSON）。
//
//	redis:
//	  addr: 127.0.0.1:6379
//	log:
//	  level: info
//	  format: json
//	http:
//	  addr: ":8080"
//	bus:
//	  publish_rate_per_second: 500
//	  breaker:
//	    enabled: true
//	retention:
//	  schedule: "@every 1m"
//	  streams:
//	    orders: 10000
//	taps:
//	  - stream: orders
//	    group: audit
type Config struct {
	Redis     RedisConfig             `koanf:"redis"`
	Log       LogConfig               `koanf:"log"`
	HTTP      HTTPConfig              `koanf:"http"`
	Bus       BusConfig               `koanf:"bus"`
	Retention xstream.RetentionConfig `koanf:"retention"`
	Taps      []TapConfig             `koanf:"taps"`
}

// RedisConfig 连接参数。
type RedisConfig struct {
	Addr        string        `koanf:"addr"`
	Password    string        `koanf:"password"`
	DB          int           `koanf:"db"`
	DialTimeout time.Duration `koanf:"dial_timeout"`

	// ConnectAttempts 启动时 Ping 的最大尝试次数。
	ConnectAttempts int `koanf:"connect_attempts"`
}

// LogConfig 日志配置。level 支持热更新。
type LogConfig struct {
	Level    string              `koanf:"level"`
	Format   string              `koanf:"format"`
	File     string              `koanf:"file"`
	Rotation xlog.RotationConfig `koanf:"rotation"`
}

// HTTPConfig 状态服务配置，Addr 为空时不启动。
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// BusConfig 总线选项。
type BusConfig struct {
	ReadBackoff   time.Duration `koanf:"read_backoff"`
	ShutdownGrace time.Duration `koanf:"shutdown_grace"`

	// PublishRatePerSecond 每个流的发布限流，0 表示不限。
	PublishRatePerSecond int           `koanf:"publish_rate_per_second"`
	Breaker              BreakerConfig `koanf:"breaker"`
}

// BreakerConfig 发布熔断器。
type BreakerConfig struct {
	Enabled bool `koanf:"enabled"`

	// ConsecutiveFailures 连续失败多少次后打开，默认 5。
	ConsecutiveFailures uint32        `koanf:"consecutive_failures"`
	OpenTimeout         time.Duration `koanf:"open_timeout"`
}

// TapConfig 旁路消费者：把流中的消息记录到日志并确认。
type TapConfig struct {
	Stream        string        `koanf:"stream"`
	Group         string        `koanf:"group"`
	Consumer      string        `koanf:"consumer"`
	Block         time.Duration `koanf:"block"`
	BatchSize     int64         `koanf:"batch_size"`
	FromBeginning bool          `koanf:"from_beginning"`
}

func defaultConfig() Config {
	return Config{
		Redis: RedisConfig{
			Addr:            defaultAddr,
			DialTimeout:     5 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Bus: BusConfig{
			Breaker: BreakerConfig{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second},
		},
	}
}

// loadConfig 读取配置文件并叠加在默认值上。path 为空时只使用默认值，
// 返回的 xconf.Config 为 nil。
func loadConfig(path string) (Config, xconf.Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil, nil
	}
	src, err := xconf.New(path)
	if err != nil {
		return Config{}, nil, err
	}
	if err := src.Unmarshal("", &cfg); err != nil {
		return Config{}, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, src, nil
}

func (c Config) validate() error {
	var errs []error
	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}
	if _, err := xlog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Bus.PublishRatePerSecond < 0 {
		errs = append(errs, errors.New("bus.publish_rate_per_second must not be negative"))
	}
	for i, tap := range c.Taps {
		if tap.Stream == "" || tap.Group == "" {
			errs = append(errs, fmt.Errorf("taps[%d]: stream and group are required", i))
		}
	}
	for stream, maxLen := range c.Retention.Streams {
		if maxLen < 0 {
			errs = append(errs, fmt.Errorf("retention.streams.%s: max length must not be negative", stream))
		}
	}
	return errors.Join(errs...)
}

func (t TapConfig) subscribeOptions() xstream.SubscribeOptions {
	opts := xstream.SubscribeOptions{
		Group:     t.Group,
		Consumer:  t.Consumer,
		Block:     t.Block,
		BatchSize: t.BatchSize,
	}
	if t.FromBeginning {
		opts.StartID = xstream.StartFromBeginning
	}
	return opts
}
