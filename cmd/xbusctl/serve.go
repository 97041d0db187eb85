package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"github.com/urfave/cli/v3"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/omeyang/xbus/pkg/config/xconf"
	"github.com/omeyang/xbus/pkg/lifecycle/xrun"
	"github.com/omeyang/xbus/pkg/mq/xstream"
	"github.com/omeyang/xbus/pkg/observability/xlog"
	"github.com/omeyang/xbus/pkg/observability/xmetrics"
	"github.com/omeyang/xbus/pkg/resilience/xretry"
)

const (
	meterName          = "github.com/omeyang/xbus"
	connectRetryDelay  = time.Second
	readHeaderTimeout  = 5 * time.Second
	configDebounce     = 200 * time.Millisecond
	shutdownHookBudget = 30 * time.Second
)

func createServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "运行总线宿主进程",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径 (YAML/JSON)，修改 log.level 可热更新",
				Sources: cli.EnvVars("XBUS_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "http-addr",
				Usage: "状态服务地址，覆盖配置文件",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, src, err := loadConfig(cmd.String("config"))
			if err != nil {
				return &usageError{msg: err.Error()}
			}
			// 命令行显式指定的连接参数优先于配置文件。
			if cmd.IsSet("addr") {
				cfg.Redis.Addr = cmd.String("addr")
			}
			if cmd.IsSet("password") {
				cfg.Redis.Password = cmd.String("password")
			}
			if cmd.IsSet("db") {
				cfg.Redis.DB = cmd.Int("db")
			}
			if cmd.IsSet("http-addr") {
				cfg.HTTP.Addr = cmd.String("http-addr")
			}

			logger, closeLog, err := buildLogger(cfg.Log, cmd.Root().ErrWriter)
			if err != nil {
				return &usageError{msg: err.Error()}
			}
			defer func() { _ = closeLog() }()

			err = serve(ctx, cfg, src, logger)
			if errors.Is(err, xrun.ErrSignal) {
				return nil
			}
			return err
		},
	}
}

// buildLogger 按配置构建日志，File 非空时写入轮转文件。
func buildLogger(cfg LogConfig, stderr io.Writer) (xlog.LoggerWithLevel, func() error, error) {
	b := xlog.New().
		SetOutput(stderr).
		SetLevelString(cfg.Level).
		SetFormat(cfg.Format).
		SetAttrs(slog.String("service", "xbusctl"))
	if cfg.File != "" {
		b = b.SetRotation(cfg.File, cfg.Rotation)
	}
	return b.Build()
}

// host serve 命令持有的运行期组件。
type host struct {
	cfg       Config
	logger    xlog.LoggerWithLevel
	bus       *xstream.Bus
	reader    *sdkmetric.ManualReader
	provider  *sdkmetric.MeterProvider
	retention *xstream.Retention
	metricReg interface{ Unregister() error }
}

func serve(ctx context.Context, cfg Config, src xconf.Config, logger xlog.LoggerWithLevel) error {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	defer func() { _ = client.Close() }()

	if err := connect(ctx, client, cfg.Redis.ConnectAttempts, connectRetryDelay, logger); err != nil {
		return err
	}

	h, err := newHost(cfg, client, logger)
	if err != nil {
		return err
	}
	defer h.close()

	if err := h.subscribeTaps(ctx); err != nil {
		return errors.Join(err, h.bus.Shutdown(context.WithoutCancel(ctx)))
	}

	var services []xrun.Service
	if h.retention != nil {
		services = append(services, xrun.Service{Name: "retention", Run: h.retention.Run})
	}
	if cfg.HTTP.Addr != "" {
		server := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           h.statusHandler(),
			ReadHeaderTimeout: readHeaderTimeout,
		}
		services = append(services, xrun.Service{Name: "http", Run: xrun.HTTPServer(server, cfg.HTTP.ShutdownTimeout)})
		logger.Info(ctx, "status server listening", slog.String("addr", cfg.HTTP.Addr))
	}
	if src != nil {
		watcher, err := xconf.Watch(src, h.onConfigChange, xconf.WithDebounce(configDebounce))
		if err != nil {
			logger.Warn(ctx, "config hot reload disabled", xlog.Err(err))
		} else {
			services = append(services, xrun.Service{Name: "config", Run: watcher.Run})
		}
	}
	// 没有其他服务时进程仍要托管旁路消费者，直到被取消。
	services = append(services, xrun.Service{Name: "taps", Run: func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}})

	return xrun.Run(ctx, []xrun.Option{
		xrun.WithName("xbusctl"),
		xrun.WithLogger(logger),
		xrun.WithShutdownHook("bus", h.bus.Shutdown),
		xrun.WithHookTimeout(shutdownHookBudget),
	}, services...)
}

// connect 带重试地确认 Redis 可达。
func connect(ctx context.Context, client redis.UniversalClient, attempts int, delay time.Duration, logger xlog.Logger) error {
	retryer := xretry.NewRetryer(
		xretry.WithRetryPolicy(xretry.NewFixedRetry(max(attempts, 1))),
		xretry.WithBackoffPolicy(xretry.NewFixedBackoff(delay)),
		xretry.WithOnRetry(func(attempt int, err error) {
			logger.Warn(ctx, "redis not reachable, retrying",
				slog.Int("attempt", attempt), xlog.Err(err))
		}),
	)
	if err := retryer.Do(ctx, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	return nil
}

// newHost 创建 Bus、指标导出与裁剪任务。client 由调用方关闭。
func newHost(cfg Config, client redis.UniversalClient, logger xlog.LoggerWithLevel) (*host, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	observer, err := xmetrics.NewOTelObserver(xmetrics.WithMeterProvider(provider))
	if err != nil {
		return nil, errors.Join(err, provider.Shutdown(context.Background()))
	}

	bus, err := xstream.New(client, busOptions(cfg.Bus, client, logger, observer)...)
	if err != nil {
		return nil, errors.Join(err, provider.Shutdown(context.Background()))
	}
	h := &host{
		cfg:      cfg,
		logger:   logger,
		bus:      bus,
		reader:   reader,
		provider: provider,
	}

	reg, err := bus.RegisterMetrics(provider.Meter(meterName))
	if err != nil {
		h.close()
		return nil, errors.Join(err, bus.Shutdown(context.Background()))
	}
	h.metricReg = reg

	if len(cfg.Retention.Streams) > 0 {
		retention, err := xstream.NewRetention(bus, client, cfg.Retention)
		if err != nil {
			h.close()
			return nil, errors.Join(err, bus.Shutdown(context.Background()))
		}
		h.retention = retention
	}
	return h, nil
}

func busOptions(cfg BusConfig, client redis.UniversalClient, logger xlog.Logger, observer xmetrics.Observer) []xstream.Option {
	opts := []xstream.Option{
		xstream.WithLogger(logger),
		xstream.WithObserver(observer),
		xstream.WithOnDeadLetter(func(ctx context.Context, dl xstream.DeadLetter) {
			logger.Warn(ctx, "message dead-lettered",
				slog.String("stream", dl.OriginalStream),
				slog.String("entry_id", dl.OriginalEntryID),
				slog.String("group", dl.ConsumerGroup),
				slog.String("error", dl.Error))
		}),
	}
	if cfg.ReadBackoff > 0 {
		opts = append(opts, xstream.WithReadBackoff(cfg.ReadBackoff))
	}
	if cfg.ShutdownGrace > 0 {
		opts = append(opts, xstream.WithShutdownGrace(cfg.ShutdownGrace))
	}
	if cfg.PublishRatePerSecond > 0 {
		opts = append(opts, xstream.WithPublishRateLimit(client, redis_rate.PerSecond(cfg.PublishRatePerSecond)))
	}
	if cfg.Breaker.Enabled {
		threshold := cfg.Breaker.ConsecutiveFailures
		opts = append(opts, xstream.WithPublishBreaker(gobreaker.Settings{
			Timeout: cfg.Breaker.OpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= threshold
			},
		}))
	}
	return opts
}

// subscribeTaps 为每个旁路配置订阅一个记录日志的消费者。
func (h *host) subscribeTaps(ctx context.Context) error {
	for _, tap := range h.cfg.Taps {
		if err := h.bus.Subscribe(ctx, tap.Stream, tap.subscribeOptions(), h.tapHandler); err != nil {
			return fmt.Errorf("subscribe tap %s/%s: %w", tap.Stream, tap.Group, err)
		}
		h.logger.Info(ctx, "tap subscribed",
			slog.String("stream", tap.Stream), slog.String("group", tap.Group))
	}
	return nil
}

// tapHandler 投递信息（流、组、条目 ID）由日志的 context 注入补齐。
func (h *host) tapHandler(ctx context.Context, msg *xstream.Message) error {
	attrs := []slog.Attr{
		slog.String("id", msg.ID),
		slog.String("type", msg.Type),
		slog.String("source", msg.Source),
		slog.Int("data_bytes", len(msg.Data)),
	}
	h.logger.Info(ctx, "message", attrs...)
	return nil
}

// onConfigChange 热更新日志级别，其他字段需要重启生效。
func (h *host) onConfigChange(cfg xconf.Config, err error) {
	ctx := context.Background()
	if err != nil {
		h.logger.Warn(ctx, "config reload failed", xlog.Err(err))
		return
	}
	var lc LogConfig
	if err := cfg.Unmarshal("log", &lc); err != nil {
		h.logger.Warn(ctx, "config reload failed", xlog.Err(err))
		return
	}
	level, err := xlog.ParseLevel(lc.Level)
	if err != nil {
		h.logger.Warn(ctx, "ignoring invalid log level", slog.String("level", lc.Level))
		return
	}
	if level != h.logger.GetLevel() {
		h.logger.SetLevel(level)
		h.logger.Info(ctx, "log level changed", slog.String("level", level.String()))
	}
}

// close 注销指标并关闭 MeterProvider，Bus 由关闭钩子负责。
func (h *host) close() {
	if h.metricReg != nil {
		_ = h.metricReg.Unregister()
	}
	_ = h.provider.Shutdown(context.Background())
}
