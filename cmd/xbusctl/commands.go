package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/omeyang/xbus/pkg/mq/xstream"
	"github.com/omeyang/xbus/pkg/observability/xlog"
)

const defaultDLQCount = 10

// exitError 表示需要非零退出码但已完成输出的场景。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// usageError 参数错误，退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createServeCommand(),
		createPublishCommand(),
		createTrimCommand(),
		createPendingCommand(),
		createStreamsCommand(),
		createInfoCommand(),
		createDLQCommand(),
		createHealthCommand(),
	}
}

func createPublishCommand() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Aliases:   []string{"pub"},
		Usage:     "发布一条消息",
		ArgsUsage: "<stream>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Usage: "消息类型", Required: true},
			&cli.StringFlag{Name: "source", Usage: "消息来源", Value: "xbusctl"},
			&cli.StringFlag{Name: "target", Usage: "消息目标"},
			&cli.StringFlag{Name: "data", Usage: "JSON 业务数据"},
			&cli.StringFlag{Name: "id", Usage: "消息 ID，默认生成 UUID"},
			&cli.IntFlag{Name: "ttl", Usage: "流过期秒数，0 表示不设置"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			stream, err := streamArg(cmd)
			if err != nil {
				return err
			}
			msg := &xstream.Message{
				ID:     cmd.String("id"),
				Type:   cmd.String("type"),
				Source: cmd.String("source"),
				Target: cmd.String("target"),
				TTL:    int64(cmd.Int("ttl")),
			}
			if data := cmd.String("data"); data != "" {
				if !json.Valid([]byte(data)) {
					return usagef("--data 不是合法的 JSON")
				}
				msg.Data = json.RawMessage(data)
			}
			return withBus(ctx, cmd, func(ctx context.Context, bus *xstream.Bus) error {
				id, err := bus.Publish(ctx, stream, msg)
				if err != nil {
					return err
				}
				return writeJSON(cmd.Root().Writer, map[string]string{
					"stream":     stream,
					"entry_id":   id,
					"message_id": msg.ID,
				})
			})
		},
	}
}

func createTrimCommand() *cli.Command {
	return &cli.Command{
		Name:      "trim",
		Usage:     "近似裁剪流至约 maxlen 条",
		ArgsUsage: "<stream>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "maxlen", Usage: "保留条数", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			stream, err := streamArg(cmd)
			if err != nil {
				return err
			}
			maxLen := int64(cmd.Int("maxlen"))
			if maxLen < 0 {
				return usagef("--maxlen 不能为负数")
			}
			return withBus(ctx, cmd, func(ctx context.Context, bus *xstream.Bus) error {
				trimmed, err := bus.TrimStream(ctx, stream, maxLen)
				if err != nil {
					return err
				}
				return writeJSON(cmd.Root().Writer, map[string]any{
					"stream":  stream,
					"trimmed": trimmed,
				})
			})
		},
	}
}

func createPendingCommand() *cli.Command {
	return &cli.Command{
		Name:      "pending",
		Usage:     "查看消费者组的未确认条目",
		ArgsUsage: "<stream>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "group", Aliases: []string{"g"}, Usage: "消费者组", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			stream, err := streamArg(cmd)
			if err != nil {
				return err
			}
			return withBus(ctx, cmd, func(ctx context.Context, bus *xstream.Bus) error {
				entries, err := bus.PendingMessages(ctx, stream, cmd.String("group"))
				if err != nil {
					return err
				}
				return writeJSON(cmd.Root().Writer, nonNil(entries))
			})
		},
	}
}

func createStreamsCommand() *cli.Command {
	return &cli.Command{
		Name:  "streams",
		Usage: "列出所有流",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withBus(ctx, cmd, func(ctx context.Context, bus *xstream.Bus) error {
				streams, err := bus.ListStreams(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.Root().Writer, nonNil(streams))
			})
		},
	}
}

func createInfoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "查看流信息",
		ArgsUsage: "<stream>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			stream, err := streamArg(cmd)
			if err != nil {
				return err
			}
			return withBus(ctx, cmd, func(ctx context.Context, bus *xstream.Bus) error {
				info, err := bus.StreamInfo(ctx, stream)
				if err != nil {
					return err
				}
				return writeJSON(cmd.Root().Writer, info)
			})
		},
	}
}

func createDLQCommand() *cli.Command {
	return &cli.Command{
		Name:      "dlq",
		Usage:     "查看流的死信",
		ArgsUsage: "<stream>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Usage: "最多返回条数", Value: defaultDLQCount},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			stream, err := streamArg(cmd)
			if err != nil {
				return err
			}
			count := int64(cmd.Int("count"))
			if count <= 0 {
				return usagef("--count 必须大于 0")
			}
			return withBus(ctx, cmd, func(ctx context.Context, bus *xstream.Bus) error {
				letters, err := bus.DeadLetters(ctx, stream, count)
				if err != nil {
					return err
				}
				return writeJSON(cmd.Root().Writer, nonNil(letters))
			})
		},
	}
}

func createHealthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "健康检查，不健康时退出码为 1",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withBus(ctx, cmd, func(ctx context.Context, bus *xstream.Bus) error {
				status := bus.Health(ctx)
				if err := writeJSON(cmd.Root().Writer, status); err != nil {
					return err
				}
				if !status.Healthy {
					return &exitError{code: 1}
				}
				return nil
			})
		},
	}
}

// streamArg 取第一个位置参数作为流名称。
func streamArg(cmd *cli.Command) (string, error) {
	stream := cmd.Args().First()
	if stream == "" {
		return "", usagef("%s: 缺少 <stream> 参数", cmd.Name)
	}
	return stream, nil
}

// withBus 按全局选项连接 Redis 并创建 Bus，fn 返回后关闭两者。
func withBus(ctx context.Context, cmd *cli.Command, fn func(ctx context.Context, bus *xstream.Bus) error) error {
	logger, err := cliLogger(cmd)
	if err != nil {
		return err
	}

	if timeout := cmd.Duration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cmd.String("addr"),
		Password: cmd.String("password"),
		DB:       cmd.Int("db"),
	})
	defer func() { _ = client.Close() }()

	bus, err := xstream.New(client, xstream.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = bus.Shutdown(shutdownCtx)
	}()

	return fn(ctx, bus)
}

// cliLogger 一次性命令的日志只写 stderr，不轮转。
func cliLogger(cmd *cli.Command) (xlog.Logger, error) {
	logger, _, err := xlog.New().
		SetOutput(cmd.Root().ErrWriter).
		SetLevelString(cmd.String("log-level")).
		Build()
	if err != nil {
		return nil, usagef("--log-level: %v", err)
	}
	return logger, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// nonNil 让空结果输出 [] 而不是 null。
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
