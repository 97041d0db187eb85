// xbusctl 是 xstream 消息总线的运维命令行工具。
//
// 用法:
//
//	xbusctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-a, --addr       Redis 地址 (默认: 127.0.0.1:6379，环境变量 XBUS_REDIS_ADDR)
//	    --password   Redis 密码 (环境变量 XBUS_REDIS_PASSWORD)
//	    --db         Redis 库编号
//	-t, --timeout    单条命令超时时间 (默认: 10s，serve 不受限)
//	    --log-level  日志级别 debug/info/warn/error (默认: warn)
//
// 命令:
//
//	serve            运行总线宿主：旁路消费者、定时裁剪、HTTP 状态服务
//	publish <stream> 发布一条消息
//	trim <stream>    近似裁剪流
//	pending <stream> 查看消费者组的未确认条目
//	streams          列出所有流
//	info <stream>    查看流信息
//	dlq <stream>     查看死信
//	health           健康检查
//
// 退出码:
//
//	0: 命令执行成功（health 命令: 健康）
//	1: 命令执行失败或不健康（health 命令）
//	2: 参数错误（缺少参数、非法 JSON、未知命令等）
//
// 示例:
//
//	xbusctl publish --type order.created --data '{"id":1}' orders
//	xbusctl pending --group billing orders
//	xbusctl dlq --count 20 orders
//	xbusctl serve --config /etc/xbus/xbus.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
)

const (
	defaultAddr     = "127.0.0.1:6379"
	defaultTimeout  = 10 * time.Second
	defaultLogLevel = "warn"
)

// 版本信息，可通过 -ldflags "-X main.Version=..." 注入。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(context.Background(), os.Args, os.Stdout, os.Stderr))
}

// createApp 创建 CLI 应用。
func createApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "xbusctl",
		Usage:     "xstream 消息总线运维工具",
		Version:   fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "Redis 地址",
				Value:   defaultAddr,
				Sources: cli.EnvVars("XBUS_REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "password",
				Usage:   "Redis 密码",
				Sources: cli.EnvVars("XBUS_REDIS_PASSWORD"),
			},
			&cli.IntFlag{
				Name:  "db",
				Usage: "Redis 库编号",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "单条命令超时时间",
				Value:   defaultTimeout,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "日志级别 (debug/info/warn/error)",
				Value: defaultLogLevel,
			},
		},
		Commands:       createCommands(),
		DefaultCommand: "help",
		// 退出码由 run 统一映射，不让 urfave/cli 直接 os.Exit。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(stderr, err)
			}
		},
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := createApp(stdout, stderr)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := app.Run(ctx, args); err != nil {
		return exitCode(err, stderr)
	}
	return 0
}

// exitCode 把命令错误映射为文档约定的退出码。
func exitCode(err error, stderr io.Writer) int {
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(stderr, "参数错误: %v\n", usageErr)
		return 2
	}
	if isCLIUsageError(err) {
		fmt.Fprintf(stderr, "参数错误: %v\n", err)
		return 2
	}
	fmt.Fprintf(stderr, "错误: %v\n", err)
	return 1
}

// isCLIUsageError 识别 urfave/cli 自身产生的参数错误（未知 flag、缺少必需 flag 等）。
func isCLIUsageError(err error) bool {
	msg := err.Error()
	for _, marker := range []string{
		"flag provided but not defined",
		"Required flag",
		"required flag",
		"invalid value",
		"No help topic for",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
