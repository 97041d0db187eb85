// Package xrun 基于 errgroup 运行一组长期服务，并在退出时协调关闭。
//
// xbusctl serve 把状态 HTTP 服务、定时裁剪与配置监视放进同一个 Group：
// 任一服务出错、收到 SIGINT/SIGTERM 或父 ctx 取消，其余服务随之退出；
// 全部退出后执行 WithShutdownHook 注册的钩子。
//
//	err := xrun.Run(ctx, []xrun.Option{
//		xrun.WithName("xbusctl"),
//		xrun.WithShutdownHook("bus", bus.Shutdown),
//	}, xrun.Service{Name: "http", Run: xrun.HTTPServer(srv, 5*time.Second)})
//	if errors.Is(err, xrun.ErrSignal) {
//		// 正常的信号退出
//	}
package xrun
