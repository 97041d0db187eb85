package xrun

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Server *http.Server 满足该接口。
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServer 把 srv 包装成服务：ctx 取消时在 timeout 内优雅关闭，timeout <= 0 表示等在途请求全部结束。
// 监听失败直接返回错误；被外部 Shutdown 时返回 nil。
func HTTPServer(srv Server, timeout time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if srv == nil {
			return ErrNilServer
		}
		served := make(chan error, 1)
		go func() { served <- srv.ListenAndServe() }()

		select {
		case err := <-served:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		shutdownCtx := context.WithoutCancel(ctx)
		if timeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(shutdownCtx, timeout)
			defer cancel()
		}
		err := srv.Shutdown(shutdownCtx)
		<-served
		return err
	}
}
