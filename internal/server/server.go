// Package server 可选的 HTTP/WebSocket 控制与状态接口
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/kataras/iris/v12"
	"github.com/kataras/neffos"

	"tapex-player/internal/task"
)

// Server 控制服务
type Server struct {
	app    *iris.Application
	events *neffos.Server
}

// New 创建 iris 应用并注册全部路由
func New(state *State) *Server {
	app := iris.New()
	app.Logger().SetLevel("warn")

	// CORS
	app.UseRouter(func(ctx iris.Context) {
		ctx.Header("Access-Control-Allow-Origin", "*")
		ctx.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		ctx.Header("Access-Control-Allow-Headers", "Content-Type")
		if ctx.Method() == "OPTIONS" {
			ctx.StatusCode(204)
			return
		}
		ctx.Next()
	})

	eventsHandler, events := NewEventHandler(state).Handler()
	RegisterRoutes(app, NewHandlers(state), eventsHandler)
	return &Server{app: app, events: events}
}

// Handler 构建后的 http.Handler (测试使用)
func (s *Server) Handler() (http.Handler, error) {
	if err := s.app.Build(); err != nil {
		return nil, err
	}
	return s.app, nil
}

// Start 在后台监听 addr，Shutdown 后任务结束
func (s *Server) Start(addr string) *task.Task {
	fmt.Printf("[HTTP] 控制接口: http://%s/api/v1/status\n", addr)
	return task.Go(func() error {
		err := s.app.Listen(addr, iris.WithoutStartupLog, iris.WithoutInterruptHandler)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
}

// Shutdown 关闭 WebSocket 连接和 HTTP 服务
func (s *Server) Shutdown(ctx context.Context) error {
	s.events.Close()
	return s.app.Shutdown(ctx)
}
