package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"
	"github.com/vmihailenco/msgpack/v5"

	"tapex-player/internal/task"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	defaultPushInterval = 200 * time.Millisecond
	minPushInterval     = 20 * time.Millisecond
)

// StatusSession 一个状态推送连接
type StatusSession struct {
	id      string
	ws      *websocket.Conn
	state   *State
	msgpack bool

	mu       sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
}

// HandleWebSocket 状态推送 + 控制
// GET /api/v1/ws?format=json|msgpack&interval=200ms
// 服务端按间隔推送 Status；客户端发送 ControlRequest (JSON 文本或 msgpack 二进制)
func (h *Handlers) HandleWebSocket(ctx iris.Context) {
	interval := defaultPushInterval
	if v := ctx.URLParam("interval"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			interval = max(d, minPushInterval)
		}
	}
	binary := ctx.URLParam("format") == "msgpack"

	ws, err := upgrader.Upgrade(ctx.ResponseWriter(), ctx.Request(), nil)
	if err != nil {
		fmt.Printf("[WS] Upgrade error: %v\n", err)
		return
	}
	defer ws.Close()

	s := &StatusSession{
		id:       uuid.NewString(),
		ws:       ws,
		state:    h.state,
		msgpack:  binary,
		stopChan: make(chan struct{}),
	}
	fmt.Printf("[WS] 新连接: %s (msgpack=%v, interval=%s)\n", s.id, binary, interval)

	pusher := task.Go(func() error { s.push(interval); return nil })
	s.readLoop()
	s.stop()
	_ = pusher.Wait()
	fmt.Printf("[WS] 断开连接: %s\n", s.id)
}

func (s *StatusSession) readLoop() {
	for {
		kind, message, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				fmt.Printf("[WS] Error: %v\n", err)
			}
			return
		}

		var req ControlRequest
		if kind == websocket.BinaryMessage {
			err = msgpack.Unmarshal(message, &req)
		} else {
			err = json.Unmarshal(message, &req)
		}
		if err != nil {
			_ = s.send(map[string]any{"type": "error", "error": "无效的消息"})
			continue
		}
		if err := req.apply(s.state); err != nil {
			_ = s.send(map[string]any{"type": "error", "action": req.Action, "error": err.Error()})
			continue
		}
		_ = s.send(s.state.Status())
	}
}

// push 定时推送状态，直到连接断开
func (s *StatusSession) push(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	if s.send(s.state.Status()) != nil {
		return
	}
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if err := s.send(s.state.Status()); err != nil {
				return
			}
		}
	}
}

func (s *StatusSession) stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// send 按连接选择的格式编码并发送
func (s *StatusSession) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.msgpack {
		return s.ws.WriteJSON(v)
	}
	data, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	return s.ws.WriteMessage(websocket.BinaryMessage, data)
}
