package server

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/websocket"
	"github.com/kataras/neffos"
)

// EventNamespace neffos 控制命名空间
const EventNamespace = "control"

// EventHandler neffos 事件处理器：每个事件执行一个操作并回发 "status"
type EventHandler struct {
	state *State
}

// NewEventHandler 创建事件处理器
func NewEventHandler(state *State) *EventHandler {
	return &EventHandler{state: state}
}

// OnConnect 命名空间连接
func (e *EventHandler) OnConnect(c *neffos.NSConn, msg neffos.Message) error {
	fmt.Printf("[WS] 事件客户端连接: %s\n", c.Conn.ID())
	e.emitStatus(c)
	return nil
}

// OnDisconnect 命名空间断开
func (e *EventHandler) OnDisconnect(c *neffos.NSConn, msg neffos.Message) error {
	fmt.Printf("[WS] 事件客户端断开: %s\n", c.Conn.ID())
	return nil
}

// OnSeek {"frame": n} 或 {"value": 秒}
func (e *EventHandler) OnSeek(c *neffos.NSConn, msg neffos.Message) error {
	var req ControlRequest
	if err := msg.Unmarshal(&req); err != nil {
		return err
	}
	req.Action = "seek"
	return e.apply(c, req)
}

// OnSpeed {"value": 目标速度}
func (e *EventHandler) OnSpeed(c *neffos.NSConn, msg neffos.Message) error {
	var req ControlRequest
	if err := msg.Unmarshal(&req); err != nil {
		return err
	}
	req.Action = "speed"
	return e.apply(c, req)
}

// OnVolume {"value": 音量}
func (e *EventHandler) OnVolume(c *neffos.NSConn, msg neffos.Message) error {
	var req ControlRequest
	if err := msg.Unmarshal(&req); err != nil {
		return err
	}
	req.Action = "volume"
	return e.apply(c, req)
}

// toggle 无参数的开关类事件
func (e *EventHandler) toggle(action string) neffos.MessageHandlerFunc {
	return func(c *neffos.NSConn, msg neffos.Message) error {
		return e.apply(c, ControlRequest{Action: action})
	}
}

func (e *EventHandler) apply(c *neffos.NSConn, req ControlRequest) error {
	if err := req.apply(e.state); err != nil {
		body, _ := json.Marshal(map[string]string{"action": req.Action, "error": err.Error()})
		c.Emit("error", body)
		return nil
	}
	e.emitStatus(c)
	return nil
}

func (e *EventHandler) emitStatus(c *neffos.NSConn) {
	body, err := json.Marshal(e.state.Status())
	if err != nil {
		return
	}
	c.Emit("status", body)
}

// Namespaces 注册的事件
func (e *EventHandler) Namespaces() websocket.Namespaces {
	return websocket.Namespaces{
		EventNamespace: websocket.Events{
			websocket.OnNamespaceConnected:  e.OnConnect,
			websocket.OnNamespaceDisconnect: e.OnDisconnect,
			"seek":                          e.OnSeek,
			"speed":                         e.OnSpeed,
			"volume":                        e.OnVolume,
			"pause":                         e.toggle("pause"),
			"reverse":                       e.toggle("reverse"),
		},
	}
}

// Handler 挂到 iris 路由上的 neffos 服务，连接 ID 使用 UUID
func (e *EventHandler) Handler() (iris.Handler, *neffos.Server) {
	ws := websocket.New(websocket.DefaultGorillaUpgrader, e.Namespaces())
	return websocket.Handler(ws, func(iris.Context) string { return uuid.NewString() }), ws
}
