package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kataras/neffos"
	"github.com/kataras/neffos/gorilla"
	"github.com/vmihailenco/msgpack/v5"

	"tapex-player/internal/config"
	"tapex-player/internal/decode/decodetest"
	"tapex-player/internal/frames"
	"tapex-player/internal/models"
	"tapex-player/internal/playback"
)

type fixture struct {
	index *frames.Index
	clock *playback.Clock
	state *State
	h     http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	idx := decodetest.New(100).Index()
	clock := playback.NewClock(25, 4)
	head := playback.NewHead(idx, clock, nil)
	info := models.MediaInfo{Path: "/videos/clip.mp4", FPS: 25, DurationMs: 4000, Width: 64, Height: 36, VideoCodec: "h264"}
	state := NewState(info, config.Default(), idx, clock, head, playback.NewControls(clock, head), nil)
	h, err := New(state).Handler()
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{index: idx, clock: clock, state: state, h: h}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) Status {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status code %d: %s", rec.Code, rec.Body.String())
	}
	var st Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestGetStatus(t *testing.T) {
	f := newFixture(t)
	st := decodeStatus(t, f.do(t, "GET", "/api/v1/status", ""))
	if st.Total != 100 || st.Frame != 0 || st.File != "clip.mp4" || st.Rate != 1 {
		t.Errorf("status = %+v", st)
	}
	if _, err := uuid.Parse(st.SessionID); err != nil {
		t.Errorf("session id %q: %v", st.SessionID, err)
	}
	if st.Tier != "EMPTY" || st.Timecode != "00:00:00.000" {
		t.Errorf("tier %q timecode %q", st.Tier, st.Timecode)
	}
}

func TestSeek(t *testing.T) {
	f := newFixture(t)

	st := decodeStatus(t, f.do(t, "POST", "/api/v1/seek", `{"frame": 50}`))
	if st.Frame != 50 || st.TimeMillis != 2000 || st.Timecode != "00:00:02.000" {
		t.Errorf("after seek: %+v", st)
	}
	st = decodeStatus(t, f.do(t, "POST", "/api/v1/seek", `{"seconds": 1}`))
	if st.Frame != 25 {
		t.Errorf("seek by seconds: frame %d", st.Frame)
	}

	for _, body := range []string{`{"frame": 500}`, `{"frame": -1}`, `{}`, `not json`} {
		if rec := f.do(t, "POST", "/api/v1/seek", body); rec.Code != http.StatusBadRequest {
			t.Errorf("seek %s: code %d", body, rec.Code)
		}
	}
	if got := f.state.Status().Frame; got != 25 {
		t.Errorf("rejected seeks moved the head to %d", got)
	}
}

func TestControl(t *testing.T) {
	f := newFixture(t)

	st := decodeStatus(t, f.do(t, "POST", "/api/v1/control", `{"action": "pause"}`))
	if !st.Paused {
		t.Error("pause not applied")
	}
	st = decodeStatus(t, f.do(t, "POST", "/api/v1/control", `{"action": "faster"}`))
	if st.TargetRate != 2 {
		t.Errorf("target rate = %v", st.TargetRate)
	}
	st = decodeStatus(t, f.do(t, "POST", "/api/v1/control", `{"action": "speed", "value": 100}`))
	if st.TargetRate != config.MaxSpeed {
		t.Errorf("speed not clamped: %v", st.TargetRate)
	}
	st = decodeStatus(t, f.do(t, "POST", "/api/v1/control", `{"action": "volume", "value": 0.3}`))
	if st.Volume != 0.3 {
		t.Errorf("volume = %v", st.Volume)
	}
	st = decodeStatus(t, f.do(t, "POST", "/api/v1/control", `{"action": "seek", "frame": 10}`))
	if st.Frame != 10 {
		t.Errorf("seek action: frame %d", st.Frame)
	}

	rec := f.do(t, "POST", "/api/v1/control", `{"action": "explode"}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "unknown action") {
		t.Errorf("unknown action: %d %s", rec.Code, rec.Body.String())
	}
}

func TestCacheMap(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 10; i++ {
		f.index.Store(i, frames.LowRes, frames.NewPicture(16, 9), int64(i)*40)
	}
	for i := 10; i < 15; i++ {
		f.index.Store(i, frames.FullRes, frames.NewPicture(64, 36), int64(i)*40)
	}

	rec := f.do(t, "GET", "/api/v1/cache", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code %d", rec.Code)
	}
	var body struct {
		Total   int    `json:"total"`
		LowRes  int    `json:"low_res"`
		FullRes int    `json:"full_res"`
		Runs    []Run  `json:"runs"`
		Map     string `json:"map"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 100 || body.LowRes != 10 || body.FullRes != 5 {
		t.Errorf("counts = %+v", body)
	}
	want := []Run{{"L", 0, 10}, {"F", 10, 5}, {".", 15, 85}}
	if len(body.Runs) != len(want) {
		t.Fatalf("runs = %+v", body.Runs)
	}
	for i := range want {
		if body.Runs[i] != want[i] {
			t.Errorf("run %d = %+v, want %+v", i, body.Runs[i], want[i])
		}
	}
	if body.Map != "10L5F85." {
		t.Errorf("map = %q", body.Map)
	}
	if encodeRuns(nil) != nil {
		t.Error("runs for an empty index")
	}
}

func TestGetConfig(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "GET", "/api/v1/config", "")
	var body struct {
		SessionID string `json:"session_id"`
		Media     struct {
			FPS   float64 `json:"fps"`
			Codec string  `json:"codec"`
		} `json:"media"`
		Scheduler struct {
			BufferSize int `json:"buffer_size"`
		} `json:"scheduler"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.SessionID != f.state.SessionID() || body.Media.FPS != 25 || body.Media.Codec != "h264" || body.Scheduler.BufferSize != 200 {
		t.Errorf("config = %+v", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "OPTIONS", "/api/v1/control", "")
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight = %d %v", rec.Code, rec.Header())
	}
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestStatusWebSocketJSON(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/api/v1/ws?interval=20ms"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var st Status
	if err := conn.ReadJSON(&st); err != nil {
		t.Fatal(err)
	}
	if st.Total != 100 || st.Reverse {
		t.Fatalf("first push = %+v", st)
	}

	if err := conn.WriteJSON(ControlRequest{Action: "reverse"}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 50 && !st.Reverse; i++ {
		if err := conn.ReadJSON(&st); err != nil {
			t.Fatal(err)
		}
	}
	if !st.Reverse || !f.clock.Reverse() {
		t.Error("reverse not applied over websocket")
	}
}

func TestStatusWebSocketMsgpack(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/api/v1/ws?format=msgpack&interval=20ms"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() Status {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		if kind != websocket.BinaryMessage {
			t.Fatalf("message kind %d", kind)
		}
		var st Status
		if err := msgpack.Unmarshal(data, &st); err != nil {
			t.Fatal(err)
		}
		return st
	}
	if st := read(); st.SessionID != f.state.SessionID() {
		t.Fatalf("session id %q", st.SessionID)
	}

	req, err := msgpack.Marshal(ControlRequest{Action: "volume", Value: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, req); err != nil {
		t.Fatal(err)
	}
	var st Status
	for i := 0; i < 50 && st.Volume != 0.5; i++ {
		st = read()
	}
	if st.Volume != 0.5 {
		t.Errorf("volume = %v", st.Volume)
	}
}

func TestEventNamespace(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	statuses := make(chan Status, 16)
	client, err := neffos.Dial(ctx, gorilla.DefaultDialer, wsURL(srv, "/api/v1/events"), neffos.Namespaces{
		EventNamespace: neffos.Events{
			"status": func(c *neffos.NSConn, msg neffos.Message) error {
				var st Status
				if err := json.Unmarshal(msg.Body, &st); err == nil {
					statuses <- st
				}
				return nil
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	ns, err := client.Connect(ctx, EventNamespace)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := json.Marshal(ControlRequest{Frame: intPtr(42)})
	ns.Emit("seek", body)

	for {
		select {
		case st := <-statuses:
			if st.Frame == 42 {
				return
			}
		case <-ctx.Done():
			t.Fatal("no status with the seeked frame")
		}
	}
}

func intPtr(v int) *int { return &v }

func TestControlRequestApply(t *testing.T) {
	f := newFixture(t)
	var req ControlRequest
	if err := json.Unmarshal([]byte(`{"action":"seek","value":2}`), &req); err != nil {
		t.Fatal(err)
	}
	if err := req.apply(f.state); err != nil {
		t.Fatal(err)
	}
	if got := f.state.Status().Frame; got != 50 {
		t.Errorf("seek by value: frame %d", got)
	}
}
