package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/talupulahemanth/voiceassist/internal/config"
	"github.com/talupulahemanth/voiceassist/internal/device"
	"github.com/talupulahemanth/voiceassist/internal/live"
	"github.com/talupulahemanth/voiceassist/internal/metrics"
	"github.com/talupulahemanth/voiceassist/internal/session"
)

type fakeController struct {
	mu       sync.Mutex
	startErr error
	snap     session.Snapshot
	starts   int
	stops    int
	subs     []chan session.Snapshot
}

func newFakeController() *fakeController {
	return &fakeController{snap: session.Snapshot{Voice: "Zephyr", Language: "en", Captions: true}}
}

func (f *fakeController) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.snap.State = session.StateActive
	f.broadcastLocked()
	return nil
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.snap.State = session.StateIdle
	f.broadcastLocked()
}

func (f *fakeController) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeController) Subscribe() (<-chan session.Snapshot, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan session.Snapshot, 8)
	f.subs = append(f.subs, ch)
	return ch, func() {}
}

func (f *fakeController) broadcastLocked() {
	for _, ch := range f.subs {
		select {
		case ch <- f.snap:
		default:
		}
	}
}

func (f *fakeController) SelectVoice(name string) error {
	a := config.Default().Assistant
	v, ok := a.FindVoice(name)
	if !ok {
		return session.ErrUnknownVoice
	}
	f.mu.Lock()
	f.snap.Voice = v.Name
	f.mu.Unlock()
	return nil
}

func (f *fakeController) SelectLanguage(code string) error {
	a := config.Default().Assistant
	l, ok := a.FindLanguage(code)
	if !ok {
		return session.ErrUnknownLanguage
	}
	f.mu.Lock()
	f.snap.Language = l.Code
	f.mu.Unlock()
	return nil
}

func (f *fakeController) ToggleCaptions() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.Captions = !f.snap.Captions
	return f.snap.Captions
}

func (f *fakeController) Voices() []config.Voice       { return config.DefaultVoices }
func (f *fakeController) Languages() []config.Language { return config.DefaultLanguages }

func newTestServer(t *testing.T, controller Controller) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(controller, metrics.NewMetrics(reg), reg, nil)
}

func TestRoutes(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		startErr   error
		wantStatus int
		wantBody   string
	}{
		{"health", "GET", "/healthz", "", nil, 200, `"status":"ok"`},
		{"state", "GET", "/state", "", nil, 200, `"state":"idle"`},
		{"voices", "GET", "/voices", "", nil, 200, `"name":"Puck"`},
		{"languages", "GET", "/languages", "", nil, 200, `"code":"hi"`},
		{"start", "POST", "/session/start", "", nil, 200, `"state":"active"`},
		{"start denied", "POST", "/session/start", "",
			&device.PermissionError{Device: "mic", Err: errors.New("denied")}, 403, "denied"},
		{"start unreachable", "POST", "/session/start", "",
			&live.ConnectionError{Op: "dial", Err: errors.New("refused")}, 502, "refused"},
		{"stop", "POST", "/session/stop", "", nil, 200, `"state":"idle"`},
		{"voice", "PUT", "/settings/voice", `{"voice":"kore"}`, nil, 200, `"voice":"Kore"`},
		{"unknown voice", "PUT", "/settings/voice", `{"voice":"nobody"}`, nil, 400, "unknown voice"},
		{"bad json", "PUT", "/settings/voice", `{`, nil, 400, "invalid JSON"},
		{"language", "PUT", "/settings/language", `{"language":"ja"}`, nil, 200, `"language":"ja"`},
		{"unknown language", "PUT", "/settings/language", `{"language":"xx"}`, nil, 400, "unknown language"},
		{"captions", "POST", "/settings/captions", "", nil, 200, `"captions":false`},
		{"ws without upgrade", "GET", "/ws", "", nil, 426, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			controller := newFakeController()
			controller.startErr = tt.startErr
			srv := newTestServer(t, controller)

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			resp, err := srv.App().Test(req)
			if err != nil {
				t.Fatalf("request error: %v", err)
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, tt.wantStatus, body)
			}
			if !strings.Contains(string(body), tt.wantBody) {
				t.Errorf("body %s does not contain %s", body, tt.wantBody)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, newFakeController())

	if _, err := srv.App().Test(httptest.NewRequest("GET", "/healthz", nil)); err != nil {
		t.Fatalf("request error: %v", err)
	}
	resp, err := srv.App().Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `voiceassist_http_requests_total{method="GET",route="/healthz",status="200"} 1`) {
		t.Errorf("metrics output missing healthz counter:\n%s", body)
	}
}

func TestWebSocketStream(t *testing.T) {
	controller := newFakeController()
	srv := newTestServer(t, controller)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.App().Listener(ln)
	defer srv.Shutdown(context.Background())

	conn, _, err := gws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, first, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if !strings.Contains(string(first), `"state":"idle"`) {
		t.Fatalf("initial snapshot = %s", first)
	}

	if err := conn.WriteMessage(gws.TextMessage, []byte("start")); err != nil {
		t.Fatalf("write command: %v", err)
	}
	_, next, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read update: %v", err)
	}
	if !strings.Contains(string(next), `"state":"active"`) {
		t.Errorf("update = %s", next)
	}
}

func TestConsole(t *testing.T) {
	controller := newFakeController()
	var out strings.Builder
	console := NewConsole(controller, &out, nil)

	input := strings.Join([]string{
		"start",
		"",
		"voice charon",
		"language xx",
		"captions",
		"bogus",
		"voice",
		"stop",
		"state",
	}, "\n")
	if err := console.Run(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if controller.starts != 1 || controller.stops != 1 {
		t.Errorf("starts %d stops %d, want 1/1", controller.starts, controller.stops)
	}
	snap := controller.Snapshot()
	if snap.Voice != "Charon" || snap.Language != "en" || snap.Captions {
		t.Errorf("snapshot = %+v", snap)
	}

	text := out.String()
	for _, want := range []string{
		"state=active voice=Zephyr",
		"error: unknown language",
		`error: unknown command "bogus"`,
		"error: usage: voice <name>",
		"state=idle voice=Charon language=en captions=false",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("console output missing %q:\n%s", want, text)
		}
	}
}
