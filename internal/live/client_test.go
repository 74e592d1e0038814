package live

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/talupulahemanth/voiceassist/internal/audio"
	"github.com/talupulahemanth/voiceassist/internal/transcript"
)

func newFakeService(t *testing.T, handler func(r *http.Request, ws *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		handler(r, ws)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readSetup(t *testing.T, ws *websocket.Conn) setupMessage {
	t.Helper()
	var msg setupMessage
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Errorf("read setup: %v", err)
		return msg
	}
	if err := sonic.Unmarshal(data, &msg); err != nil {
		t.Errorf("decode setup: %v", err)
	}
	return msg
}

func ackSetup(ws *websocket.Conn) error {
	return ws.WriteMessage(websocket.TextMessage, []byte(`{"setupComplete":{}}`))
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var got []Event
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out collecting events, got %d so far", len(got))
		}
	}
}

func names(events []Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = Name(ev)
	}
	return out
}

func TestConnectHandshakeAndEvents(t *testing.T) {
	url := newFakeService(t, func(r *http.Request, ws *websocket.Conn) {
		if key := r.URL.Query().Get("key"); key != "secret" {
			t.Errorf("key = %q, want secret", key)
		}

		setup := readSetup(t, ws)
		if setup.Setup.Model != DefaultModel {
			t.Errorf("model = %q", setup.Setup.Model)
		}
		if sc := setup.Setup.GenerationConfig.SpeechConfig; sc == nil || sc.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Zephyr" {
			t.Errorf("speech config = %+v", sc)
		}
		if setup.Setup.SystemInstruction == nil || setup.Setup.SystemInstruction.Parts[0].Text != "be brief" {
			t.Errorf("system instruction = %+v", setup.Setup.SystemInstruction)
		}
		if setup.Setup.InputAudioTranscription == nil || setup.Setup.OutputAudioTranscription == nil {
			t.Error("transcription not requested")
		}
		if err := ackSetup(ws); err != nil {
			t.Errorf("ack: %v", err)
			return
		}

		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Errorf("read audio: %v", err)
			return
		}
		var in realtimeInputMessage
		if err := sonic.Unmarshal(data, &in); err != nil || in.RealtimeInput.Audio == nil {
			t.Errorf("decode audio: %v %s", err, data)
			return
		}
		if in.RealtimeInput.Audio.MIMEType != "audio/pcm;rate=16000" || in.RealtimeInput.Audio.Data != "AAAA" {
			t.Errorf("audio blob = %+v", in.RealtimeInput.Audio)
		}

		ws.WriteMessage(websocket.TextMessage, []byte(`{"serverContent":{
			"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AAAA"}},{"text":"ignored"}]},
			"inputTranscription":{"text":"Hel"},
			"outputTranscription":{"text":"Hi"},
			"turnComplete":true}}`))
		ws.WriteMessage(websocket.TextMessage, []byte(`{"serverContent":{"interrupted":true}}`))
		ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		ws.ReadMessage()
	})

	client := &Client{URL: url, APIKey: "secret"}
	session, err := client.Connect(context.Background(), Config{
		Voice:               "Zephyr",
		SystemPrompt:        "be brief",
		InputTranscription:  true,
		OutputTranscription: true,
	})
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	defer session.Close()

	if err := session.SendAudio(audio.Chunk{Data: "AAAA", SampleRate: audio.InputSampleRate}); err != nil {
		t.Fatalf("SendAudio error: %v", err)
	}

	got := collect(t, session.Events())
	want := []string{"audio_chunk", "transcript_fragment", "transcript_fragment", "turn_complete", "interrupted", "closed"}
	if strings.Join(names(got), ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", names(got), want)
	}

	if chunk := got[0].(AudioChunk).Chunk; chunk.SampleRate != 24000 || chunk.Data != "AAAA" {
		t.Errorf("audio chunk = %+v", chunk)
	}
	if frag := got[1].(TranscriptFragment); frag.Role != transcript.RoleUser || frag.Text != "Hel" {
		t.Errorf("input fragment = %+v", frag)
	}
	if frag := got[2].(TranscriptFragment); frag.Role != transcript.RoleModel || frag.Text != "Hi" {
		t.Errorf("output fragment = %+v", frag)
	}
}

func TestConnectErrors(t *testing.T) {
	forbidden := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer forbidden.Close()

	closesEarly := newFakeService(t, func(r *http.Request, ws *websocket.Conn) {
		readSetup(t, ws)
	})

	tests := []struct {
		name       string
		client     *Client
		wantOp     string
		wantStatus int
		wantErr    error
	}{
		{
			name:    "missing key",
			client:  &Client{URL: closesEarly},
			wantOp:  "dial",
			wantErr: ErrMissingAPIKey,
		},
		{
			name:       "rejected upgrade",
			client:     &Client{URL: "ws" + strings.TrimPrefix(forbidden.URL, "http"), APIKey: "k"},
			wantOp:     "dial",
			wantStatus: http.StatusForbidden,
		},
		{
			name:   "closed before setup",
			client: &Client{URL: closesEarly, APIKey: "k"},
			wantOp: "handshake",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.client.Connect(context.Background(), Config{})
			var connErr *ConnectionError
			if !errors.As(err, &connErr) {
				t.Fatalf("error = %v, want *ConnectionError", err)
			}
			if connErr.Op != tt.wantOp {
				t.Errorf("Op = %q, want %q", connErr.Op, tt.wantOp)
			}
			if connErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", connErr.StatusCode, tt.wantStatus)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConnectHonorsContext(t *testing.T) {
	url := newFakeService(t, func(r *http.Request, ws *websocket.Conn) {
		readSetup(t, ws)
		ws.ReadMessage()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := (&Client{URL: url, APIKey: "k"}).Connect(ctx, Config{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
}

func TestLocalCloseEmitsOnlyClosed(t *testing.T) {
	url := newFakeService(t, func(r *http.Request, ws *websocket.Conn) {
		readSetup(t, ws)
		ackSetup(ws)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	session, err := (&Client{URL: url, APIKey: "k"}).Connect(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}

	for _, ev := range collect(t, session.Events()) {
		if _, ok := ev.(Error); ok {
			t.Errorf("unexpected error event after local close: %+v", ev)
		}
	}
	if err := session.SendAudio(audio.Chunk{Data: "AAAA", SampleRate: 16000}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("SendAudio after close = %v, want ErrSessionClosed", err)
	}
}

func TestRemoteDropEmitsErrorThenClosed(t *testing.T) {
	url := newFakeService(t, func(r *http.Request, ws *websocket.Conn) {
		readSetup(t, ws)
		ackSetup(ws)
		ws.UnderlyingConn().Close()
	})

	session, err := (&Client{URL: url, APIKey: "k"}).Connect(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	defer session.Close()

	got := collect(t, session.Events())
	if strings.Join(names(got), ",") != "error,closed" {
		t.Fatalf("events = %v, want [error closed]", names(got))
	}
	var connErr *ConnectionError
	if !errors.As(got[0].(Error).Err, &connErr) || connErr.Op != "read" {
		t.Errorf("error event = %+v", got[0])
	}
}
