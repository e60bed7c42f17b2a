package ws

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/lumenbrowse/lumen/internal/domain/history"
	"github.com/lumenbrowse/lumen/internal/domain/settings"
	"github.com/lumenbrowse/lumen/internal/domain/stream"
	"github.com/lumenbrowse/lumen/internal/domain/syscheck"
	"github.com/lumenbrowse/lumen/internal/domain/tabs"
	"github.com/lumenbrowse/lumen/internal/events"
	"github.com/lumenbrowse/lumen/internal/webview/webviewtest"
)

type stubProbe struct{}

func (stubProbe) Run(ctx context.Context) ([]syscheck.Check, error) {
	return []syscheck.Check{{Name: "backend-reachable", Status: syscheck.StatusOK, Critical: true}}, nil
}

// fixture wires a full IPC stack over fakes and an SSE backend stub.
type fixture struct {
	conn *websocket.Conn
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"token\":\"a\"}\n\n")
		flusher.Flush()
		fmt.Fprint(w, "data: {\"token\":\"b\"}\n\n")
		flusher.Flush()
	}))
	t.Cleanup(backend.Close)

	hub := events.NewHub(nil, nil)
	registry := tabs.NewRegistry(tabs.Options{
		Factory:   &webviewtest.FakeFactory{},
		Host:      &webviewtest.FakeHost{Width: 1600, Height: 900, HasSize: true},
		Broadcast: hub,
		History:   history.NewRing(50),
	})
	proxy := stream.NewProxy(stream.Options{Endpoint: backend.URL, Sink: hub})
	store := settings.NewStore(settings.StoreOptions{
		File:     filepath.Join(t.TempDir(), "settings.json"),
		OnChange: hub.SettingsChanged,
	})
	checks := syscheck.NewCache(syscheck.CacheOptions{
		Probe:    stubProbe{},
		UserData: t.TempDir(),
		OnUpdate: hub.SystemCheckUpdated,
	})

	handler := NewHandler(registry, proxy, store, checks, hub, nil, nil)
	router := gin.New()
	router.GET("/ws", handler.HandleConnection)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &fixture{conn: conn}
}

func (f *fixture) send(t *testing.T, msg string) {
	t.Helper()
	if err := f.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

// readUntil consumes messages until pred matches, skipping broadcasts.
func (f *fixture) readUntil(t *testing.T, pred func(map[string]interface{}) bool) map[string]interface{} {
	t.Helper()
	f.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, raw, err := f.conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		var msg map[string]interface{}
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("unparsable message %q: %v", raw, err)
		}
		if pred(msg) {
			return msg
		}
	}
}

func (f *fixture) readResponse(t *testing.T, id string) map[string]interface{} {
	t.Helper()
	return f.readUntil(t, func(m map[string]interface{}) bool {
		return m["id"] == id && (m["type"] == "response" || m["type"] == "error")
	})
}

func TestCreateTabOverIPC(t *testing.T) {
	f := newFixture(t)
	f.send(t, `{"type":"browser:create-tab","id":"r1","url":"example.com"}`)

	resp := f.readResponse(t, "r1")
	if resp["type"] != "response" {
		t.Fatalf("expected response, got %v", resp)
	}
	result := resp["result"].(map[string]interface{})
	if result["url"] != "https://example.com" {
		t.Errorf("expected normalized url, got %v", result["url"])
	}
	if result["isLoading"] != true {
		t.Error("expected loading snapshot")
	}

	// The broadcast tab list follows.
	f.readUntil(t, func(m map[string]interface{}) bool {
		return m["type"] == "browser:tabs"
	})
}

func TestCloseUnknownTabRepliesNotOK(t *testing.T) {
	f := newFixture(t)
	f.send(t, `{"type":"browser:close-tab","id":"r2","tabId":"tab_missing"}`)

	resp := f.readResponse(t, "r2")
	result := resp["result"].(map[string]interface{})
	if result["ok"] != false {
		t.Errorf("expected ok:false, got %v", result)
	}
}

func TestSettingsRoundTripOverIPC(t *testing.T) {
	f := newFixture(t)
	f.send(t, `{"type":"settings:update","id":"r3","patch":{"spellcheckLanguage":"en-GB"}}`)

	resp := f.readResponse(t, "r3")
	result := resp["result"].(map[string]interface{})
	if result["spellcheckLanguage"] != "en-GB" {
		t.Errorf("expected en-GB, got %v", result)
	}

	f.send(t, `{"type":"settings:get","id":"r4"}`)
	resp = f.readResponse(t, "r4")
	result = resp["result"].(map[string]interface{})
	if result["spellcheckLanguage"] != "en-GB" || result["searchMode"] != "auto" {
		t.Errorf("round trip lost fields: %v", result)
	}
}

func TestStreamDeliversFramesAndResolves(t *testing.T) {
	f := newFixture(t)
	f.send(t, `{"type":"llm:stream","id":"r5","requestId":"req_ipc","tabId":"tab_x","body":{"message":"hi"}}`)

	var frames int
	f.readUntil(t, func(m map[string]interface{}) bool {
		if m["type"] == "llm:frame" && m["requestId"] == "req_ipc" {
			frames++
		}
		return m["id"] == "r5" && m["type"] == "response"
	})
	if frames != 2 {
		t.Errorf("expected 2 frames before the response, got %d", frames)
	}
}

func TestAbortWithoutMatchReportsMismatch(t *testing.T) {
	f := newFixture(t)
	f.send(t, `{"type":"llm:abort","id":"r6","requestId":"req_ghost"}`)

	resp := f.readResponse(t, "r6")
	result := resp["result"].(map[string]interface{})
	if result["ok"] != false || result["mismatch"] != true {
		t.Errorf("expected mismatch result, got %v", result)
	}
}

func TestSystemCheckRunOverIPC(t *testing.T) {
	f := newFixture(t)
	f.send(t, `{"type":"system-check:run","id":"r7","options":{}}`)

	resp := f.readResponse(t, "r7")
	result := resp["result"].(map[string]interface{})
	summary := result["summary"].(map[string]interface{})
	if summary["status"] != "ok" {
		t.Errorf("expected ok summary, got %v", summary)
	}
}

func TestUnknownChannelKeepsConnectionAlive(t *testing.T) {
	f := newFixture(t)
	f.send(t, `{"type":"browser:self-destruct","id":"r8"}`)

	resp := f.readResponse(t, "r8")
	if resp["type"] != "error" || resp["error"] != "unknown channel" {
		t.Fatalf("expected unknown-channel error, got %v", resp)
	}

	// The connection still serves requests.
	f.send(t, `{"type":"ping","id":"r9"}`)
	f.readUntil(t, func(m map[string]interface{}) bool {
		return m["type"] == "pong" && m["id"] == "r9"
	})
}
