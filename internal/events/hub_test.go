package events

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lumenbrowse/lumen/internal/domain/nav"
	"github.com/lumenbrowse/lumen/internal/domain/tabs"
)

type fakeConn struct {
	mu       sync.Mutex
	messages []string
	writeErr error
	closed   bool
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.messages = append(c.messages, string(data))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}

func waitForMessages(t *testing.T, c *fakeConn, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := c.snapshot(); len(msgs) >= n {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d messages, have %v", n, c.snapshot())
	return nil
}

func TestBroadcastReachesAllSurfaces(t *testing.T) {
	h := NewHub(nil, nil)
	a, b := &fakeConn{}, &fakeConn{}
	h.Register(a)
	h.Register(b)

	h.TabList(tabs.List{Tabs: []nav.Snapshot{{TabID: "tab_1"}}, ActiveTabID: "tab_1"})

	for _, c := range []*fakeConn{a, b} {
		msgs := waitForMessages(t, c, 1)
		if !strings.Contains(msgs[0], `"type":"browser:tabs"`) {
			t.Errorf("unexpected message: %s", msgs[0])
		}
		if !strings.Contains(msgs[0], `"activeTabId":"tab_1"`) {
			t.Errorf("active id missing: %s", msgs[0])
		}
	}
}

func TestFrameTargetsOneSurface(t *testing.T) {
	h := NewHub(nil, nil)
	a, b := &fakeConn{}, &fakeConn{}
	sa := h.Register(a)
	h.Register(b)

	h.Frame(sa.ID(), "req_1", "data: {}")

	msgs := waitForMessages(t, a, 1)
	if !strings.Contains(msgs[0], `"type":"llm:frame"`) || !strings.Contains(msgs[0], "req_1") {
		t.Errorf("unexpected frame event: %s", msgs[0])
	}

	time.Sleep(50 * time.Millisecond)
	if len(b.snapshot()) != 0 {
		t.Error("frame leaked to a foreign surface")
	}

	// Unknown surface is a silent no-op.
	h.Frame("surf_gone", "req_2", "data: {}")
}

func TestUnregisterStopsDelivery(t *testing.T) {
	h := NewHub(nil, nil)
	c := &fakeConn{}
	s := h.Register(c)

	h.Unregister(s)
	if h.SurfaceCount() != 0 {
		t.Fatal("surface still registered")
	}
	h.NavState(nav.Snapshot{TabID: "tab_1"})

	time.Sleep(50 * time.Millisecond)
	if len(c.snapshot()) != 0 {
		t.Error("event delivered after unregister")
	}

	// Double unregister is harmless.
	h.Unregister(s)
}

func TestWriteFailureRemovesSurface(t *testing.T) {
	h := NewHub(nil, nil)
	c := &fakeConn{writeErr: errors.New("broken pipe")}
	h.Register(c)

	h.NavState(nav.Snapshot{TabID: "tab_1"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.SurfaceCount() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("failed surface not removed")
}
