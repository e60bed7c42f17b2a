package tabs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lumenbrowse/lumen/internal/domain/history"
	"github.com/lumenbrowse/lumen/internal/domain/nav"
	"github.com/lumenbrowse/lumen/internal/webview/webviewtest"
)

// captureBroadcaster records everything published toward the renderer.
type captureBroadcaster struct {
	mu     sync.Mutex
	states []nav.Snapshot
	lists  []List
}

func (c *captureBroadcaster) NavState(s nav.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = append(c.states, s)
}

func (c *captureBroadcaster) TabList(l List) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists = append(c.lists, l)
}

func (c *captureBroadcaster) statesFor(tabID string) []nav.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []nav.Snapshot
	for _, s := range c.states {
		if s.TabID == tabID {
			out = append(out, s)
		}
	}
	return out
}

func newTestRegistry(t *testing.T) (*Registry, *webviewtest.FakeFactory, *webviewtest.FakeHost, *captureBroadcaster) {
	t.Helper()
	factory := &webviewtest.FakeFactory{}
	host := &webviewtest.FakeHost{Width: 1600, Height: 900, HasSize: true}
	bc := &captureBroadcaster{}
	r := NewRegistry(Options{
		Factory:   factory,
		Host:      host,
		Broadcast: bc,
		History:   history.NewRing(50),
	})
	return r, factory, host, bc
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// settle waits for a tab's initial navigation to finish so manually
// driven lifecycle signals don't race it.
func settle(t *testing.T, r *Registry, tabID string) {
	t.Helper()
	waitFor(t, func() bool {
		for _, s := range r.SnapshotTabList().Tabs {
			if s.TabID == tabID {
				return !s.IsLoading
			}
		}
		return false
	})
}

// checkInvariant asserts order list and registry map hold the same ids.
func checkInvariant(t *testing.T, r *Registry) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) != len(r.tabs) {
		t.Fatalf("order has %d ids, registry has %d", len(r.order), len(r.tabs))
	}
	for _, id := range r.order {
		if _, ok := r.tabs[id]; !ok {
			t.Fatalf("order id %s missing from registry", id)
		}
	}
}

func TestCreateTabReturnsLoadingSnapshot(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)

	snap, err := r.CreateTab(context.Background(), "example.com", true)
	if err != nil {
		t.Fatalf("CreateTab failed: %v", err)
	}
	if snap.URL != "https://example.com" {
		t.Errorf("expected scheme added, got %q", snap.URL)
	}
	if !snap.IsLoading {
		t.Error("expected loading snapshot")
	}
	if !snap.IsActive {
		t.Error("expected created tab active")
	}
	checkInvariant(t, r)
}

func TestCreateCloseInvariant(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	ctx := context.Background()

	a, _ := r.CreateTab(ctx, "", true)
	b, _ := r.CreateTab(ctx, "", false)
	c, _ := r.CreateTab(ctx, "", false)
	checkInvariant(t, r)

	if !r.CloseTab(ctx, b.TabID) {
		t.Fatal("close failed")
	}
	checkInvariant(t, r)

	if r.CloseTab(ctx, b.TabID) {
		t.Error("closing unknown tab should return false")
	}

	r.CloseTab(ctx, a.TabID)
	r.CloseTab(ctx, c.TabID)
	// Last close triggers async replacement; registry must settle non-empty.
	waitFor(t, func() bool { return r.Count() == 1 })
	checkInvariant(t, r)
	if r.ActiveTabID() == "" {
		t.Error("expected replacement tab active")
	}
}

func TestCloseActivePrefersSlidNeighbor(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	ctx := context.Background()

	_, _ = r.CreateTab(ctx, "", true)
	b, _ := r.CreateTab(ctx, "", false)
	c, _ := r.CreateTab(ctx, "", false)

	r.SetActiveTab(b.TabID)
	r.CloseTab(ctx, b.TabID)

	// c slid into b's index and becomes active.
	if got := r.ActiveTabID(); got != c.TabID {
		t.Errorf("expected %s active, got %s", c.TabID, got)
	}
}

func TestCloseLastPositionActivatesPrevious(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	ctx := context.Background()

	a, _ := r.CreateTab(ctx, "", true)
	b, _ := r.CreateTab(ctx, "", true)

	r.CloseTab(ctx, b.TabID)
	if got := r.ActiveTabID(); got != a.TabID {
		t.Errorf("expected %s active, got %s", a.TabID, got)
	}
}

func TestCloseActiveDetachesBeforeAttach(t *testing.T) {
	r, _, host, _ := newTestRegistry(t)
	ctx := context.Background()

	a, _ := r.CreateTab(ctx, "", true)
	_, _ = r.CreateTab(ctx, "", false)

	before := len(host.Log)
	r.CloseTab(ctx, a.TabID)

	tail := host.Log[before:]
	if len(tail) != 2 || tail[0] != "detach" || tail[1] != "attach" {
		t.Errorf("expected detach then attach, got %v", tail)
	}
}

func TestSetActiveTabIdempotent(t *testing.T) {
	r, _, host, bc := newTestRegistry(t)
	ctx := context.Background()

	a, _ := r.CreateTab(ctx, "", true)
	before := len(host.Log)
	statesBefore := len(bc.statesFor(a.TabID))

	r.SetActiveTab(a.TabID)
	r.SetActiveTab(a.TabID)

	if len(host.Log) != before {
		t.Errorf("expected no further attach/detach, got %v", host.Log[before:])
	}
	if len(bc.statesFor(a.TabID)) <= statesBefore {
		t.Error("expected state rebroadcast")
	}
}

func TestSetActiveTabSwitches(t *testing.T) {
	r, _, host, _ := newTestRegistry(t)
	ctx := context.Background()

	_, _ = r.CreateTab(ctx, "", true)
	b, _ := r.CreateTab(ctx, "", false)

	before := len(host.Log)
	r.SetActiveTab(b.TabID)

	tail := host.Log[before:]
	if len(tail) != 2 || tail[0] != "detach" || tail[1] != "attach" {
		t.Errorf("expected detach then attach, got %v", tail)
	}
	if r.ActiveTabID() != b.TabID {
		t.Error("pointer not moved")
	}
}

func TestSetActiveTabUnknownIsNoop(t *testing.T) {
	r, _, host, _ := newTestRegistry(t)
	a, _ := r.CreateTab(context.Background(), "", true)

	before := len(host.Log)
	r.SetActiveTab("tab_bogus")
	if r.ActiveTabID() != a.TabID || len(host.Log) != before {
		t.Error("unknown id must not change state")
	}
}

func TestNavigateBroadcastsLoadingTransition(t *testing.T) {
	r, factory, _, bc := newTestRegistry(t)
	snap, _ := r.CreateTab(context.Background(), "", true)
	view := factory.Last()

	r.Navigate(snap.TabID, "example.com")
	waitFor(t, func() bool {
		return len(view.NavigateCalls) >= 2 // initial default + explicit
	})
	waitFor(t, func() bool {
		states := bc.statesFor(snap.TabID)
		var sawLoading, sawSettled bool
		for _, s := range states {
			if s.URL == "https://example.com" && s.IsLoading {
				sawLoading = true
			}
			if s.URL == "https://example.com" && sawLoading && !s.IsLoading {
				sawSettled = true
			}
		}
		return sawLoading && sawSettled
	})
}

func TestNavigationFailureRecordedOnTab(t *testing.T) {
	r, factory, _, _ := newTestRegistry(t)
	snap, _ := r.CreateTab(context.Background(), "", true)
	view := factory.Last()
	view.SetNavigateErr(context.DeadlineExceeded)

	r.Navigate(snap.TabID, "https://unreachable.example/")
	waitFor(t, func() bool {
		list := r.SnapshotTabList()
		for _, s := range list.Tabs {
			if s.TabID == snap.TabID && s.Error != nil && !s.IsLoading {
				return true
			}
		}
		return false
	})
}

func TestBridgeLoadFailure(t *testing.T) {
	r, factory, _, _ := newTestRegistry(t)
	snap, _ := r.CreateTab(context.Background(), "", true)
	settle(t, r, snap.TabID)
	l := factory.Last().Listener()

	l.LoadStarted("https://down.example/")
	l.LoadFailed(-105, "name not resolved")

	list := r.SnapshotTabList()
	s := list.Tabs[0]
	if s.Error == nil || s.Error.Code != -105 {
		t.Fatalf("expected failure recorded, got %+v", s.Error)
	}
	if s.IsLoading {
		t.Error("loading must clear on failure")
	}

	// A successful navigation start clears the error.
	l.LoadStarted("https://up.example/")
	list = r.SnapshotTabList()
	if list.Tabs[0].Error != nil {
		t.Error("expected error cleared on next navigation start")
	}
	_ = snap
}

func TestBridgeIgnoresSupersededAbort(t *testing.T) {
	r, factory, _, _ := newTestRegistry(t)
	first, _ := r.CreateTab(context.Background(), "", true)
	settle(t, r, first.TabID)
	l := factory.Last().Listener()

	l.LoadStarted("https://slow.example/")
	l.LoadFailed(ErrAbortedCode, "aborted")

	s := r.SnapshotTabList().Tabs[0]
	if s.Error != nil {
		t.Error("superseded-navigation abort must not be recorded")
	}
	if !s.IsLoading {
		t.Error("loading state must be untouched by ignored abort")
	}
}

func TestBridgeTitleAndFavicon(t *testing.T) {
	r, factory, _, _ := newTestRegistry(t)
	first, _ := r.CreateTab(context.Background(), "", true)
	settle(t, r, first.TabID)
	l := factory.Last().Listener()

	l.TitleChanged("Research Notes")
	l.FaviconChanged("data:image/png;base64,AAAA")

	s := r.SnapshotTabList().Tabs[0]
	if s.Title != "Research Notes" || s.Favicon == "" {
		t.Errorf("metadata not applied: %+v", s)
	}
}

func TestPopupBecomesNewActiveTab(t *testing.T) {
	r, factory, _, _ := newTestRegistry(t)
	a, _ := r.CreateTab(context.Background(), "", true)
	l := factory.Last().Listener()

	l.PopupRequested("https://popup.example/")
	waitFor(t, func() bool { return r.Count() == 2 })
	if r.ActiveTabID() == a.TabID {
		t.Error("popup tab should be activated")
	}
}

func TestCommittedNavigationRecordsHistory(t *testing.T) {
	r, factory, _, _ := newTestRegistry(t)
	first, _ := r.CreateTab(context.Background(), "", true)
	settle(t, r, first.TabID)
	l := factory.Last().Listener()

	l.Committed("https://docs.example/page")

	if entries := r.hist.List(0); len(entries) == 0 || entries[0].URL != "https://docs.example/page" {
		t.Errorf("expected committed navigation in history, got %v", entries)
	}
}
