package tabs

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumenbrowse/lumen/internal/domain/history"
	"github.com/lumenbrowse/lumen/internal/domain/nav"
	"github.com/lumenbrowse/lumen/internal/infrastructure/logging"
	"github.com/lumenbrowse/lumen/internal/infrastructure/monitoring"
	"github.com/lumenbrowse/lumen/internal/shared/id"
	"github.com/lumenbrowse/lumen/internal/webview"
)

// Tab is one embedded content view plus its navigation metadata. The
// registry exclusively owns every Tab; nothing outside this package
// holds one past a call boundary.
type Tab struct {
	id        string
	view      webview.ContentView
	title     string
	favicon   string
	lastURL   string
	isLoading bool
	lastError *nav.Error
	createdAt time.Time
}

func (t *Tab) state() nav.TabState {
	return nav.TabState{
		ID:        t.id,
		View:      t.view,
		Title:     t.title,
		Favicon:   t.favicon,
		LastURL:   t.lastURL,
		IsLoading: t.isLoading,
		LastError: t.lastError,
	}
}

// List is the renderer-facing full tab list.
type List struct {
	Tabs        []nav.Snapshot `json:"tabs"`
	ActiveTabID string         `json:"activeTabId,omitempty"`
}

// Broadcaster republishes tab state toward renderer surfaces.
type Broadcaster interface {
	NavState(snapshot nav.Snapshot)
	TabList(list List)
}

// FaviconResolver resolves a page's icon into a renderable URL.
type FaviconResolver interface {
	Resolve(ctx context.Context, view webview.ContentView, pageURL string) (string, error)
}

// Options configures a Registry.
type Options struct {
	Factory    webview.Factory
	Host       webview.HostWindow
	Broadcast  Broadcaster
	History    *history.Ring
	Favicons   FaviconResolver
	Logger     *logging.Logger
	Metrics    *monitoring.Metrics
	DefaultURL string
}

// Registry owns the set of tabs, their creation order, and the
// active-tab pointer. It is the single source of truth every other
// component reads.
type Registry struct {
	mu       sync.Mutex
	tabs     map[string]*Tab
	order    []string
	activeID string

	attacher  *Attacher
	factory   webview.Factory
	broadcast Broadcaster
	hist      *history.Ring
	favicons  FaviconResolver
	logger    *logging.Logger
	metrics   *monitoring.Metrics

	defaultURL string
}

// NewRegistry creates an empty registry. Call CreateTab afterwards to
// satisfy the never-empty invariant.
func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	defaultURL := opts.DefaultURL
	if defaultURL == "" {
		defaultURL = "about:blank"
	}
	return &Registry{
		tabs:       make(map[string]*Tab),
		attacher:   NewAttacher(opts.Host, logger.Component("attach")),
		factory:    opts.Factory,
		broadcast:  opts.Broadcast,
		hist:       opts.History,
		favicons:   opts.Favicons,
		logger:     logger.Component("registry"),
		metrics:    opts.Metrics,
		defaultURL: defaultURL,
	}
}

// Attacher exposes the view attachment manager for bounds updates.
func (r *Registry) Attacher() *Attacher { return r.attacher }

// History returns the committed-navigation ring, nil when disabled.
func (r *Registry) History() *history.Ring { return r.hist }

// CreateTab allocates a new tab, wires its lifecycle bridge, optionally
// activates it, and kicks off navigation asynchronously. The returned
// snapshot reflects the loading state; a failed initial navigation is
// recorded on the tab later and does not fail this call.
func (r *Registry) CreateTab(ctx context.Context, rawURL string, activate bool) (nav.Snapshot, error) {
	view, err := r.factory.NewView(ctx)
	if err != nil {
		return nav.Snapshot{}, err
	}

	target := normalizeURL(rawURL, r.defaultURL)
	tab := &Tab{
		id:        id.NewTabID().String(),
		view:      view,
		lastURL:   target,
		isLoading: true,
		createdAt: time.Now(),
	}
	view.SetListener(&bridge{registry: r, tabID: tab.id})

	r.mu.Lock()
	r.tabs[tab.id] = tab
	r.order = append(r.order, tab.id)
	if activate {
		r.activateLocked(tab.id)
	}
	snapshot := nav.Build(tab.state(), r.activeID)
	r.publishLocked(snapshot)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.TabsTotal.Inc()
		r.metrics.TabsOpen.Set(float64(r.Count()))
	}
	r.logger.Info("tab created",
		zap.String("tab_id", tab.id),
		zap.String("url", target),
		zap.Bool("activate", activate),
	)

	go func() {
		if err := view.Navigate(context.Background(), target); err != nil {
			r.logger.Warn("initial navigation failed",
				zap.String("tab_id", tab.id),
				zap.String("url", target),
				zap.Error(err),
			)
			r.recordNavError(tab.id, 0, err.Error())
		}
	}()

	return snapshot, nil
}

// CloseTab destroys a tab. Returns false for unknown ids. Closing the
// active tab activates a neighbor; closing the last tab asynchronously
// creates a replacement default tab so the registry never stays empty.
func (r *Registry) CloseTab(ctx context.Context, tabID string) bool {
	r.mu.Lock()
	tab, ok := r.tabs[tabID]
	if !ok {
		r.mu.Unlock()
		return false
	}

	idx := -1
	for i, tid := range r.order {
		if tid == tabID {
			idx = i
			break
		}
	}
	r.order = append(r.order[:idx], r.order[idx+1:]...)
	delete(r.tabs, tabID)

	wasActive := r.activeID == tabID
	if wasActive {
		r.attacher.Detach(tab.view)
		r.activeID = ""
		if next := neighborIndex(idx, len(r.order)); next >= 0 {
			r.activateLocked(r.order[next])
			r.publishLocked(r.snapshotLocked(r.tabs[r.activeID]))
		}
	}

	empty := len(r.order) == 0
	list := r.listLocked()
	r.mu.Unlock()

	// Best-effort release of the underlying browsing context. Failures
	// here are expected during shutdown races.
	if err := tab.view.Stop(ctx); err != nil {
		r.logger.Debug("stop on close failed", zap.String("tab_id", tabID), zap.Error(err))
	}
	if err := tab.view.Close(ctx); err != nil {
		r.logger.Warn("view close failed", zap.String("tab_id", tabID), zap.Error(err))
	}

	if r.broadcast != nil {
		r.broadcast.TabList(list)
	}
	if r.metrics != nil {
		r.metrics.TabsClosed.Inc()
		r.metrics.TabsOpen.Set(float64(r.Count()))
	}
	r.logger.Info("tab closed", zap.String("tab_id", tabID), zap.Bool("was_active", wasActive))

	if empty {
		go func() {
			if _, err := r.CreateTab(context.Background(), "", true); err != nil {
				r.logger.Error("replacement tab creation failed", zap.Error(err))
			}
		}()
	}
	return true
}

// neighborIndex picks the tab to activate after a close: the tab that
// slid into the closed index, else the previous one, else the first.
func neighborIndex(closedIdx, remaining int) int {
	if remaining == 0 {
		return -1
	}
	if closedIdx < remaining {
		return closedIdx
	}
	if closedIdx-1 >= 0 && closedIdx-1 < remaining {
		return closedIdx - 1
	}
	return 0
}

// SetActiveTab switches the visible tab. Unknown ids are ignored.
// Re-activating the current tab only rebroadcasts state.
func (r *Registry) SetActiveTab(tabID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tab, ok := r.tabs[tabID]
	if !ok {
		return
	}

	if r.activeID == tabID {
		r.attacher.Attach(tab.view) // idempotent
		r.publishLocked(r.snapshotLocked(tab))
		return
	}

	r.activateLocked(tabID)
	r.publishLocked(r.snapshotLocked(tab))
}

// activateLocked detaches the previous active view, attaches the tab's
// view, and moves the pointer. The old view is always detached before
// the new one attaches.
func (r *Registry) activateLocked(tabID string) {
	if prev, ok := r.tabs[r.activeID]; ok && r.activeID != tabID {
		r.attacher.Detach(prev.view)
	}
	tab := r.tabs[tabID]
	r.activeID = tabID
	r.attacher.Attach(tab.view)
}

// SnapshotTabList computes the full, fresh tab list.
func (r *Registry) SnapshotTabList() List {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked()
}

// ActiveTabID returns the active tab id, or "" transiently during a
// close-and-replace.
func (r *Registry) ActiveTabID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID
}

// Count returns the number of open tabs.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Navigate loads a URL in the given tab (active tab when tabID is
// empty). Fire and forget; resulting state is broadcast by the bridge.
func (r *Registry) Navigate(tabID, rawURL string) {
	target := normalizeURL(rawURL, r.defaultURL)

	r.mu.Lock()
	tab := r.resolveLocked(tabID)
	if tab == nil {
		r.mu.Unlock()
		return
	}
	// Optimistic: the bridge confirms on navigation start.
	tab.lastURL = target
	tab.isLoading = true
	tab.lastError = nil
	view := tab.view
	tid := tab.id
	r.publishLocked(r.snapshotLocked(tab))
	r.mu.Unlock()

	go func() {
		if err := view.Navigate(context.Background(), target); err != nil {
			r.logger.Warn("navigation failed",
				zap.String("tab_id", tid),
				zap.String("url", target),
				zap.Error(err),
			)
			r.recordNavError(tid, 0, err.Error())
		}
	}()
}

// Back navigates one history entry back.
func (r *Registry) Back(tabID string) { r.historyMove(tabID, webview.ContentView.Back) }

// Forward navigates one history entry forward.
func (r *Registry) Forward(tabID string) { r.historyMove(tabID, webview.ContentView.Forward) }

func (r *Registry) historyMove(tabID string, move func(webview.ContentView, context.Context) error) {
	r.mu.Lock()
	tab := r.resolveLocked(tabID)
	if tab == nil {
		r.mu.Unlock()
		return
	}
	view := tab.view
	tid := tab.id
	r.mu.Unlock()

	go func() {
		if err := move(view, context.Background()); err != nil {
			r.logger.Debug("history move failed", zap.String("tab_id", tid), zap.Error(err))
		}
		r.rebroadcast(tid)
	}()
}

// Reload reloads the tab, optionally bypassing caches.
func (r *Registry) Reload(tabID string, ignoreCache bool) {
	r.mu.Lock()
	tab := r.resolveLocked(tabID)
	if tab == nil {
		r.mu.Unlock()
		return
	}
	tab.isLoading = true
	tab.lastError = nil
	view := tab.view
	tid := tab.id
	r.publishLocked(r.snapshotLocked(tab))
	r.mu.Unlock()

	go func() {
		if err := view.Reload(context.Background(), ignoreCache); err != nil {
			r.logger.Debug("reload failed", zap.String("tab_id", tid), zap.Error(err))
			r.recordNavError(tid, 0, err.Error())
		}
	}()
}

// resolveLocked finds the addressed tab, defaulting to the active one.
func (r *Registry) resolveLocked(tabID string) *Tab {
	if tabID == "" {
		tabID = r.activeID
	}
	return r.tabs[tabID]
}

func (r *Registry) recordNavError(tabID string, code int, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tab, ok := r.tabs[tabID]
	if !ok {
		return
	}
	tab.isLoading = false
	tab.lastError = &nav.Error{Code: code, Description: description}
	if r.metrics != nil {
		r.metrics.NavErrors.Inc()
	}
	r.publishLocked(r.snapshotLocked(tab))
}

// rebroadcast publishes the tab's current state unchanged.
func (r *Registry) rebroadcast(tabID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tab, ok := r.tabs[tabID]; ok {
		r.publishLocked(r.snapshotLocked(tab))
	}
}

func (r *Registry) snapshotLocked(tab *Tab) nav.Snapshot {
	return nav.Build(tab.state(), r.activeID)
}

func (r *Registry) listLocked() List {
	snapshots := make([]nav.Snapshot, 0, len(r.order))
	for _, tid := range r.order {
		snapshots = append(snapshots, nav.Build(r.tabs[tid].state(), r.activeID))
	}
	return List{Tabs: snapshots, ActiveTabID: r.activeID}
}

// publishLocked broadcasts both the single-tab state and the full tab
// list. The list is redundant but keeps renderer list views trivially
// consistent.
func (r *Registry) publishLocked(snapshot nav.Snapshot) {
	if r.broadcast == nil {
		return
	}
	r.broadcast.NavState(snapshot)
	r.broadcast.TabList(r.listLocked())
}

// normalizeURL fills in the default target and a https scheme for
// bare hosts typed without one.
func normalizeURL(raw, fallback string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return fallback
	}
	if strings.Contains(s, "://") ||
		strings.HasPrefix(s, "about:") ||
		strings.HasPrefix(s, "data:") {
		return s
	}
	return "https://" + s
}
