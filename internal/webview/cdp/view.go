// Package cdp adapts a Chrome target driven over the DevTools Protocol
// to the webview boundary. Each View is one browser tab target; the
// lifecycle signals the bridge consumes are translated from CDP events.
package cdp

import (
	"context"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/lumenbrowse/lumen/internal/infrastructure/logging"
	"github.com/lumenbrowse/lumen/internal/webview"
)

// View is one Chrome tab target.
type View struct {
	ctx      context.Context
	cancel   context.CancelFunc
	targetID target.ID
	logger   *logging.Logger

	mu        sync.Mutex
	listener  webview.Listener
	url       string
	title     string
	pending   string
	mainFrame string
	canBack   bool
	canFwd    bool
}

// Factory creates tab targets inside one shared browser context.
type Factory struct {
	browserCtx context.Context
	logger     *logging.Logger
}

// NewFactory wraps an established chromedp browser context.
func NewFactory(browserCtx context.Context, logger *logging.Logger) *Factory {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Factory{browserCtx: browserCtx, logger: logger.Component("cdp")}
}

// NewView opens a fresh tab target and wires its event listener.
func (f *Factory) NewView(ctx context.Context) (webview.ContentView, error) {
	tabCtx, cancel := chromedp.NewContext(f.browserCtx)

	// Materialize the target and enable the domains the listener needs.
	if err := chromedp.Run(tabCtx, network.Enable(), page.Enable()); err != nil {
		cancel()
		return nil, err
	}

	v := &View{
		ctx:      tabCtx,
		cancel:   cancel,
		targetID: chromedp.FromContext(tabCtx).Target.TargetID,
		logger:   f.logger,
	}
	chromedp.ListenTarget(tabCtx, v.onEvent)
	return v, nil
}

// onEvent translates CDP events into webview lifecycle signals. Events
// for one target arrive sequentially on the listener goroutine.
func (v *View) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *page.EventFrameRequestedNavigation:
		v.mu.Lock()
		main := v.isMainFrameLocked(string(e.FrameID))
		if main {
			v.pending = e.URL
		}
		l := v.listener
		v.mu.Unlock()
		if main && l != nil {
			l.LoadStarted(e.URL)
		}

	case *page.EventFrameNavigated:
		if e.Frame.ParentID != "" {
			return
		}
		v.mu.Lock()
		v.mainFrame = string(e.Frame.ID)
		v.url = e.Frame.URL
		v.pending = ""
		l := v.listener
		v.mu.Unlock()
		v.refreshHistory()
		if l != nil {
			l.Committed(e.Frame.URL)
		}

	case *page.EventNavigatedWithinDocument:
		v.mu.Lock()
		main := v.isMainFrameLocked(string(e.FrameID))
		if main {
			v.url = e.URL
		}
		l := v.listener
		v.mu.Unlock()
		v.refreshHistory()
		if main && l != nil {
			l.InPageNavigated(e.URL)
		}

	case *page.EventFrameStoppedLoading:
		v.mu.Lock()
		main := v.isMainFrameLocked(string(e.FrameID))
		l := v.listener
		v.mu.Unlock()
		if main && l != nil {
			l.LoadStopped()
		}

	case *network.EventLoadingFailed:
		if e.Type != network.ResourceTypeDocument {
			return
		}
		v.mu.Lock()
		l := v.listener
		v.mu.Unlock()
		if l != nil {
			l.LoadFailed(netErrorCode(e.ErrorText, e.Canceled), e.ErrorText)
		}

	case *target.EventTargetInfoChanged:
		if e.TargetInfo.TargetID != v.targetID {
			return
		}
		v.mu.Lock()
		changed := e.TargetInfo.Title != v.title
		v.title = e.TargetInfo.Title
		l := v.listener
		v.mu.Unlock()
		if changed && l != nil {
			l.TitleChanged(e.TargetInfo.Title)
		}

	case *page.EventWindowOpen:
		v.mu.Lock()
		l := v.listener
		v.mu.Unlock()
		if l != nil && e.URL != "" {
			l.PopupRequested(e.URL)
		}
	}
}

// isMainFrameLocked treats an unknown frame id as main before the
// first navigation commits.
func (v *View) isMainFrameLocked(frameID string) bool {
	return v.mainFrame == "" || v.mainFrame == frameID
}

// refreshHistory re-reads back/forward availability off the event
// goroutine.
func (v *View) refreshHistory() {
	go func() {
		var canBack, canFwd bool
		err := chromedp.Run(v.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			idx, entries, err := page.GetNavigationHistory().Do(ctx)
			if err != nil {
				return err
			}
			canBack = idx > 0
			canFwd = int(idx) < len(entries)-1
			return nil
		}))
		if err != nil {
			v.logger.Debug("navigation history refresh failed", zap.Error(err))
			return
		}
		v.mu.Lock()
		v.canBack = canBack
		v.canFwd = canFwd
		v.mu.Unlock()
	}()
}

// run executes actions against the tab, honoring caller cancellation:
// when the caller gives up, run returns while the action proceeds in
// the target.
func (v *View) run(ctx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(v.ctx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Navigate loads the URL and blocks until the load settles.
func (v *View) Navigate(ctx context.Context, url string) error {
	v.mu.Lock()
	v.pending = url
	v.mu.Unlock()
	return v.run(ctx, chromedp.Navigate(url))
}

func (v *View) Back(ctx context.Context) error {
	return v.run(ctx, chromedp.NavigateBack())
}

func (v *View) Forward(ctx context.Context) error {
	return v.run(ctx, chromedp.NavigateForward())
}

func (v *View) Reload(ctx context.Context, ignoreCache bool) error {
	return v.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.Reload().WithIgnoreCache(ignoreCache).Do(ctx)
	}))
}

func (v *View) Stop(ctx context.Context) error {
	return v.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.StopLoading().Do(ctx)
	}))
}

// URL reports the committed URL, or "" before first commit.
func (v *View) URL() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.url
}

func (v *View) Title() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.title
}

func (v *View) CanGoBack() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.canBack
}

func (v *View) CanGoForward() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.canFwd
}

func (v *View) SetListener(l webview.Listener) {
	v.mu.Lock()
	v.listener = l
	v.mu.Unlock()
}

// SetBounds overrides the target's device metrics. The x/y offset is
// the renderer's concern; the target only needs the viewport size.
func (v *View) SetBounds(r webview.Rect) error {
	return chromedp.Run(v.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return emulation.SetDeviceMetricsOverride(int64(r.Width), int64(r.Height), 1.0, false).Do(ctx)
	}))
}

// Close releases the tab target.
func (v *View) Close(ctx context.Context) error {
	v.cancel()
	return nil
}

// netErrorCode maps Chrome net error strings onto the numeric codes
// the renderer already understands. A cancelled load means a
// superseding navigation and maps to the aborted code.
func netErrorCode(errorText string, canceled bool) int {
	if canceled {
		return -3 // net::ERR_ABORTED
	}
	switch {
	case strings.Contains(errorText, "ERR_ABORTED"):
		return -3
	case strings.Contains(errorText, "ERR_TIMED_OUT"):
		return -7
	case strings.Contains(errorText, "ERR_CONNECTION_REFUSED"):
		return -102
	case strings.Contains(errorText, "ERR_NAME_NOT_RESOLVED"):
		return -105
	case strings.Contains(errorText, "ERR_INTERNET_DISCONNECTED"):
		return -106
	case strings.Contains(errorText, "ERR_CERT"):
		return -200
	default:
		return -2 // net::ERR_FAILED
	}
}
