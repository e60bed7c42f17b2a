package cdp

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/lumenbrowse/lumen/internal/infrastructure/logging"
	"github.com/lumenbrowse/lumen/internal/webview"
)

// Host maps the single visible browser window onto the HostWindow
// boundary. Attaching raises the view's target; the window itself is
// shared by all targets, so detach only clears the bookkeeping.
type Host struct {
	logger *logging.Logger

	mu       sync.Mutex
	attached *View
}

// NewHost creates the window adapter.
func NewHost(logger *logging.Logger) *Host {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Host{logger: logger.Component("cdp.host")}
}

// Attach raises the view's target to the front of the window.
func (h *Host) Attach(view webview.ContentView) error {
	v, ok := view.(*View)
	if !ok {
		return fmt.Errorf("foreign content view %T", view)
	}

	err := chromedp.Run(v.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.BringToFront().Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("failed to raise target: %w", err)
	}

	h.mu.Lock()
	h.attached = v
	h.mu.Unlock()
	return nil
}

// Detach clears the attachment. The target stays alive in the
// background; the next Attach raises its successor.
func (h *Host) Detach(view webview.ContentView) error {
	v, ok := view.(*View)
	if !ok {
		return fmt.Errorf("foreign content view %T", view)
	}

	h.mu.Lock()
	if h.attached == v {
		h.attached = nil
	}
	h.mu.Unlock()
	return nil
}

// ContentSize reports the window's content area via the attached
// target's window. Without an attached view there is no window to ask.
func (h *Host) ContentSize() (int, int, bool) {
	h.mu.Lock()
	v := h.attached
	h.mu.Unlock()
	if v == nil {
		return 0, 0, false
	}

	var width, height int64
	err := chromedp.Run(v.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, bounds, err := browser.GetWindowForTarget().Do(ctx)
		if err != nil {
			return err
		}
		width, height = bounds.Width, bounds.Height
		return nil
	}))
	if err != nil {
		h.logger.Debug("window bounds unavailable", zap.Error(err))
		return 0, 0, false
	}
	return int(width), int(height), true
}
