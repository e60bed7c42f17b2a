package tabs

import (
	"sync"

	"go.uber.org/zap"

	"github.com/lumenbrowse/lumen/internal/infrastructure/logging"
	"github.com/lumenbrowse/lumen/internal/webview"
)

// DefaultRect is used when neither the incoming bounds nor the window
// can produce a usable rectangle. It matches the renderer's initial
// window size.
var DefaultRect = webview.Rect{X: 0, Y: 0, Width: 1280, Height: 720}

// Attacher owns the shared bounds rectangle and mediates attach/detach
// of the active view against the host window. Attach and detach are
// best effort: a destroyed window during shutdown is expected, so
// failures are logged, never raised.
type Attacher struct {
	host   webview.HostWindow
	logger *logging.Logger

	// mu guards attached and bounds: registry-driven attach/detach and
	// bounds updates off the IPC read loop run on different goroutines.
	mu       sync.Mutex
	attached webview.ContentView
	bounds   webview.Rect
}

// NewAttacher creates an attacher with the default bounds.
func NewAttacher(host webview.HostWindow, logger *logging.Logger) *Attacher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Attacher{
		host:   host,
		logger: logger,
		bounds: DefaultRect,
	}
}

// Attach makes the view the window's visible content and applies the
// current bounds. Attaching the already-attached view is a no-op.
func (a *Attacher) Attach(view webview.ContentView) {
	if view == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.attached == view {
		return
	}
	if err := a.host.Attach(view); err != nil {
		a.logger.Warn("attach failed", zap.Error(err))
		return
	}
	a.attached = view
	if err := view.SetBounds(a.bounds); err != nil {
		a.logger.Warn("bounds apply failed after attach", zap.Error(err))
	}
}

// Detach removes the view from the window.
func (a *Attacher) Detach(view webview.ContentView) {
	if view == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.attached == view {
		a.attached = nil
	}
	if err := a.host.Detach(view); err != nil {
		a.logger.Warn("detach failed", zap.Error(err))
	}
}

// Attached returns the currently attached view, if any.
func (a *Attacher) Attached() webview.ContentView {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attached
}

// Bounds returns the current sanitized bounds.
func (a *Attacher) Bounds() webview.Rect {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bounds
}

// UpdateBounds sanitizes the raw rectangle, stores it, and immediately
// re-applies it to the attached view if one exists. Called on host
// window resize and on renderer-reported container resize.
func (a *Attacher) UpdateBounds(raw webview.Rect) webview.Rect {
	r := a.sanitize(raw)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bounds = r
	if a.attached != nil {
		if err := a.attached.SetBounds(r); err != nil {
			a.logger.Warn("bounds apply failed", zap.Error(err))
		}
	}
	return r
}

// sanitize clamps negative components to zero and substitutes window-
// derived or default dimensions when width or height resolve to zero.
func (a *Attacher) sanitize(r webview.Rect) webview.Rect {
	if r.X < 0 {
		r.X = 0
	}
	if r.Y < 0 {
		r.Y = 0
	}
	if r.Width < 0 {
		r.Width = 0
	}
	if r.Height < 0 {
		r.Height = 0
	}

	if r.Width == 0 || r.Height == 0 {
		if w, h, ok := a.host.ContentSize(); ok {
			if r.Width == 0 {
				r.Width = w - r.X
			}
			if r.Height == 0 {
				r.Height = h - r.Y
			}
		}
	}
	if r.Width <= 0 {
		r.Width = DefaultRect.Width
	}
	if r.Height <= 0 {
		r.Height = DefaultRect.Height
	}
	return r
}
