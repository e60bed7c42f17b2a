// Package webviewtest provides in-memory fakes of the webview boundary
// for registry, bridge, and attachment tests.
package webviewtest

import (
	"context"
	"sync"

	"github.com/lumenbrowse/lumen/internal/webview"
)

// FakeView is an in-memory ContentView. Navigations commit
// synchronously; tests drive lifecycle signals through the listener.
type FakeView struct {
	mu          sync.Mutex
	listener    webview.Listener
	url         string
	title       string
	history     []string
	histIndex   int
	bounds      webview.Rect
	closed      bool
	navigateErr error

	NavigateCalls []string
	ReloadCalls   int
	StopCalls     int
}

// NewFakeView creates an empty fake view.
func NewFakeView() *FakeView {
	return &FakeView{histIndex: -1}
}

func (v *FakeView) Navigate(_ context.Context, url string) error {
	v.mu.Lock()
	v.NavigateCalls = append(v.NavigateCalls, url)
	err := v.navigateErr
	l := v.listener
	v.mu.Unlock()

	if err != nil {
		return err
	}
	if l != nil {
		l.LoadStarted(url)
	}
	v.commit(url)
	if l != nil {
		l.Committed(url)
		l.LoadStopped()
	}
	return nil
}

// SetNavigateErr makes subsequent Navigate calls fail. Safe to call
// while a navigation is in flight.
func (v *FakeView) SetNavigateErr(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.navigateErr = err
}

func (v *FakeView) commit(url string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.history = v.history[:v.histIndex+1]
	v.history = append(v.history, url)
	v.histIndex++
	v.url = url
}

func (v *FakeView) Back(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.histIndex > 0 {
		v.histIndex--
		v.url = v.history[v.histIndex]
	}
	return nil
}

func (v *FakeView) Forward(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.histIndex < len(v.history)-1 {
		v.histIndex++
		v.url = v.history[v.histIndex]
	}
	return nil
}

func (v *FakeView) Reload(context.Context, bool) error {
	v.mu.Lock()
	v.ReloadCalls++
	v.mu.Unlock()
	return nil
}

func (v *FakeView) Stop(context.Context) error {
	v.mu.Lock()
	v.StopCalls++
	v.mu.Unlock()
	return nil
}

func (v *FakeView) URL() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.url
}

func (v *FakeView) Title() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.title
}

func (v *FakeView) CanGoBack() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.histIndex > 0
}

func (v *FakeView) CanGoForward() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.histIndex < len(v.history)-1
}

func (v *FakeView) SetListener(l webview.Listener) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listener = l
}

// Listener exposes the wired listener so tests can emit raw signals.
func (v *FakeView) Listener() webview.Listener {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.listener
}

func (v *FakeView) SetBounds(r webview.Rect) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bounds = r
	return nil
}

// Bounds reports the last applied bounds.
func (v *FakeView) Bounds() webview.Rect {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bounds
}

func (v *FakeView) Close(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

// Closed reports whether Close was called.
func (v *FakeView) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// FakeFactory hands out fake views and records them in order.
type FakeFactory struct {
	mu    sync.Mutex
	Views []*FakeView
}

func (f *FakeFactory) NewView(context.Context) (webview.ContentView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := NewFakeView()
	f.Views = append(f.Views, v)
	return v, nil
}

// Last returns the most recently created view.
func (f *FakeFactory) Last() *FakeView {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Views) == 0 {
		return nil
	}
	return f.Views[len(f.Views)-1]
}

// FakeHost records attach/detach order for invariant checks.
type FakeHost struct {
	mu       sync.Mutex
	attached webview.ContentView
	Width    int
	Height   int
	HasSize  bool

	Log []string // "attach"/"detach" in call order
}

func (h *FakeHost) Attach(view webview.ContentView) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attached = view
	h.Log = append(h.Log, "attach")
	return nil
}

func (h *FakeHost) Detach(view webview.ContentView) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.attached == view {
		h.attached = nil
	}
	h.Log = append(h.Log, "detach")
	return nil
}

func (h *FakeHost) ContentSize() (int, int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Width, h.Height, h.HasSize
}

// Attached returns the currently attached view, if any.
func (h *FakeHost) Attached() webview.ContentView {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attached
}
