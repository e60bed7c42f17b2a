// Package webview defines the boundary to the embedded web-content
// primitive. The host treats a content view as an opaque unit that can
// navigate and that emits lifecycle signals; the registry and bridge
// never see the underlying runtime (Chrome DevTools Protocol in the
// shipped adapter, fakes in tests).
package webview

import "context"

// Rect describes where the active view renders inside the host window.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Listener receives lifecycle signals from one content view. The
// adapter delivers signals for a single view sequentially; signals for
// different views may interleave.
type Listener interface {
	// LoadStarted fires when a main-frame navigation begins.
	LoadStarted(targetURL string)
	// Committed fires when a top-level navigation commits.
	Committed(url string)
	// InPageNavigated fires on anchor/history navigation that does not reload.
	InPageNavigated(url string)
	// LoadStopped fires when loading finishes for any reason.
	LoadStopped()
	// TitleChanged fires when the document title changes.
	TitleChanged(title string)
	// FaviconChanged fires with a fetchable or data: URL for the page icon.
	FaviconChanged(icon string)
	// LoadFailed fires on a main-frame load failure. Failures caused by
	// a navigation superseding the current one are not reported.
	LoadFailed(code int, description string)
	// PopupRequested fires when page content asks for a new window. The
	// adapter always denies the native window; the host opens a tab.
	PopupRequested(url string)
}

// ContentView is one embedded browsing context.
type ContentView interface {
	Navigate(ctx context.Context, url string) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	Reload(ctx context.Context, ignoreCache bool) error
	Stop(ctx context.Context) error

	// URL reports the committed URL, or "" before first commit.
	URL() string
	Title() string
	CanGoBack() bool
	CanGoForward() bool

	// SetListener wires lifecycle signals. Called exactly once, at tab
	// creation, before the first navigation.
	SetListener(l Listener)

	SetBounds(r Rect) error

	// Close releases the underlying browsing context. Best effort.
	Close(ctx context.Context) error
}

// Factory creates content views.
type Factory interface {
	NewView(ctx context.Context) (ContentView, error)
}

// HostWindow is the single visible window region views attach to.
type HostWindow interface {
	// Attach makes the view the window's visible content.
	Attach(view ContentView) error
	// Detach removes the view from the window.
	Detach(view ContentView) error
	// ContentSize reports the window's content area, if the window is
	// still available.
	ContentSize() (width, height int, ok bool)
}
