package tabs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lumenbrowse/lumen/internal/domain/history"
	"github.com/lumenbrowse/lumen/internal/domain/nav"
)

// ErrAbortedCode is the content runtime's "navigation superseded by a
// newer one" failure. It is not a user-visible error and is never
// recorded on a tab.
const ErrAbortedCode = -3

// bridge subscribes one tab to its content view's lifecycle signals and
// republishes normalized state toward the renderer. One bridge per tab,
// wired exactly once at creation.
type bridge struct {
	registry *Registry
	tabID    string
}

func (b *bridge) LoadStarted(targetURL string) {
	b.mutate("load_started", func(t *Tab) bool {
		t.isLoading = true
		t.lastError = nil
		t.lastURL = targetURL
		return true
	})
}

func (b *bridge) Committed(url string) {
	var title string
	changed := b.mutate("committed", func(t *Tab) bool {
		t.lastURL = url
		t.isLoading = false
		title = t.title
		return true
	})
	if changed && b.registry.hist != nil {
		b.registry.hist.Record(history.Entry{
			URL:   url,
			Title: title,
			TabID: b.tabID,
			At:    time.Now(),
		})
	}
}

func (b *bridge) InPageNavigated(url string) {
	// Anchor/history navigation: the load state is left untouched.
	b.mutate("in_page", func(t *Tab) bool {
		t.lastURL = url
		return true
	})
}

func (b *bridge) LoadStopped() {
	b.mutate("load_stopped", func(t *Tab) bool {
		t.isLoading = false
		return true
	})
	b.resolveFavicon()
}

func (b *bridge) TitleChanged(title string) {
	b.mutate("title", func(t *Tab) bool {
		t.title = title
		return true
	})
}

func (b *bridge) FaviconChanged(icon string) {
	b.mutate("favicon", func(t *Tab) bool {
		t.favicon = icon
		return true
	})
}

func (b *bridge) LoadFailed(code int, description string) {
	if code == ErrAbortedCode {
		return
	}
	b.mutate("load_failed", func(t *Tab) bool {
		t.isLoading = false
		t.lastError = &nav.Error{Code: code, Description: description}
		return true
	})
	if b.registry.metrics != nil {
		b.registry.metrics.NavErrors.Inc()
	}
}

func (b *bridge) PopupRequested(url string) {
	// The native window was already denied by the adapter; the request
	// becomes a new activated tab instead.
	r := b.registry
	go func() {
		if _, err := r.CreateTab(context.Background(), url, true); err != nil {
			r.logger.Warn("popup tab creation failed",
				zap.String("source_tab", b.tabID),
				zap.String("url", url),
				zap.Error(err),
			)
		}
	}()
}

// mutate applies fn to the tab under the registry lock and, when fn
// reports a change, broadcasts both the single-tab state and the full
// tab list. Signals for already-closed tabs are dropped.
func (b *bridge) mutate(kind string, fn func(t *Tab) bool) bool {
	r := b.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	tab, ok := r.tabs[b.tabID]
	if !ok {
		return false
	}
	if !fn(tab) {
		return false
	}
	if r.metrics != nil {
		r.metrics.NavEvents.WithLabelValues(kind).Inc()
	}
	r.publishLocked(r.snapshotLocked(tab))
	return true
}

// resolveFavicon asks the resolver for the page icon once loading has
// settled, off the event path.
func (b *bridge) resolveFavicon() {
	r := b.registry
	if r.favicons == nil {
		return
	}

	r.mu.Lock()
	tab, ok := r.tabs[b.tabID]
	if !ok {
		r.mu.Unlock()
		return
	}
	view := tab.view
	pageURL := tab.lastURL
	current := tab.favicon
	r.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		icon, err := r.favicons.Resolve(ctx, view, pageURL)
		if err != nil {
			r.logger.Debug("favicon resolution failed",
				zap.String("tab_id", b.tabID),
				zap.String("url", pageURL),
				zap.Error(err),
			)
			return
		}
		if icon != "" && icon != current {
			b.FaviconChanged(icon)
		}
	}()
}
