// Package nav builds serializable navigation snapshots from live tab
// state. Building is pure: no caching, no side effects, callable any
// number of times.
package nav

import "github.com/lumenbrowse/lumen/internal/webview"

// Error describes a main-frame navigation failure.
type Error struct {
	Code        int    `json:"code,omitempty"`
	Description string `json:"description"`
}

// Snapshot is the renderer-facing view of one tab.
type Snapshot struct {
	TabID        string `json:"tabId"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	Favicon      string `json:"favicon,omitempty"`
	CanGoBack    bool   `json:"canGoBack"`
	CanGoForward bool   `json:"canGoForward"`
	IsActive     bool   `json:"isActive"`
	IsLoading    bool   `json:"isLoading"`
	Error        *Error `json:"error,omitempty"`
}

// TabState is the subset of tab state the builder reads.
type TabState struct {
	ID        string
	View      webview.ContentView
	Title     string
	Favicon   string
	LastURL   string
	IsLoading bool
	LastError *Error
}

// Build maps one tab plus the active-tab pointer into a snapshot. The
// URL falls back to the last known navigation target when the live
// view cannot report one (nothing committed yet, or the view is gone).
func Build(t TabState, activeID string) Snapshot {
	url := t.LastURL
	canBack, canForward := false, false
	if t.View != nil {
		if live := t.View.URL(); live != "" {
			url = live
		}
		canBack = t.View.CanGoBack()
		canForward = t.View.CanGoForward()
	}

	var navErr *Error
	if t.LastError != nil {
		e := *t.LastError
		navErr = &e
	}

	return Snapshot{
		TabID:        t.ID,
		URL:          url,
		Title:        t.Title,
		Favicon:      t.Favicon,
		CanGoBack:    canBack,
		CanGoForward: canForward,
		IsActive:     t.ID == activeID,
		IsLoading:    t.IsLoading,
		Error:        navErr,
	}
}
