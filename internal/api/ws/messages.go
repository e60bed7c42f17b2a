package ws

import (
	"github.com/lumenbrowse/lumen/internal/domain/settings"
	"github.com/lumenbrowse/lumen/internal/domain/syscheck"
	"github.com/lumenbrowse/lumen/internal/webview"
)

// Envelope is the outer shape of every renderer request. Type names
// the channel; ID is an optional correlation id echoed in the reply.
type Envelope struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// Response is the reply shape for request/response channels.
type Response struct {
	Type    string      `json:"type"`
	ID      string      `json:"id,omitempty"`
	Channel string      `json:"channel"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Per-channel request payloads. Each embeds the envelope so one decode
// pass yields both routing and arguments.

type createTabRequest struct {
	Envelope
	URL      string `json:"url,omitempty"`
	Activate *bool  `json:"activate,omitempty"`
}

type closeTabRequest struct {
	Envelope
	TabID string `json:"tabId"`
}

type setActiveRequest struct {
	Envelope
	TabID string `json:"tabId"`
}

type boundsRequest struct {
	Envelope
	webview.Rect
}

type navigateRequest struct {
	Envelope
	URL   string `json:"url"`
	TabID string `json:"tabId,omitempty"`
}

type historyMoveRequest struct {
	Envelope
	TabID string `json:"tabId,omitempty"`
}

type reloadRequest struct {
	Envelope
	TabID       string `json:"tabId,omitempty"`
	IgnoreCache bool   `json:"ignoreCache,omitempty"`
}

type streamRequest struct {
	Envelope
	RequestID string                 `json:"requestId,omitempty"`
	TabID     string                 `json:"tabId,omitempty"`
	Body      map[string]interface{} `json:"body,omitempty"`
}

type abortRequest struct {
	Envelope
	RequestID string `json:"requestId,omitempty"`
	TabID     string `json:"tabId,omitempty"`
}

type settingsUpdateRequest struct {
	Envelope
	Patch settings.Patch `json:"patch"`
}

type systemCheckRunRequest struct {
	Envelope
	Options syscheck.RunOptions `json:"options"`
}

type historyListRequest struct {
	Envelope
	Limit int `json:"limit,omitempty"`
}
