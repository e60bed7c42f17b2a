// Package ws is the renderer IPC surface: one websocket per renderer
// surface, a closed set of typed channels, structured replies.
package ws

import (
	"context"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lumenbrowse/lumen/internal/domain/settings"
	"github.com/lumenbrowse/lumen/internal/domain/stream"
	"github.com/lumenbrowse/lumen/internal/domain/syscheck"
	"github.com/lumenbrowse/lumen/internal/domain/tabs"
	"github.com/lumenbrowse/lumen/internal/events"
	"github.com/lumenbrowse/lumen/internal/infrastructure/logging"
	"github.com/lumenbrowse/lumen/internal/infrastructure/monitoring"
)

var upgrader = websocket.Upgrader{
	// The IPC endpoint binds to loopback; the renderer is the only
	// expected origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler dispatches renderer IPC messages to the browser domain.
type Handler struct {
	registry *tabs.Registry
	proxy    *stream.Proxy
	settings *settings.Store
	checks   *syscheck.Cache
	hub      *events.Hub
	logger   *logging.Logger
	metrics  *monitoring.Metrics
}

// NewHandler creates the IPC handler.
func NewHandler(
	registry *tabs.Registry,
	proxy *stream.Proxy,
	store *settings.Store,
	checks *syscheck.Cache,
	hub *events.Hub,
	logger *logging.Logger,
	metrics *monitoring.Metrics,
) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		registry: registry,
		proxy:    proxy,
		settings: store,
		checks:   checks,
		hub:      hub,
		logger:   logger.Component("ws"),
		metrics:  metrics,
	}
}

// HandleConnection upgrades the request and services one renderer
// surface until it disconnects.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	surface := h.hub.Register(conn)
	defer h.hub.Unregister(surface)
	ctx := c.Request.Context()

	// Seed the new surface with current state so it renders without
	// waiting for the next change.
	h.reply(surface.ID(), Response{Type: "system", Channel: "hello", Result: surface.ID()})
	h.hub.TabList(h.registry.SnapshotTabList())
	if h.settings != nil {
		h.hub.SettingsChanged(h.settings.Get())
	}
	if h.checks != nil {
		if report := h.checks.Last(); report != nil {
			h.hub.SystemCheckUpdated(report)
		}
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			h.logger.Debug("surface read loop ended",
				zap.String("surface_id", surface.ID()),
				zap.Error(err),
			)
			return
		}
		h.dispatch(ctx, surface.ID(), raw)
	}
}

func (h *Handler) dispatch(ctx context.Context, surfaceID string, raw []byte) {
	var env Envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		h.replyError(surfaceID, "", "", "malformed message: "+err.Error())
		return
	}
	if h.metrics != nil {
		h.metrics.IPCMessages.WithLabelValues(env.Type, "in").Inc()
	}

	switch env.Type {
	case "browser:create-tab":
		h.handleCreateTab(ctx, surfaceID, env, raw)
	case "browser:close-tab":
		h.handleCloseTab(ctx, surfaceID, env, raw)
	case "browser:set-active":
		var req setActiveRequest
		if h.decode(surfaceID, env, raw, &req) {
			h.registry.SetActiveTab(req.TabID)
		}
	case "browser:bounds":
		var req boundsRequest
		if h.decode(surfaceID, env, raw, &req) {
			h.registry.Attacher().UpdateBounds(req.Rect)
		}
	case "nav:navigate":
		var req navigateRequest
		if h.decode(surfaceID, env, raw, &req) {
			h.registry.Navigate(req.TabID, req.URL)
		}
	case "nav:back":
		var req historyMoveRequest
		if h.decode(surfaceID, env, raw, &req) {
			h.registry.Back(req.TabID)
		}
	case "nav:forward":
		var req historyMoveRequest
		if h.decode(surfaceID, env, raw, &req) {
			h.registry.Forward(req.TabID)
		}
	case "nav:reload":
		var req reloadRequest
		if h.decode(surfaceID, env, raw, &req) {
			h.registry.Reload(req.TabID, req.IgnoreCache)
		}
	case "llm:stream":
		h.handleStream(ctx, surfaceID, env, raw)
	case "llm:abort":
		var req abortRequest
		if h.decode(surfaceID, env, raw, &req) {
			res := h.proxy.HandleAbort(surfaceID, req.RequestID, req.TabID)
			h.respond(surfaceID, env, res)
		}
	case "settings:get":
		h.respond(surfaceID, env, h.settings.Get())
	case "settings:update":
		var req settingsUpdateRequest
		if h.decode(surfaceID, env, raw, &req) {
			h.respond(surfaceID, env, h.settings.Update(req.Patch))
		}
	case "system-check:run":
		h.handleSystemCheckRun(ctx, surfaceID, env, raw)
	case "system-check:last":
		h.respond(surfaceID, env, h.checks.Last())
	case "system-check:open-report":
		h.respond(surfaceID, env, h.checks.OpenReport())
	case "system-check:export-report":
		h.respond(surfaceID, env, h.checks.ExportReport())
	case "history:list":
		var req historyListRequest
		if h.decode(surfaceID, env, raw, &req) {
			h.respond(surfaceID, env, h.registry.History().List(req.Limit))
		}
	case "history:stats":
		h.respond(surfaceID, env, h.registry.History().DomainStats())
	case "ping":
		h.reply(surfaceID, Response{Type: "pong", ID: env.ID, Channel: "ping"})
	default:
		h.replyError(surfaceID, env.ID, env.Type, "unknown channel")
	}
}

func (h *Handler) handleCreateTab(ctx context.Context, surfaceID string, env Envelope, raw []byte) {
	var req createTabRequest
	if !h.decode(surfaceID, env, raw, &req) {
		return
	}
	activate := true
	if req.Activate != nil {
		activate = *req.Activate
	}
	snapshot, err := h.registry.CreateTab(ctx, req.URL, activate)
	if err != nil {
		h.replyError(surfaceID, env.ID, env.Type, err.Error())
		return
	}
	h.respond(surfaceID, env, snapshot)
}

func (h *Handler) handleCloseTab(ctx context.Context, surfaceID string, env Envelope, raw []byte) {
	var req closeTabRequest
	if !h.decode(surfaceID, env, raw, &req) {
		return
	}
	ok := h.registry.CloseTab(ctx, req.TabID)
	h.respond(surfaceID, env, map[string]bool{"ok": ok})
}

// handleStream runs the blocking relay off the read loop so the
// surface can keep issuing requests (including the abort for this very
// stream) while frames flow.
func (h *Handler) handleStream(ctx context.Context, surfaceID string, env Envelope, raw []byte) {
	var req streamRequest
	if !h.decode(surfaceID, env, raw, &req) {
		return
	}
	go func() {
		result := h.proxy.HandleStream(ctx, surfaceID, stream.Request{
			RequestID: req.RequestID,
			TabKey:    req.TabID,
			Body:      req.Body,
		})
		h.respond(surfaceID, env, result)
	}()
}

func (h *Handler) handleSystemCheckRun(ctx context.Context, surfaceID string, env Envelope, raw []byte) {
	var req systemCheckRunRequest
	if !h.decode(surfaceID, env, raw, &req) {
		return
	}
	report, err := h.checks.RunCheck(ctx, req.Options)
	if err != nil {
		h.replyError(surfaceID, env.ID, env.Type, err.Error())
		return
	}
	h.respond(surfaceID, env, report)
}

// decode unmarshals the full payload, replying with an error on
// malformed input. The target struct embeds Envelope, so req.ID and
// req.Type are populated by the same pass.
func (h *Handler) decode(surfaceID string, env Envelope, raw []byte, target interface{}) bool {
	if err := sonic.Unmarshal(raw, target); err != nil {
		h.replyError(surfaceID, env.ID, env.Type, "malformed payload: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) respond(surfaceID string, env Envelope, result interface{}) {
	h.reply(surfaceID, Response{
		Type:    "response",
		ID:      env.ID,
		Channel: env.Type,
		Result:  result,
	})
}

func (h *Handler) replyError(surfaceID, id, channel, msg string) {
	h.reply(surfaceID, Response{
		Type:    "error",
		ID:      id,
		Channel: channel,
		Error:   msg,
	})
}

func (h *Handler) reply(surfaceID string, resp Response) {
	h.hub.SendTo(surfaceID, resp.Channel, resp)
}
