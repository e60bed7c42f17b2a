// Package events fans browser state out to connected renderer
// surfaces over their websocket connections.
package events

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lumenbrowse/lumen/internal/domain/nav"
	"github.com/lumenbrowse/lumen/internal/domain/settings"
	"github.com/lumenbrowse/lumen/internal/domain/syscheck"
	"github.com/lumenbrowse/lumen/internal/domain/tabs"
	"github.com/lumenbrowse/lumen/internal/infrastructure/logging"
	"github.com/lumenbrowse/lumen/internal/infrastructure/monitoring"
	"github.com/lumenbrowse/lumen/internal/shared/id"
)

const (
	sendBacklog  = 64
	writeTimeout = 10 * time.Second
)

// Conn is the subset of the websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Surface is one connected renderer surface with its outbound queue.
// A slow surface drops messages rather than stalling the publisher.
type Surface struct {
	id   string
	conn Conn
	send chan []byte

	hub       *Hub
	closeOnce sync.Once
	done      chan struct{}
}

// ID returns the surface identifier.
func (s *Surface) ID() string { return s.id }

// Hub tracks connected surfaces and publishes browser events to them.
type Hub struct {
	logger  *logging.Logger
	metrics *monitoring.Metrics

	mu       sync.RWMutex
	surfaces map[string]*Surface
}

// NewHub creates an event hub.
func NewHub(logger *logging.Logger, metrics *monitoring.Metrics) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hub{
		logger:   logger.Component("events"),
		metrics:  metrics,
		surfaces: make(map[string]*Surface),
	}
}

// Register adds a surface for the connection and starts its writer.
func (h *Hub) Register(conn Conn) *Surface {
	s := &Surface{
		id:   id.NewSurfaceID().String(),
		conn: conn,
		send: make(chan []byte, sendBacklog),
		hub:  h,
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.surfaces[s.id] = s
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SurfacesConnected.Inc()
	}
	h.logger.Info("surface connected", zap.String("surface_id", s.id))

	go s.writeLoop()
	return s
}

// Unregister removes the surface and closes its writer.
func (h *Hub) Unregister(s *Surface) {
	h.mu.Lock()
	_, present := h.surfaces[s.id]
	delete(h.surfaces, s.id)
	h.mu.Unlock()
	if !present {
		return
	}

	s.closeOnce.Do(func() { close(s.done) })
	if h.metrics != nil {
		h.metrics.SurfacesConnected.Dec()
	}
	h.logger.Info("surface disconnected", zap.String("surface_id", s.id))
}

// SurfaceCount reports the number of connected surfaces.
func (h *Hub) SurfaceCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.surfaces)
}

func (s *Surface) writeLoop() {
	for {
		select {
		case <-s.done:
			s.conn.Close()
			return
		case msg := <-s.send:
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.hub.logger.Debug("surface write failed",
					zap.String("surface_id", s.id),
					zap.Error(err),
				)
				s.hub.Unregister(s)
				return
			}
		}
	}
}

// enqueue queues a message, dropping it when the surface is backed up.
func (s *Surface) enqueue(channel string, msg []byte) {
	select {
	case s.send <- msg:
		if s.hub.metrics != nil {
			s.hub.metrics.IPCMessages.WithLabelValues(channel, "out").Inc()
		}
	default:
		s.hub.logger.Warn("surface backlog full, dropping event",
			zap.String("surface_id", s.id),
			zap.String("channel", channel),
		)
	}
}

// Broadcast publishes an event to every connected surface.
func (h *Hub) Broadcast(channel string, event interface{}) {
	msg, err := sonic.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("channel", channel), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.surfaces {
		s.enqueue(channel, msg)
	}
}

// SendTo publishes an event to a single surface; unknown ids are
// silently ignored (the surface may have just disconnected).
func (h *Hub) SendTo(surfaceID, channel string, event interface{}) {
	h.mu.RLock()
	s, ok := h.surfaces[surfaceID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	msg, err := sonic.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("channel", channel), zap.Error(err))
		return
	}
	s.enqueue(channel, msg)
}

// Event shapes pushed to the renderer. Type carries the channel name.

type navStateEvent struct {
	Type  string       `json:"type"`
	State nav.Snapshot `json:"state"`
}

type tabListEvent struct {
	Type        string         `json:"type"`
	Tabs        []nav.Snapshot `json:"tabs"`
	ActiveTabID string         `json:"activeTabId,omitempty"`
}

type frameEvent struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Frame     string `json:"frame"`
}

type settingsEvent struct {
	Type     string            `json:"type"`
	Settings settings.Document `json:"settings"`
}

type systemCheckEvent struct {
	Type   string           `json:"type"`
	Report *syscheck.Report `json:"report"`
}

// NavState broadcasts one tab's navigation snapshot.
func (h *Hub) NavState(snapshot nav.Snapshot) {
	h.Broadcast("nav:state", navStateEvent{Type: "nav:state", State: snapshot})
}

// TabList broadcasts the full ordered tab list.
func (h *Hub) TabList(list tabs.List) {
	h.Broadcast("browser:tabs", tabListEvent{
		Type:        "browser:tabs",
		Tabs:        list.Tabs,
		ActiveTabID: list.ActiveTabID,
	})
}

// Frame delivers one SSE frame to the surface that owns the stream.
func (h *Hub) Frame(surfaceID, requestID, frame string) {
	h.SendTo(surfaceID, "llm:frame", frameEvent{
		Type:      "llm:frame",
		RequestID: requestID,
		Frame:     frame,
	})
}

// SettingsChanged broadcasts the full settings document.
func (h *Hub) SettingsChanged(doc settings.Document) {
	h.Broadcast("settings:state", settingsEvent{Type: "settings:state", Settings: doc})
}

// SystemCheckUpdated broadcasts a refreshed diagnostics report.
func (h *Hub) SystemCheckUpdated(report *syscheck.Report) {
	h.Broadcast("system-check:report", systemCheckEvent{Type: "system-check:report", Report: report})
}
