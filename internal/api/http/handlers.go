// Package http exposes the read-only diagnostics mirror: health,
// metrics, and snapshots of tab and settings state. All mutation goes
// through the websocket IPC surface.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lumenbrowse/lumen/internal/domain/settings"
	"github.com/lumenbrowse/lumen/internal/domain/syscheck"
	"github.com/lumenbrowse/lumen/internal/domain/tabs"
	"github.com/lumenbrowse/lumen/internal/events"
)

// Handlers contains the read-only HTTP handlers.
type Handlers struct {
	registry *tabs.Registry
	settings *settings.Store
	checks   *syscheck.Cache
	hub      *events.Hub

	// instanceID distinguishes host restarts in diagnostics scrapes.
	instanceID string
}

// NewHandlers creates the handler set.
func NewHandlers(
	registry *tabs.Registry,
	store *settings.Store,
	checks *syscheck.Cache,
	hub *events.Hub,
) *Handlers {
	return &Handlers{
		registry:   registry,
		settings:   store,
		checks:     checks,
		hub:        hub,
		instanceID: uuid.NewString(),
	}
}

// Root reports service identity.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "online",
		"service":  "lumen-host",
		"instance": h.instanceID,
	})
}

// Health reports liveness plus coarse component stats.
func (h *Handlers) Health(c *gin.Context) {
	var checkStatus string
	if report := h.checks.Last(); report != nil {
		checkStatus = string(report.Summary.Status)
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"tabs_open":    h.registry.Count(),
		"surfaces":     h.hub.SurfaceCount(),
		"system_check": checkStatus,
	})
}

// Tabs returns the current ordered tab list.
func (h *Handlers) Tabs(c *gin.Context) {
	list := h.registry.SnapshotTabList()
	c.JSON(http.StatusOK, gin.H{
		"tabs":        list.Tabs,
		"activeTabId": list.ActiveTabID,
	})
}

// Settings returns the current settings document.
func (h *Handlers) Settings(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.Get())
}

// History returns recent committed navigations, newest first.
func (h *Handlers) History(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"entries": h.registry.History().List(100),
		"domains": h.registry.History().DomainStats(),
	})
}

// SystemCheck returns the cached diagnostics report.
func (h *Handlers) SystemCheck(c *gin.Context) {
	report := h.checks.Last()
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no report available"})
		return
	}
	c.JSON(http.StatusOK, report)
}
