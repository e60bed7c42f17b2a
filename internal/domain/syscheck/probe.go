package syscheck

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/lumenbrowse/lumen/internal/infrastructure/logging"
)

// DefaultProbeTimeout bounds one full probe run.
const DefaultProbeTimeout = 10 * time.Second

// Probe runs the external diagnostics checks.
type Probe interface {
	Run(ctx context.Context) ([]Check, error)
}

// HTTPProbe checks backend reachability and user-data writability.
type HTTPProbe struct {
	backendURL string
	userData   string
	client     *retryablehttp.Client
	logger     *logging.Logger
}

// NewHTTPProbe creates the default probe. backendURL is the knowledge
// backend base URL, userData the resolved user-data directory.
func NewHTTPProbe(backendURL, userData string, logger *logging.Logger) *HTTPProbe {
	if logger == nil {
		logger = logging.NewNop()
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 1 * time.Second
	client.Logger = nil
	return &HTTPProbe{
		backendURL: backendURL,
		userData:   userData,
		client:     client,
		logger:     logger.Component("syscheck.probe"),
	}
}

// Run executes all checks. It only errors when the context dies; an
// unreachable backend is a failed check, not a probe error.
func (p *HTTPProbe) Run(ctx context.Context) ([]Check, error) {
	checks := []Check{
		p.checkBackend(ctx),
		p.checkUserData(),
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("probe interrupted: %w", err)
	}
	return checks, nil
}

func (p *HTTPProbe) checkBackend(ctx context.Context) Check {
	c := Check{Name: "backend-reachable", Critical: true, Status: StatusOK}
	start := time.Now()
	defer func() { c.Duration = time.Since(start) }()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, p.backendURL, nil)
	if err != nil {
		c.Status = StatusFailed
		c.Detail = err.Error()
		return c
	}
	resp, err := p.client.Do(req)
	if err != nil {
		c.Status = StatusFailed
		c.Detail = err.Error()
		return c
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		c.Status = StatusFailed
		c.Detail = resp.Status
	}
	return c
}

func (p *HTTPProbe) checkUserData() Check {
	c := Check{Name: "user-data-writable", Critical: false, Status: StatusOK}
	start := time.Now()
	defer func() { c.Duration = time.Since(start) }()

	probe := filepath.Join(p.userData, ".write-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		c.Status = StatusFailed
		c.Detail = err.Error()
		return c
	}
	os.Remove(probe)
	return c
}
