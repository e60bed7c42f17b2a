// Package syscheck runs the startup diagnostics probe, caches its last
// result, and manages the on-disk report artifacts.
package syscheck

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/lumenbrowse/lumen/internal/infrastructure/logging"
	"github.com/lumenbrowse/lumen/internal/shared/id"
	"github.com/lumenbrowse/lumen/internal/shared/paths"
)

// RunOptions controls one check run.
type RunOptions struct {
	// Timeout bounds the probe; DefaultProbeTimeout when zero.
	Timeout time.Duration `json:"timeout,omitempty"`
	// WriteToDisk persists the report under the diagnostics dir.
	WriteToDisk bool `json:"writeToDisk,omitempty"`
}

// OpenResult is returned for an open-report request.
type OpenResult struct {
	OK      bool   `json:"ok"`
	Missing bool   `json:"missing,omitempty"`
	Error   string `json:"error,omitempty"`
	Path    string `json:"path,omitempty"`
}

// ExportResult is returned for an export-report request.
type ExportResult struct {
	OK           bool    `json:"ok"`
	Report       *Report `json:"report,omitempty"`
	ArtifactPath string  `json:"artifactPath,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// CacheOptions configures a Cache.
type CacheOptions struct {
	Probe    Probe
	UserData string
	// Skip replaces the initial check with a skipped sentinel report.
	Skip bool
	// OnUpdate fires after every cache replacement.
	OnUpdate func(*Report)
	Logger   *logging.Logger
}

// Cache holds the last diagnostics report. The initial check runs at
// most once per process regardless of concurrent callers.
type Cache struct {
	probe    Probe
	userData string
	skip     bool
	onUpdate func(*Report)
	logger   *logging.Logger

	mu   sync.Mutex
	last *Report

	initOnce sync.Once
	initDone chan struct{}
	initErr  error
}

// NewCache creates a system-check cache.
func NewCache(opts CacheOptions) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cache{
		probe:    opts.Probe,
		userData: opts.UserData,
		skip:     opts.Skip,
		onUpdate: opts.OnUpdate,
		logger:   logger.Component("syscheck"),
		initDone: make(chan struct{}),
	}
}

// EnsureInitialCheck runs the check exactly once per process lifetime.
// Concurrent callers share the same pending run and its outcome. A
// probe failure is reported to the waiters but leaves the cache absent
// rather than poisoning later runs.
func (c *Cache) EnsureInitialCheck(ctx context.Context) (*Report, error) {
	c.initOnce.Do(func() {
		go func() {
			defer close(c.initDone)
			if c.skip {
				c.store(c.skippedReport())
				c.logger.Info("system check skipped by configuration")
				return
			}
			if _, err := c.RunCheck(ctx, RunOptions{WriteToDisk: true}); err != nil {
				c.initErr = err
				c.logger.Warn("initial system check failed", zap.Error(err))
			}
		}()
	})

	select {
	case <-c.initDone:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if c.initErr != nil {
		return nil, c.initErr
	}
	return c.Last(), nil
}

// RunCheck runs the probe and replaces the cached report. Last write
// wins; there is no merging with the previous report.
func (c *Cache) RunCheck(ctx context.Context, opts RunOptions) (*Report, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	checks, err := c.probe.Run(pctx)
	if err != nil {
		return nil, fmt.Errorf("system check failed: %w", err)
	}

	report := &Report{
		CheckID:     id.NewCheckID().String(),
		Summary:     Summarize(checks),
		Checks:      checks,
		GeneratedAt: time.Now().UTC(),
	}

	if opts.WriteToDisk {
		if path, werr := c.writeReport(report); werr != nil {
			c.logger.Warn("failed to persist report", zap.Error(werr))
		} else {
			report.ArtifactPath = path
		}
	}

	c.store(report)
	c.logger.Info("system check completed",
		zap.String("check_id", report.CheckID),
		zap.String("status", string(report.Summary.Status)),
		zap.Int("critical_failures", report.Summary.CriticalFailures),
	)
	return report, nil
}

// Last returns the cached report, nil when no check has completed.
func (c *Cache) Last() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// OpenReport resolves the on-disk report path for the shell to open.
func (c *Cache) OpenReport() OpenResult {
	path := paths.ReportFile(c.userData)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return OpenResult{Missing: true}
		}
		return OpenResult{Error: err.Error()}
	}
	return OpenResult{OK: true, Path: path}
}

// ExportReport writes a gzipped copy of the cached report and returns
// both the report and the artifact path.
func (c *Cache) ExportReport() ExportResult {
	report := c.Last()
	if report == nil {
		return ExportResult{Error: "no report available"}
	}

	data, err := sonic.MarshalIndent(report, "", "  ")
	if err != nil {
		return ExportResult{Error: err.Error()}
	}

	if err := paths.EnsureUserData(c.userData); err != nil {
		return ExportResult{Error: err.Error()}
	}
	path := paths.ExportFile(c.userData)
	f, err := os.Create(path)
	if err != nil {
		return ExportResult{Error: err.Error()}
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write(data); err != nil {
		gz.Close()
		f.Close()
		return ExportResult{Error: err.Error()}
	}
	if err := gz.Close(); err != nil {
		f.Close()
		return ExportResult{Error: err.Error()}
	}
	if err := f.Close(); err != nil {
		return ExportResult{Error: err.Error()}
	}
	return ExportResult{OK: true, Report: report, ArtifactPath: path}
}

func (c *Cache) store(report *Report) {
	c.mu.Lock()
	c.last = report
	c.mu.Unlock()
	if c.onUpdate != nil {
		c.onUpdate(report)
	}
}

func (c *Cache) skippedReport() *Report {
	return &Report{
		CheckID:     id.NewCheckID().String(),
		Summary:     Summary{Status: StatusSkipped},
		GeneratedAt: time.Now().UTC(),
	}
}

func (c *Cache) writeReport(report *Report) (string, error) {
	if err := paths.EnsureUserData(c.userData); err != nil {
		return "", err
	}
	data, err := sonic.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	path := paths.ReportFile(c.userData)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
