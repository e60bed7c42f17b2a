package syscheck

import "time"

// Status summarizes a report or a single check.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
)

// Check is one probe result.
type Check struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Critical bool          `json:"critical"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"durationNs"`
}

// Summary aggregates check outcomes.
type Summary struct {
	Status           Status `json:"status"`
	CriticalFailures int    `json:"criticalFailures"`
}

// Report is the cached diagnostics result exposed to the renderer.
type Report struct {
	CheckID      string    `json:"checkId"`
	Summary      Summary   `json:"summary"`
	Checks       []Check   `json:"checks,omitempty"`
	GeneratedAt  time.Time `json:"generatedAt"`
	ArtifactPath string    `json:"artifactPath,omitempty"`
}

// Summarize derives the report summary from its checks.
func Summarize(checks []Check) Summary {
	s := Summary{Status: StatusOK}
	for _, c := range checks {
		if c.Status != StatusFailed {
			continue
		}
		if c.Critical {
			s.CriticalFailures++
			s.Status = StatusFailed
		} else if s.Status == StatusOK {
			s.Status = StatusDegraded
		}
	}
	return s
}
