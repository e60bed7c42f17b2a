// Package paths provides the on-disk layout used by the browser host.
//
// Everything lives under a single user-data directory (platform config
// dir by default, overridable for tests and portable installs):
//
//	<user-data>/settings.json        persisted settings document
//	<user-data>/diagnostics/         system-check reports and exports
package paths

import (
	"os"
	"path/filepath"
)

const (
	appDirName      = "lumen"
	settingsName    = "settings.json"
	diagnosticsName = "diagnostics"
	reportName      = "system-check.json"
)

// UserData resolves the user-data directory. An explicit override wins;
// otherwise the platform config dir is used, falling back to the
// working directory when the platform dir cannot be resolved.
func UserData(override string) string {
	if override != "" {
		return override
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return appDirName
	}
	return filepath.Join(base, appDirName)
}

// SettingsFile returns the path of the settings document.
func SettingsFile(userData string) string {
	return filepath.Join(userData, settingsName)
}

// DiagnosticsDir returns the directory holding system-check artifacts.
func DiagnosticsDir(userData string) string {
	return filepath.Join(userData, diagnosticsName)
}

// ReportFile returns the path of the last written system-check report.
func ReportFile(userData string) string {
	return filepath.Join(DiagnosticsDir(userData), reportName)
}

// ExportFile returns the path for a gzipped report export.
func ExportFile(userData string) string {
	return filepath.Join(DiagnosticsDir(userData), reportName+".gz")
}

// EnsureUserData creates the user-data tree if missing.
func EnsureUserData(userData string) error {
	return os.MkdirAll(DiagnosticsDir(userData), 0o755)
}
