// Package tabs owns the browser's tab collection: the registry of
// content views in creation order, the active-tab pointer, the view
// attachment manager for the visible window region, and the lifecycle
// bridge translating content-view signals into renderer broadcasts.
//
// Access is serialized by a single registry mutex; bridge handlers and
// registry operations never interleave mid-step. Tab close does not
// abort an in-flight chat stream tied to that tab: stream lanes are
// surface-scoped and may legitimately outlive the tab.
package tabs
