// Package stream proxies renderer chat requests to the knowledge
// backend as cancellable server-sent-event streams.
//
// Each stream is one lane keyed by (renderer surface, logical tab). A
// new request on a busy lane supersedes the old stream; requests on
// different lanes run concurrently. Closing a browser tab does not
// abort the lane's stream; lanes belong to the surface and may
// legitimately outlive the tab.
package stream
