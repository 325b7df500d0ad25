// Package api is the HTTP boundary over the execution runtime and the
// package manager.
//
// Handlers validate inbound JSON, construct execution requests with
// server-generated ids, and serialize results. Internal failure tags
// map to HTTP status codes here; the runtime itself never decides
// transport semantics.
package api
