// Package engine is a thin client for the local container engine daemon.
//
// The package exposes the Client interface consumed by the execution
// runtime (create/start/attach/wait/kill/remove, image pull, daemon
// ping) and a Docker implementation over the official SDK. It also
// provides the Demuxer, an incremental decoder for the engine's
// multiplexed stdout/stderr stream framing.
//
// Daemon unreachability is never fatal to the owning process; callers
// surface it per-operation.
package engine
