// Package main is the entry point for the Runbox server.
//
// Runbox executes untrusted user code in ephemeral, resource-capped Docker
// containers and manages per-project package installs on top of the same
// execution primitive. The server exposes an HTTP API and, optionally, a
// Model Context Protocol (MCP) surface over stdio or HTTP.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main
