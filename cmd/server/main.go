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

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/craftpad/runbox/api"
	"github.com/craftpad/runbox/config"
	"github.com/craftpad/runbox/engine"
	"github.com/craftpad/runbox/language"
	"github.com/craftpad/runbox/logger"
	"github.com/craftpad/runbox/mcpserver"
	"github.com/craftpad/runbox/pkgmanager"
	"github.com/craftpad/runbox/runtime"
)

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Container engine client
			engine.NewClient,

			// Language registry from built-ins plus config overrides
			language.NewFromConfig,

			// Execution runtime
			runtime.New,

			// Package manager layered on the runtime
			func(log *zap.Logger, cfg *config.Config, reg *language.Registry, rt *runtime.Runtime) *pkgmanager.Manager {
				return pkgmanager.New(log, cfg, reg, rt)
			},

			// HTTP API server
			func(log *zap.Logger, cfg *config.Config, rt *runtime.Runtime, pm *pkgmanager.Manager) *api.Server {
				return api.NewServer(log, cfg, rt, pm)
			},

			// MCP server over the same services
			func(cfg *config.Config, log *zap.Logger, rt *runtime.Runtime, pm *pkgmanager.Manager) (*mcpserver.MCPServer, error) {
				return mcpserver.New(cfg, log, rt, pm)
			},
		),

		// Warm images and sweep stray containers before serving traffic
		fx.Invoke(
			func(lc fx.Lifecycle, rt *runtime.Runtime) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						rt.Start(ctx)
						return nil
					},
				})
			},
		),

		// HTTP API lifecycle
		fx.Invoke(
			func(lc fx.Lifecycle, server *api.Server) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						go func() {
							if err := server.Start(); err != nil {
								panic(err)
							}
						}()
						return nil
					},
					OnStop: func(ctx context.Context) error {
						return server.Shutdown(ctx)
					},
				})
			},
		),

		// Start the MCP transport selected by config
		fx.Invoke(
			func(cfg *config.Config, server *mcpserver.MCPServer) {
				switch cfg.Server.MCPTransport {
				case "none":
					// HTTP API only
				case "stdio":
					go func() {
						if err := server.ServeStdio(); err != nil {
							panic(err)
						}
					}()
				case "http":
					go func() {
						if err := server.ServeHTTP(); err != nil {
							panic(err)
						}
					}()
				default:
					panic("unsupported mcp transport: " + cfg.Server.MCPTransport)
				}
			},
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}
