package integration

import (
	"context"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/craftpad/runbox/api"
	"github.com/craftpad/runbox/config"
	"github.com/craftpad/runbox/engine"
	"github.com/craftpad/runbox/language"
	"github.com/craftpad/runbox/logger"
	"github.com/craftpad/runbox/mcpserver"
	"github.com/craftpad/runbox/pkgmanager"
	"github.com/craftpad/runbox/runtime"
)

// stubEngine is a minimal in-process engine so the full stack can be
// wired without a Docker daemon. Every container "runs" instantly,
// emits canned stdout and exits zero.
type stubEngine struct {
	stdout string
}

func (s *stubEngine) Ping(ctx context.Context) error                  { return nil }
func (s *stubEngine) PullImage(ctx context.Context, ref string) error { return nil }

func (s *stubEngine) CreateContainer(ctx context.Context, spec engine.Spec, name string) (string, error) {
	return "ctr-" + name, nil
}

func (s *stubEngine) StartContainer(ctx context.Context, id string) error { return nil }

func (s *stubEngine) AttachOutput(ctx context.Context, id string) (io.ReadCloser, error) {
	payload := []byte(s.stdout)
	frame := make([]byte, 8+len(payload))
	frame[0] = 1
	binary.BigEndian.PutUint32(frame[4:8], uint32(len(payload)))
	copy(frame[8:], payload)
	return io.NopCloser(strings.NewReader(string(frame))), nil
}

func (s *stubEngine) WaitContainer(_ context.Context, _ string) <-chan engine.WaitResult {
	out := make(chan engine.WaitResult, 1)
	out <- engine.WaitResult{ExitCode: 0}
	return out
}
func (s *stubEngine) KillContainer(ctx context.Context, id string) error   { return nil }
func (s *stubEngine) RemoveContainer(ctx context.Context, id string) error { return nil }

func (s *stubEngine) ListManaged(ctx context.Context) ([]engine.ManagedContainer, error) {
	return nil, nil
}

func (s *stubEngine) Close() error { return nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.Server{
			HTTPPort:     8080,
			MCPTransport: "none",
		},
		Runtime: config.Runtime{
			StagingRoot:   t.TempDir(),
			WorkspaceDir:  "/workspace",
			TimeoutSec:    5,
			MemoryMB:      128,
			CPUs:          0.5,
			MaxConcurrent: 4,
			RetentionMin:  60,
		},
		Packages: config.Packages{
			NetworkMode: "bridge",
			TimeoutSec:  10,
		},
		Logging: config.Logging{
			Mode:  "development",
			Level: "debug",
		},
		Languages: map[string]config.Language{},
	}
}

// TestIntegrationConfigLoggerRuntime tests the integration between the
// config, logger, language and runtime packages
func TestIntegrationConfigLoggerRuntime(t *testing.T) {
	t.Run("ConfigAndLoggerIntegration", func(t *testing.T) {
		cfg := testConfig(t)
		require.NoError(t, cfg.Validate())

		testLogger, err := logger.New(cfg.Logging.Mode, cfg.Logging.Level)
		require.NoError(t, err)
		require.NotNil(t, testLogger)

		testLogger.Info("Integration test started")
		_ = testLogger.Sync()
	})

	t.Run("RegistryFromConfigOverrides", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Languages = map[string]config.Language{
			"python": {Image: "python:3.12-slim"},
		}

		registry, err := language.NewFromConfig(cfg)
		require.NoError(t, err)

		lang, err := registry.Resolve("python")
		require.NoError(t, err)
		assert.Equal(t, "python:3.12-slim", lang.Image)
		// untouched built-ins stay available
		_, err = registry.Resolve("go")
		assert.NoError(t, err)
	})

	t.Run("EndToEndExecution", func(t *testing.T) {
		cfg := testConfig(t)
		testLogger := zaptest.NewLogger(t)

		registry, err := language.NewFromConfig(cfg)
		require.NoError(t, err)

		rt := runtime.New(testLogger, cfg, registry, &stubEngine{stdout: "4\n"})
		rt.Start(context.Background())

		res := rt.ExecuteCode(context.Background(), runtime.ExecutionRequest{
			ID:        "it-1",
			ProjectID: "proj-1",
			Language:  "python",
			Code:      "print(2+2)",
		})
		assert.Empty(t, res.Error)
		assert.Equal(t, 0, res.ExitCode)
		assert.Equal(t, "4\n", res.Stdout)
		assert.Empty(t, rt.ActiveContainers())
	})
}

// TestIntegrationFullStack wires runtime, package manager, HTTP API and
// MCP server together the way cmd/server does
func TestIntegrationFullStack(t *testing.T) {
	cfg := testConfig(t)
	testLogger := zaptest.NewLogger(t)

	registry, err := language.NewFromConfig(cfg)
	require.NoError(t, err)

	rt := runtime.New(testLogger, cfg, registry, &stubEngine{stdout: "installed\n"})
	pm := pkgmanager.New(testLogger, cfg, registry, rt)

	t.Run("PackageInstallThroughRuntime", func(t *testing.T) {
		res := pm.Install(context.Background(), pkgmanager.InstallRequest{
			ProjectID: "proj-1",
			Language:  "python",
			Packages:  []string{"requests"},
		})
		assert.True(t, res.Success)
		assert.Equal(t, []string{"requests"}, res.InstalledPackages)
	})

	t.Run("APIServerConstruction", func(t *testing.T) {
		server := api.NewServer(testLogger, cfg, rt, pm)
		require.NotNil(t, server)
		require.NotNil(t, server.Router())
	})

	t.Run("MCPServerConstruction", func(t *testing.T) {
		server, err := mcpserver.New(cfg, testLogger, rt, pm)
		require.NoError(t, err)
		require.NotNil(t, server)
		require.NotNil(t, server.GetMCPServer())
		// Note: We can't easily verify tool registration without mcp library internals
	})
}
