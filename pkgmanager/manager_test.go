package pkgmanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/craftpad/runbox/config"
	"github.com/craftpad/runbox/language"
	"github.com/craftpad/runbox/runtime"
)

// MockExecutor implements Executor for testing
type MockExecutor struct {
	lastRequest runtime.ExecutionRequest
	result      runtime.ExecutionResult
	called      int
}

func (m *MockExecutor) ExecuteCode(_ context.Context, req runtime.ExecutionRequest) runtime.ExecutionResult {
	m.called++
	m.lastRequest = req
	res := m.result
	res.ID = req.ID
	return res
}

func newTestManager(t *testing.T, exec *MockExecutor) *Manager {
	t.Helper()
	reg, err := language.NewRegistry(nil)
	require.NoError(t, err)
	cfg := &config.Config{
		Packages: config.Packages{NetworkMode: "bridge", TimeoutSec: 120},
	}
	return New(zaptest.NewLogger(t), cfg, reg, exec)
}

func TestInstallComposesCommand(t *testing.T) {
	exec := &MockExecutor{result: runtime.ExecutionResult{ExitCode: 0}}
	m := newTestManager(t, exec)

	res := m.Install(context.Background(), InstallRequest{
		ProjectID: "proj-1",
		Language:  language.Python,
		Packages:  []string{"six", "requests==2.31.0"},
	})

	require.True(t, res.Success)
	assert.Equal(t, []string{"six", "requests==2.31.0"}, res.InstalledPackages)

	req := exec.lastRequest
	assert.Equal(t, "python -m venv .venv && .venv/bin/pip install six requests==2.31.0", req.Command)
	assert.Empty(t, req.Code)
	assert.Equal(t, "proj-1", req.ProjectID)
	assert.True(t, req.AllowNetwork, "package installs get the package network policy")
	assert.Equal(t, "2m0s", req.Timeout.String())
	assert.NotEmpty(t, req.ID)
}

func TestPythonPackageOpsTargetWorkspaceVenv(t *testing.T) {
	// The install container is discarded after each run; packages only
	// survive when every pip operation targets the bind-mounted
	// workspace venv instead of the container's site-packages.
	exec := &MockExecutor{result: runtime.ExecutionResult{ExitCode: 0, Stdout: "[]"}}
	m := newTestManager(t, exec)

	res := m.Install(context.Background(), InstallRequest{
		ProjectID: "proj-1",
		Language:  language.Python,
		Packages:  []string{"six"},
	})
	require.True(t, res.Success)
	assert.Contains(t, exec.lastRequest.Command, ".venv/bin/pip install")

	_, err := m.InstalledPackages(context.Background(), "proj-1", language.Python)
	require.NoError(t, err)
	assert.Contains(t, exec.lastRequest.Command, ".venv/bin/pip list")

	rm := m.Remove(context.Background(), "proj-1", language.Python, []string{"six"})
	require.True(t, rm.Success)
	assert.Contains(t, exec.lastRequest.Command, ".venv/bin/pip uninstall")
}

func TestInstallFailureYieldsEmptyPackageList(t *testing.T) {
	exec := &MockExecutor{result: runtime.ExecutionResult{ExitCode: 1, Stderr: "no matching distribution"}}
	m := newTestManager(t, exec)

	res := m.Install(context.Background(), InstallRequest{
		ProjectID: "proj-1",
		Language:  language.Python,
		Packages:  []string{"definitely-not-a-package"},
	})

	assert.False(t, res.Success)
	assert.Empty(t, res.InstalledPackages)
	assert.Contains(t, res.Stderr, "no matching distribution")
}

func TestInstallUnknownLanguage(t *testing.T) {
	exec := &MockExecutor{}
	m := newTestManager(t, exec)

	res := m.Install(context.Background(), InstallRequest{
		ProjectID: "proj-1",
		Language:  "cobol",
		Packages:  []string{"x"},
	})

	assert.False(t, res.Success)
	assert.Zero(t, exec.called, "no execution for an unknown language")
}

func TestInstallLanguageWithoutPackages(t *testing.T) {
	exec := &MockExecutor{}
	m := newTestManager(t, exec)

	res := m.Install(context.Background(), InstallRequest{
		ProjectID: "proj-1",
		Language:  language.CPP,
		Packages:  []string{"boost"},
	})

	assert.False(t, res.Success)
	assert.Contains(t, res.Stderr, "no package manager support")
	assert.Zero(t, exec.called)
}

func TestInstallRejectsShellMetacharacters(t *testing.T) {
	exec := &MockExecutor{}
	m := newTestManager(t, exec)

	for _, bad := range []string{"six; rm -rf /", "$(curl evil)", "a b", "`id`", ""} {
		t.Run(bad, func(t *testing.T) {
			res := m.Install(context.Background(), InstallRequest{
				ProjectID: "proj-1",
				Language:  language.Python,
				Packages:  []string{bad},
			})
			assert.False(t, res.Success)
		})
	}
	assert.Zero(t, exec.called)
}

func TestInstallRejectsEmptyPackageList(t *testing.T) {
	exec := &MockExecutor{}
	m := newTestManager(t, exec)

	res := m.Install(context.Background(), InstallRequest{
		ProjectID: "proj-1",
		Language:  language.Python,
	})

	assert.False(t, res.Success)
	assert.Zero(t, exec.called)
}

func TestInitProject(t *testing.T) {
	exec := &MockExecutor{result: runtime.ExecutionResult{ExitCode: 0}}
	m := newTestManager(t, exec)

	res := m.InitProject(context.Background(), "proj-1", language.Go)
	require.True(t, res.Success)
	assert.Equal(t, "go mod init sandbox", exec.lastRequest.Command)
}

func TestInitProjectWithoutInitCommand(t *testing.T) {
	exec := &MockExecutor{}
	m := newTestManager(t, exec)

	res := m.InitProject(context.Background(), "proj-1", language.Java)
	assert.False(t, res.Success)
	assert.Zero(t, exec.called)
}

func TestRemoveComposesCommand(t *testing.T) {
	exec := &MockExecutor{result: runtime.ExecutionResult{ExitCode: 0}}
	m := newTestManager(t, exec)

	res := m.Remove(context.Background(), "proj-1", language.JavaScript, []string{"lodash", "left-pad"})
	require.True(t, res.Success)
	assert.Equal(t, "npm uninstall lodash left-pad", exec.lastRequest.Command)
	assert.Equal(t, []string{"lodash", "left-pad"}, res.InstalledPackages)
}

func TestRemoveAppliesSuffixForGoModules(t *testing.T) {
	exec := &MockExecutor{result: runtime.ExecutionResult{ExitCode: 0}}
	m := newTestManager(t, exec)

	m.Remove(context.Background(), "proj-1", language.Go, []string{"golang.org/x/text"})
	assert.Equal(t, "go get golang.org/x/text@none", exec.lastRequest.Command)
}

func TestInstalledPackagesJSONDeps(t *testing.T) {
	exec := &MockExecutor{result: runtime.ExecutionResult{
		ExitCode: 0,
		Stdout:   `{"name":"sandbox","dependencies":{"lodash":{"version":"4.17.21"},"axios":{"version":"1.6.0"}}}`,
	}}
	m := newTestManager(t, exec)

	pkgs, err := m.InstalledPackages(context.Background(), "proj-1", language.JavaScript)
	require.NoError(t, err)
	assert.Equal(t, []string{"axios", "lodash"}, pkgs)
	assert.Equal(t, "npm ls --json --depth=0", exec.lastRequest.Command)
}

func TestInstalledPackagesJSONArray(t *testing.T) {
	exec := &MockExecutor{result: runtime.ExecutionResult{
		ExitCode: 0,
		Stdout:   `[{"name":"six","version":"1.16.0"},{"name":"pip","version":"24.0"}]`,
	}}
	m := newTestManager(t, exec)

	pkgs, err := m.InstalledPackages(context.Background(), "proj-1", language.Python)
	require.NoError(t, err)
	assert.Equal(t, []string{"six", "pip"}, pkgs)
}

func TestInstalledPackagesLines(t *testing.T) {
	exec := &MockExecutor{result: runtime.ExecutionResult{
		ExitCode: 0,
		Stdout: "sandbox\n" +
			"golang.org/x/text v0.14.0\n" +
			"go: downloading golang.org/x/sync v0.7.0\n" +
			"golang.org/x/sync v0.7.0\n" +
			"\n",
	}}
	m := newTestManager(t, exec)

	pkgs, err := m.InstalledPackages(context.Background(), "proj-1", language.Go)
	require.NoError(t, err)
	assert.Equal(t, []string{"golang.org/x/text", "golang.org/x/sync"}, pkgs)
}

func TestInstalledPackagesLinesNoiseBeforeRoot(t *testing.T) {
	// A log line ahead of the root-module row must not absorb the skip
	// and leak the root module into the package list
	exec := &MockExecutor{result: runtime.ExecutionResult{
		ExitCode: 0,
		Stdout: "go: downloading golang.org/x/text v0.14.0\n" +
			"sandbox\n" +
			"golang.org/x/text v0.14.0\n",
	}}
	m := newTestManager(t, exec)

	pkgs, err := m.InstalledPackages(context.Background(), "proj-1", language.Go)
	require.NoError(t, err)
	assert.Equal(t, []string{"golang.org/x/text"}, pkgs)
}

func TestInstalledPackagesInstallRoundTrip(t *testing.T) {
	// install {six, requests} then list: the set contains both, even if
	// the resolver pulled transitive deps in as well
	exec := &MockExecutor{result: runtime.ExecutionResult{ExitCode: 0}}
	m := newTestManager(t, exec)

	res := m.Install(context.Background(), InstallRequest{
		ProjectID: "proj-1",
		Language:  language.Python,
		Packages:  []string{"six", "requests"},
	})
	require.True(t, res.Success)

	exec.result = runtime.ExecutionResult{
		ExitCode: 0,
		Stdout:   `[{"name":"six"},{"name":"requests"},{"name":"urllib3"}]`,
	}
	pkgs, err := m.InstalledPackages(context.Background(), "proj-1", language.Python)
	require.NoError(t, err)
	assert.Subset(t, pkgs, []string{"six", "requests"})
}

func TestInstalledPackagesUnparseableOutput(t *testing.T) {
	exec := &MockExecutor{result: runtime.ExecutionResult{
		ExitCode: 0,
		Stdout:   "npm WARN this is not json at all",
	}}
	m := newTestManager(t, exec)

	_, err := m.InstalledPackages(context.Background(), "proj-1", language.JavaScript)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnparseableOutput)
}

func TestInstalledPackagesListCommandFailure(t *testing.T) {
	exec := &MockExecutor{result: runtime.ExecutionResult{
		ExitCode: 1,
		Stderr:   "npm ERR! missing package.json",
	}}
	m := newTestManager(t, exec)

	_, err := m.InstalledPackages(context.Background(), "proj-1", language.JavaScript)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrListFailed)
	assert.NotErrorIs(t, err, ErrUnparseableOutput)
}

func TestInstalledPackagesNoSupport(t *testing.T) {
	exec := &MockExecutor{}
	m := newTestManager(t, exec)

	_, err := m.InstalledPackages(context.Background(), "proj-1", language.C)
	assert.ErrorIs(t, err, ErrNoPackageSupport)
}

func TestSupportedLanguages(t *testing.T) {
	m := newTestManager(t, &MockExecutor{})
	langs := m.SupportedLanguages()
	assert.Contains(t, langs, "python")
	assert.Contains(t, langs, "go")
	assert.NotContains(t, langs, "cpp")
}

func TestPackageFile(t *testing.T) {
	m := newTestManager(t, &MockExecutor{})

	file, ok := m.PackageFile(language.JavaScript)
	require.True(t, ok)
	assert.Equal(t, "package.json", file)

	_, ok = m.PackageFile(language.Java)
	assert.False(t, ok)

	_, ok = m.PackageFile("cobol")
	assert.False(t, ok)
}
