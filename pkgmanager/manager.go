package pkgmanager

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/craftpad/runbox/config"
	"github.com/craftpad/runbox/language"
	"github.com/craftpad/runbox/runtime"
)

// ErrNoPackageSupport is returned for languages without a package manager
var ErrNoPackageSupport = errors.New("language has no package manager support")

// ErrUnparseableOutput is returned when a list command succeeded but its
// stdout could not be parsed. Callers can distinguish "no packages
// installed" from "could not determine".
var ErrUnparseableOutput = errors.New("unparseable package list output")

// ErrListFailed is returned when the list command itself failed
var ErrListFailed = errors.New("package list command failed")

// InstallRequest asks for packages to be installed into a project's
// workspace
type InstallRequest struct {
	ProjectID  string   `json:"projectId"`
	Language   string   `json:"language"`
	Packages   []string `json:"packages"`
	WorkingDir string   `json:"workingDir,omitempty"`
}

// InstallResult is the outcome of a package operation
type InstallResult struct {
	Success           bool     `json:"success"`
	Stdout            string   `json:"stdout"`
	Stderr            string   `json:"stderr"`
	DurationMs        int64    `json:"duration"`
	InstalledPackages []string `json:"installedPackages"`
}

// Executor is the slice of the execution runtime the package manager
// consumes
type Executor interface {
	ExecuteCode(ctx context.Context, req runtime.ExecutionRequest) runtime.ExecutionResult
}

// Manager composes package-manager shell commands from the language
// registry's operation tables and runs them through the execution
// runtime. Routing through the same path as arbitrary code guarantees
// package installation happens inside the same isolated, resource-capped
// environment; no privileged host-side installation path exists.
type Manager struct {
	logger   *zap.Logger
	cfg      *config.Config
	registry *language.Registry
	exec     Executor
}

// New creates a package manager
func New(logger *zap.Logger, cfg *config.Config, registry *language.Registry, exec Executor) *Manager {
	return &Manager{logger: logger, cfg: cfg, registry: registry, exec: exec}
}

// Package specifiers may carry versions ("six==1.16", "lodash@4",
// "golang.org/x/text@v0.14.0") but never shell metacharacters.
var specifierPattern = regexp.MustCompile(`^[A-Za-z0-9@._+\-/:=<>!~^*\[\],]+$`)

func validSpecifiers(pkgs []string) error {
	if len(pkgs) == 0 {
		return fmt.Errorf("no packages specified")
	}
	for _, p := range pkgs {
		if !specifierPattern.MatchString(p) {
			return fmt.Errorf("invalid package specifier: %q", p)
		}
	}
	return nil
}

func failure(stderr string) InstallResult {
	return InstallResult{Success: false, Stderr: stderr, InstalledPackages: []string{}}
}

// run issues a synthetic execution: empty code, composed command, and
// the package network policy instead of the execution sandbox's deny-all
func (m *Manager) run(ctx context.Context, projectID, lang, workingDir, command string) runtime.ExecutionResult {
	return m.exec.ExecuteCode(ctx, runtime.ExecutionRequest{
		ID:           "pkg-" + uuid.NewString(),
		ProjectID:    projectID,
		Language:     lang,
		Code:         "",
		Command:      command,
		WorkingDir:   workingDir,
		AllowNetwork: true,
		Timeout:      m.cfg.PackageTimeout(),
	})
}

func (m *Manager) ops(lang string) (language.Config, *language.PackageOps, error) {
	cfg, err := m.registry.Resolve(lang)
	if err != nil {
		return language.Config{}, nil, err
	}
	if cfg.Packages == nil {
		return language.Config{}, nil, fmt.Errorf("%w: %s", ErrNoPackageSupport, lang)
	}
	return cfg, cfg.Packages, nil
}

// Install installs the requested packages into the project's workspace.
// On success the installed-package list echoes the request; the runtime
// does not verify individual package success.
func (m *Manager) Install(ctx context.Context, req InstallRequest) InstallResult {
	_, ops, err := m.ops(req.Language)
	if err != nil {
		return failure(err.Error())
	}
	if err := validSpecifiers(req.Packages); err != nil {
		return failure(err.Error())
	}

	command := ops.InstallCommand + " " + strings.Join(req.Packages, " ")
	m.logger.Info("installing packages",
		zap.String("project", req.ProjectID),
		zap.String("language", req.Language),
		zap.Strings("packages", req.Packages))

	res := m.run(ctx, req.ProjectID, req.Language, req.WorkingDir, command)
	out := InstallResult{
		Success:           res.ExitCode == 0 && res.Error == "",
		Stdout:            res.Stdout,
		Stderr:            res.Stderr,
		DurationMs:        res.DurationMs,
		InstalledPackages: []string{},
	}
	if out.Success {
		out.InstalledPackages = append([]string{}, req.Packages...)
	}
	return out
}

// InitProject issues the language's one-time initialization command
// (create a manifest file, init a module)
func (m *Manager) InitProject(ctx context.Context, projectID, lang string) InstallResult {
	_, ops, err := m.ops(lang)
	if err != nil {
		return failure(err.Error())
	}
	if ops.InitCommand == "" {
		return failure(fmt.Sprintf("language %s has no project initialization", lang))
	}

	res := m.run(ctx, projectID, lang, "", ops.InitCommand)
	return InstallResult{
		Success:           res.ExitCode == 0 && res.Error == "",
		Stdout:            res.Stdout,
		Stderr:            res.Stderr,
		DurationMs:        res.DurationMs,
		InstalledPackages: []string{},
	}
}

// Remove uninstalls packages from the project's workspace
func (m *Manager) Remove(ctx context.Context, projectID, lang string, pkgs []string) InstallResult {
	_, ops, err := m.ops(lang)
	if err != nil {
		return failure(err.Error())
	}
	if err := validSpecifiers(pkgs); err != nil {
		return failure(err.Error())
	}

	args := make([]string, len(pkgs))
	for i, p := range pkgs {
		args[i] = p + ops.RemoveSuffix
	}
	command := ops.RemoveCommand + " " + strings.Join(args, " ")

	res := m.run(ctx, projectID, lang, "", command)
	out := InstallResult{
		Success:           res.ExitCode == 0 && res.Error == "",
		Stdout:            res.Stdout,
		Stderr:            res.Stderr,
		DurationMs:        res.DurationMs,
		InstalledPackages: []string{},
	}
	if out.Success {
		out.InstalledPackages = append([]string{}, pkgs...)
	}
	return out
}

// InstalledPackages lists the packages installed in the project's
// workspace by running the language's list command and parsing its
// stdout per the registry's list format
func (m *Manager) InstalledPackages(ctx context.Context, projectID, lang string) ([]string, error) {
	_, ops, err := m.ops(lang)
	if err != nil {
		return nil, err
	}

	res := m.run(ctx, projectID, lang, "", ops.ListCommand)
	if res.Error != "" || res.ExitCode != 0 {
		return nil, fmt.Errorf("%w: %s", ErrListFailed, strings.TrimSpace(res.Stderr))
	}

	pkgs, err := parsePackages(ops, res.Stdout)
	if err != nil {
		m.logger.Warn("could not parse package list output",
			zap.String("project", projectID),
			zap.String("language", lang),
			zap.Error(err))
		return nil, err
	}
	return pkgs, nil
}

// SupportedLanguages returns the languages with package manager support
func (m *Manager) SupportedLanguages() []string {
	return m.registry.PackageLanguages()
}

// PackageFile returns the language's package manifest file name, if any
func (m *Manager) PackageFile(lang string) (string, bool) {
	cfg, err := m.registry.Resolve(lang)
	if err != nil || cfg.Packages == nil || cfg.Packages.PackageFile == "" {
		return "", false
	}
	return cfg.Packages.PackageFile, true
}
