package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/craftpad/runbox/config"
	"github.com/craftpad/runbox/engine"
	"github.com/craftpad/runbox/language"
)

const (
	dirPermission  = 0o755
	filePermission = 0o600

	// grace period for the attach stream to drain after the container
	// exits before the connection is forcibly closed
	drainGrace = 2 * time.Second
)

// Runtime orchestrates code executions in ephemeral, resource-capped,
// network-isolated containers. It owns the active-container table and
// is the only component that talks to the engine client.
type Runtime struct {
	logger   *zap.Logger
	cfg      *config.Config
	registry *language.Registry
	eng      engine.Client
	tracker  *tracker
	sem      *semaphore.Weighted

	lockMu       sync.Mutex
	projectLocks map[string]*sync.Mutex
}

// New creates an execution runtime
func New(logger *zap.Logger, cfg *config.Config, registry *language.Registry, eng engine.Client) *Runtime {
	return &Runtime{
		logger:       logger,
		cfg:          cfg,
		registry:     registry,
		eng:          eng,
		tracker:      newTracker(),
		sem:          semaphore.NewWeighted(cfg.Runtime.MaxConcurrent),
		projectLocks: make(map[string]*sync.Mutex),
	}
}

// Start prepares the runtime: staging root, engine connectivity, warm
// image pulls and a sweep of stray containers from previous runs. Each
// step is independently fault-tolerant; a failure degrades the runtime
// instead of preventing the process from serving other traffic.
func (r *Runtime) Start(ctx context.Context) {
	if err := os.MkdirAll(r.cfg.Runtime.StagingRoot, dirPermission); err != nil {
		r.logger.Warn("failed to create staging root", zap.String("path", r.cfg.Runtime.StagingRoot), zap.Error(err))
	}

	if err := r.eng.Ping(ctx); err != nil {
		r.logger.Warn("container engine unreachable, executions will fail fast", zap.Error(err))
		return
	}

	r.pullWarmImages(ctx)
	r.sweepStrayContainers(ctx)
}

// pullWarmImages opportunistically pulls commonly used images, bounded
// by a short timeout so a slow registry cannot block startup
func (r *Runtime) pullWarmImages(ctx context.Context) {
	if len(r.cfg.Runtime.PullImages) == 0 {
		return
	}

	pullCtx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Runtime.PullTimeoutSec)*time.Second)
	defer cancel()

	for _, ref := range r.cfg.Runtime.PullImages {
		if pullCtx.Err() != nil {
			r.logger.Warn("image warm-up cut short", zap.Error(pullCtx.Err()))
			return
		}
		if err := r.eng.PullImage(pullCtx, ref); err != nil {
			r.logger.Warn("failed to pull image", zap.String("image", ref), zap.Error(err))
			continue
		}
		r.logger.Info("pulled image", zap.String("image", ref))
	}
}

// sweepStrayContainers removes managed containers older than the
// retention window, reconciling the engine's state with ours after a
// restart
func (r *Runtime) sweepStrayContainers(ctx context.Context) {
	managed, err := r.eng.ListManaged(ctx)
	if err != nil {
		r.logger.Warn("failed to list managed containers", zap.Error(err))
		return
	}

	cutoff := time.Now().Add(-r.cfg.Retention())
	for _, c := range managed {
		if c.CreatedAt.After(cutoff) {
			continue
		}
		if err := r.eng.RemoveContainer(ctx, c.ID); err != nil {
			r.logger.Warn("failed to remove stray container", zap.String("container", c.ID), zap.Error(err))
			continue
		}
		r.logger.Info("removed stray container",
			zap.String("container", c.ID),
			zap.String("project", c.Labels[engine.LabelProject]),
			zap.Time("created", c.CreatedAt))
	}
}

// ExecuteCode runs one execution request to completion. It never
// returns an error: every failure path is folded into the result's
// ExitCode/Stderr/Error fields so the boundary layer can always answer.
func (r *Runtime) ExecuteCode(ctx context.Context, req ExecutionRequest) ExecutionResult {
	start := time.Now()
	fail := func(tag, msg string) ExecutionResult {
		return ExecutionResult{
			ID:         req.ID,
			ExitCode:   1,
			Stderr:     msg,
			DurationMs: time.Since(start).Milliseconds(),
			Error:      tag,
		}
	}

	lang, err := r.registry.Resolve(req.Language)
	if err != nil {
		return fail(ErrTagUnknownLanguage, fmt.Sprintf("unsupported language: %s", req.Language))
	}

	if !r.sem.TryAcquire(1) {
		return fail(ErrTagAtCapacity, fmt.Sprintf("runtime at capacity (%d concurrent executions)", r.cfg.Runtime.MaxConcurrent))
	}
	defer r.sem.Release(1)

	// Executions sharing a project share a staging directory; serialize
	// them so concurrent requests cannot race on the same files.
	lock := r.projectLock(req.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	stagingDir, err := r.prepareWorkspace(req, lang)
	if err != nil {
		return fail(ErrTagInternal, err.Error())
	}

	spec := r.containerSpec(req, lang, stagingDir)

	containerID, err := r.eng.CreateContainer(ctx, spec, "runbox-"+req.ID)
	if err != nil {
		if engine.IsUnavailable(err) {
			return fail(ErrTagEngineUnavailable, "container engine unavailable")
		}
		return fail(ErrTagInternal, fmt.Sprintf("failed to create container: %v", err))
	}

	// Registered before start so the execution is visible to
	// ActiveContainers for its entire lifetime; removal is guaranteed on
	// every exit path.
	now := time.Now()
	r.tracker.Add(ContainerInfo{
		ID:           req.ID,
		ProjectID:    req.ProjectID,
		ContainerID:  containerID,
		Language:     req.Language,
		Status:       StatusCreating,
		CreatedAt:    now,
		LastActivity: now,
	})
	defer r.tracker.Remove(req.ID)

	stream, err := r.eng.AttachOutput(ctx, containerID)
	if err != nil {
		r.destroyContainer(containerID)
		return fail(ErrTagInternal, fmt.Sprintf("failed to attach to container: %v", err))
	}

	var stdout, stderr bytes.Buffer
	demux := engine.NewDemuxer(&stdout, &stderr)
	copyDone := make(chan struct{})
	go func() {
		defer close(copyDone)
		if _, copyErr := io.Copy(demux, stream); copyErr != nil {
			r.logger.Debug("output stream closed", zap.String("execution", req.ID), zap.Error(copyErr))
		}
	}()

	// The wait must be registered before start: the container is
	// auto-removed, and a fast program can exit and vanish before a
	// wait issued afterwards reaches the engine.
	waitCh := r.eng.WaitContainer(ctx, containerID)

	if err := r.eng.StartContainer(ctx, containerID); err != nil {
		stream.Close()
		<-copyDone
		r.destroyContainer(containerID)
		return fail(ErrTagInternal, fmt.Sprintf("failed to start container: %v", err))
	}
	r.tracker.Touch(req.ID, StatusRunning)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.cfg.ExecutionTimeout()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case outcome := <-waitCh:
		drainStream(stream, copyDone)
		if outcome.Err != nil {
			r.destroyContainer(containerID)
			return fail(ErrTagInternal, fmt.Sprintf("failed waiting for container: %v", outcome.Err))
		}
		r.logger.Info("execution finished",
			zap.String("execution", req.ID),
			zap.String("project", req.ProjectID),
			zap.String("language", req.Language),
			zap.Int64("exit_code", outcome.ExitCode),
			zap.Duration("took", time.Since(start)))
		return ExecutionResult{
			ID:         req.ID,
			ExitCode:   int(outcome.ExitCode),
			Stdout:     stdout.String(),
			Stderr:     stderr.String(),
			DurationMs: time.Since(start).Milliseconds(),
		}

	case <-timer.C:
		r.logger.Warn("execution timed out, killing container",
			zap.String("execution", req.ID),
			zap.String("container", containerID),
			zap.Duration("budget", timeout))
		r.destroyContainer(containerID)
		stream.Close()
		<-copyDone
		res := fail(ErrTagTimeout, "")
		res.Stdout = stdout.String()
		res.Stderr = stderr.String() + fmt.Sprintf("\nexecution timed out after %s", timeout)
		return res
	}
}

// drainStream waits for the attach copy to finish, forcing the
// connection closed if the engine never signals EOF
func drainStream(stream io.ReadCloser, copyDone <-chan struct{}) {
	select {
	case <-copyDone:
	case <-time.After(drainGrace):
	}
	stream.Close()
	<-copyDone
}

// destroyContainer best-effort kills and removes a container outside
// the request's context so teardown survives caller cancellation
func (r *Runtime) destroyContainer(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.eng.KillContainer(ctx, containerID); err != nil {
		r.logger.Debug("kill container", zap.String("container", containerID), zap.Error(err))
	}
	// Auto-remove usually handles this; forcing is harmless when the
	// container is already gone.
	if err := r.eng.RemoveContainer(ctx, containerID); err != nil {
		r.logger.Debug("remove container", zap.String("container", containerID), zap.Error(err))
	}
}

// prepareWorkspace materializes the request's files and main source
// file under the project's staging directory and returns its path
func (r *Runtime) prepareWorkspace(req ExecutionRequest, lang language.Config) (string, error) {
	stagingDir := filepath.Join(r.cfg.Runtime.StagingRoot, req.ProjectID)
	if err := os.MkdirAll(stagingDir, dirPermission); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}

	for rel, content := range req.Files {
		path, err := safeJoin(stagingDir, rel)
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(filepath.Dir(path), dirPermission); err != nil {
			return "", fmt.Errorf("failed to create directory for %s: %w", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), filePermission); err != nil {
			return "", fmt.Errorf("failed to write file %s: %w", rel, err)
		}
	}

	// Empty code means a raw-command or package-manager invocation with
	// no main file to write.
	if req.Code != "" {
		mainPath := filepath.Join(stagingDir, lang.FileName)
		if err := os.WriteFile(mainPath, []byte(req.Code), filePermission); err != nil {
			return "", fmt.Errorf("failed to write main file: %w", err)
		}
	}

	return stagingDir, nil
}

// safeJoin joins a caller-supplied relative path under root, rejecting
// absolute paths and traversal outside the workspace
func safeJoin(root, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute path not allowed: %s", rel)
	}
	clean := filepath.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", rel)
	}
	return filepath.Join(root, clean), nil
}

// containerSpec builds the engine spec for one execution. Network mode
// is hard-wired to none for code execution; only the package manager's
// internal AllowNetwork flag switches to the configured package policy.
func (r *Runtime) containerSpec(req ExecutionRequest, lang language.Config, stagingDir string) engine.Spec {
	var shellLine string
	if req.Command != "" {
		shellLine = req.Command
	} else {
		parts := append(append([]string{}, lang.SetupCommands...), lang.RunCommand)
		shellLine = strings.Join(parts, " && ")
	}

	env := make([]string, 0, len(req.Environment))
	for k, v := range req.Environment {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	workDir := req.WorkingDir
	if workDir == "" {
		workDir = r.cfg.Runtime.WorkspaceDir
	}

	networkMode := "none"
	if req.AllowNetwork {
		networkMode = r.cfg.Packages.NetworkMode
	}

	return engine.Spec{
		Image:       lang.Image,
		Cmd:         []string{"sh", "-c", shellLine},
		Env:         env,
		WorkingDir:  workDir,
		Binds:       []string{stagingDir + ":" + r.cfg.Runtime.WorkspaceDir},
		MemoryMB:    r.cfg.Runtime.MemoryMB,
		CPUs:        r.cfg.Runtime.CPUs,
		NetworkMode: networkMode,
		AutoRemove:  true,
		Labels: map[string]string{
			engine.LabelManaged:   "true",
			engine.LabelProject:   req.ProjectID,
			engine.LabelExecution: req.ID,
		},
	}
}

// projectLock returns the mutex serializing executions of one project
func (r *Runtime) projectLock(projectID string) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	lock, ok := r.projectLocks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		r.projectLocks[projectID] = lock
	}
	return lock
}

// ActiveContainers returns a snapshot of the tracking table
func (r *Runtime) ActiveContainers() []ContainerInfo {
	return r.tracker.List()
}

// StopContainer kills the execution with the given request id. It
// returns false when no matching entry exists, which is not an error:
// the execution already finished or was never known.
func (r *Runtime) StopContainer(id string) bool {
	info, ok := r.tracker.Remove(id)
	if !ok {
		return false
	}

	r.logger.Info("stopping container on request",
		zap.String("execution", id),
		zap.String("container", info.ContainerID))
	r.destroyContainer(info.ContainerID)
	return true
}

// SupportedLanguages returns the registry's language identifiers
func (r *Runtime) SupportedLanguages() []string {
	return r.registry.Languages()
}

// HealthCheck reports runtime health; an unreachable engine degrades
// the status without failing the call
func (r *Runtime) HealthCheck(ctx context.Context) Health {
	connected := r.eng.Ping(ctx) == nil
	status := "ok"
	if !connected {
		status = "degraded"
	}
	return Health{
		Status:             status,
		ActiveContainers:   r.tracker.Len(),
		SupportedLanguages: r.registry.Languages(),
		EngineConnected:    connected,
	}
}
