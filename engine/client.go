package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"go.uber.org/zap"
)

// Labels attached to every container the runtime creates. The managed
// label is what the startup sweep filters on.
const (
	LabelManaged   = "runbox.managed"
	LabelProject   = "runbox.project"
	LabelExecution = "runbox.execution"
)

// ErrUnavailable marks failures caused by an unreachable engine daemon,
// as opposed to a rejected operation. Callers use errors.Is to fail
// fast instead of retrying.
var ErrUnavailable = errors.New("container engine unavailable")

// IsUnavailable reports whether err stems from daemon unreachability
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) || client.IsErrConnectionFailed(err)
}

// Spec describes one container to create
type Spec struct {
	Image       string
	Cmd         []string
	Env         []string
	WorkingDir  string
	Binds       []string
	MemoryMB    int64
	CPUs        float64
	NetworkMode string
	AutoRemove  bool
	Labels      map[string]string
}

// ManagedContainer is one engine-side container carrying the managed label
type ManagedContainer struct {
	ID        string
	Labels    map[string]string
	State     string
	CreatedAt time.Time
}

// WaitResult is the outcome of a container wait
type WaitResult struct {
	ExitCode int64
	Err      error
}

// Client is the contract the execution runtime consumes. It is the only
// seam between the runtime and the container engine daemon.
type Client interface {
	Ping(ctx context.Context) error
	PullImage(ctx context.Context, ref string) error
	CreateContainer(ctx context.Context, spec Spec, name string) (string, error)
	StartContainer(ctx context.Context, id string) error
	// AttachOutput returns the container's combined stdout/stderr as a
	// single multiplexed stream; feed it through a Demuxer.
	AttachOutput(ctx context.Context, id string) (io.ReadCloser, error)
	// WaitContainer registers a wait on the container and returns a
	// channel delivering its exit code once it finishes. The wait is
	// registered with the daemon before WaitContainer returns, so call
	// it before starting an auto-removed container: a wait issued after
	// start can lose the race against removal of a fast-exiting
	// container. Cancelling the context aborts the wait, not the
	// container.
	WaitContainer(ctx context.Context, id string) <-chan WaitResult
	KillContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error
	ListManaged(ctx context.Context) ([]ManagedContainer, error)
	Close() error
}

// DockerClient implements Client over the local Docker daemon
type DockerClient struct {
	cli    *client.Client
	logger *zap.Logger
}

// NewDockerClient creates a Docker engine client from the environment
// (DOCKER_HOST et al.)
func NewDockerClient(logger *zap.Logger) (*DockerClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerClient{cli: cli, logger: logger}, nil
}

// NewClient creates the engine client for fx wiring
func NewClient(logger *zap.Logger) (Client, error) {
	return NewDockerClient(logger)
}

// Ping checks daemon reachability
func (d *DockerClient) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return nil
}

// PullImage pulls an image, draining the progress stream so the pull
// actually completes before returning
func (d *DockerClient) PullImage(ctx context.Context, ref string) error {
	rc, err := d.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer rc.Close()

	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	return nil
}

// CreateContainer creates a container from the spec and returns the
// engine-assigned id
func (d *DockerClient) CreateContainer(ctx context.Context, spec Spec, name string) (string, error) {
	cfg := &container.Config{
		Image:      spec.Image,
		Cmd:        spec.Cmd,
		Env:        spec.Env,
		WorkingDir: spec.WorkingDir,
		Labels:     spec.Labels,
	}

	hostCfg := &container.HostConfig{
		Binds:       spec.Binds,
		NetworkMode: container.NetworkMode(spec.NetworkMode),
		AutoRemove:  spec.AutoRemove,
		Resources: container.Resources{
			Memory:   spec.MemoryMB * 1024 * 1024,
			NanoCPUs: int64(spec.CPUs * 1e9),
		},
	}

	resp, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	return resp.ID, nil
}

// StartContainer starts a created container
func (d *DockerClient) StartContainer(ctx context.Context, id string) error {
	if err := d.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

// attachCloser adapts a hijacked attach connection to io.ReadCloser
type attachCloser struct {
	io.Reader
	close func()
}

func (a *attachCloser) Close() error {
	a.close()
	return nil
}

// AttachOutput attaches to the container's combined output stream
func (d *DockerClient) AttachOutput(ctx context.Context, id string) (io.ReadCloser, error) {
	resp, err := d.cli.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to container: %w", err)
	}
	return &attachCloser{Reader: resp.Reader, close: resp.Close}, nil
}

// WaitContainer registers a wait for the container and returns its
// result channel. ContainerWait posts the wait request before handing
// back its channels, and the "removed" condition delivers the exit code
// through auto-removal instead of erroring on an already-gone container.
func (d *DockerClient) WaitContainer(ctx context.Context, id string) <-chan WaitResult {
	waitCh, errCh := d.cli.ContainerWait(ctx, id, container.WaitConditionRemoved)

	out := make(chan WaitResult, 1)
	go func() {
		select {
		case resp := <-waitCh:
			if resp.Error != nil {
				out <- WaitResult{ExitCode: -1, Err: fmt.Errorf("container wait error: %s", resp.Error.Message)}
				return
			}
			out <- WaitResult{ExitCode: resp.StatusCode}
		case err := <-errCh:
			out <- WaitResult{ExitCode: -1, Err: fmt.Errorf("failed to wait for container: %w", err)}
		}
	}()
	return out
}

// KillContainer force-kills a running container. Killing a container
// that already exited is not an error to the caller's cleanup path.
func (d *DockerClient) KillContainer(ctx context.Context, id string) error {
	if err := d.cli.ContainerKill(ctx, id, "KILL"); err != nil {
		return fmt.Errorf("failed to kill container: %w", err)
	}
	return nil
}

// RemoveContainer force-removes a container
func (d *DockerClient) RemoveContainer(ctx context.Context, id string) error {
	if err := d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// ListManaged lists engine containers carrying the managed label,
// running or not
func (d *DockerClient) ListManaged(ctx context.Context) ([]ManagedContainer, error) {
	summaries, err := d.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", LabelManaged+"=true")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	managed := make([]ManagedContainer, 0, len(summaries))
	for _, s := range summaries {
		managed = append(managed, ManagedContainer{
			ID:        s.ID,
			Labels:    s.Labels,
			State:     s.State,
			CreatedAt: time.Unix(s.Created, 0),
		})
	}
	return managed, nil
}

// Close releases the underlying client connection
func (d *DockerClient) Close() error {
	return d.cli.Close()
}
