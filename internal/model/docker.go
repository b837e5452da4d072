package model

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/intentions-server/internal/intentions"
	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerConfig configures a backend that execs the driver inside a running
// model container.
type DockerConfig struct {
	Container string // container name or ID
	Rscript   string // Rscript binary inside the container
	Source    string // model source path inside the container
	User      string // exec user, "" = image default
}

// DockerRunner runs model_wrapper through docker exec.
type DockerRunner struct {
	cli    client.APIClient
	cfg    DockerConfig
	logger *slog.Logger
}

var _ Backend = (*DockerRunner)(nil)

// NewDockerRunner creates a Docker-backed model runner from the environment.
func NewDockerRunner(cfg DockerConfig, logger *slog.Logger) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return NewDockerRunnerWithClient(cli, cfg, logger)
}

// NewDockerRunnerWithClient creates a DockerRunner over an existing client.
func NewDockerRunnerWithClient(cli client.APIClient, cfg DockerConfig, logger *slog.Logger) (*DockerRunner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Container == "" {
		return nil, errors.New("model container cannot be empty")
	}
	if cfg.Rscript == "" {
		cfg.Rscript = "Rscript"
	}
	if cfg.Source == "" {
		return nil, errors.New("model source cannot be empty")
	}
	return &DockerRunner{cli: cli, cfg: cfg, logger: logger}, nil
}

// Run implements intentions.Model.
func (r *DockerRunner) Run(ctx context.Context, trials intentions.Table) (intentions.Output, error) {
	payload, err := encodeTrials(trials)
	if err != nil {
		return intentions.Output{}, err
	}

	var env []string
	if id := InvocationID(ctx); id != "" {
		env = append(env, InvocationEnv+"="+id)
	}

	created, err := r.cli.ContainerExecCreate(ctx, r.cfg.Container, container.ExecOptions{
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          driverCommand(r.cfg.Rscript, r.cfg.Source),
		User:         r.cfg.User,
		Env:          env,
	})
	if err != nil {
		return intentions.Output{}, fmt.Errorf("create exec in container %s: %w", r.cfg.Container, err)
	}

	attach, err := r.cli.ContainerExecAttach(ctx, created.ID, container.ExecStartOptions{})
	if err != nil {
		return intentions.Output{}, fmt.Errorf("attach exec %s: %w", created.ID, err)
	}
	defer attach.Close()

	// The hijacked stream does not observe ctx on its own.
	stop := context.AfterFunc(ctx, attach.Close)
	defer stop()

	writeErr := make(chan error, 1)
	go func() {
		_, err := attach.Conn.Write(payload)
		if closeErr := attach.CloseWrite(); err == nil {
			err = closeErr
		}
		writeErr <- err
	}()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return intentions.Output{}, fmt.Errorf("read exec %s output: %w", created.ID, ctxErr)
		}
		return intentions.Output{}, fmt.Errorf("read exec %s output: %w", created.ID, err)
	}

	inspect, err := r.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return intentions.Output{}, fmt.Errorf("inspect exec %s: %w", created.ID, err)
	}
	if inspect.ExitCode != 0 {
		return intentions.Output{}, fmt.Errorf("model exited with code %d: %s", inspect.ExitCode, stderrExcerpt(stderr.Bytes()))
	}
	if err := <-writeErr; err != nil {
		return intentions.Output{}, fmt.Errorf("write exec %s input: %w", created.ID, err)
	}

	if stderr.Len() > 0 {
		r.logger.Debug("model container stderr",
			"invocation_id", InvocationID(ctx),
			"container", r.cfg.Container,
			"stderr", stderrExcerpt(stderr.Bytes()),
		)
	}
	return decodeOutput(stdout.Bytes())
}

// Ping checks that the model container exists and is running.
func (r *DockerRunner) Ping(ctx context.Context) error {
	inspect, err := r.cli.ContainerInspect(ctx, r.cfg.Container)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("model container %s not found: %w", r.cfg.Container, err)
		}
		return fmt.Errorf("inspect container %s: %w", r.cfg.Container, err)
	}
	if inspect.State == nil || !inspect.State.Running {
		return fmt.Errorf("model container %s is not running", r.cfg.Container)
	}
	return nil
}

// Close releases the Docker client.
func (r *DockerRunner) Close() error {
	return r.cli.Close()
}
