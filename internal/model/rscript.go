package model

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ashureev/intentions-server/internal/intentions"
)

// waitDelay bounds how long a killed Rscript may hold its pipes open.
const waitDelay = 5 * time.Second

// RscriptConfig configures a local Rscript backend.
type RscriptConfig struct {
	Path    string   // Rscript binary
	Source  string   // R file defining model_wrapper
	WorkDir string   // working directory for the process
	Env     []string // extra KEY=VALUE pairs
}

// RscriptRunner runs model_wrapper in a fresh Rscript process per call.
type RscriptRunner struct {
	cfg    RscriptConfig
	logger *slog.Logger
}

var _ Backend = (*RscriptRunner)(nil)

// NewRscriptRunner creates a new Rscript backend.
func NewRscriptRunner(cfg RscriptConfig, logger *slog.Logger) (*RscriptRunner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		return nil, errors.New("rscript path cannot be empty")
	}
	if cfg.Source == "" {
		return nil, errors.New("model source cannot be empty")
	}
	return &RscriptRunner{cfg: cfg, logger: logger}, nil
}

// Run implements intentions.Model.
func (r *RscriptRunner) Run(ctx context.Context, trials intentions.Table) (intentions.Output, error) {
	payload, err := encodeTrials(trials)
	if err != nil {
		return intentions.Output{}, err
	}

	args := driverCommand(r.cfg.Path, r.cfg.Source)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = r.cfg.WorkDir
	cmd.Env = append(os.Environ(), r.cfg.Env...)
	if id := InvocationID(ctx); id != "" {
		cmd.Env = append(cmd.Env, InvocationEnv+"="+id)
	}
	cmd.Stdin = bytes.NewReader(payload)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return intentions.Output{}, fmt.Errorf("run rscript: %w", ctxErr)
		}
		return intentions.Output{}, fmt.Errorf("run rscript: %w: %s", err, stderrExcerpt(stderr.Bytes()))
	}

	if stderr.Len() > 0 {
		r.logger.Debug("rscript stderr", "invocation_id", InvocationID(ctx), "stderr", stderrExcerpt(stderr.Bytes()))
	}
	return decodeOutput(stdout.Bytes())
}

// Ping checks that Rscript and the model source can be found.
func (r *RscriptRunner) Ping(_ context.Context) error {
	if _, err := exec.LookPath(r.cfg.Path); err != nil {
		return fmt.Errorf("find rscript: %w", err)
	}
	source := r.cfg.Source
	if !filepath.IsAbs(source) && r.cfg.WorkDir != "" {
		source = filepath.Join(r.cfg.WorkDir, source)
	}
	if _, err := os.Stat(source); err != nil {
		return fmt.Errorf("stat model source: %w", err)
	}
	return nil
}
