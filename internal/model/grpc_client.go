package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/intentions-server/internal/intentions"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ModelServiceName is the gRPC service the remote model environment serves.
// Run takes and returns google.protobuf.Struct so the R side needs no
// generated stubs.
const ModelServiceName = "intentions.model.v1.ModelService"

const runMethod = "/" + ModelServiceName + "/Run"

// invocationHeader carries the invocation id in request metadata.
const invocationHeader = "x-invocation-id"

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errNotServing               = errors.New("model service not serving")
)

// GrpcConfig holds configuration for the gRPC model client.
type GrpcConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGrpcConfig returns default configuration.
func DefaultGrpcConfig() GrpcConfig {
	return GrpcConfig{
		Address:          "localhost:50051",
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// GrpcRunner calls model_wrapper on a remote model service.
type GrpcRunner struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	logger *slog.Logger
}

var _ Backend = (*GrpcRunner)(nil)

// NewGrpcRunner connects to the model service and waits until it is ready.
func NewGrpcRunner(cfg GrpcConfig, logger *slog.Logger) (*GrpcRunner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultGrpcConfig()
	if cfg.Address == "" {
		cfg.Address = defaults.Address
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.KeepaliveTime <= 0 {
		cfg.KeepaliveTime = defaults.KeepaliveTime
	}
	if cfg.KeepaliveTimeout <= 0 {
		cfg.KeepaliveTimeout = defaults.KeepaliveTimeout
	}

	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    cfg.KeepaliveTime,
			Timeout: cfg.KeepaliveTimeout,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create model client for %s: %w", cfg.Address, err)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("model service at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("connected to model service", "address", cfg.Address)
	return NewGrpcRunnerWithConn(conn, logger), nil
}

// NewGrpcRunnerWithConn wraps an existing connection.
func NewGrpcRunnerWithConn(conn *grpc.ClientConn, logger *slog.Logger) *GrpcRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &GrpcRunner{
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
		logger: logger,
	}
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Run implements intentions.Model.
func (g *GrpcRunner) Run(ctx context.Context, trials intentions.Table) (intentions.Output, error) {
	req, err := trialsToStruct(trials)
	if err != nil {
		return intentions.Output{}, err
	}
	if id := InvocationID(ctx); id != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, invocationHeader, id)
	}

	resp := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, runMethod, req, resp); err != nil {
		return intentions.Output{}, fmt.Errorf("model rpc: %w", err)
	}

	raw, err := protojson.Marshal(resp)
	if err != nil {
		return intentions.Output{}, fmt.Errorf("%w: encode model response: %v", intentions.ErrModelOutput, err)
	}
	return decodeOutput(raw)
}

// Ping queries the standard gRPC health service for the model service.
func (g *GrpcRunner) Ping(ctx context.Context) error {
	resp, err := g.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ModelServiceName})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", errNotServing, resp.GetStatus())
	}
	return nil
}

// Close closes the gRPC connection.
func (g *GrpcRunner) Close() error {
	return g.conn.Close()
}

// trialsToStruct encodes a table as {"columns": [...], "rows": [[...], ...]}.
func trialsToStruct(trials intentions.Table) (*structpb.Struct, error) {
	columns := make([]any, len(trials.Columns))
	for i, c := range trials.Columns {
		columns[i] = c
	}
	rows := make([]any, len(trials.Rows))
	for i, row := range trials.Rows {
		cells := make([]any, len(row))
		copy(cells, row)
		rows[i] = cells
	}

	s, err := structpb.NewStruct(map[string]any{
		"columns": columns,
		"rows":    rows,
	})
	if err != nil {
		return nil, fmt.Errorf("encode trials: %w", err)
	}
	return s, nil
}
