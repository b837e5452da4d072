// Package model provides the backends that call model_wrapper in the R
// environment: a local Rscript process, a docker exec into a model container,
// and a remote gRPC model service.
//
// The process backends share one wire format. Trials go to stdin as a JSON
// array of records and the driver prints a single JSON line:
//
//	{"participantParameters":[...],"partnerParameters":"n n n",
//	 "partnerBehavior":{"names":[...],"columns":[[...],...]}}
package model

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashureev/intentions-server/internal/intentions"
)

// InvocationEnv carries the invocation id into model processes.
const InvocationEnv = "INTENTIONS_INVOCATION_ID"

// maxStderr bounds the stderr excerpt attached to model errors.
const maxStderr = 2048

//go:embed driver.R
var driverScript string

// Pinger reports whether a model backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Backend is a model that can also be health checked.
type Backend interface {
	intentions.Model
	Pinger
}

type invocationKey struct{}

// WithInvocationID attaches a model invocation id to ctx.
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationKey{}, id)
}

// InvocationID returns the invocation id attached to ctx, if any.
func InvocationID(ctx context.Context) string {
	id, _ := ctx.Value(invocationKey{}).(string)
	return id
}

// driverCommand builds the Rscript command line that runs the embedded driver
// against the given model source.
func driverCommand(rscript, source string) []string {
	return []string{rscript, "-e", driverScript, source}
}

func encodeTrials(trials intentions.Table) ([]byte, error) {
	payload, err := json.Marshal(trials.Records())
	if err != nil {
		return nil, fmt.Errorf("encode trials: %w", err)
	}
	return payload, nil
}

// decodeOutput reads the last non-empty line of driver output.
func decodeOutput(stdout []byte) (intentions.Output, error) {
	lines := bytes.Split(bytes.TrimSpace(stdout), []byte("\n"))
	last := bytes.TrimSpace(lines[len(lines)-1])
	if len(last) == 0 {
		return intentions.Output{}, fmt.Errorf("%w: model produced no output", intentions.ErrModelOutput)
	}

	var wire wireOutput
	if err := json.Unmarshal(last, &wire); err != nil {
		return intentions.Output{}, fmt.Errorf("%w: decode model output: %v", intentions.ErrModelOutput, err)
	}

	params := make([]float64, len(wire.ParticipantParameters))
	for i, p := range wire.ParticipantParameters {
		// The driver writes NA and NaN as null.
		if p == nil {
			return intentions.Output{}, fmt.Errorf("%w: participant parameter %d is NA", intentions.ErrModelOutput, i)
		}
		params[i] = *p
	}
	return intentions.Output{
		ParticipantParameters: params,
		PartnerParameters:     wire.PartnerParameters,
		PartnerBehavior:       wire.PartnerBehavior,
	}, nil
}

// wireOutput is the driver line as printed, before NA checks.
type wireOutput struct {
	ParticipantParameters []*float64          `json:"participantParameters"`
	PartnerParameters     string              `json:"partnerParameters"`
	PartnerBehavior       intentions.Behavior `json:"partnerBehavior"`
}

func stderrExcerpt(stderr []byte) string {
	s := strings.TrimSpace(string(stderr))
	if len(s) > maxStderr {
		s = "..." + s[len(s)-maxStderr:]
	}
	return s
}
