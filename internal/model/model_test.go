package model

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ashureev/intentions-server/internal/intentions"
)

func TestDecodeOutput_IgnoresChatter(t *testing.T) {
	stdout := []byte("Loading model...\n[1] 0.5\n" +
		`{"participantParameters":[1,2],"partnerParameters":"3 4","partnerBehavior":{"names":["a"],"columns":[[5,6]]}}` +
		"\n\n")

	out, err := decodeOutput(stdout)
	if err != nil {
		t.Fatalf("decodeOutput failed: %v", err)
	}
	if out.PartnerParameters != "3 4" {
		t.Errorf("Expected partner params %q, got %q", "3 4", out.PartnerParameters)
	}
	if len(out.PartnerBehavior.Names) != 1 || out.PartnerBehavior.Names[0] != "a" {
		t.Errorf("Unexpected behaviour names %v", out.PartnerBehavior.Names)
	}
}

func TestDecodeOutput_Errors(t *testing.T) {
	for _, stdout := range []string{"", "   \n ", "Error: not json"} {
		_, err := decodeOutput([]byte(stdout))
		if !errors.Is(err, intentions.ErrModelOutput) {
			t.Errorf("Expected ErrModelOutput for %q, got %v", stdout, err)
		}
	}
}

func TestDecodeOutput_NAParameter(t *testing.T) {
	stdout := `{"participantParameters":[0.5,null],"partnerParameters":"1 2","partnerBehavior":{"names":[],"columns":[]}}`

	out, err := decodeOutput([]byte(stdout))
	if !errors.Is(err, intentions.ErrModelOutput) {
		t.Fatalf("Expected ErrModelOutput, got params=%v err=%v", out.ParticipantParameters, err)
	}
	if !strings.Contains(err.Error(), "parameter 1") {
		t.Errorf("Expected error to name the NA parameter, got %v", err)
	}
}

func TestDecodeOutput_NoParameters(t *testing.T) {
	out, err := decodeOutput([]byte(`{"participantParameters":[],"partnerParameters":"","partnerBehavior":{"names":[],"columns":[]}}`))
	if err != nil {
		t.Fatalf("decodeOutput failed: %v", err)
	}
	if out.ParticipantParameters == nil || len(out.ParticipantParameters) != 0 {
		t.Errorf("Expected empty parameters, got %#v", out.ParticipantParameters)
	}
}

func TestDriverCommand(t *testing.T) {
	cmd := driverCommand("/usr/bin/Rscript", "/model/functions.R")

	if len(cmd) != 4 || cmd[0] != "/usr/bin/Rscript" || cmd[1] != "-e" || cmd[3] != "/model/functions.R" {
		t.Fatalf("Unexpected command %q", cmd)
	}
	if !strings.Contains(cmd[2], "model_wrapper(input)") {
		t.Error("Expected embedded driver to call model_wrapper")
	}
}

func TestDriverScript_FactorLabels(t *testing.T) {
	if !strings.Contains(driverScript, "is.factor(col)") || !strings.Contains(driverScript, "as.character(col)") {
		t.Error("Expected driver to convert factor columns to their labels")
	}
}

func TestInvocationID(t *testing.T) {
	ctx := context.Background()
	if got := InvocationID(ctx); got != "" {
		t.Errorf("Expected empty invocation id, got %q", got)
	}
	if got := InvocationID(WithInvocationID(ctx, "abc")); got != "abc" {
		t.Errorf("Expected invocation id abc, got %q", got)
	}
}

func TestEncodeTrials(t *testing.T) {
	payload, err := encodeTrials(sampleTable())
	if err != nil {
		t.Fatalf("encodeTrials failed: %v", err)
	}
	if !strings.HasPrefix(string(payload), `[{"ID":"NA","ppt1":6,"par1":6,`) {
		t.Errorf("Expected ordered records, got %s", payload)
	}
}
