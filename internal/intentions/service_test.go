package intentions

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ashureev/intentions-server/internal/fixture"
)

type fakeModel struct {
	out   Output
	err   error
	calls int
	got   Table
}

func (f *fakeModel) Run(_ context.Context, trials Table) (Output, error) {
	f.calls++
	f.got = trials
	return f.out, f.err
}

func TestService_Handle(t *testing.T) {
	model := &fakeModel{out: Output{
		ParticipantParameters: []float64{0.3, 1.7},
		PartnerParameters:     "0.1 0.2 0.3",
		PartnerBehavior: Behavior{
			Names:   []string{"ppt1", "par1", "ppt2", "par2", "Ac"},
			Columns: [][]any{{6.0, 9.0}, {6.0, 5.0}, {6.0, 9.0}, {1.0, 9.0}, {2.0, 2.0}},
		},
	}}
	svc := NewService(model, nil)

	req, err := DecodeRequest(bytes.NewReader(fixture.Basic()))
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}

	resp, err := svc.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if model.calls != 1 {
		t.Errorf("Expected 1 model call, got %d", model.calls)
	}
	if model.got.Len() != fixture.TrialCount {
		t.Errorf("Expected model to receive %d rows, got %d", fixture.TrialCount, model.got.Len())
	}
	if resp.ParticipantID != fixture.ParticipantID {
		t.Errorf("Expected participant %q, got %q", fixture.ParticipantID, resp.ParticipantID)
	}
	if len(resp.ParticipantParameters) != 2 {
		t.Errorf("Expected 2 participant params, got %v", resp.ParticipantParameters)
	}
	if len(resp.PartnerParameters) != 3 || resp.PartnerParameters[2] != 0.3 {
		t.Errorf("Unexpected partner params %v", resp.PartnerParameters)
	}
	if len(resp.PartnerChoices) != 2 {
		t.Fatalf("Expected 2 partner choices, got %d", len(resp.PartnerChoices))
	}
	if resp.PartnerChoices[1]["par2"] != 9.0 {
		t.Errorf("Expected second choice par2=9, got %v", resp.PartnerChoices[1]["par2"])
	}
}

func TestService_HandleModelError(t *testing.T) {
	cause := errors.New("object 'ppt2' not found")
	svc := NewService(&fakeModel{err: cause}, nil)

	_, err := svc.Handle(context.Background(), Request{ParticipantID: "a"})
	if !errors.Is(err, ErrModelInvocation) {
		t.Fatalf("Expected ErrModelInvocation, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Expected underlying cause to be preserved, got %v", err)
	}
}

func TestService_HandleBadOutput(t *testing.T) {
	svc := NewService(&fakeModel{out: Output{PartnerParameters: "1 nope"}}, nil)

	_, err := svc.Handle(context.Background(), Request{ParticipantID: "a"})
	if !errors.Is(err, ErrModelOutput) {
		t.Fatalf("Expected ErrModelOutput, got %v", err)
	}
}

func TestService_HandleNonFiniteParams(t *testing.T) {
	outputs := []Output{
		{ParticipantParameters: []float64{0.5, math.NaN()}},
		{ParticipantParameters: []float64{math.Inf(1)}},
		{PartnerParameters: "0.3 NaN Inf"},
	}
	for _, out := range outputs {
		svc := NewService(&fakeModel{out: out}, nil)
		if _, err := svc.Handle(context.Background(), Request{ParticipantID: "a"}); !errors.Is(err, ErrModelOutput) {
			t.Errorf("Expected ErrModelOutput for %+v, got %v", out, err)
		}
	}
}

func TestService_HandleNilParams(t *testing.T) {
	svc := NewService(&fakeModel{}, nil)

	resp, err := svc.Handle(context.Background(), Request{ParticipantID: "a"})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if resp.ParticipantParameters == nil || resp.PartnerParameters == nil || resp.PartnerChoices == nil {
		t.Errorf("Expected non-nil slices, got %+v", resp)
	}
}
