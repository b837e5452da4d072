// Package fixture holds the reference intentions request used by the probe
// tool and the tests.
package fixture

import (
	_ "embed"
	"encoding/json"
)

// ParticipantID is the participant id sent by every reference probe.
const ParticipantID = "test1234"

//go:embed trials.json
var trials []byte

// Trials returns the 24 reference trial records as raw JSON.
func Trials() json.RawMessage {
	out := make(json.RawMessage, len(trials))
	copy(out, trials)
	return out
}

// TrialCount is the number of records in Trials.
const TrialCount = 24

// Basic returns a well formed request body.
func Basic() []byte {
	return mustMarshal(map[string]any{
		"participantID":        ParticipantID,
		"participantResponses": Trials(),
	})
}

// NoID returns a request body without participantID.
func NoID() []byte {
	return mustMarshal(map[string]any{
		"participantResponses": Trials(),
	})
}

// NoResponses returns a request body without participantResponses.
func NoResponses() []byte {
	return mustMarshal(map[string]any{
		"participantID": ParticipantID,
	})
}

// InvalidResponses returns a request whose single record lacks ppt2 and par2.
func InvalidResponses() []byte {
	return []byte(`{"participantID":"` + ParticipantID + `","participantResponses":[{"ID":"NA","Trial":1,"ppt1":2,"par1":3,"Ac":1,"Phase":1}]}`)
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic("fixture: " + err.Error())
	}
	return b
}
