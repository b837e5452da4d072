package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ashureev/intentions-server/internal/fixture"
)

var responseKeys = []string{"participantID", "participantParameters", "partnerParameters", "partnerChoices"}

type probe struct {
	name   string
	body   []byte
	status int
	check  func(body []byte) error
}

func probes(invalidStatus int) []probe {
	return []probe{
		{name: "basic", body: fixture.Basic(), status: http.StatusOK, check: checkBasic},
		{name: "no_id", body: fixture.NoID(), status: invalidStatus},
		{name: "no_responses", body: fixture.NoResponses(), status: invalidStatus},
		{name: "invalid_responses", body: fixture.InvalidResponses(), status: invalidStatus},
	}
}

func (p probe) run(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(p.body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != p.status {
		return fmt.Errorf("status %d, want %d: %s", resp.StatusCode, p.status, body)
	}
	if p.check != nil {
		return p.check(body)
	}
	return nil
}

func checkBasic(body []byte) error {
	var got map[string]json.RawMessage
	if err := json.Unmarshal(body, &got); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	for _, key := range responseKeys {
		if _, ok := got[key]; !ok {
			return fmt.Errorf("response missing %s", key)
		}
	}

	var id string
	if err := json.Unmarshal(got["participantID"], &id); err != nil {
		return fmt.Errorf("participantID: %w", err)
	}
	if id != fixture.ParticipantID {
		return fmt.Errorf("participantID %q, want %q", id, fixture.ParticipantID)
	}

	var choices []map[string]any
	if err := json.Unmarshal(got["partnerChoices"], &choices); err != nil {
		return fmt.Errorf("partnerChoices: %w", err)
	}
	if len(choices) == 0 {
		return errors.New("partnerChoices is empty")
	}
	return nil
}
