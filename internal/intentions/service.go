package intentions

import (
	"context"
	"fmt"
	"log/slog"
)

// Service runs the request pipeline against an injected Model.
type Service struct {
	model  Model
	logger *slog.Logger
}

// NewService creates a new Service. The model handle is shared by all
// requests and is never replaced after construction.
func NewService(model Model, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{model: model, logger: logger}
}

// Handle invokes the model for a validated request and reshapes its output.
func (s *Service) Handle(ctx context.Context, req Request) (*Response, error) {
	out, err := s.model.Run(ctx, req.Responses)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelInvocation, err)
	}

	partnerParams, err := ParseParameters(out.PartnerParameters)
	if err != nil {
		return nil, err
	}

	choices, err := out.PartnerBehavior.Choices()
	if err != nil {
		return nil, err
	}

	participantParams := out.ParticipantParameters
	if err := CheckFinite("participant", participantParams); err != nil {
		return nil, err
	}
	if participantParams == nil {
		participantParams = []float64{}
	}

	s.logger.Debug("model output reshaped",
		"participant_id", req.ParticipantID,
		"trials", req.Responses.Len(),
		"partner_choices", len(choices),
	)

	return &Response{
		ParticipantID:         req.ParticipantID,
		ParticipantParameters: participantParams,
		PartnerParameters:     partnerParams,
		PartnerChoices:        choices,
	}, nil
}
