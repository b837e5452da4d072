package intentions

import "errors"

var (
	// ErrMissingField reports an absent or null required request field.
	ErrMissingField = errors.New("missing required field")
	// ErrMalformedRequest reports a request body that is not the expected shape.
	ErrMalformedRequest = errors.New("malformed request")
	// ErrMalformedResponses reports trial records the model cannot consume.
	ErrMalformedResponses = errors.New("malformed participant responses")
	// ErrModelInvocation reports a failure raised by the model itself.
	ErrModelInvocation = errors.New("model invocation failed")
	// ErrModelOutput reports model output that cannot be reshaped.
	ErrModelOutput = errors.New("malformed model output")
)

// IsInvalidRequest reports whether err was caused by the caller's input.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrMalformedRequest) ||
		errors.Is(err, ErrMalformedResponses)
}
