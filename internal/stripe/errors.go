package stripe

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for backend-rejected amounts. Anything else coming back
// from the API surfaces as an opaque *APIError.
var (
	// ErrAmountInvalid means the backend could not represent the requested
	// amount as a valid integer.
	ErrAmountInvalid = errors.New("amount rejected as invalid")
	// ErrAmountTooSmall means the amount is below the backend's minimum
	// payable threshold.
	ErrAmountTooSmall = errors.New("amount below payable minimum")
)

const codeAmountTooSmall = "amount_too_small"

// APIError carries the decoded Stripe error payload for failures that do not
// map to a known rejection.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Param      string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stripe api error (status %d, type %s, code %s): %s", e.StatusCode, e.Type, e.Code, e.Message)
}

type errorEnvelope struct {
	Err struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Param   string `json:"param"`
		Message string `json:"message"`
	} `json:"error"`
}

// mapAPIError classifies a decoded API error into the rejection taxonomy.
func mapAPIError(statusCode int, envelope *errorEnvelope) error {
	code := envelope.Err.Code
	param := envelope.Err.Param
	message := envelope.Err.Message

	switch {
	case code == codeAmountTooSmall:
		return fmt.Errorf("%w: %s", ErrAmountTooSmall, message)
	case param == "unit_amount", strings.Contains(message, "Invalid integer"):
		return fmt.Errorf("%w: %s", ErrAmountInvalid, message)
	}

	return &APIError{
		StatusCode: statusCode,
		Type:       envelope.Err.Type,
		Code:       code,
		Param:      param,
		Message:    message,
	}
}
