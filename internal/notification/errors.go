package notification

import (
	"fmt"

	"push-dispatch-backend/internal/model"
)

// EndpointInvalidError means the gateway permanently rejected the endpoint.
// The registration is removed when this is reported.
type EndpointInvalidError struct {
	StatusCode int
	Detail     string
}

func (e *EndpointInvalidError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("endpoint invalid (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("endpoint invalid (status %d): %s", e.StatusCode, e.Detail)
}

// TransientDeliveryError covers every other failed attempt, including network
// errors and an expired dispatch deadline. StatusCode is 0 when no response
// was received.
type TransientDeliveryError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *TransientDeliveryError) Error() string {
	switch {
	case e.Err != nil:
		return "delivery failed: " + e.Err.Error()
	case e.Detail != "":
		return fmt.Sprintf("delivery failed (status %d): %s", e.StatusCode, e.Detail)
	default:
		return fmt.Sprintf("delivery failed (status %d)", e.StatusCode)
	}
}

func (e *TransientDeliveryError) Unwrap() error { return e.Err }

// AllDeliveriesFailedError is returned when at least one endpoint was
// attempted and none succeeded. The per-endpoint results stay available.
type AllDeliveriesFailedError struct {
	Summary *model.DispatchSummary
}

func (e *AllDeliveriesFailedError) Error() string {
	return fmt.Sprintf("all %d deliveries failed", e.Summary.Attempted)
}
