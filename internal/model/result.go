package model

// Outcome classifies a single send attempt.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeTransient Outcome = "transient"
)

// DispatchResult is one attempted endpoint within a dispatch call.
type DispatchResult struct {
	EndpointToken string    `json:"endpoint_token"`
	Transport     Transport `json:"transport"`
	Success       bool      `json:"success"`
	StatusCode    int       `json:"status_code"`
	Outcome       Outcome   `json:"outcome"`
	Error         string    `json:"error,omitempty"`
}

// DispatchSummary aggregates every result of a dispatch call.
type DispatchSummary struct {
	ID        string           `json:"id"`
	Attempted int              `json:"attempted"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Results   []DispatchResult `json:"results"`
}
