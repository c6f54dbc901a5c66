package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"push-dispatch-backend/internal/model"
)

// StatusError is a non-2xx answer from the registry API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("registry returned status %d: %s", e.StatusCode, e.Body)
}

type endpointRequest struct {
	EndpointToken string               `json:"endpoint_token"`
	AuxiliaryKeys *model.AuxiliaryKeys `json:"auxiliary_keys,omitempty"`
}

// HTTPRegistry is a RegistryClient for the /api/endpoints JSON API. The
// subscriber identity travels in a header set on every request.
type HTTPRegistry struct {
	baseURL      string
	header       string
	subscriberID string
	client       *http.Client
}

// NewHTTPRegistry creates a client. A nil client uses http.DefaultClient.
func NewHTTPRegistry(baseURL, subscriberHeader, subscriberID string, client *http.Client) *HTTPRegistry {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRegistry{
		baseURL:      strings.TrimRight(baseURL, "/"),
		header:       subscriberHeader,
		subscriberID: subscriberID,
		client:       client,
	}
}

// Register upserts the endpoint for the subscriber.
func (r *HTTPRegistry) Register(ctx context.Context, token string, keys *model.AuxiliaryKeys) error {
	_, err := r.do(ctx, http.MethodPut, endpointRequest{EndpointToken: token, AuxiliaryKeys: keys})
	return err
}

// Unregister deletes the subscriber's endpoint. A missing endpoint is not an error.
func (r *HTTPRegistry) Unregister(ctx context.Context, token string) error {
	_, err := r.do(ctx, http.MethodDelete, endpointRequest{EndpointToken: token})
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

// List returns the subscriber's registrations.
func (r *HTTPRegistry) List(ctx context.Context) ([]model.EndpointRegistration, error) {
	body, err := r.do(ctx, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	var regs []model.EndpointRegistration
	if err := json.Unmarshal(body, &regs); err != nil {
		return nil, errors.Wrap(err, "decode registrations")
	}
	return regs, nil
}

func (r *HTTPRegistry) do(ctx context.Context, method string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "marshal request")
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+"/api/endpoints", reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.subscriberID != "" {
		req.Header.Set(r.header, r.subscriberID)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "registry request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read registry response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
