package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"push-dispatch-backend/internal/model"
)

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification *fcmNotification  `json:"notification,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	Webpush      *fcmWebpush       `json:"webpush,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

type fcmWebpush struct {
	Notification *fcmWebpushNotification `json:"notification,omitempty"`
	FCMOptions   *fcmOptions             `json:"fcm_options,omitempty"`
}

type fcmWebpushNotification struct {
	Icon string `json:"icon,omitempty"`
	Tag  string `json:"tag,omitempty"`
}

type fcmOptions struct {
	Link string `json:"link,omitempty"`
}

type fcmErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
		Details []struct {
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

// FCMClient sends through the FCM HTTP v1 API.
type FCMClient struct {
	endpoint string
	client   *http.Client
}

// NewFCMClient targets {baseURL}/v1/projects/{projectID}/messages:send.
func NewFCMClient(baseURL, projectID string, client *http.Client) *FCMClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &FCMClient{
		endpoint: fmt.Sprintf("%s/v1/projects/%s/messages:send", strings.TrimRight(baseURL, "/"), projectID),
		client:   client,
	}
}

// Send posts the message for reg's token with the bearer credential.
func (c *FCMClient) Send(ctx context.Context, reg *model.EndpointRegistration, msg *model.DeliveryMessage, bearer string) (*Response, error) {
	payload, err := json.Marshal(buildFCMRequest(reg.EndpointToken, msg))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	(&oauth2.Token{AccessToken: bearer, TokenType: "Bearer"}).SetAuthHeader(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return &Response{StatusCode: resp.StatusCode, Body: readBody(resp.Body)}, nil
}

func buildFCMRequest(token string, msg *model.DeliveryMessage) fcmRequest {
	m := fcmMessage{
		Token:        token,
		Notification: &fcmNotification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
	}
	if msg.Icon != "" || msg.Tag != "" || msg.Link != "" {
		m.Webpush = &fcmWebpush{}
		if msg.Icon != "" || msg.Tag != "" {
			m.Webpush.Notification = &fcmWebpushNotification{Icon: msg.Icon, Tag: msg.Tag}
		}
		if msg.Link != "" {
			m.Webpush.FCMOptions = &fcmOptions{Link: msg.Link}
		}
	}
	return fcmRequest{Message: m}
}

// reportsUnregistered reports whether an FCM error body says the token is
// no longer registered.
func reportsUnregistered(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	var eb fcmErrorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return false
	}
	for _, d := range eb.Error.Details {
		if d.ErrorCode == "UNREGISTERED" {
			return true
		}
	}
	return false
}

// rejectsCredential reports whether the gateway refused the bearer token
// itself rather than the endpoint.
func rejectsCredential(resp *Response) bool {
	if resp == nil {
		return false
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return true
	case http.StatusForbidden:
		var eb fcmErrorBody
		if err := json.Unmarshal(resp.Body, &eb); err != nil {
			return false
		}
		return eb.Error.Status == "UNAUTHENTICATED"
	}
	return false
}
