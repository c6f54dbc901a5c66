package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"push-dispatch-backend/internal/model"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

func TestWebPushTransport_Send(t *testing.T) {
	options := &webpush.Options{Subscriber: "mailto:ops@example.com", TTL: 60}
	transport := NewWebPushTransport(options)

	reg := &model.EndpointRegistration{
		EndpointToken: "https://push.example.com/send/abc",
		AuxiliaryKeys: &model.AuxiliaryKeys{P256DH: "test_p256dh", Auth: "test_auth"},
	}
	msg := &model.DeliveryMessage{
		Title: "Build finished",
		Body:  "main is green",
		Link:  "/builds/42",
		Tag:   "build-42",
		Data:  map[string]string{"build": "42"},
	}

	transport.sender = &mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error) {
			assert.Equal(t, "https://push.example.com/send/abc", sub.Endpoint)
			assert.Equal(t, "test_p256dh", sub.Keys.P256dh)
			assert.Equal(t, "test_auth", sub.Keys.Auth)
			assert.Same(t, options, opts)

			var decoded WebPushPayload
			require.NoError(t, json.Unmarshal(payload, &decoded))
			assert.Equal(t, "Build finished", decoded.Title)
			assert.Equal(t, "main is green", decoded.Body)
			assert.Equal(t, "/builds/42", decoded.Link)
			assert.Equal(t, "build-42", decoded.Tag)
			assert.Equal(t, map[string]string{"build": "42"}, decoded.Data)

			return &http.Response{
				StatusCode: http.StatusCreated,
				Body:       io.NopCloser(bytes.NewBufferString("")),
			}, nil
		},
	}

	resp, err := transport.Send(context.Background(), reg, msg, "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestWebPushTransport_Send_Expired(t *testing.T) {
	transport := NewWebPushTransport(&webpush.Options{})
	transport.sender = &mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusGone,
				Body:       io.NopCloser(bytes.NewBufferString("push subscription has unsubscribed or expired")),
			}, nil
		},
	}

	reg := &model.EndpointRegistration{EndpointToken: "https://push.example.com/expired", AuxiliaryKeys: webPushKeys()}
	resp, err := transport.Send(context.Background(), reg, testMessage, "")
	require.NoError(t, err)

	outcome, _ := classify(resp, nil)
	assert.Equal(t, model.OutcomeInvalid, outcome)
}
