package notification

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"push-dispatch-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotificationWithContext(ctx, payload, sub, options)
}

// WebPushPayload is the flat JSON document a Web Push endpoint receives.
type WebPushPayload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Icon  string            `json:"icon,omitempty"`
	Link  string            `json:"link,omitempty"`
	Tag   string            `json:"tag,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

// BuildWebPushPayload encodes msg in the flat Web Push shape.
func BuildWebPushPayload(msg *model.DeliveryMessage) ([]byte, error) {
	return json.Marshal(WebPushPayload{
		Title: msg.Title,
		Body:  msg.Body,
		Icon:  msg.Icon,
		Link:  msg.Link,
		Tag:   msg.Tag,
		Data:  msg.Data,
	})
}

// WebPushTransport delivers directly to browser push services with VAPID.
type WebPushTransport struct {
	options *webpush.Options
	sender  NotificationSender
}

// NewWebPushTransport creates a transport signing with the given VAPID options.
func NewWebPushTransport(options *webpush.Options) *WebPushTransport {
	return &WebPushTransport{
		options: options,
		sender:  &WebPushSender{}, // Use the real sender by default
	}
}

// Send encrypts the payload for reg's keys. The bearer is not used.
func (t *WebPushTransport) Send(ctx context.Context, reg *model.EndpointRegistration, msg *model.DeliveryMessage, _ string) (*Response, error) {
	payload, err := BuildWebPushPayload(msg)
	if err != nil {
		return nil, err
	}

	sub := &webpush.Subscription{Endpoint: reg.EndpointToken}
	if reg.AuxiliaryKeys != nil {
		sub.Keys = webpush.Keys{
			P256dh: reg.AuxiliaryKeys.P256DH,
			Auth:   reg.AuxiliaryKeys.Auth,
		}
	}

	resp, err := t.sender.Send(ctx, payload, sub, t.options)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return &Response{StatusCode: resp.StatusCode, Body: readBody(resp.Body)}, nil
}
