package notification

import (
	"context"
	"io"

	"push-dispatch-backend/internal/model"
)

const maxResponseBody = 64 << 10

// Response is what a gateway answered for one endpoint.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport delivers one message to one endpoint. A non-nil error means no
// response was received; gateway rejections come back as a Response.
type Transport interface {
	Send(ctx context.Context, reg *model.EndpointRegistration, msg *model.DeliveryMessage, bearer string) (*Response, error)
}

func readBody(r io.Reader) []byte {
	body, _ := io.ReadAll(io.LimitReader(r, maxResponseBody))
	return body
}
