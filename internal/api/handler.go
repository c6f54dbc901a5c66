package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"push-dispatch-backend/internal/notification"
	"push-dispatch-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	registry   store.Registry
	dispatcher notification.Dispatcher
	pool       *notification.WorkerPool
	webpush    *webpush.Options
}

// NewHandler creates a new API handler. pool may be nil, in which case async
// sends run inline.
func NewHandler(registry store.Registry, dispatcher notification.Dispatcher, pool *notification.WorkerPool, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		pool:       pool,
		webpush:    webpushOptions,
	}
}
