package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"push-dispatch-backend/internal/credential"
	"push-dispatch-backend/internal/model"
	"push-dispatch-backend/internal/notification"
)

type sendNotificationRequest struct {
	SubscriberIDs []string       `json:"subscriber_ids"`
	EndpointToken string         `json:"endpoint_token"`
	Title         string         `json:"title" binding:"required"`
	Body          string         `json:"body"`
	Link          string         `json:"link"`
	Icon          string         `json:"icon"`
	Tag           string         `json:"tag"`
	Data          map[string]any `json:"data"`
	Async         bool           `json:"async"`
}

// SendNotification dispatches a message to a token, a set of subscribers or,
// when neither is given, every registered endpoint.
func (h *Handler) SendNotification(c *gin.Context) {
	var req sendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.EndpointToken != "" && len(req.SubscriberIDs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint_token and subscriber_ids are mutually exclusive"})
		return
	}

	target := model.NewTarget(req.SubscriberIDs, req.EndpointToken)
	msg := model.DeliveryMessage{
		Title: req.Title,
		Body:  req.Body,
		Link:  req.Link,
		Icon:  req.Icon,
		Tag:   req.Tag,
		Data:  model.CoerceData(req.Data),
	}
	if err := model.ValidateData(msg.Data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Async && h.pool != nil {
		if err := h.pool.TryDispatch(notification.Job{Target: target, Message: msg}); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
		return
	}

	summary, err := h.dispatcher.Dispatch(c.Request.Context(), target, &msg)
	if err != nil {
		var allFailed *notification.AllDeliveriesFailedError
		var credErr *credential.Error
		switch {
		case errors.As(err, &allFailed):
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "summary": allFailed.Summary})
		case errors.As(err, &credErr):
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		default:
			logrus.WithError(err).Error("dispatch failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "dispatch failed"})
		}
		return
	}

	c.JSON(http.StatusOK, summary)
}
