package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"push-dispatch-backend/internal/model"
	"push-dispatch-backend/internal/mw"
	"push-dispatch-backend/internal/store"
)

type putEndpointRequest struct {
	EndpointToken string               `json:"endpoint_token" binding:"required"`
	AuxiliaryKeys *model.AuxiliaryKeys `json:"auxiliary_keys"`
}

// PutEndpoint registers the caller's endpoint, taking it over if it was
// registered before.
func (h *Handler) PutEndpoint(c *gin.Context) {
	var req putEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.AuxiliaryKeys != nil && !req.AuxiliaryKeys.Complete() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "auxiliary_keys requires both p256dh and auth"})
		return
	}

	reg, err := h.registry.Upsert(c.Request.Context(), req.EndpointToken, mw.SubscriberID(c), req.AuxiliaryKeys)
	if err != nil {
		logrus.WithError(err).Error("failed to register endpoint")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register endpoint"})
		return
	}

	c.JSON(http.StatusCreated, reg)
}

type deleteEndpointRequest struct {
	EndpointToken string `json:"endpoint_token" binding:"required"`
}

// DeleteEndpoint removes the caller's endpoint. Tokens owned by someone else
// are left alone and the answer is the same.
func (h *Handler) DeleteEndpoint(c *gin.Context) {
	var req deleteEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.registry.DeleteByToken(c.Request.Context(), req.EndpointToken, mw.SubscriberID(c))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logrus.WithError(err).Error("failed to delete endpoint")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete endpoint"})
		return
	}

	c.Status(http.StatusNoContent)
}

// ListEndpoints returns the caller's registrations.
func (h *Handler) ListEndpoints(c *gin.Context) {
	subscriberID := mw.SubscriberID(c)
	if subscriberID == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "subscriber identity required"})
		return
	}

	regs, err := h.registry.ListBySubscribers(c.Request.Context(), []string{*subscriberID})
	if err != nil {
		logrus.WithError(err).Error("failed to list endpoints")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list endpoints"})
		return
	}
	if regs == nil {
		regs = []model.EndpointRegistration{}
	}

	c.JSON(http.StatusOK, regs)
}
