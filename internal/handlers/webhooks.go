package handlers

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"signalcast/api_scheduler/internal/delivery"
)

// CreateWebhook registers a new delivery endpoint. A secret is generated when
// the caller does not supply one; it is returned once in the create response
// and never again.
func CreateWebhook(c *gin.Context) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	reg := req.toRegistration()
	generatedSecret := ""
	if reg.Secret == "" {
		secret, err := generateSecret()
		if err != nil {
			logger.WithError(err).Error("Failed to generate webhook secret")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate secret"})
			return
		}
		reg.Secret = secret
		generatedSecret = secret
	}

	if err := delivery.ValidateRegistration(reg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := regStore.Create(c.Request.Context(), reg); err != nil {
		logger.WithError(err).Error("Failed to create webhook registration")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create webhook"})
		return
	}
	regCache.Invalidate()

	resp := gin.H{"webhook": reg}
	if generatedSecret != "" {
		resp["secret"] = generatedSecret
	}
	c.JSON(http.StatusCreated, resp)
}

// ListWebhooks returns all registrations.
func ListWebhooks(c *gin.Context) {
	regs, err := regStore.List(c.Request.Context())
	if err != nil {
		logger.WithError(err).Error("Failed to list webhook registrations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list webhooks"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"webhooks": regs})
}

// GetWebhook returns one registration.
func GetWebhook(c *gin.Context) {
	reg, err := regStore.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Webhook not found"})
			return
		}
		logger.WithError(err).Error("Failed to get webhook registration")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get webhook"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"webhook": reg})
}

// UpdateWebhook rewrites a registration. An empty secret in the request keeps
// the existing one.
func UpdateWebhook(c *gin.Context) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	existing, err := regStore.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Webhook not found"})
			return
		}
		logger.WithError(err).Error("Failed to load webhook registration")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load webhook"})
		return
	}

	reg := req.toRegistration()
	reg.ID = existing.ID
	if reg.Secret == "" {
		reg.Secret = existing.Secret
	}
	if err := delivery.ValidateRegistration(reg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := regStore.Update(c.Request.Context(), reg); err != nil {
		logger.WithError(err).Error("Failed to update webhook registration")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update webhook"})
		return
	}
	regCache.Invalidate()

	c.JSON(http.StatusOK, gin.H{"webhook": reg})
}

// DeleteWebhook removes a registration and its delivery history.
func DeleteWebhook(c *gin.Context) {
	if err := regStore.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Webhook not found"})
			return
		}
		logger.WithError(err).Error("Failed to delete webhook registration")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete webhook"})
		return
	}
	regCache.Invalidate()

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// GetWebhookDeliveries returns a registration's delivery history for audit.
func GetWebhookDeliveries(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	recs, err := deliveryStore.ListByRegistration(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		logger.WithError(err).Error("Failed to list webhook deliveries")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list deliveries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": recs})
}

// GetWebhookStats returns delivery outcome aggregates for a registration.
func GetWebhookStats(c *gin.Context) {
	stats, err := deliveryStore.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		logger.WithError(err).Error("Failed to aggregate webhook delivery stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
