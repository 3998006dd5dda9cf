package handlers

import (
	"io"
	"net/http"

	"pcstyle-auth/internal/config"
	"pcstyle-auth/internal/identity"
	"pcstyle-auth/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	sync          *services.SyncService
	verifier      *identity.WebhookVerifier
	allowUnsigned bool
}

// NewWebhookHandler verifies deliveries with the configured secret. Without a
// secret, unsigned deliveries are only accepted when allowUnsigned is set
// (debug mode); otherwise every delivery is refused.
func NewWebhookHandler(sync *services.SyncService, cfg config.WorkOSConfig, allowUnsigned bool) *WebhookHandler {
	h := &WebhookHandler{sync: sync, allowUnsigned: allowUnsigned}
	if cfg.WebhookSecret != "" {
		h.verifier = identity.NewWebhookVerifier(cfg.WebhookSecret, cfg.WebhookTolerance)
	}
	return h
}

// Receive verifies and applies a provider webhook. A 500 makes the provider retry.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}
	if len(body) > maxWebhookBody {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Payload too large"})
		return
	}

	switch {
	case h.verifier != nil:
		if err := h.verifier.Verify(body, c.GetHeader(identity.SignatureHeader)); err != nil {
			log.Warn().Err(err).Msg("rejected webhook")
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
			return
		}
	case !h.allowUnsigned:
		log.Error().Msg("webhook secret not configured, refusing delivery")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Webhook verification not configured"})
		return
	}

	ev, err := identity.ParseEvent(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	if err := h.sync.HandleEvent(c.Request.Context(), ev); err != nil {
		log.Error().Err(err).Str("event", string(ev.Kind)).Str("event_id", ev.ID).Msg("webhook processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
