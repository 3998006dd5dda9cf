package handlers

import (
	"errors"
	"net/http"

	"pcstyle-auth/internal/auth"
	"pcstyle-auth/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// respondError maps service errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		if _, ok := auth.FromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrPreconditionFailed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// principal returns the verified caller, answering 401 when there is none.
func principal(c *gin.Context) (auth.Principal, bool) {
	p, ok := auth.FromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
	}
	return p, ok
}
