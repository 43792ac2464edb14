package api

import (
	"errors"
	"net/http"
	"strings"

	"kitchenops/server/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	headerActor     = "X-Actor"
	headerActorRole = "X-Actor-Role"
	roleAdmin       = "admin"
)

// errorStatus maps service errors onto HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrRecipeLocked):
		return http.StatusForbidden
	case errors.Is(err, services.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, message string, err error) {
	c.JSON(errorStatus(err), gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}

// actorFrom reads the caller identity set by the upstream gateway
func actorFrom(c *gin.Context) services.Actor {
	return services.Actor{
		Name:       strings.TrimSpace(c.GetHeader(headerActor)),
		Privileged: strings.EqualFold(c.GetHeader(headerActorRole), roleAdmin),
	}
}
