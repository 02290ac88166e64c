package api

import (
	"errors"
	"net/http"

	"academix-api/internal/errdefs"
	"academix-api/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var statusByError = []struct {
	err    error
	status int
}{
	{errdefs.ErrUnauthenticated, http.StatusUnauthorized},
	{errdefs.ErrPermissionDenied, http.StatusForbidden},
	{errdefs.ErrInvalidArgument, http.StatusBadRequest},
	{errdefs.ErrNotFound, http.StatusNotFound},
	{errdefs.ErrAlreadyExists, http.StatusConflict},
	{errdefs.ErrConflict, http.StatusConflict},
	{errdefs.ErrPaymentGateway, http.StatusBadGateway},
	{errdefs.ErrStore, http.StatusInternalServerError},
}

func statusFor(err error) int {
	for _, s := range statusByError {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// respondError writes {"error": kind, "message": ...}. Server-side failures
// keep their details in the log only.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()

	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		util.GetLogger().Error("Request error",
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		message = http.StatusText(status)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{
		"error":   errdefs.Kind(err),
		"message": message,
	})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   errdefs.Kind(errdefs.ErrInvalidArgument),
		"message": err.Error(),
	})
}
