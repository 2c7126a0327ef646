package handlers

import (
	"context"
	goerrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/turtacn/keytrust/internal/application/dto"
	"github.com/turtacn/keytrust/pkg/constants"
	"github.com/turtacn/keytrust/pkg/errors"
	"github.com/turtacn/keytrust/pkg/logger"
)

const headerRequestID = "X-Request-ID"

// RequestIDMiddleware propagates or assigns a request id.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(string(constants.ContextKeyRequestID), id)
		c.Header(headerRequestID, id)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), constants.ContextKeyRequestID, id))
		c.Next()
	}
}

// LoggingMiddleware logs incoming requests.
func LoggingMiddleware(log logger.Logger) gin.HandlerFunc {
	log = log.WithComponent("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Int64("latency_ms", time.Since(start).Milliseconds()),
			logger.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn(c.Request.Context(), "Request processed", fields...)
			return
		}
		log.Info(c.Request.Context(), "Request processed", fields...)
	}
}

// RecoveryMiddleware recovers from panics.
func RecoveryMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error(c.Request.Context(), "Panic recovered", goerrors.New("panic"), logger.String("panic", fmt.Sprint(rec)))
				c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ErrorResponse(errors.ErrInternal, traceID(c)))
			}
		}()
		c.Next()
	}
}

// traceID returns the trace id set by the observability middleware, if any.
func traceID(c *gin.Context) string {
	return c.GetString(string(constants.ContextKeyTraceID))
}

// sendError writes err in the API envelope with its mapped status.
func sendError(c *gin.Context, err error) {
	c.JSON(errors.HTTPStatusOf(err), dto.ErrorResponse(err, traceID(c)))
}

// sendOK writes data in the API envelope.
func sendOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, dto.SuccessResponse(data, traceID(c)))
}
