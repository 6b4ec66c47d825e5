package ginlog

import (
	"github.com/gin-gonic/gin"
	uuid "github.com/satori/go.uuid"
)

// GetOrCreateRequestID returns the request id stored on the gin context,
// falling back to the inbound header and finally to a fresh UUID.
func GetOrCreateRequestID(ctx *gin.Context) string {
	if id, ok := ctx.Get(RequestIDKey); ok {
		return id.(string)
	}

	requestID := ctx.GetHeader(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewV4().String()
	}
	ctx.Set(RequestIDKey, requestID)
	return requestID
}
