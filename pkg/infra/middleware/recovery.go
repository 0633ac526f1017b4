package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/utils/response"
)

// RecoveryConfig defines the config for Recovery middleware.
type RecoveryConfig struct {
	// EnableStackTrace includes stack trace in error response (for development).
	EnableStackTrace bool

	// OnPanic is called when a panic occurs.
	OnPanic func(c *gin.Context, err interface{}, stack []byte)
}

// Recovery returns a middleware that converts panics into the error envelope.
func Recovery() gin.HandlerFunc {
	return RecoveryWithConfig(RecoveryConfig{})
}

// RecoveryWithConfig returns a Recovery middleware with custom config.
func RecoveryWithConfig(config RecoveryConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			stack := debug.Stack()

			logger.Errorw("panic recovered",
				"path", c.Request.URL.Path,
				"request_id", GetRequestID(c.Request.Context()),
				"panic", fmt.Sprint(r),
				"stack", string(stack),
			)
			if config.OnPanic != nil {
				config.OnPanic(c, r, stack)
			}

			msg := fmt.Sprintf("panic: %v", r)
			if config.EnableStackTrace {
				msg = fmt.Sprintf("panic: %v\n%s", r, stack)
			}
			response.Fail(c, errors.ErrInternal.WithMessage(msg))
			c.Abort()
		}()
		c.Next()
	}
}
