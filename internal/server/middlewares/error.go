package middlewares

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"etcapply/pkg/ginx"
	"etcapply/pkg/logger"
)

// ErrorHandler 统一错误处理：捕获 panic，处理器通过 c.Error 挂上的错误按类别返回
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.NewNop()
	}
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf(c.Request.Context(), "[Server] Panic on %s %s: %v", c.Request.Method, c.Request.URL.Path, r)
				c.Abort()
				ginx.InternalError(c, fmt.Sprintf("internal error: %v", r))
			}
		}()

		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			ginx.FromError(c, c.Errors.Last().Err)
		}
	}
}
