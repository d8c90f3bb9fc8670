package routers

import (
	"github.com/gin-gonic/gin"

	"etcapply/internal/server/handlers/apply"
	"etcapply/internal/server/middlewares"
	"etcapply/pkg/logger"
)

// SetupRoutes 配置所有路由
func SetupRoutes(applyHandler *apply.ApplyHandler, log logger.Logger) *gin.Engine {
	if log == nil {
		log = logger.NewNop()
	}
	r := gin.New()

	r.Use(middlewares.CORS())
	r.Use(middlewares.Logger(log))
	r.Use(middlewares.ErrorHandler(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "etcapply",
			"message": "Service is running",
		})
	})

	v1 := r.Group("/api/v1")
	{
		v1.GET("/defaults", applyHandler.Defaults)
		v1.POST("/four-elements", applyHandler.ParseFourElements)
		v1.POST("/stock-in", applyHandler.StockIn)

		applications := v1.Group("/applications")
		{
			applications.POST("", applyHandler.Create)
			applications.GET("/:id", applyHandler.Get)
			applications.GET("/:id/otp", applyHandler.GetCode)
			applications.POST("/:id/otp", applyHandler.Confirm)
			applications.POST("/:id/cancel", applyHandler.Cancel)
			applications.GET("/:id/events", applyHandler.Events)
		}
	}

	return r
}
