package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hookrelay/hookrelay/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint reporting dependency status
	r.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		dbStatus := "healthy"
		rabbitStatus := "healthy"

		if deps.DBClient != nil {
			if err := deps.DBClient.HealthCheck(c.Request.Context()); err != nil {
				dbStatus = "unhealthy"
				status = http.StatusServiceUnavailable
			}
		}

		if deps.RabbitClient != nil && !deps.RabbitClient.IsConnected() {
			rabbitStatus = "unhealthy"
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"service":  "webhook-api-service",
			"database": dbStatus,
			"rabbitmq": rabbitStatus,
		})
	})

	// Initialize webhook handler
	webhookHandler := handler.NewWebhookHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		webhooks := v1.Group("/webhooks")
		{
			// POST /api/v1/webhooks - Accept a payment event for delivery
			webhooks.POST("", webhookHandler.CreateWebhook)

			// GET /api/v1/webhooks - List deliveries with filtering and pagination
			webhooks.GET("", webhookHandler.ListDeliveries)

			// GET /api/v1/webhooks/summary - Delivery counts grouped by status
			webhooks.GET("/summary", webhookHandler.GetSummary)

			// GET /api/v1/webhooks/:delivery_id - Get delivery state
			webhooks.GET("/:delivery_id", webhookHandler.GetDelivery)
		}
	}

	return r
}
