package http_api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.GET("/healthz", s.healthz)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	subs := s.router.Group("/api/v1/subscriptions/:userId")
	subs.GET("", s.getSubscription)
	subs.GET("/status", s.subscriptionStatus)
	subs.POST("/verify", s.verifyPayment)
	subs.POST("/cancel", s.cancelSubscription)
	subs.POST("/reactivate", s.reactivateSubscription)

	admin := s.router.Group("/api/v1/admin", s.adminAuth())
	admin.GET("/subscription-stats", s.subscriptionStats)
	admin.POST("/run-monthly-check", s.runMonthlyCheck)
}
