package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// breakerReporter is satisfied by *linepay.Adapter.
type breakerReporter interface {
	BreakerState() gobreaker.State
}

func setupRouter(provider breakerReporter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(serviceName))
	router.GET("/healthz", healthHandler(provider))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

// healthHandler reports unhealthy while the provider circuit breaker is open.
func healthHandler(provider breakerReporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := provider.BreakerState()
		status := http.StatusOK
		health := "ok"
		if state == gobreaker.StateOpen {
			status = http.StatusServiceUnavailable
			health = "degraded"
		}
		c.JSON(status, gin.H{"status": health, "breaker": state.String()})
	}
}
