package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Paths served by RegisterRoutes.
const (
	LivenessPath  = "/healthz"
	ReadinessPath = "/readyz"
)

// LivenessHandler returns a handler for liveness checks.
func (c *Checker) LivenessHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, c.Liveness())
	}
}

// ReadinessHandler returns a handler for readiness checks. It answers 503
// when any check fails.
func (c *Checker) ReadinessHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		report := c.Readiness(ctx.Request.Context())

		status := http.StatusOK
		if report.Status != StatusOK {
			status = http.StatusServiceUnavailable
		}
		ctx.JSON(status, report)
	}
}

// RegisterRoutes serves both endpoints on r.
func (c *Checker) RegisterRoutes(r gin.IRoutes) {
	r.GET(LivenessPath, c.LivenessHandler())
	r.GET(ReadinessPath, c.ReadinessHandler())
}
