// Package ops serves the processor's operational HTTP surface: liveness,
// readiness, and batch status lookup. It runs alongside the poll loop so
// the process stays observable while batches are in flight.
package ops

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qbui/audio-processor/internal/storage"
)

// BatchStatusReader looks up the current state of a batch. Implemented by
// the Postgres status store; nil when the status store has no read side.
type BatchStatusReader interface {
	GetBatchStatus(ctx context.Context, batchID string) (*storage.BatchStatus, error)
}

// Dependencies holds everything the ops routes need
type Dependencies struct {
	Logger  *slog.Logger
	Service string
	Version string

	// Ready reports whether downstream dependencies are reachable.
	Ready func(ctx context.Context) error

	// Batches is optional; without it the lookup endpoint reports 501.
	Batches BatchStatusReader
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": deps.Service,
			"version": deps.Version,
		})
	})

	r.GET("/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "alive"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if deps.Ready != nil {
			if err := deps.Ready(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "not ready",
					"error":  err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/batches/:batch_id", func(c *gin.Context) {
		if deps.Batches == nil {
			c.JSON(http.StatusNotImplemented, gin.H{
				"error": "batch lookup is not available with this status store",
			})
			return
		}

		status, err := deps.Batches.GetBatchStatus(c.Request.Context(), c.Param("batch_id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
			return
		}
		c.JSON(http.StatusOK, status)
	})

	return r
}
