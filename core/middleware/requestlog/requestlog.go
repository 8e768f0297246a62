package requestlog

import (
	"time"

	"listing-harvester/core/logger"
	"listing-harvester/core/metrics"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// New logs every request with its ray id and counts it in m. m may be nil.
func New(log *zap.Logger, m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		l := logger.WithRayID(log, c)

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
			l.Error("Request error", zap.String("path", c.Path()), zap.Error(err))
		}
		m.ObserveRequest(c.Method(), c.Route().Path, status)
		l.Info("Request handled",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("ip", c.IP()),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)))
		return err
	}
}
