package api

import (
	"github.com/felixgeelhaar/carepay/internal/app"
)

// NewServerFromContainer wires the callback handler and routes from c.
func NewServerFromContainer(cfg ServerConfig, c *app.Container) *Server {
	handler := NewPaymeHandler(PaymeHandlerConfig{
		Create:       c.CreateTransactionHandler,
		Perform:      c.PerformTransactionHandler,
		Cancel:       c.CancelTransactionHandler,
		CheckPerform: c.CheckPerformHandler,
		Check:        c.CheckTransactionHandler,
		SecretKey:    c.Config.PaymeSecretKey,
		Metrics:      c.Metrics,
		Logger:       c.Logger,
	})

	return NewServer(cfg, handler, ServerDeps{
		Limiter:        c.Limiter,
		TrustedProxies: c.Config.TrustedProxies,
		Health:         c.Health,
		MetricsHandler: c.Metrics.Handler(),
		Metrics:        c.Metrics,
	}, c.Logger)
}
