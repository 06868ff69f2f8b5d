// Package observer provides ready-made hook implementations for the engine:
// structured logging via zap and metrics via Prometheus. Both are plain
// consumers of the engine's hook options; applications with their own
// telemetry can register hooks directly instead.
package observer

import (
	"go.uber.org/zap"

	"github.com/paywatch/paywatch"
)

// Zap returns engine options that log every lifecycle event through logger.
//
//	engine, err := paywatch.New(gateway, cfg, observer.Zap(logger)...)
func Zap(logger *zap.Logger) []paywatch.Option {
	return []paywatch.Option{
		paywatch.WithOnConfirmedHook(func(ctx paywatch.ConfirmContext) {
			logger.Info("payment confirmed",
				zap.String("id", ctx.Request.ID),
				zap.String("payer", ctx.Request.PayerRef),
				zap.Uint64("amount", ctx.Request.ExpectedAmount),
				zap.String("tx", ctx.Request.MatchedTxRef),
			)
		}),
		paywatch.WithOnExpiredHook(func(ctx paywatch.ExpireContext) {
			logger.Info("payment expired",
				zap.String("id", ctx.Request.ID),
				zap.String("payer", ctx.Request.PayerRef),
				zap.Uint64("amount", ctx.Request.ExpectedAmount),
				zap.Time("expires_at", ctx.Request.ExpiresAt),
			)
		}),
		paywatch.WithOnGatewayErrorHook(func(ctx paywatch.GatewayErrorContext) {
			logger.Warn("ledger gateway unavailable",
				zap.String("id", ctx.RequestID),
				zap.String("op", ctx.Err.Op),
				zap.Error(ctx.Err),
			)
		}),
		paywatch.WithAfterVerifyHook(func(ctx paywatch.VerifyContext) {
			logger.Debug("verification pass",
				zap.String("id", ctx.RequestID),
				zap.Bool("confirmed", ctx.Confirmed),
				zap.Duration("duration", ctx.Duration),
			)
		}),
		paywatch.WithOnSweptHook(func(ctx paywatch.SweepContext) {
			logger.Info("sweep pass",
				zap.Duration("retention", ctx.Retention),
				zap.Int("removed", len(ctx.Removed)),
			)
		}),
	}
}
