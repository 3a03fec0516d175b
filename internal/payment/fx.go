package payment

import (
	"github.com/smallbiznis/practicebooks/internal/config"
	"github.com/smallbiznis/practicebooks/internal/payment/adapters"
	"github.com/smallbiznis/practicebooks/internal/payment/adapters/logprovider"
	"github.com/smallbiznis/practicebooks/internal/payment/adapters/noop"
	"github.com/smallbiznis/practicebooks/internal/payment/repository"
	paymentservice "github.com/smallbiznis/practicebooks/internal/payment/service"
	"github.com/smallbiznis/practicebooks/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config, log *zap.Logger) *adapters.Registry {
		return adapters.NewRegistry(
			cfg.Payment.Provider,
			noop.New(),
			logprovider.New(log, cfg.Payment.LinkBaseURL),
		)
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
