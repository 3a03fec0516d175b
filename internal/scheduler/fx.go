package scheduler

import (
	"context"

	"github.com/smallbiznis/practicebooks/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(NewScheduler),
)

// Runner exposes the scheduler without the run loop, for servers that only
// trigger sweeps on demand.
var Runner = fx.Module("scheduler.runner",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
)

func NewScheduler(lc fx.Lifecycle, cfg config.Config, sched *Scheduler) {
	if !cfg.Scheduler.Enabled {
		return
	}
	Start(lc, sched)
}

// Start runs the sweep loop for the lifetime of the app.
func Start(lc fx.Lifecycle, sched *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go sched.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
