package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/practicebooks/internal/clock"
	"github.com/smallbiznis/practicebooks/internal/config"
	"github.com/smallbiznis/practicebooks/internal/observability"
	"github.com/smallbiznis/practicebooks/internal/scheduler"
	"github.com/smallbiznis/practicebooks/internal/server"
	"github.com/smallbiznis/practicebooks/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by scheduler. No HTTP server.
		server.Domains,
		scheduler.Runner,

		fx.Invoke(scheduler.Start),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}
