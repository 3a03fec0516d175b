package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/practicebooks/internal/clock"
	"github.com/smallbiznis/practicebooks/internal/config"
	"github.com/smallbiznis/practicebooks/internal/migration"
	"github.com/smallbiznis/practicebooks/internal/observability"
	"github.com/smallbiznis/practicebooks/internal/scheduler"
	"github.com/smallbiznis/practicebooks/internal/server"
	"github.com/smallbiznis/practicebooks/pkg/db"
	"go.uber.org/fx"
)

// practicebooks runs the API and, when SCHEDULER_ENABLED is set, the batch sweep
// loop in one process.
func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
