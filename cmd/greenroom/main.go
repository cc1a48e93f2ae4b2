package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/greenroom/internal/clock"
	"github.com/smallbiznis/greenroom/internal/config"
	"github.com/smallbiznis/greenroom/internal/migration"
	"github.com/smallbiznis/greenroom/internal/observability"
	"github.com/smallbiznis/greenroom/internal/server"
	"github.com/smallbiznis/greenroom/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// HTTP surface plus the domain modules it pulls in
		server.Module,

		migration.Module,
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
