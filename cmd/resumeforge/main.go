package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/densematrix/resumeforge/internal/catalog"
	"github.com/densematrix/resumeforge/internal/clock"
	"github.com/densematrix/resumeforge/internal/config"
	"github.com/densematrix/resumeforge/internal/entitlement"
	"github.com/densematrix/resumeforge/internal/generation"
	"github.com/densematrix/resumeforge/internal/migration"
	"github.com/densematrix/resumeforge/internal/observability"
	"github.com/densematrix/resumeforge/internal/payment"
	"github.com/densematrix/resumeforge/internal/ratelimit"
	"github.com/densematrix/resumeforge/internal/server"
	"github.com/densematrix/resumeforge/pkg/db"
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
		migration.Module,
		ratelimit.Module,

		// Functional domains
		catalog.Module,
		entitlement.Module,
		generation.Module,
		payment.Module,

		server.Module,
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
