package entitlement

import (
	"github.com/densematrix/resumeforge/internal/entitlement/repository"
	"github.com/densematrix/resumeforge/internal/entitlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement",
	fx.Provide(repository.New),
	fx.Provide(service.NewService),
)
