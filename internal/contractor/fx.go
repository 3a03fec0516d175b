package contractor

import (
	"github.com/smallbiznis/practicebooks/internal/contractor/repository"
	"github.com/smallbiznis/practicebooks/internal/contractor/service"
	"go.uber.org/fx"
)

var Module = fx.Module("contractor.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
