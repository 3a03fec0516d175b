package session

import (
	"github.com/smallbiznis/practicebooks/internal/session/repository"
	"github.com/smallbiznis/practicebooks/internal/session/service"
	"go.uber.org/fx"
)

var Module = fx.Module("session.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
