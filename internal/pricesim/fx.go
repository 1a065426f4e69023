package pricesim

import (
	"github.com/smallbiznis/revlift/internal/pricesim/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricesim.service",
	fx.Provide(service.New),
)
