package priceopt

import (
	"github.com/smallbiznis/revlift/internal/priceopt/service"
	"go.uber.org/fx"
)

var Module = fx.Module("priceopt.service",
	fx.Provide(service.New),
)
