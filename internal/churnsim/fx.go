package churnsim

import (
	"github.com/smallbiznis/revlift/internal/churnsim/service"
	"go.uber.org/fx"
)

var Module = fx.Module("churnsim.service",
	fx.Provide(service.New),
)
