package health

import (
	"github.com/evildarkarchon/unpackrr/internal/batch"
	"github.com/evildarkarchon/unpackrr/internal/websocket"

	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(NewHandlerFromServices),
)

func NewHandlerFromServices(service *batch.Service, hub *websocket.Hub) *Handler {
	return NewHandler(service, hub)
}
