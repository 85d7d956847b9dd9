package api

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/kaytu-io/ai-concierge/services/concierge/api/chat"
)

const ChatPath = "/ai-concierge"

type API struct {
	logger *zap.Logger
	chat   chat.API
}

func New(logger *zap.Logger, chat chat.API) *API {
	return &API{
		logger: logger.Named("api"),
		chat:   chat,
	}
}

func (api *API) Register(e *echo.Echo) {
	api.chat.Register(e.Group(ChatPath))
}
