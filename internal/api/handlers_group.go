package api

import (
	"Atelier/internal/api/handler"
	"Atelier/internal/api/middleware"
)

// HandlersGroup 封装了所有已初始化的 Handler 实例
type HandlersGroup struct {
	ChatHandler *handler.ChatHandler
	WsHandler   *handler.WsHandler
	SendLimiter *middleware.SendLimiter
}
