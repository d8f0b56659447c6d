package api

import (
	"Atelier/internal/api/middleware"
	"Atelier/internal/pkg/logger"
	"Atelier/internal/pkg/metrics"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	r.GET("/metrics", metrics.Handler())

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"code":    200,
				"message": "pong",
				"data":    nil,
			})
		})

		chatGroup := apiGroup.Group("/chat")
		chatGroup.Use(middleware.AuthMiddleware())
		{
			chatGroup.GET("/threads", group.ChatHandler.ListThreads)
			chatGroup.POST("/threads", group.ChatHandler.OpenThread)
			chatGroup.GET("/threads/:thread_id/messages", group.ChatHandler.ListMessages)
			chatGroup.POST("/threads/:thread_id/messages", group.SendLimiter.Middleware(), group.ChatHandler.SendMessage)
			chatGroup.POST("/threads/:thread_id/read", group.ChatHandler.MarkRead)
			chatGroup.GET("/unread", group.ChatHandler.Unread)
			chatGroup.GET("/unread/total", group.ChatHandler.TotalUnread)
			chatGroup.GET("/counterparties", group.ChatHandler.Counterparties)
			chatGroup.GET("/ws", group.WsHandler.Connect)
		}
	}

	return r
}
