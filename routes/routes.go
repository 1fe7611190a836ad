package routes

import (
	"net/http"

	"chatdesk/controllers"
	"chatdesk/middlewares"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRouter(chat *controllers.ChatController) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middlewares.Logger(), middlewares.CORS())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	g := r.Group("/chat")
	{
		g.GET("/state", chat.GetState)
		// blocks until the reply has been appended
		g.POST("/send", chat.HandleSend)

		g.POST("/conversations", chat.NewConversation)
		g.POST("/conversations/:id/activate", chat.SwitchConversation)
		g.POST("/clear", chat.ClearChat)

		g.GET("/models", chat.GetModels)
		g.PUT("/model", chat.SelectModel)

		g.POST("/display/dark-mode", chat.ToggleDarkMode)
		g.POST("/display/sidebar", chat.ToggleSidebar)
	}

	return r
}
