package router

import (
	"net/http"

	"nni-keeper/internal/handler"
	"nni-keeper/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRouter(svc *service.ServiceContext) *gin.Engine {
	r := gin.Default()

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	watcherHandler := handler.NewWatcherHandler(svc.Supervisor)
	modelHandler := handler.NewModelHandler(svc.Store, svc.Promoter, svc.Config.Watcher.EvaluationCriteria)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"watchers": svc.Supervisor.Active(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		// 实验监控
		watchers := api.Group("/watchers")
		{
			watchers.POST("", watcherHandler.StartWatch)
			watchers.GET("", watcherHandler.ListWatchers)
			watchers.GET("/:id", watcherHandler.GetWatcher)
			watchers.DELETE("/:id", watcherHandler.StopWatcher)
		}

		// 候选与生产模型
		api.POST("/trials", modelHandler.AddTrial)
		api.GET("/models/:name", modelHandler.GetModel)
		api.POST("/experiments/:name/promote", modelHandler.Promote)
	}

	return r
}
