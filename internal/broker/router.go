package broker

import (
	"github.com/gin-gonic/gin"

	"github.com/sryo/nombre-pendiente/internal/config"
)

func SetupRouter(cfg *config.Config, reg *Registry) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	ctl := &Controller{Registry: reg}
	r.GET("/ws", ctl.HandleSignal)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"peers": reg.Count()})
	})

	return r
}
