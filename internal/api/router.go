// api/router.go
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Router собирает маршруты. Статические служебные маршруты регистрируются раньше :id.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))

	r.GET("/api/meta", MetaListHandler(s))
	r.GET("/api/meta/lint", LintHandler(s))
	r.GET("/api/meta/enums/:name", MetaCatalogHandler(s))
	r.GET("/api/meta/:db/:model", MetaModelHandler(s))
	r.GET("/api/meta/:db/:model/children", ChildrenHandler(s))
	r.GET("/api/meta/:db/:model/children/:name", ChildHandler(s))

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/:db/:model/count", CountHandler(s))
		apiGroup.POST("/:db/:model/:id/deactivate", DeactivateHandler(s))
		apiGroup.POST("/:db/:model/:id/reactivate", ReactivateHandler(s))
		apiGroup.POST("/:db/:model/:id/expire", ExpireHandler(s))
		apiGroup.DELETE("/:db/:model/:id/expire", NeverExpireHandler(s))

		apiGroup.POST("/:db/:model", CreateHandler(s))
		apiGroup.GET("/:db/:model", ListHandler(s))
		apiGroup.GET("/:db/:model/:id", GetOneHandler(s))
	}
	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			log.Warn("request", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}
		log.Debug("request", fields...)
	}
}
