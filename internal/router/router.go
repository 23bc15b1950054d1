package router

import (
	"github.com/blogpulse/internal/handler"
	"github.com/blogpulse/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Options 汇总路由所需的依赖。
type Options struct {
	API *handler.API
	// ConfigErr 非空时，除健康检查与指标外的路由一律返回配置错误。
	ConfigErr error
	APISecret string
	Metrics   *observability.Metrics
	Logger    zerolog.Logger
}

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), RequestLogger(opts.Logger), CORS())

	r.GET("/healthz", opts.API.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	guarded := r.Group("")
	guarded.Use(ConfigGuard(opts.ConfigErr))
	{
		guarded.GET("/analyze", opts.API.Analyze)
		guarded.GET("/stats", opts.API.Stats)
		guarded.GET("/chart.png", opts.API.Chart)

		// 上传需要共享密钥
		guarded.POST("/upload-stats", APISecretAuth(opts.APISecret, opts.Metrics), opts.API.UploadStats)
	}

	return r
}
