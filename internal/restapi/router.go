package restapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRouter builds the gin router: CORS for the browser UI, zap request
// logging, recovery, the portfolio intent routes, and the metrics endpoint.
func SetupRouter(handler *PortfolioHandler, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	router.Use(cors.New(corsConfig))

	router.Use(zapLoggerMiddleware(logger))
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")
	{
		v1.GET("/portfolio", handler.GetPortfolioHandler)
		v1.POST("/wallets", handler.AddWalletHandler)
		v1.DELETE("/wallets/:index", handler.RemoveWalletHandler)
		v1.PUT("/wallets/:index/nickname", handler.EditNicknameHandler)
		v1.POST("/wallets/:index/refresh", handler.RefreshWalletHandler)
		v1.POST("/refresh", handler.RefreshAllHandler)
		v1.POST("/reset", handler.ResetHandler)
		v1.POST("/recover", handler.RecoverHandler)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	return router
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("HTTP")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
