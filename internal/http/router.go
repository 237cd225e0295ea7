package http

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"go.ngs.io/oceangrid/internal/usecase"
)

// RouterOptions configure the router.
type RouterOptions struct {
	// CORSOrigins lists allowed origins. Empty allows all origins.
	CORSOrigins []string
	// RateLimit is the sustained requests per second across all clients.
	// Zero disables limiting.
	RateLimit float64
	RateBurst int
	Logger    logrus.FieldLogger
}

// SetupRouter creates and configures the Gin router.
func SetupRouter(queryUC *usecase.QueryUseCase, opts RouterOptions) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	router := gin.New()
	router.Use(requestLogger(opts.Logger), gin.Recovery())

	// Setup CORS middleware.
	corsConfig := cors.DefaultConfig()
	if len(opts.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = opts.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	// Create handler.
	handler := NewHandler(queryUC, opts.Logger)

	// Health check.
	router.GET("/health", handler.HealthCheck)

	// API v1 routes.
	v1 := router.Group("/v1")
	if opts.RateLimit > 0 {
		v1.Use(rateLimit(opts.RateLimit, opts.RateBurst))
	}
	v1.GET("/datasets", handler.GetDatasets)

	datasets := v1.Group("/datasets/:id")
	datasets.GET("/variables", handler.GetVariables)
	for _, op := range []usecase.Operation{
		usecase.OpPoint,
		usecase.OpProfile,
		usecase.OpTimeseries,
		usecase.OpPath,
		usecase.OpProfileDepths,
		usecase.OpArea,
		usecase.OpSubset,
	} {
		datasets.GET("/"+string(op), handler.Query(op))
	}

	return router
}

// rateLimit rejects requests beyond rps with 429.
func rateLimit(rps float64, burst int) gin.HandlerFunc {
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// requestLogger logs each request with logrus.
func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		}).Debug("request")
	}
}
