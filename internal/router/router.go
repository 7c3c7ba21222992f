package router

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/consult-api/internal/middleware"
	"github.com/jwalitptl/consult-api/pkg/auth"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine   *gin.Engine
	handlers []Handler
	health   Handler
	metrics  *routerMetrics
	gatherer prometheus.Gatherer
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	errorTotal      *prometheus.CounterVec
}

type RouterConfig struct {
	Mode           string
	RateLimit      rate.Limit
	RateBurst      int
	RequestTimeout time.Duration
	MaxBodySize    int64
	CORSConfig     middleware.CORSConfig
	MetricsPrefix  string
	Tokens         *auth.TokenParser
	Logger         zerolog.Logger
	// Registry receives the HTTP metrics and backs /metrics. Nil disables both.
	Registry *prometheus.Registry
}

func NewRouter(config RouterConfig, health Handler, handlers ...Handler) (*Router, error) {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	engine := gin.New()

	r := &Router{
		engine:   engine,
		handlers: handlers,
		health:   health,
	}

	if config.Registry != nil {
		r.metrics = initRouterMetrics(config.MetricsPrefix)
		if err := r.metrics.register(config.Registry); err != nil {
			return nil, err
		}
		r.gatherer = config.Registry
	}

	maxBody := config.MaxBodySize
	if maxBody <= 0 {
		maxBody = middleware.DefaultMaxBodySize
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(config.Logger),
		middleware.ErrorHandler(),
		r.metricsMiddleware(),
		middleware.SecurityHeaders(),
		middleware.CORS(config.CORSConfig),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
		middleware.SizeLimit(maxBody),
	)

	if config.RateLimit > 0 {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	if config.Tokens != nil {
		engine.Use(middleware.Requester(config.Tokens))
	}

	return r, nil
}

func (r *Router) Setup() {
	if r.health != nil {
		r.health.RegisterRoutes(r.engine.Group(""))
	}
	if r.gatherer != nil {
		r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	}

	api := r.engine.Group("/api/v1")
	for _, h := range r.handlers {
		h.RegisterRoutes(api)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func initRouterMetrics(prefix string) *routerMetrics {
	if prefix == "" {
		prefix = "http"
	}
	return &routerMetrics{
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		errorTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_errors_total",
				Help: "Total number of HTTP errors",
			},
			[]string{"method", "path", "class"},
		),
	}
}

func (m *routerMetrics) register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.requestDuration, m.requestTotal, m.errorTotal} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.metrics == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		// Unmatched routes share one label so scanners cannot blow up cardinality.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		code := c.Writer.Status()
		status := strconv.Itoa(code)

		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()

		switch {
		case code >= 500:
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path, "server").Inc()
		case code >= 400:
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path, "client").Inc()
		}
	}
}
