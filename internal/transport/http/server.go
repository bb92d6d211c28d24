package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/heyitswither/rwci/internal/config"
	"github.com/heyitswither/rwci/internal/core"
)

const readHeaderTimeout = 5 * time.Second

// StatusSource is the running session the status server reports on.
type StatusSource interface {
	ID() string
	State() core.State
	Session() *core.Session
}

// NewServer builds the status HTTP server listening on cfg.StatusAddr.
// A nil gatherer leaves /metrics unregistered.
func NewServer(src StatusSource, gatherer prometheus.Gatherer, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.StatusAddr,
		Handler:           NewRouter(src, gatherer, logger),
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// NewRouter registers the status routes.
func NewRouter(src StatusSource, gatherer prometheus.Gatherer, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), LoggerMiddleware(logger))

	h := &StatusHandlers{src: src}
	r.GET("/health", h.Health)
	r.GET("/session", h.Session)
	r.GET("/session/messages", h.Messages)

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return r
}
