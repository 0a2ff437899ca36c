package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/facebookgo/clock"
	"github.com/franckalain/livestockweight/internal/analytics"
	"github.com/franckalain/livestockweight/internal/cache"
	"github.com/franckalain/livestockweight/internal/capture"
	"github.com/franckalain/livestockweight/internal/detail"
	"github.com/franckalain/livestockweight/internal/logger"
	"github.com/franckalain/livestockweight/internal/metrics"
	"github.com/franckalain/livestockweight/internal/models"
	"github.com/franckalain/livestockweight/internal/observation"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // same-origin is enforced by the reverse proxy
	},
}

// Deps are the collaborators the server exposes
type Deps struct {
	Observations *observation.Repository
	Subjects     detail.SubjectSource
	Model        capture.Estimator
	Dashboard    *cache.TTLCache[models.DashboardStats]
	Clock        clock.Clock
	Log          *logger.Logger
}

type Server struct {
	observations *observation.Repository
	comparator   *analytics.Comparator
	details      *detail.Loader
	model        capture.Estimator
	sessions     sync.Map // session id -> *session
	log          *logger.Logger
	debug        bool
	engine       *gin.Engine
}

func New(deps Deps, debug bool) *Server {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.Register()

	s := &Server{
		observations: deps.Observations,
		comparator:   analytics.NewComparator(deps.Observations, deps.Dashboard, deps.Clock),
		details:      detail.NewLoader(deps.Observations, deps.Subjects, log),
		model:        deps.Model,
		log:          log.With("component", "server"),
		debug:        debug,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", s.handleWebSocket)

	api := r.Group("/api")
	{
		api.GET("/breeds", s.handleBreeds)
		api.GET("/subjects/:id/observations", s.handleListObservations)
		api.POST("/subjects/:id/observations", s.handleCreateObservation)
		api.GET("/subjects/:id/observations/:observationID/trend", s.handleTrend)
		api.GET("/subjects/:id/detail", s.handleDetail)
		api.GET("/subjects/:id/dashboard", s.handleDashboard)
	}
	return r
}

// Handler returns the HTTP handler without static file serving
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until SIGINT or SIGTERM, then drains connections
func (s *Server) Start(port, staticDir string) error {
	s.engine.NoRoute(gin.WrapH(http.FileServer(http.Dir(staticDir))))

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", "port", port, "static_dir", staticDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errCh:
		return err
	case <-sigChan:
	}

	s.log.Info("shutting down server")
	s.sessions.Range(func(_, v any) bool {
		v.(*session).close()
		return true
	})
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		if c.Request.URL.Path == "/health" && !s.debug {
			return
		}
		s.log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"request_id", requestID,
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}
