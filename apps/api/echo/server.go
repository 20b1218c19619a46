package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/core/analytics"
	"github.com/trezcool/minierp/core/cache"
	"github.com/trezcool/minierp/core/records"
	"github.com/trezcool/minierp/core/risk"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		Cache      *cache.Cache
		Evaluator  *risk.Evaluator
		Aggregator *analytics.Aggregator
		Records    *records.Service
	}

	Server interface {
		http.Handler
		Start()
		Shutdown(context.Context) error
		Close() error
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
	}

	server struct {
		ServerDeps
		app       *echo.Echo
		errors    chan error
		shutdown  chan os.Signal
		jwtConfig middleware.JWTConfig

		// done is closed on shutdown so that event streams end.
		done     chan struct{}
		doneOnce sync.Once
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		ServerDeps: deps,
		app:        echo.New(),
		errors:     make(chan error, 1),
		shutdown:   make(chan os.Signal, 1),
		done:       make(chan struct{}),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.Conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.Conf.Debug || s.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.Logger, s.Translator)
	s.app.Debug = s.Conf.Debug

	s.app.GET("/", home)

	s.jwtConfig = newJWTConfig(s.Conf)
	jwt := middleware.JWTWithConfig(s.jwtConfig)

	registerDashboardAPI(s.app.Group("/dashboard", jwt), s)
	registerRecordsAPI(s.app.Group("/records", jwt), s)
	registerNotificationAPI(s.app.Group("/notifications", jwt), s)
	registerStudentAPI(s.app.Group("/students", jwt), s)
}

func (s *server) Start() {
	if err := s.app.Start(s.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

// Shutdown ends the event streams, then stops the server gracefully.
func (s *server) Shutdown(ctx context.Context) error {
	s.endStreams()
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	s.endStreams()
	signal.Stop(s.shutdown)
	return s.app.Close()
}

func (s *server) endStreams() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to MiniERP API!")
}
