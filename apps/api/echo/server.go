package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/shulehq/shule/core"
	"github.com/shulehq/shule/core/district"
	"github.com/shulehq/shule/core/iep"
	"github.com/shulehq/shule/core/student"
	"github.com/shulehq/shule/core/user"
	exportsvc "github.com/shulehq/shule/services/export"
)

type (
	Options struct {
		Address        string
		Conf           *core.Config
		Logger         core.Logger
		DisableReqLogs bool

		UserSvc     *user.Service
		DistrictSvc *district.Service
		StudentSvc  *student.Service
		IEPSvc      *iep.Service
		Exporter    *exportsvc.RosterExporter

		// SignalShutdown triggers a graceful server shutdown on fatal errors.
		SignalShutdown func()
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)

	api := s.app.Group("/api")
	jwtConf := newJWTConfig(conf)
	jwt := middleware.JWTWithConfig(jwtConf)

	registerUserAPI(api, jwt, conf, s.opts.UserSvc)
	registerDistrictAPI(api, jwt, s.opts.DistrictSvc)
	registerOnboardingAPI(api, jwt, s.opts.UserSvc, s.opts.StudentSvc)
	registerStudentAPI(api, jwt, s.opts.UserSvc, s.opts.StudentSvc, s.opts.Exporter)
	registerIEPAPI(api, jwt, s.opts.UserSvc, s.opts.StudentSvc, s.opts.IEPSvc)
}

func (s *server) Start() {
	s.app.Logger.Fatal(s.app.Start(s.opts.Address))
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Shule API!")
}
