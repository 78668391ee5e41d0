package control

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	hzServer "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	hzProm "github.com/hertz-contrib/monitor-prometheus"
	"golang.org/x/time/rate"

	"github.com/tgifai/claun/internal/executor"
	"github.com/tgifai/claun/internal/pkg/logs"
	"github.com/tgifai/claun/internal/pkg/prometheus"
	"github.com/tgifai/claun/internal/runner"
)

const (
	requestTimeout = 10 * time.Second
	metricsPath    = "/metrics"
	// MetricsOff disables the metrics listener.
	MetricsOff = "off"
)

// Controller is the part of the runner the control surface drives.
type Controller interface {
	Status() runner.Status
	Pause() bool
	Resume() bool
	RunNow(ctx context.Context) error
}

type Options struct {
	Bind        string
	MetricsBind string
	// CommandRate limits pause/resume/run requests per second. Zero means
	// the default of 2 with a burst of 4.
	CommandRate float64
}

// Server exposes the runner over a local HTTP API.
type Server struct {
	h       *hzServer.Hertz
	ctl     Controller
	limiter *rate.Limiter
}

func NewServer(ctl Controller, opts Options) *Server {
	hlog.SetLogger(logs.NewHlogLogger(logs.DefaultLogger()))

	srvOpts := []config.Option{
		hzServer.WithHostPorts(opts.Bind),
		hzServer.WithReadTimeout(requestTimeout),
		hzServer.WithWriteTimeout(requestTimeout),
		hzServer.WithExitWaitTime(2 * time.Second),
		hzServer.WithDisablePrintRoute(true),
	}
	if opts.MetricsBind != "" && opts.MetricsBind != MetricsOff {
		srvOpts = append(srvOpts, hzServer.WithTracer(
			hzProm.NewServerTracer(opts.MetricsBind, metricsPath, hzProm.WithRegistry(prometheus.GetRegistry())),
		))
	}

	limit := rate.Limit(opts.CommandRate)
	if limit <= 0 {
		limit = 2
	}

	s := &Server{
		h:       hzServer.Default(srvOpts...),
		ctl:     ctl,
		limiter: rate.NewLimiter(limit, 4),
	}
	s.register()
	return s
}

func (s *Server) register() {
	s.h.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})
	s.h.GET("/status", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, s.ctl.Status())
	})

	s.h.POST("/pause", s.rateLimit, func(ctx context.Context, c *app.RequestContext) {
		changed := s.ctl.Pause()
		logs.CtxInfo(ctx, "[control] pause requested from %s, changed=%v", c.ClientIP(), changed)
		c.JSON(consts.StatusOK, CommandResponse{Changed: changed, Status: s.status()})
	})
	s.h.POST("/resume", s.rateLimit, func(ctx context.Context, c *app.RequestContext) {
		changed := s.ctl.Resume()
		logs.CtxInfo(ctx, "[control] resume requested from %s, changed=%v", c.ClientIP(), changed)
		c.JSON(consts.StatusOK, CommandResponse{Changed: changed, Status: s.status()})
	})
	s.h.POST("/run", s.rateLimit, func(ctx context.Context, c *app.RequestContext) {
		logs.CtxInfo(ctx, "[control] run requested from %s", c.ClientIP())
		err := s.ctl.RunNow(ctx)
		switch {
		case err == nil:
			c.JSON(consts.StatusAccepted, CommandResponse{Changed: true, Status: s.status()})
		case errors.Is(err, executor.ErrBusy):
			c.JSON(consts.StatusConflict, CommandResponse{Error: err.Error(), Status: s.status()})
		case errors.Is(err, runner.ErrStopped):
			c.JSON(consts.StatusServiceUnavailable, CommandResponse{Error: err.Error()})
		default:
			c.JSON(consts.StatusInternalServerError, CommandResponse{Error: err.Error()})
		}
	})
}

func (s *Server) status() *runner.Status {
	st := s.ctl.Status()
	return &st
}

func (s *Server) rateLimit(ctx context.Context, c *app.RequestContext) {
	if !s.limiter.Allow() {
		c.AbortWithStatusJSON(consts.StatusTooManyRequests, CommandResponse{Error: "too many requests"})
		return
	}
	c.Next(ctx)
}

// Start serves in the background.
func (s *Server) Start() {
	go s.h.Spin()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.h.Shutdown(ctx)
}

// CommandResponse is the body of every POST endpoint.
type CommandResponse struct {
	Changed bool           `json:"changed"`
	Error   string         `json:"error,omitempty"`
	Status  *runner.Status `json:"status,omitempty"`
}
