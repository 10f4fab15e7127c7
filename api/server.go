// Package api 是推荐服务的 HTTP 接口。
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rushteam/recserve/config"
	"github.com/rushteam/recserve/service"
)

type Server struct {
	svc      *service.Service
	cfg      config.ServerConfig
	defaultN int
	logger   zerolog.Logger
	now      func() time.Time
	server   *http.Server
}

// NewServer 创建 HTTP 服务。defaultN 是未指定 n 时的推荐数量。
func NewServer(svc *service.Service, cfg config.ServerConfig, defaultN int, logger zerolog.Logger) *Server {
	if defaultN <= 0 {
		defaultN = 10
	}
	return &Server{
		svc:      svc,
		cfg:      cfg,
		defaultN: defaultN,
		logger:   logger.With().Str("component", "http").Logger(),
		now:      time.Now,
	}
}

// Handler 返回完整路由
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestID)
	r.Use(s.accessLog)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/recommendations/user/{user_id}", s.handleUser)
		r.Get("/recommendations/similar/{item_id}", s.handleSimilar)
		r.Get("/recommendations/popular", s.handlePopular)
		r.Post("/batch_recommendations", s.handleBatch)
	})
	if s.cfg.Admin {
		r.Post("/admin/reload", s.handleReload)
	}
	return r
}

// Start 启动 HTTP 服务并阻塞直到停止
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.logger.Info().Str("addr", s.cfg.Addr).Msg("starting server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 优雅关闭
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
