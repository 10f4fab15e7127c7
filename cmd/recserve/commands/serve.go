package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rushteam/recserve/api"
	"github.com/rushteam/recserve/cache"
	"github.com/rushteam/recserve/config"
	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/model"
	"github.com/rushteam/recserve/pkg/logging"
	"github.com/rushteam/recserve/service"
)

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load the model bundle and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(cfg.Log)

	// 缓存只是优化：后端不可达时无缓存启动
	var st core.Store
	if s, err := config.BuildStore(ctx, cfg.Cache); err != nil {
		logger.Warn().Err(err).Str("backend", cfg.Cache.Backend).Msg("cache backend unavailable, serving without cache")
	} else {
		st = s
	}
	rc := cache.New(st, cfg.Cache.ResultCache(), logger)

	src, err := cfg.Model.Open(ctx)
	if err != nil {
		return err
	}
	svc := service.New(service.Options{
		Source:            src,
		Cache:             rc,
		Eligibility:       cfg.Ranking.Eligibility,
		MaxBatch:          cfg.Ranking.MaxBatch,
		BatchConcurrency:  cfg.Ranking.BatchConcurrency,
		DegradedErrorRate: cfg.Ranking.DegradedErrorRate,
		HealthWindow:      cfg.Ranking.HealthWindow,
		Logger:            logger,
	})
	defer svc.Close()

	// 首次加载失败直接退出；之后的重载失败保留旧快照继续服务
	if err := svc.Reload(ctx); err != nil {
		return fmt.Errorf("initial model load: %w", err)
	}

	if cfg.Model.Watch {
		w := model.NewWatcher(cfg.Model.Dir, cfg.Model.Debounce, func(ctx context.Context) { _ = svc.Reload(ctx) }, logger)
		if err := w.Start(ctx); err != nil {
			logger.Warn().Err(err).Str("dir", cfg.Model.Dir).Msg("model watcher disabled")
		}
	}

	srv := api.NewServer(svc, cfg.Server, cfg.Ranking.DefaultN, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
