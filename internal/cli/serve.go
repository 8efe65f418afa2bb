package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/paiban/medsched/internal/auth"
	"github.com/paiban/medsched/internal/config"
	"github.com/paiban/medsched/internal/database"
	"github.com/paiban/medsched/internal/handler"
	"github.com/paiban/medsched/internal/metrics"
	"github.com/paiban/medsched/internal/notify"
	"github.com/paiban/medsched/internal/repository"
	"github.com/paiban/medsched/internal/runmanager"
	"github.com/paiban/medsched/internal/store"
	"github.com/paiban/medsched/internal/ws"
	"github.com/paiban/medsched/pkg/logger"
	"github.com/paiban/medsched/pkg/scheduler/solver"
	"github.com/paiban/medsched/pkg/validator"
)

func buildServeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP/websocket 求解服务",
		Long: `启动求解服务：
1. 加载配置（默认值、YAML、.env、MEDSCHED_ 环境变量）
2. 按配置连接 PostgreSQL、Redis、RabbitMQ（均可关闭）
3. 启动任务管理器与 websocket 推送
4. 监听 SIGINT/SIGTERM 优雅退出`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(false)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

// server 装配好的服务及其资源
type server struct {
	cfg     *config.Config
	http    *http.Server
	manager *runmanager.Manager
	hub     *ws.Hub
	limiter *auth.RateLimiter
	closers []func() error
}

// newServer 按配置装配依赖；ctx 结束时 websocket hub 停止
func newServer(ctx context.Context, cfg *config.Config) (*server, error) {
	log := logger.WithComponent("serve")
	s := &server{cfg: cfg}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.New(reg)
	}

	var (
		sinks   []runmanager.Sink
		archive runmanager.Archive
		checks  []handler.HealthCheck
	)

	if cfg.Database.Enabled {
		db, err := database.New(ctx, &cfg.Database)
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		if cfg.Database.Migrate {
			if err := db.Migrate(ctx); err != nil {
				s.close()
				return nil, err
			}
		}
		repo := repository.NewRunRepository(db)
		sinks = append(sinks, repo)
		archive = repo
		checks = append(checks, handler.HealthCheck{Name: "postgres", Check: db.Health})
	}

	if cfg.Redis.Enabled {
		rdb, err := store.Open(ctx, cfg.Redis)
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, rdb.Close)
		runs := store.New(rdb, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
		sinks = append(sinks, runs)
		if archive == nil {
			archive = runs
		}
		checks = append(checks, handler.HealthCheck{Name: "redis", Check: runs.Ping})
		log.Info().Str("addr", cfg.Redis.Addr()).Msg("redis 已连接")
	}

	if cfg.AMQP.Enabled {
		pub, err := notify.Dial(cfg.AMQP)
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, pub.Close)
		sinks = append(sinks, pub)
		log.Info().Str("queue", cfg.AMQP.Queue).Msg("rabbitmq 已连接")
	}

	s.hub = ws.NewHub()
	go s.hub.Run(ctx)
	sinks = append(sinks, s.hub)

	opts := []runmanager.Option{runmanager.WithSinks(sinks...), runmanager.WithMetrics(collector)}
	if archive != nil {
		opts = append(opts, runmanager.WithArchive(archive))
	}
	s.manager = runmanager.New(runmanager.Config{
		MaxConcurrent: cfg.Solver.MaxConcurrentRuns,
		Retention:     cfg.Solver.RunRetention,
		Options: solver.Options{
			EngineName:      cfg.Solver.Engine,
			DisableFallback: cfg.Solver.DisableFallback,
			MinPhaseTime:    cfg.Solver.MinPhaseTime,
			Workers:         cfg.Solver.Workers,
		},
	}, opts...)

	v, err := validator.New(cfg.Solver.Lang)
	if err != nil {
		s.close()
		return nil, err
	}

	var tokens *auth.TokenManager
	if cfg.Auth.Enabled {
		tokens = auth.NewTokenManager(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	}
	if cfg.Server.RateLimit > 0 {
		s.limiter = auth.NewRateLimiter(cfg.Server.RateLimit, time.Minute)
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	h := handler.New(handler.Config{
		Runs:        s.manager,
		Validator:   v,
		Hub:         s.hub,
		Metrics:     collector,
		Tokens:      tokens,
		RateLimiter: s.limiter,
		Checks:      checks,
		BodyLimit:   cfg.Server.BodyLimit,
		CORSOrigins: cfg.Server.CORSOrigins,
		MetricsPath: metricsPath,
		Version:     Version,
	})

	s.http = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

// close 逆序释放外部连接
func (s *server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warn().Err(err).Msg("释放资源失败")
		}
	}
	s.closers = nil
}

// janitor 定期清理限流器中的空闲键
func (s *server) janitor(ctx context.Context) {
	if s.limiter == nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.limiter.Cleanup(now)
		}
	}
}

// shutdown 先停止接收请求，再取消并等待进行中的求解任务
func (s *server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	defer s.close()

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("关闭 HTTP 服务失败: %w", err))
	}
	if err := s.manager.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("等待求解任务结束失败: %w", err))
	}
	return errors.Join(errs...)
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.WithComponent("serve")

	s, err := newServer(ctx, cfg)
	if err != nil {
		return err
	}
	go s.janitor(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", s.http.Addr).
			Str("version", Version).
			Str("engine", cfg.Solver.Engine).
			Int("max_concurrent_runs", cfg.Solver.MaxConcurrentRuns).
			Bool("auth", cfg.Auth.Enabled).
			Msg("求解服务启动")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP 服务异常退出: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("收到退出信号，正在关闭")
	}

	if err := s.shutdown(); err != nil {
		return err
	}
	log.Info().Msg("服务已退出")
	return nil
}
