package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/chiwei-platform/config-service/internal/adapter/http"
	"github.com/chiwei-platform/config-service/internal/adapter/kubernetes"
	"github.com/chiwei-platform/config-service/internal/adapter/repository"
	"github.com/chiwei-platform/config-service/internal/config"
	"github.com/chiwei-platform/config-service/internal/domain"
	"github.com/chiwei-platform/config-service/internal/grayrule"
	"github.com/chiwei-platform/config-service/internal/notification"
	"github.com/chiwei-platform/config-service/internal/port"
	"github.com/chiwei-platform/config-service/internal/scanner"
	"github.com/chiwei-platform/config-service/internal/service"
	"github.com/juju/clock"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("config-service exited", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

func run(ctx context.Context, cfg *config.Config) error {
	// 数据库
	db, err := repository.OpenDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	// 存储层
	releaseRepo, err := repository.NewCachedReleaseRepo(repository.NewReleaseRepo(db), cfg.ReleaseCacheSize)
	if err != nil {
		return err
	}
	appNamespaceRepo, err := repository.NewCachedAppNamespaceRepo(
		repository.NewAppNamespaceRepo(db), 0, cfg.AppNamespaceCacheTTL, clock.WallClock)
	if err != nil {
		return err
	}
	messageRepo := repository.NewReleaseMessageRepo(db)
	grayRuleRepo := repository.NewGrayReleaseRuleRepo(db)

	// 灰度索引与长轮询
	grayIndex := grayrule.NewIndex(grayRuleRepo, clock.WallClock, cfg.GrayRuleResyncInterval)
	hub := notification.NewHub(notification.NewRegistry[*notification.Waiter](notification.DefaultShardCount), clock.WallClock)

	// 先失效缓存、刷新灰度规则，最后唤醒客户端，保证被唤醒的客户端拉到的是新配置
	scan := scanner.New(messageRepo, clock.WallClock, scanner.Options{
		Interval:  cfg.ScanInterval,
		BatchSize: cfg.ScanBatchSize,
	}, releaseRepo, grayIndex, hub)
	if err := scan.Prime(ctx); err != nil {
		return err
	}

	// 服务发现（可选）
	var lister port.InstanceLister
	var discovery *kubernetes.Discovery
	if cfg.DiscoveryEnabled() {
		cs, err := kubernetes.NewClientset(cfg.KubeconfigPath)
		if err != nil {
			return err
		}
		discovery, err = kubernetes.NewDiscovery(cs, kubernetes.DiscoveryOptions{
			Namespace: cfg.DiscoveryNamespace,
			Selector:  cfg.DiscoverySelector,
		})
		if err != nil {
			return err
		}
		lister = discovery
	}
	hostname, _ := os.Hostname()
	self := domain.ServiceInstance{
		AppName:     "config-service",
		InstanceID:  hostname,
		HomepageURL: cfg.AdvertiseURL,
	}

	// 服务层
	normalizer := service.NewNamespaceNormalizer(appNamespaceRepo)
	configSvc := service.NewConfigService(releaseRepo, grayIndex, normalizer)
	// 长轮询直接从库里发现的新变更，也要先经过缓存与灰度索引再唤醒客户端
	notificationSvc := service.NewNotificationService(hub, messageRepo, normalizer, cfg.LongPollTimeout,
		releaseRepo, grayIndex)
	discoverySvc := service.NewDiscoveryService(lister, self)

	// HTTP 路由
	handler := httpadapter.NewRouter(
		httpadapter.NewConfigHandler(configSvc),
		httpadapter.NewNotificationHandler(notificationSvc),
		httpadapter.NewDiscoveryHandler(discoverySvc),
		httpadapter.NewHealthHandler(map[string]httpadapter.ReadinessCheck{
			"database": sqlDB.PingContext,
			"grayrules": func(context.Context) error {
				if !grayIndex.Ready() {
					return errors.New("gray rules not synced")
				}
				return nil
			},
		}),
		cfg.APIToken,
	)

	g, gctx := errgroup.WithContext(ctx)

	// 长轮询会挂起 LongPollTimeout，不设置 WriteTimeout；
	// 请求 context 继承 gctx，退出时挂起的长轮询立即返回
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       cfg.LongPollTimeout + 30*time.Second,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error { return grayIndex.Run(gctx) })
	g.Go(func() error { return scan.Run(gctx) })
	if discovery != nil {
		g.Go(func() error { return discovery.Start(gctx) })
	}
	g.Go(func() error {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
			_ = srv.Close()
		}
		return nil
	})

	return g.Wait()
}
