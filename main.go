package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"squares-server/common"
	"squares-server/common/logger"
	"squares-server/internal/config"
	"squares-server/internal/controller/api"
	infmysql "squares-server/internal/infra/mysql"
	infrds "squares-server/internal/infra/redis"
	infmq "squares-server/internal/infra/rocketmq"
	"squares-server/internal/service"
	"squares-server/internal/worker"
	"squares-server/routers"

	beego "github.com/beego/beego/v2/server/web"
	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	logger.InitLogger()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Fatalf("load config failed", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config", zap.Error(err))
	}
	config.Set(cfg)
	if cfg.Server.LogLevel != "" && os.Getenv("LOG_LEVEL") == "" {
		logger.SetLevel(cfg.Server.LogLevel)
	}

	db, err := common.InitDB(cfg.Database.DSN, common.DBOptions{
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetimeSec: cfg.Database.ConnMaxLifetimeSec,
		LockWaitTimeoutSec: cfg.Database.LockWaitTimeoutSec,
	})
	if err != nil {
		logger.Fatalf("init mysql failed", zap.Error(err))
	}
	infmysql.UseDB(db)
	defer db.Close()

	// Redis 可选：不可用时缓存、限流、调度锁全部降级
	if cfg.Redis.Addr != "" {
		rdb, err := common.InitRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("redis unavailable, running without cache", zap.Error(err))
		} else {
			infrds.Use(rdb)
			defer rdb.Close()
		}
	}

	infmq.Init(cfg)
	defer infmq.Shutdown()

	settings, err := service.SettingsFromConfig(cfg)
	if err != nil {
		logger.Fatalf("invalid game/withdrawal settings", zap.Error(err))
	}
	opts := []service.Option{
		service.WithSettings(settings),
		service.WithNotifier(service.NewOutboxNotifier()),
	}
	svcs := api.Services{
		Grid:       service.NewGridService(db, opts...),
		Numbers:    service.NewNumberService(db, opts...),
		Claim:      service.NewClaimService(db, opts...),
		Settlement: service.NewSettlementService(db, opts...),
		Withdrawal: service.NewWithdrawalService(db, opts...),
		Ledger:     service.NewLedgerService(db, opts...),
		Query:      service.NewQueryService(db, opts...),
	}
	api.Use(svcs)

	if err := config.StartWatch(ctx, func(oldCfg, newCfg *config.Config) {
		if newCfg.Server.LogLevel != "" {
			logger.SetLevel(newCfg.Server.LogLevel)
		}
		logger.Info("config reloaded", zap.Bool("rate_limit", newCfg.RateLimit.Enabled))
	}); err != nil {
		logger.Warn("config watch not started", zap.Error(err))
	}

	// 后台任务
	var wg sync.WaitGroup
	worker.StartOutboxDispatcher(ctx, &wg, db)
	worker.StartFundsConsumer(ctx, &wg, cfg, worker.NewFundsHandler(db, svcs.Ledger))

	var sched gocron.Scheduler
	if cfg.Game.AutoAssign {
		as := worker.NewAssignScheduler(db, svcs.Numbers, infrds.Client(), service.SystemClock, settings.AssignWindow)
		if sched, err = as.Start(ctx, time.Duration(cfg.Game.AutoAssignEverySec)*time.Second); err != nil {
			logger.Error("assign scheduler not started", zap.Error(err))
		}
	}

	var promSrv *http.Server
	if cfg.Observability.EnableProm {
		addr := cfg.Observability.PromAddr
		if addr == "" {
			addr = ":9100"
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		promSrv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := promSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	routers.Register(cfg)
	go beego.Run(fmt.Sprintf(":%d", cfg.Server.Port))
	logger.Info("squares-server started", zap.Int("port", cfg.Server.Port))

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if beego.BeeApp.Server != nil {
		_ = beego.BeeApp.Server.Shutdown(shutdownCtx)
	}
	if promSrv != nil {
		_ = promSrv.Shutdown(shutdownCtx)
	}
	if sched != nil {
		_ = sched.Shutdown()
	}
	wg.Wait()
}
