package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"mmu-quoter/config"
	"mmu-quoter/internal/container"
	"mmu-quoter/internal/engine"
)

// exitStopped 对账发现被吃单/缺档后停机的退出码，便于外部脚本区分。
const exitStopped = 2

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	dryRun := flag.Bool("dryRun", false, "仅日志输出，不真正撤单/下单")
	cancelOnExit := flag.Bool("cancelOnExit", false, "退出时撤掉所有本引擎挂单")
	watch := flag.Bool("watchConfig", true, "监听配置文件变化并提示重启")
	flag.Parse()

	c, err := container.Load(*cfgPath, container.Options{DryRun: *dryRun})
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	buildCtx, cancelBuild := context.WithTimeout(ctx, 30*time.Second)
	err = c.Build(buildCtx)
	cancelBuild()
	if err != nil {
		if lg := c.Logger(); lg != nil {
			lg.LogError(err, map[string]interface{}{"stage": "startup"})
			_ = lg.Close()
		}
		log.Fatalf("初始化失败: %v", err)
	}
	lg := c.Logger()
	c.Banner()

	if *watch {
		startConfigWatch(ctx, *cfgPath, lg.Logger)
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		lg.Warn("sd_notify ready failed", zap.Error(err))
	} else if ok {
		lg.Info("systemd notified ready")
	}

	runErr := c.Run(ctx)
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// 停机路径上引擎已尽力撤单，这里不再重复
	stopped := errors.Is(runErr, engine.ErrStopped)
	if runErr != nil && !stopped {
		lg.LogError(runErr, map[string]interface{}{"stage": "run"})
	}
	if err := c.Stop(*cancelOnExit && !stopped); err != nil {
		log.Printf("退出清理失败: %v", err)
	}
	if stopped {
		log.Printf("检测到被吃单或缺档，已撤单并停机，请人工检查仓位")
		os.Exit(exitStopped)
	}
	if runErr != nil {
		os.Exit(1)
	}
}

func startConfigWatch(ctx context.Context, path string, lg *zap.Logger) {
	w, err := config.NewWatcher(path, 2*time.Second)
	if err != nil {
		lg.Warn("config watch disabled", zap.Error(err))
		return
	}
	go func() {
		_ = w.Run(ctx, func(_ config.AppConfig, err error) {
			if err != nil {
				lg.Warn("config file changed but is invalid", zap.String("path", path), zap.Error(err))
				return
			}
			lg.Warn("config file changed, restart required to apply", zap.String("path", path))
		})
	}()
}
