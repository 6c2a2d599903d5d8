package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"mmu-quoter/internal/container"
)

// cleanup 撤销所有带归属标记的挂单（不动其他订单）。
func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	c, err := container.Load(*cfgPath, container.Options{})
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.Build(ctx); err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	defer c.Stop(false)

	cfg := c.Config()
	fmt.Printf("🔸 撤销 %s 上标记为 %s 的挂单...\n", cfg.Exchange.Symbol, cfg.Quote.OwnershipTag)
	n, err := c.CancelAll(ctx)
	if err != nil {
		log.Printf("撤单失败: %v", err)
		return
	}
	fmt.Printf("✅ 已撤销 %d 笔挂单\n", n)
}
