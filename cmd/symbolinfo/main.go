package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"mmu-quoter/config"
	"mmu-quoter/internal/container"
)

// symbolinfo 打印交易对精度、最小下单量与当前价格估算的最小名义价值。
func main() {
	cfgPath := flag.String("config", "", "配置文件路径（可选，只用 exchange 段）")
	symbol := flag.String("symbol", "", "交易对，默认取配置或 SYMBOL 环境变量")
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.LoadWithEnvOverrides(*cfgPath)
		if err != nil {
			log.Fatalf("加载配置失败: %v", err)
		}
		cfg = loaded
	} else if v := strings.TrimSpace(os.Getenv("SYMBOL")); v != "" {
		cfg.Exchange.Symbol = v
	}
	if *symbol != "" {
		cfg.Exchange.Symbol = *symbol
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	cli := container.New(cfg, container.Options{}).PublicClient()

	info, err := cli.SymbolInfo(ctx, cfg.Exchange.Symbol)
	if err != nil {
		log.Fatalf("查询交易对失败: %v", err)
	}
	snap, err := cli.SymbolPrice(ctx, cfg.Exchange.Symbol)
	if err != nil {
		log.Fatalf("查询价格失败: %v", err)
	}

	fmt.Println("SYMBOL:", info.Symbol)
	fmt.Println("min_order_qty:", info.MinOrderQty.String())
	fmt.Println("price_tick_decimals:", info.PriceDecimals)
	fmt.Println("qty_tick_decimals:", info.QtyDecimals)
	fmt.Println("mark_price:", snap.Mark.String(), "index_price:", snap.Index.String())
	if ref, err := snap.Reference(); err == nil {
		fmt.Println("min_notional ~=", info.MinNotional(ref).StringFixed(4), "DUSD")
	}
}
