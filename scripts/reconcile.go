// 手动触发一次进度对账
//
// 主应用按 engine.reconcile_cron 定时执行；此脚本用于故障恢复后补偿，
// 例如事件总线积压丢失或证书签发长时间失败之后。
//
// 用法: go run scripts/reconcile.go -window 72h

package main

import (
	"context"
	"flag"
	"learnhub_backend/internal/app"
	"learnhub_backend/internal/config"
	"learnhub_backend/pkg/database"
	"learnhub_backend/pkg/logger"
	"learnhub_backend/pkg/monitoring"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

func main() {
	window := flag.Duration("window", 24*time.Hour, "对账时间窗口")
	flag.Parse()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	logger.InitLogger(cfg)
	monitoring.Init()

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis, &cfg.Engine)
	if err != nil {
		log.Fatalf("Redis 连接失败: %v", err)
	}

	engine, err := app.New(cfg, db, rdb)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	log.Printf("开始对账，窗口 %s ...", *window)
	report, err := engine.Reconcile(ctx, time.Now().Add(-*window))
	engine.Shutdown(ctx)
	if err != nil {
		log.Fatalf("对账失败: %v", err)
	}

	if err := yaml.NewEncoder(os.Stdout).Encode(report); err != nil {
		log.Fatalf("输出报告失败: %v", err)
	}
	log.Println("完成！")
}
