package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Varma0717/tradingbot/internal/api"
	"github.com/Varma0717/tradingbot/internal/config"
	"github.com/Varma0717/tradingbot/internal/feed"
	"github.com/Varma0717/tradingbot/internal/gateway"
	"github.com/Varma0717/tradingbot/internal/logger"
	"github.com/Varma0717/tradingbot/internal/models"
	"github.com/Varma0717/tradingbot/internal/persistence"
	"github.com/Varma0717/tradingbot/internal/reporter"
	"github.com/Varma0717/tradingbot/internal/risk"
	"github.com/Varma0717/tradingbot/internal/scheduler"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "config.json", "path to the engine config file")
	reportEvery := flag.Duration("report-interval", time.Minute, "console performance report interval")
	flag.Parse()

	// .env 文件是可选的
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("加载配置失败: %v", err)
	}
	logger.InitLogger(cfg.LogConfig)
	log := logger.S()

	creds, err := config.LoadCredentials()
	if err != nil {
		log.Fatalf("reading exchange credentials failed: %v", err)
	}
	if cfg.Mode == models.ModeLive && creds.APIKey == "" {
		log.Fatal("live mode requires BINANCE_API_KEY and BINANCE_SECRET_KEY")
	}

	repo, err := persistence.NewBadgerRepository(cfg.DBPath)
	if err != nil {
		log.Fatalf("opening state database failed: %v", err)
	}
	defer repo.Close()

	gw := gateway.NewBinanceGateway(creds, cfg.IsTestnet, log)
	guard := risk.NewGuard(cfg.Risk, log)

	// Live symbols stream ticks over the websocket; paper symbols poll
	// the public price endpoint, which needs no credentials.
	feeds := feed.Factory(func(symbol string) feed.Feed {
		if cfg.Mode == models.ModeLive {
			return feed.NewWSFeed(cfg.WSBaseURL, symbol, log)
		}
		return feed.NewPollFeed(gw, symbol, time.Duration(cfg.PollIntervalSec)*time.Second, log)
	})

	sched := scheduler.New(cfg, gw, repo, guard, feeds, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Symbols persisted by the previous run come back first, then the
	// ones configured for this boot.
	if err := sched.Resume(ctx); err != nil {
		log.Errorw("resume failed", "err", err)
	}
	for _, req := range cfg.Symbols {
		if err := sched.StartSymbol(ctx, req); err != nil {
			log.Errorw("symbol start failed", "symbol", req.Symbol.Symbol, "err", err)
		}
	}

	rep := reporter.New(sched, *reportEvery, log)
	go rep.Run(ctx)

	server := api.NewServer(cfg.ListenAddr, sched, guard, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Errorw("control api failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnw("api shutdown failed", "err", err)
	}
	sched.Close(shutdownCtx)
	rep.Print()
	log.Info("engine stopped")

	_ = os.Stdout.Sync()
}
