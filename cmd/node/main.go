package main

import (
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"pegmargin/params"
	"pegmargin/pkg/api"
	"pegmargin/pkg/core"
	"pegmargin/pkg/core/account"
	"pegmargin/pkg/storage"
	"pegmargin/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("node_starting",
		zap.String("data_dir", cfg.Node.DataDir),
		zap.String("api_listen", cfg.API.Listen),
	)

	// Durable state: account ledger and fill history share one Pebble db.
	db, err := storage.NewPebbleStore(filepath.Join(cfg.Node.DataDir, "ledger"))
	if err != nil {
		logger.Fatal("open_ledger_db_failed", zap.Error(err))
	}
	defer db.Close()

	// Block-execution state: the order book lives in memory and is rebuilt
	// from resting-order records on restart by the outer replay layer.
	bookState := storage.NewMemStore()

	market := core.NewMarket(bookState, account.NewLedger(db), storage.NewFillStore(db), logger)

	server := api.NewServer(market, cfg.API.AllowedOrigins, logger)
	go func() {
		if err := server.Start(cfg.API.Listen); err != nil {
			logger.Fatal("api_server_failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("node_stopping")
}
