package main

import (
	"os"
	"os/signal"
	"syscall"

	"pricewatch/config"
	"pricewatch/internal/okx/watch"
	"pricewatch/logger"

	"go.uber.org/zap"
)

func main() {
	// viper config
	cfg := config.Load()

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	watcher, err := watch.NewWatcher(cfg, log)
	if err != nil {
		log.Fatal("failed to build watcher", zap.Error(err))
	}
	if err := watcher.Start(); err != nil {
		log.Fatal("watcher failed to start", zap.Error(err))
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-interrupt:
		log.Info("shutting down", zap.String("signal", sig.String()))
		watcher.Stop()
	case err := <-watcher.Fatal():
		watcher.Stop()
		log.Fatal("feed connection lost permanently", zap.Error(err))
	}
}
