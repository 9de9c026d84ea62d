package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"drainwatch/internal/config"
	"drainwatch/internal/ingestor"
	"drainwatch/internal/logger"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.Init(cfg.Log.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ing := ingestor.New(cfg)

	// run ingestor in background
	done := make(chan struct{})
	go func() {
		if err := ing.Run(ctx); err != nil {
			logger.Logger.Error().Err(err).Msg("ingestor exited")
		}
		close(done)
	}()

	// wait for termination signals
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigs:
		logger.Logger.Info().Msg("shutting down")
		cancel()
		// let in-flight writes drain before the process exits
		<-done
	case <-done:
	}

	logger.Logger.Info().Msg("exited")
}
