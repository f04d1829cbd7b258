package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"storage-writer/internal/config"
	"storage-writer/internal/indexer"
	"storage-writer/internal/rpc"
	"storage-writer/internal/storagewriter"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	retry := flag.Bool("retry", false, "Retry failed storage writes using the retry settings from the config file")
	verbose := flag.Bool("verbose", false, "Log every processed block")
	flag.Parse()

	// Configure global logger (timestamped, info level by default).
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	// Load configuration file.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	// Prepare cancellable context that listens to OS signals (Ctrl+C).
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logrus.Info("interrupt received, shutting down gracefully…")
		cancel()
	}()

	if err := run(ctx, cfg, *retry); err != nil {
		logrus.Fatalf("indexer terminated with error: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, retry bool) error {
	// The process cannot do anything useful without its output, so a writer
	// that fails to open is fatal.
	swCfg := cfg.StorageWriterConfig()
	w, err := storagewriter.New(ctx, swCfg)
	if err != nil {
		return fmt.Errorf("failed to initialise %s storage writer: %w", cfg.StorageWriter.Database, err)
	}
	defer func() {
		if err := w.Close(); err != nil {
			logrus.Errorf("failed to close storage writer: %v", err)
		}
	}()
	logrus.Infof("storage writer %s | watched accounts: %d", cfg.StorageWriter.Database, storagewriter.NewWatchList(swCfg.WatchedAccounts).Len())

	if retry {
		w = storagewriter.NewRetryWriter(w, cfg.Retry.Attempts, cfg.Retry.DelayMS)
	}

	client, err := rpc.Dial(ctx, cfg.RPCURL, cfg.Retry)
	if err != nil {
		return fmt.Errorf("failed to connect to RPC: %w", err)
	}
	defer client.Close()

	return indexer.New(cfg, client, w).Run(ctx)
}
