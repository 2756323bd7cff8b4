package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ilingu/ilix-server/pkg/broadcast"
	"github.com/ilingu/ilix-server/pkg/config"
	"github.com/ilingu/ilix-server/pkg/keyphrase"
	"github.com/ilingu/ilix-server/pkg/log"
	"github.com/ilingu/ilix-server/pkg/server"
	"github.com/ilingu/ilix-server/pkg/storage"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ilix-server",
	Short: "ilix - multi-device file-exchange broker",
	Long: `ilix-server brokers encrypted file transfers between devices.

Devices form ad-hoc pools identified by a shared secret key phrase;
within a pool any two devices exchange files through transfers and
receive live notifications over a server-sent-events stream.

All configuration is read from the environment (or a local .env file):
PORT, APP_MODE, MONGODB_URI, HASH_ROUND, SALT.`,
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"ilix-server version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log.Init(log.Config{
		Level:      log.Level(os.Getenv("LOG_LEVEL")),
		JSONOutput: cfg.Production,
		Output:     os.Stderr,
	})
	logger := log.WithComponent("main")

	hasher, err := keyphrase.NewHasher(cfg.HashRounds, cfg.Salt)
	if err != nil {
		return fmt.Errorf("failed to build key-phrase hasher: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	store, err := storage.Connect(ctx, storage.Options{
		URI:            cfg.MongoURI,
		Hasher:         hasher,
		DictionaryPath: cfg.DictionaryPath,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 15*time.Second)
	err = store.EnsureIndexes(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to ensure indexes: %w", err)
	}
	logger.Info().Msg("storage ready")

	broadcaster := broadcast.NewBroadcaster()
	broadcaster.Start()

	srv := server.NewServer(server.Config{
		Store:       store,
		Broadcaster: broadcaster,
		Hasher:      hasher,
		TmpDir:      cfg.TmpDir,
		Version:     Version,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Addr())
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	broadcaster.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := store.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("storage disconnect failed")
	}

	logger.Info().Msg("goodbye")
	return nil
}
