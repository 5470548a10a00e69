// Package main provides the local cart sync daemon. The CraftBiz shell
// communicates with it over REST/WebSocket on localhost.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/craftbiz/cartsync/cmd/syncd/handlers"
	"github.com/craftbiz/cartsync/internal/config"
	"github.com/craftbiz/cartsync/internal/logging"
	"github.com/craftbiz/cartsync/internal/remote"
	"github.com/craftbiz/cartsync/internal/retry"
	syncpkg "github.com/craftbiz/cartsync/internal/sync"
	"github.com/craftbiz/cartsync/internal/sync/queue"
)

var version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "syncd",
		Short:   "CraftBiz offline cart sync daemon",
		Version: version,
		Long: `syncd keeps a durable local queue of cart actions taken while offline
and replays them against the CraftBiz backend when connectivity returns,
resolving conflicts between local and server state along the way.`,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logging.Init(os.Stdout, logging.LevelInfo)

	store := queue.NewStore(cfg.DataDir)
	if err := store.Open(); err != nil {
		return err
	}
	defer store.Close()

	remoteStore := remote.NewClient(&remote.Config{
		BaseURL: cfg.Remote.BaseURL,
		APIKey:  cfg.Remote.APIKey,
		UserID:  cfg.Remote.UserID,
		Timeout: cfg.Remote.Timeout(),
	})

	policy := retry.Policy{
		MaxAttempts: cfg.Sync.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Sync.BackoffBaseSeconds) * time.Second,
		MaxDelay:    time.Duration(cfg.Sync.BackoffMaxSeconds) * time.Second,
	}

	engine := syncpkg.NewEngine(store, remoteStore, policy)

	hub := NewWSHub()
	engine.SetEventHandler(hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor := syncpkg.NewMonitor(engine, remoteStore, &syncpkg.MonitorConfig{
		ProbeInterval: time.Duration(cfg.Sync.ProbeIntervalSeconds) * time.Second,
		DrainInterval: time.Duration(cfg.Sync.DrainIntervalSeconds) * time.Second,
	})
	monitor.Start(ctx)
	defer monitor.Stop()

	cartHandler := handlers.NewCartHandler(store, engine)

	mux := http.NewServeMux()
	cartHandler.Register(mux)
	mux.HandleFunc("/ws", HandleWebSocket(hub))
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"cartsync"}`))
	})

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Sync daemon listening", map[string]interface{}{"addr": cfg.Listen})
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logging.Info("Shutting down", map[string]interface{}{"signal": sig.String()})
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
