package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hnrobert/macusers/internal/config"
	"github.com/hnrobert/macusers/internal/logger"
	"github.com/hnrobert/macusers/internal/macusers"
	"github.com/hnrobert/macusers/internal/server"
	"github.com/hnrobert/macusers/internal/snapmon"
	"github.com/hnrobert/macusers/internal/syscmd"
	"github.com/hnrobert/macusers/internal/token"
)

func main() {
	addr := getenvDefault("MACUSERS_LISTEN", ":14393")
	dataDir := getenvDefault("MACUSERS_DATA", config.DefaultDataDir())

	if err := logger.Init(dataDir); err != nil {
		log.Printf("file logging disabled: %v", err)
	}
	defer logger.Close()

	cfgStore := config.NewStore(config.DefaultPath(dataDir))
	if err := cfgStore.Ensure(); err != nil {
		log.Fatal(err)
	}
	tokStore := token.NewStore(token.DefaultPath(dataDir))
	if err := tokStore.Ensure(); err != nil {
		log.Fatal(err)
	}
	snapStore := snapmon.NewStore(snapmon.DefaultPath(dataDir))
	if err := snapStore.Load(); err != nil {
		log.Fatal(err)
	}

	dir := macusers.New(syscmd.New())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go snapmon.Run(ctx, snapmon.NewCollector(dir), snapStore, func() snapmon.Config {
		cfg, err := cfgStore.Get()
		if err != nil {
			logger.Error("read config: %v", err)
			return snapmon.DefaultConfig()
		}
		return cfg.Snapshots
	})

	srv := server.New(server.Config{ListenAddr: addr}, dir, cfgStore, tokStore, snapStore)
	logger.Info("macusersd listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
