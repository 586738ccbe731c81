package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/agenthands/minutes/internal/config"
	"github.com/agenthands/minutes/internal/logger"
	"github.com/agenthands/minutes/internal/server"
)

func main() {
	envErr := godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.toml"
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg.ApplyEnv()

	log := logger.Must(cfg.Log.Level, cfg.Log.Development)
	defer log.Sync()
	if envErr != nil {
		log.Info("no .env file found, using environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := server.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize", zap.Error(err))
	}
	if err := server.Serve(ctx, c, ":"+cfg.Server.Port, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
