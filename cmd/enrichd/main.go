package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/deusflow/enrich/internal/app"
	"github.com/deusflow/enrich/internal/config"
	"github.com/deusflow/enrich/internal/logger"
)

func main() {
	once := flag.Bool("once", false, "run a single ingestion tick and exit")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Debug, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if *once {
		if err := a.RunOnce(ctx); err != nil {
			log.Error("tick failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := a.Run(ctx); err != nil {
		log.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
}
