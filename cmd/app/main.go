package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"MarketPull/internal/di"
	"MarketPull/internal/usecase"
	"MarketPull/pkg/config"
	"MarketPull/pkg/server"
)

// Exit codes: 0 full success, 2 run completed but coverage fell short,
// 1 any other failure.
const exitDegraded = 2

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	phase := flag.String("phase", server.PhaseSnapshot, "run phase: snapshot or reconcile")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	runErr := app.Run(ctx, *phase)
	stop()
	app.Close()

	if runErr != nil {
		var cov *usecase.CoverageError
		if errors.As(runErr, &cov) {
			log.Printf("run degraded: %v", runErr)
			os.Exit(exitDegraded)
		}
		log.Printf("run failed: %v", runErr)
		os.Exit(1)
	}
}
