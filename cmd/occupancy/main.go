package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"table-occupancy/internal/common/logger"
	"table-occupancy/internal/config"
	"table-occupancy/internal/domain"
	"table-occupancy/internal/microservices/occupancy"
)

func main() {
	mode := flag.String("mode", "", "occupancy-service | occupancy-snapshot")
	cfgPath := flag.String("config", "config.yml", "path to YAML config")
	port := flag.Int("port", 0, "occupancy-service: http port (overrides config)")
	tenant := flag.String("tenant", "", "occupancy-snapshot: tenant id")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}

	lg := logger.NewWithLevel("bootstrap", cfg.Log.Level)
	defer lg.Sync()
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch *mode {
	case "occupancy-service":
		if err := occupancy.Run(ctx, cfg, lg.Named("occupancy-service")); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	case "occupancy-snapshot":
		if !domain.TenantID(*tenant).Valid() {
			fmt.Fprintln(os.Stderr, "--tenant is required for occupancy-snapshot")
			os.Exit(2)
		}
		// stdout carries the snapshot; keep it free of info logs
		quiet := logger.NewWithLevel("occupancy-snapshot", "error")
		if err := occupancy.Snapshot(ctx, cfg, domain.TenantID(*tenant), os.Stdout, quiet); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "--mode is required: occupancy-service | occupancy-snapshot")
		os.Exit(2)
	}
}
