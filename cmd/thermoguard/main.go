package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"thermoguard/internal/config"
	"thermoguard/internal/logger"
	"thermoguard/internal/processor"
)

func main() {
	configDir := flag.String("config", "", "directory containing thermoguard.yaml")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger.Init(cfg.Log.Level)
	log := logger.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Float64("temperature_lower", cfg.Alerts.Temperature.Lower).
		Float64("temperature_upper", cfg.Alerts.Temperature.Upper).
		Float64("smoke_threshold", cfg.Alerts.Smoke.Threshold).
		Dur("cooldown", cfg.Alerts.Cooldown).
		Str("realtime", cfg.Realtime.Transport).
		Str("store", cfg.Store.Backend).
		Strs("sinks", cfg.Notify.Sinks).
		Msg("starting thermoguard")

	if err := processor.New(cfg).Run(ctx); err != nil {
		log.Error().Err(err).Msg("processor exited")
		stop()
		os.Exit(1)
	}

	log.Info().Msg("exited")
}
