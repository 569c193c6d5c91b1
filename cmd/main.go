// Package main is the entry point for the agent gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/trustgate/agent-gateway/internal/config"
	"github.com/trustgate/agent-gateway/internal/gateway"
	"github.com/trustgate/agent-gateway/internal/monitoring"
	"github.com/trustgate/agent-gateway/internal/store"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("failed to load configuration")
	}

	logCfg := cfg.Monitoring.Logging
	if *debug {
		logCfg.Level = "debug"
	}
	monitoring.Global(logCfg)

	log.Info().
		Int("port", cfg.Server.Port).
		Bool("compression", cfg.Pipeline.Compression.Enabled).
		Bool("discovery", cfg.Pipeline.Discovery.Enabled).
		Str("store", cfg.Store.Path).
		Msg("configuration loaded")

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("failed to open store")
	}
	defer st.Close()

	gw := gateway.New(cfg, st)
	srv := gw.Server()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("gateway shutdown error")
		}
	}()

	log.Info().Str("addr", srv.Addr).Msg("agent gateway listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("gateway error")
	}

	log.Info().Msg("agent gateway stopped")
}
