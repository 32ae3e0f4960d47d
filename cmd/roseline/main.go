package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/roselinebot/roseline/internal/bot"
	"github.com/roselinebot/roseline/internal/config"
	"github.com/roselinebot/roseline/internal/executor"
	"github.com/roselinebot/roseline/internal/store"
	"github.com/roselinebot/roseline/internal/vndb"
	"github.com/roselinebot/roseline/internal/web"
)

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "roseline").Logger()
	if env("ENV", "") == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("bad configuration")
	}

	pool, err := store.OpenPool(cfg.StorePath(), cfg.Store.Workers)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.StorePath()).Msg("failed to open store")
	}
	defer pool.Close()

	client := vndb.NewClient(cfg.VNDB.Addr)
	client.Start()
	defer client.Stop()

	exec := executor.New(client, pool)

	// Transports come and go with their dispatchers; the store, the
	// remote client and the executor stay up for the process lifetime.
	var dispatchers []*bot.Dispatcher

	if cfg.Console.Addr != "" {
		console, err := bot.ListenConsole(cfg.Console.Addr)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Console.Addr).Msg("failed to start console transport")
		}
		defer console.Close()

		d := bot.NewDispatcher(exec, console)
		dispatchers = append(dispatchers, d)
		go d.Run()
		log.Info().Str("addr", cfg.Console.Addr).Msg("console transport listening")
	}

	var webServer *web.Server
	if cfg.Web.Addr != "" {
		webServer = web.NewServer(cfg.Web.Addr, exec, cfg.Web.Secret)
		go func() {
			if err := webServer.ListenAndServe(); err != nil {
				log.Fatal().Err(err).Msg("admin web failed")
			}
		}()
	}

	if len(dispatchers) == 0 && webServer == nil {
		log.Fatal().Msg("nothing to serve; configure console.addr or web.addr")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	if webServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := webServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("admin web shutdown error")
		}
	}
	for _, d := range dispatchers {
		d.Stop()
	}

	log.Info().Msg("stopped")
}
