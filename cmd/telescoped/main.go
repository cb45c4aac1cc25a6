// Telescoped is the radio telescope fleet daemon.
//
// It loads configuration, opens the booking store, starts the telescope
// pipelines, and serves the HTTP/WebSocket API. Shutdown is handled
// gracefully on SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/svartdal/telescoped/internal/app"
	"github.com/svartdal/telescoped/internal/config"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "/etc/telescoped/telescoped.toml", "Path to config TOML")
		bind       = pflag.String("bind", "", "HTTP bind address (overrides config)")
	)
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if os.IsNotExist(err) && !pflag.CommandLine.Changed("config") {
			// No config file at the default location: run the built-in
			// simulated telescope.
			cfg = config.Default()
		} else {
			log.Fatalf("config load failed: %v", err)
		}
	}

	logger := log.New(os.Stdout, "telescoped ", log.LstdFlags|log.Lmicroseconds)

	a, err := app.New(app.Options{
		Logger: logger,
		Cfg:    cfg,
		Bind:   *bind,
	})
	if err != nil {
		logger.Fatalf("startup failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("telescoped failed: %v", err)
	}

	// Brief pause so in-flight log writes can flush before exit.
	time.Sleep(50 * time.Millisecond)
}
