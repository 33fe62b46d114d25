package main

import (
	"context"
	"expvar"
	"flag"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/hilthontt/codenexus/internal/app"
	"github.com/hilthontt/codenexus/internal/infrastructure/configs"
	"github.com/hilthontt/codenexus/internal/infrastructure/logging"
	"github.com/hilthontt/codenexus/internal/infrastructure/tracing"
)

func main() {
	flag.String("config", "", "path to the config file")
	username := flag.String("username", "", "join a room on start as this user")
	roomID := flag.String("room", "", "room id to join on start")
	flag.Parse()

	cfg, err := configs.Load(configs.DetermineConfigPath(flag.CommandLine, os.Args[1:]))
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewLogger(logging.FromConfig(cfg.Logger))
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracing.InitTracer(ctx, tracing.FromConfig(tracing.DefaultServiceName, cfg.Tracing))
	if err != nil {
		logger.Fatalf("failed to initialize the tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(ctx)
	}()

	container, err := app.New(ctx, *cfg, logger, app.Deps{})
	if err != nil {
		logger.Fatalf("failed to build the client: %v", err)
	}
	defer container.Close()

	container.Start(ctx)

	if *username != "" || *roomID != "" {
		if err := container.Session.Join(ctx, *username, *roomID); err != nil {
			logger.Fatalf("failed to join room: %v", err)
		}
	}

	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	if !cfg.HTTP.Enabled {
		<-ctx.Done()
		return
	}

	api := container.API()
	if err := api.Run(ctx, api.Mount()); err != nil {
		logger.Errorf("control api stopped: %v", err)
	}
}
