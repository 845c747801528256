package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/w-h-a/docqa/server"
	httpserver "github.com/w-h-a/docqa/server/http"
)

type ServeCmd struct {
	Address         string        `help:"Listen address" default:":8080" env:"DOCQA_ADDRESS"`
	ShutdownTimeout time.Duration `help:"Grace period for in-flight requests" default:"10s" env:"DOCQA_SHUTDOWN_TIMEOUT"`
}

func (c *ServeCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := g.Assistant(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	srv := httpserver.NewServer(
		server.WithAddress(c.Address),
		server.WithShutdownTimeout(c.ShutdownTimeout),
	)
	srv.Handle(httpserver.NewHandler(a, g.MaxUploadBytes))

	if err := srv.Start(); err != nil {
		return err
	}

	<-ctx.Done()

	slog.Info("shutting down")

	return srv.Stop(context.Background())
}
