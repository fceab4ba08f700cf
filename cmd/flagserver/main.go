package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sardine-ai/go-remote-flags/server"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := server.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("error loading configuration")
	}
	if lvl, err := logrus.ParseLevel(os.Getenv("FLAGSERVER_LOG_LEVEL")); err == nil {
		logrus.SetLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(ctx, cfg.File, cfg.Refresh)
	srv.AuthKey = cfg.APIKey

	go func() {
		<-ctx.Done()
		logrus.Info("Shutting down server")
		if err := srv.Shutdown(); err != nil {
			logrus.WithError(err).Error("error shutting down server")
		}
	}()

	if err := srv.Start(cfg.Addr); err != nil {
		logrus.WithError(err).Fatal("error starting server")
	}
}
