package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"flowmon/internal/api"
	"flowmon/internal/config"
	"flowmon/internal/db"
	"flowmon/internal/geo"
	"flowmon/internal/ingest"
	"flowmon/internal/notify"
	"flowmon/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "path to the yaml config file")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("received shutdown signal")
		cancel()
	}()

	database, err := db.New(ctx, cfg.DatabaseURL, cfg.Pool)
	if err != nil {
		log.WithError(err).Fatal("connect to database")
	}
	defer database.Close()

	if err := database.Init(ctx); err != nil {
		log.WithError(err).Fatal("initialize schema")
	}

	resolver, err := geo.New(cfg.Geo.MMDBPath, cfg.Geo.ASNPath)
	if err != nil {
		log.WithError(err).Fatal("open geolocation databases")
	}
	defer resolver.Close()

	notifier := notify.NewSender(cfg.Notify.GatewayURL, cfg.Notify.Timeout, database, log)
	feed := websocket.NewHandler(log)

	consumer := ingest.NewConsumer(database, feed, notifier, log)
	ingest.StartKafka(ctx, cfg.Ingest, consumer, log)

	server := api.NewServer(cfg, database, resolver, notifier, feed, log)
	log.Info("starting flow monitoring api")
	if err := server.Run(ctx); err != nil {
		log.WithError(err).Error("server shutdown with error")
		os.Exit(1)
	}
}
