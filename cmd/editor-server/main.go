package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"collabedit/config"
	"collabedit/internal/editor"
)

func main() {
	var (
		addr       = flag.String("addr", "", "Listen address (overrides config)")
		configPath = flag.String("config", "", "Path to YAML config file")
		logLevel   = flag.String("log-level", "", "Log level (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	service := editor.NewService(&editor.Config{
		MaxMessageSize: cfg.MaxMessageSize,
		WriteTimeout:   time.Duration(cfg.WriteTimeoutSec) * time.Second,
		ReadTimeout:    time.Duration(cfg.ReadTimeoutSec) * time.Second,
		PingInterval:   time.Duration(cfg.PingIntervalSec) * time.Second,
		MaxClients:     cfg.MaxClients,
		StaticDir:      cfg.StaticDir,
	}, log)
	hub := editor.NewHub(service, log)

	service.Start()
	go hub.Run()

	mux := http.NewServeMux()
	service.Routes(mux, hub)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down")
		hub.Shutdown()
		service.Shutdown()
		server.Close()
	}()

	log.WithFields(logrus.Fields{"addr": cfg.ListenAddr, "env": cfg.Env}).Info("editor server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server failed")
	}
}
