package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"planbook/internal/config"
	"planbook/internal/database"
	"planbook/internal/logging"
	"planbook/internal/maintenance"
	"planbook/internal/server"
)

func main() {
	configPath := flag.String("config", "planbook.yaml", "path to the config file")
	flag.Parse()

	// Optional .env for local development; absence is fine.
	_ = godotenv.Load()

	conf, err := config.Load(*configPath)
	if err != nil {
		logging.Setup("info", "text").Error("load config", "error", err, "path", *configPath)
		os.Exit(1)
	}

	logger := logging.Setup(conf.LogLevel, conf.LogFormat)

	db, err := database.Open(conf.DBPath)
	if err != nil {
		logger.Error("open database", "error", err, "path", conf.DBPath)
		os.Exit(1)
	}
	defer db.Close()

	srv := server.New(db, logger)

	maint := maintenance.New(srv.Events(), logger.With("component", "maintenance"))
	if err := maint.Start(conf.MaintenanceCron); err != nil {
		logger.Error("start maintenance schedule", "error", err, "spec", conf.MaintenanceCron)
		os.Exit(1)
	}
	defer maint.Stop()

	httpServer := &http.Server{
		Addr:         conf.Listen,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0, // live streams stay open indefinitely
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("planbook listening", "addr", conf.Listen, "db", conf.DBPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
