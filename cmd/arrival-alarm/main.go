// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

//go:build linux

// Package main implements the arrival-alarm service.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/wneessen/arrival-alarm/internal/config"
	"github.com/wneessen/arrival-alarm/internal/geo"
	"github.com/wneessen/arrival-alarm/internal/history"
	"github.com/wneessen/arrival-alarm/internal/logger"
	"github.com/wneessen/arrival-alarm/internal/service"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGABRT, os.Interrupt)
	defer cancel()

	// Initialize Logger
	log := logger.New(slog.LevelError)

	confPath := flag.String("config", "", "path to the config file")
	historyLimit := flag.Int64("history", 0, "print the last n history entries of the target and exit")
	flag.Parse()

	conf, err := loadConfig(*confPath)
	if err != nil {
		log.Error("failed to load config", logger.Err(err))
		os.Exit(1)
	}
	log = logger.New(conf.LogLevel)

	if *historyLimit > 0 {
		if err = printHistory(ctx, conf, *historyLimit); err != nil {
			log.Error("failed to print history", logger.Err(err))
			os.Exit(1)
		}
		return
	}

	// Initialize the service
	serv, err := service.New(conf, log)
	if err != nil {
		log.Error("failed to initialize arrival-alarm service", logger.Err(err))
		os.Exit(1)
	}

	// Start the service loop
	log.Info("starting arrival-alarm service", slog.String("version", version),
		slog.String("commit", commit), slog.String("date", date))
	if err = serv.Run(ctx); err != nil {
		log.Error("failed to start arrival-alarm service", logger.Err(err))
	}
	log.Info("shutting down arrival-alarm service")
}

// loadConfig reads the file given on the command line, or the first config file found in the default
// directory. Without any file the defaults and environment are used.
func loadConfig(confPath string) (*config.Config, error) {
	if confPath != "" {
		return config.NewFromFile(filepath.Dir(confPath), filepath.Base(confPath))
	}
	if path, file := findConfigFile(); path != "" && file != "" {
		return config.NewFromFile(path, file)
	}
	return config.New()
}

func findConfigFile() (string, string) {
	exts := []string{"toml", "yaml", "yml", "json"}
	for _, ext := range exts {
		path := filepath.Join(config.DefaultDir(), "config."+ext)
		if _, err := os.Stat(path); err == nil {
			return filepath.Dir(path), filepath.Base(path)
		}
	}
	return "", ""
}

func printHistory(ctx context.Context, conf *config.Config, limit int64) error {
	store, err := history.New(ctx, conf)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("no history backend configured")
	}
	defer func() { _ = store.Close() }()

	target := geo.Target{ID: conf.Target.ID, Point: geo.Point{Lat: conf.Target.Lat, Lon: conf.Target.Lon}}
	entries, err := store.List(ctx, target.Key(), limit)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(os.Stdout)
	for _, entry := range entries {
		if err = encoder.Encode(entry); err != nil {
			return fmt.Errorf("failed to encode history entry: %w", err)
		}
	}
	return nil
}
