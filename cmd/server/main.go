// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

// room-coordinator is a per-room message-routing hub for a realtime
// multiplayer session: IRC-style chat, a map-of-maps CRDT with dead-hand
// ownership, a document CRDT persisted to storage, and a distributed
// lock service, all fanned out over one websocket per client.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/logging"
	"github.com/redis/go-redis/v9"

	"roomcoordinator/internal/config"
	"roomcoordinator/internal/coordinator"
	"roomcoordinator/internal/httpfront"
	"roomcoordinator/internal/keepalive"
	"roomcoordinator/internal/roomreg"
	"roomcoordinator/internal/storage"
)

func main() {
	cfg := config.Load()
	log := createLogger(cfg)

	store := newStore(cfg, log)
	factory := coordinator.NewRoomFactory(cfg.SchemaArrays, cfg.DispatchQueue, log)
	rooms := roomreg.New(store, factory)
	coord := coordinator.New(rooms, log, cfg.LockTimeout)

	keepaliveCfg := keepalive.Config{
		PingInterval:  cfg.KeepalivePingInt,
		PongWaitTime:  cfg.KeepalivePongWait,
		WriteDeadline: cfg.WriteDeadline,
	}
	front := httpfront.New(coord, log, keepaliveCfg)

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      front.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Infof("starting HTTP server on %s", httpServer.Addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Infof("received signal: %v, initiating graceful shutdown", sig)
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Errorf("server error: %v", err)
			panic(err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Infof("shutting down server...")
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Errorf("server shutdown error: %v", err)
	}
	log.Infof("server shutdown complete")
}

// newStore picks the durable storage backend: Redis when configured and
// reachable, otherwise an in-process map (development/test only — it
// does not survive a restart, so the lazy room initializer in
// coordinator.NewRoomFactory simply finds nothing to load).
func newStore(cfg *config.Config, log logging.LeveledLogger) storage.KV {
	if cfg.RedisAddr == "" {
		log.Warnf("no redis address configured, using in-memory storage")
		return storage.NewMemoryStore()
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warnf("redis at %s unreachable (%v), falling back to in-memory storage", cfg.RedisAddr, err)
		return storage.NewMemoryStore()
	}

	return storage.NewBreakerStore("redis", storage.NewRedisStore(rdb, "roomcoordinator"))
}

// createLogger builds a pion/logging logger at the level named by the
// config, matching the teacher's createLogger.
func createLogger(cfg *config.Config) logging.LeveledLogger {
	loggerFactory := logging.NewDefaultLoggerFactory()

	switch cfg.LogLevel {
	case "debug":
		loggerFactory.DefaultLogLevel = logging.LogLevelDebug
	case "info":
		loggerFactory.DefaultLogLevel = logging.LogLevelInfo
	case "warn":
		loggerFactory.DefaultLogLevel = logging.LogLevelWarn
	case "error":
		loggerFactory.DefaultLogLevel = logging.LogLevelError
	default:
		loggerFactory.DefaultLogLevel = logging.LogLevelInfo
	}

	return loggerFactory.NewLogger(fmt.Sprintf("room-coordinator[%s]", cfg.Env))
}
