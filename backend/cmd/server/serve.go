// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/angad2803/Thapar-Marketplace/backend/gateway"
	"github.com/angad2803/Thapar-Marketplace/backend/integration"
	"github.com/angad2803/Thapar-Marketplace/backend/metrics"
	"github.com/angad2803/Thapar-Marketplace/backend/middleware"
	"github.com/angad2803/Thapar-Marketplace/backend/storage/redis"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat REST API and socket gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "chat"
	}
	return host + "-" + uuid.NewString()[:8]
}

func serve(ctx context.Context) error {
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	var rdb *goredis.Client
	if cfg.Redis.URL != "" {
		rdb, err = redis.NewClient(cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis unreachable: %w", err)
		}
	}

	id := instanceID()
	chat, err := integration.NewChatIntegration(&integration.Config{
		Store:      store,
		Redis:      rdb,
		InstanceID: id,
		JWTSecret:  cfg.Auth.JWTSecret,
		JWTIssuer:  cfg.Auth.JWTIssuer,
		Gateway: gateway.Config{
			StoreTimeout:    cfg.Gateway.StoreTimeout,
			EventsPerSecond: cfg.Gateway.EventsPerSecond,
			SendBuffer:      cfg.Gateway.SendBuffer,
			MaxMessageBytes: cfg.Gateway.MaxMessageBytes,
			AllowedOrigins:  cfg.Server.AllowedOrigins,
		},
		Logger:  logger,
		Metrics: metrics.New(),
	})
	if err != nil {
		return err
	}
	if err := chat.ValidateSetup(ctx); err != nil {
		return err
	}

	r := mux.NewRouter()
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	chat.RegisterRoutes(r, nil)

	if rdb != nil {
		go watchPresence(ctx, redis.NewPresenceMirror(rdb, id), id)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("chat server starting",
			zap.String("port", cfg.Server.Port),
			zap.String("instance", id),
			zap.String("driver", cfg.Database.Driver),
			zap.Bool("redis", rdb != nil))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Hijacked sockets are not tracked by Shutdown, close them first.
	chat.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// watchPresence logs presence changes made by other instances.
func watchPresence(ctx context.Context, mirror *redis.PresenceMirror, self string) {
	sub := mirror.SubscribePresence(ctx)
	defer sub.Close()

	ch := sub.Channel()
	for {
		var msg *goredis.Message
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			msg = m
		}

		var change redis.PresenceChange
		if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
			logger.Warn("bad presence change", zap.Error(err))
			continue
		}
		if change.Instance == self {
			continue
		}
		logger.Debug("remote presence",
			zap.String("event", change.Event),
			zap.String("user_id", change.UserID),
			zap.String("instance", change.Instance))
	}
}
