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

// Package integration embeds the chat subsystem into a host router: the REST
// routes, the socket endpoint and the optional Redis hooks.
package integration

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/angad2803/Thapar-Marketplace/backend/chat"
	"github.com/angad2803/Thapar-Marketplace/backend/gateway"
	"github.com/angad2803/Thapar-Marketplace/backend/handlers"
	"github.com/angad2803/Thapar-Marketplace/backend/metrics"
	"github.com/angad2803/Thapar-Marketplace/backend/middleware"
	"github.com/angad2803/Thapar-Marketplace/backend/storage"
	"github.com/angad2803/Thapar-Marketplace/backend/storage/redis"
)

// Config holds configuration for the chat integration
type Config struct {
	Store storage.Store
	// Redis is optional; without it presence is process-local and no notices
	// are published.
	Redis      *goredis.Client
	InstanceID string
	JWTSecret  string
	JWTIssuer  string
	Gateway    gateway.Config
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// ChatIntegration wires storage, the chat service, the gateway and the REST
// handlers together.
type ChatIntegration struct {
	store     storage.Store
	auth      *middleware.Authenticator
	service   *chat.Service
	gateway   *gateway.Gateway
	mirror    *redis.PresenceMirror
	metrics   *metrics.Metrics
	logger    *zap.Logger
	jwtSecret string

	chatHandler         *handlers.ChatHandler
	keyHandler          *handlers.KeyHandler
	notificationHandler *handlers.NotificationHandler
}

func NewChatIntegration(config *Config) (*ChatIntegration, error) {
	if config.Store == nil {
		return nil, &ValidationError{Message: "store is not configured"}
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := config.Metrics
	if m == nil {
		m = metrics.New()
	}

	var (
		svcOpts []chat.Option
		gwOpts  = []gateway.Option{gateway.WithMetrics(m)}
		mirror  *redis.PresenceMirror
	)
	if config.Redis != nil {
		mirror = redis.NewPresenceMirror(config.Redis, config.InstanceID)
		svcOpts = append(svcOpts, chat.WithNotifier(redis.NewNotifier(config.Redis)))
		gwOpts = append(gwOpts, gateway.WithPresenceMirror(mirror))
	}

	auth := middleware.NewAuthenticator(config.JWTSecret, config.JWTIssuer)
	svc := chat.NewService(config.Store, logger.Named("chat"), svcOpts...)
	gw := gateway.New(config.Gateway, auth, svc, logger.Named("gateway"), gwOpts...)

	return &ChatIntegration{
		store:               config.Store,
		auth:                auth,
		service:             svc,
		gateway:             gw,
		mirror:              mirror,
		metrics:             m,
		logger:              logger,
		jwtSecret:           config.JWTSecret,
		chatHandler:         handlers.NewChatHandler(svc, gw, m, logger.Named("rest")),
		keyHandler:          handlers.NewKeyHandler(config.Store, logger.Named("rest")),
		notificationHandler: handlers.NewNotificationHandler(config.Store, logger.Named("rest")),
	}, nil
}

// RegisterRoutes adds chat routes to an existing router
// If authMiddleware is nil, it will use the built-in JWT validation
func (c *ChatIntegration) RegisterRoutes(router *mux.Router, authMiddleware func(http.Handler) http.Handler) {
	router.Handle("/socket", c.gateway).Methods("GET")
	router.HandleFunc("/health", handlers.Health(c.store)).Methods("GET")
	router.Handle("/metrics", c.metrics.Handler()).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	if authMiddleware != nil {
		api.Use(authMiddleware)
	} else {
		api.Use(c.auth.Middleware)
	}
	api.Use(middleware.SyncUsers(c.store, c.logger.Named("auth")))

	// Specific chat routes before /chat/{userId}.
	api.HandleFunc("/chat/conversations", c.chatHandler.Conversations).Methods("GET", "OPTIONS")
	api.HandleFunc("/chat/unread/count", c.chatHandler.UnreadCount).Methods("GET", "OPTIONS")
	api.HandleFunc("/chat", c.chatHandler.Send).Methods("POST", "OPTIONS")
	api.HandleFunc("/chat/{id}/read", c.chatHandler.MarkRead).Methods("PUT", "OPTIONS")
	api.HandleFunc("/chat/{id}", c.chatHandler.Delete).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/chat/{userId}", c.chatHandler.Messages).Methods("GET", "OPTIONS")

	api.HandleFunc("/auth/public-key", c.keyHandler.PublishKey).Methods("PUT", "OPTIONS")
	api.HandleFunc("/auth/public-key/{userId}", c.keyHandler.GetPublicKey).Methods("GET", "OPTIONS")

	api.HandleFunc("/notifications", c.notificationHandler.List).Methods("GET", "OPTIONS")
	api.HandleFunc("/notifications/read-all", c.notificationHandler.MarkAllRead).Methods("PUT", "OPTIONS")
	api.HandleFunc("/notifications/unread-count", c.notificationHandler.UnreadCount).Methods("GET", "OPTIONS")
}

func (c *ChatIntegration) GetStore() storage.Store { return c.store }

func (c *ChatIntegration) Gateway() *gateway.Gateway { return c.gateway }

func (c *ChatIntegration) Authenticator() *middleware.Authenticator { return c.auth }

// ValidateSetup checks if the chat module is properly configured
func (c *ChatIntegration) ValidateSetup(ctx context.Context) error {
	if c.jwtSecret == "" {
		return &ValidationError{Message: "JWT secret is not configured"}
	}
	if err := c.store.Ping(ctx); err != nil {
		return errors.Join(&ValidationError{Message: "database is unreachable"}, err)
	}
	return nil
}

// Shutdown closes every socket and clears this instance's presence entries.
func (c *ChatIntegration) Shutdown(ctx context.Context) {
	c.gateway.Close()
	if c.mirror == nil {
		return
	}
	n, err := c.mirror.ClearInstance(ctx)
	if err != nil {
		c.logger.Warn("clear presence", zap.Error(err))
		return
	}
	c.logger.Info("cleared presence", zap.Int("users", n))
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
