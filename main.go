package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"talkio/internal/auth"
	"talkio/internal/chat"
	"talkio/internal/config"
	"talkio/internal/handlers"
	"talkio/internal/observability"
	"talkio/internal/rabbitmq"
	"talkio/internal/telemetry"
	"talkio/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()
	shutdownTracing, err := telemetry.SetupTracing(ctx, "talkio", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		_ = shutdownTracing(ctx)
	}()

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer auditPublisher.Close()
	audit := telemetry.NewAuditEmitter(auditPublisher, cfg.AuditRoutingKey, "talkio", cfg.Environment)

	if cfg.AMQPURL != "" {
		eventPublisher, err := observability.NewAMQPConnEventPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Printf("ws event publishing disabled: %v", err)
		} else {
			defer eventPublisher.Close()
			observability.SetConnEventPublisher(eventPublisher)
		}
	}

	store := auth.NewStore()
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	authService := auth.NewService(store, tokens)

	clock := chat.SystemClock()
	sessions := chat.NewSessionRegistry()
	groups := chat.NewGroupDirectory(clock)
	limiter := chat.NewRateLimiter(clock, cfg.RateLimitMax, cfg.RateLimitWindow)

	hub := ws.NewHub()
	engine := chat.NewEngine(sessions, groups, limiter, authService, hub, cfg.MaxMessageLength)

	wsHandler := ws.NewChatWebSocketHandler(hub, engine)
	authHandler := handlers.NewAuthHandler(authService, audit)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("talkio"))
	router.Use(observability.HTTPMetricsMiddleware())

	router.POST("/auth/signup", authHandler.Signup)
	router.POST("/auth/login", authHandler.Login)
	router.POST("/auth/verify", authHandler.Verify)
	router.GET("/auth/test", authHandler.Test)

	router.GET("/ws", wsHandler.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	// Static frontend, when configured. API routes take precedence.
	if cfg.StaticDir != "" {
		fileServer := http.FileServer(http.Dir(cfg.StaticDir))
		router.NoRoute(gin.WrapH(fileServer))
	}

	log.Printf("listening on http://localhost:%s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
