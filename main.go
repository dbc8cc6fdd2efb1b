package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"wa-sync-service/internal/broadcast"
	"wa-sync-service/internal/config"
	"wa-sync-service/internal/db"
	"wa-sync-service/internal/handlers"
	"wa-sync-service/internal/models"
	"wa-sync-service/internal/observability"
	"wa-sync-service/internal/persistence"
	"wa-sync-service/internal/pipeline"
	"wa-sync-service/internal/platform"
	"wa-sync-service/internal/rabbitmq"
	"wa-sync-service/internal/reconciler"
	"wa-sync-service/internal/repositories"
	"wa-sync-service/internal/stream"
	"wa-sync-service/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	database, err := db.Connect(cfg.DatabaseDSN, cfg.DBMaxConns)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := observability.SetupTracing(context.Background(), cfg.OTLPEndpoint, "wa-sync-service")
		if err != nil {
			log.Printf("tracing disabled: %v", err)
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Printf("tracing shutdown error: %v", err)
				}
			}()
		}
	}

	if cfg.AMQPURL != "" {
		amqpPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Printf("operational event publishing disabled: %v", err)
		} else {
			observability.SetPublisher(amqpPublisher)
			defer amqpPublisher.Close()
		}
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer auditPublisher.Close()
	auditEmitter := telemetry.NewAuditEmitter(auditPublisher, "audit.events", "wa-sync-service", cfg.Environment)

	messageRepo := repositories.NewMessageRepo(database)
	contactRepo := repositories.NewContactRepo(database)
	chatRepo := repositories.NewChatRepo(database)
	groupRepo := repositories.NewGroupRepo(database)
	instanceRepo := repositories.NewInstanceRepo(database)

	gateway := persistence.NewGateway(cfg.GatewayLimit)
	hub := broadcast.NewHub()
	defer hub.Shutdown()

	platformClient, err := platform.NewClient(cfg.PlatformURL, cfg.PlatformKey, nil)
	if err != nil {
		log.Fatalf("invalid platform configuration: %v", err)
	}

	rec := reconciler.New(platformClient, gateway, groupRepo, contactRepo, chatRepo, hub, auditEmitter, reconciler.Config{
		Debounce:   cfg.ReconcileDebounce,
		BatchDelay: cfg.ReconcileBatchDelay,
	})
	defer rec.Shutdown()

	eventRouter := pipeline.NewRouter(gateway, messageRepo, contactRepo, chatRepo, instanceRepo, hub, rec)

	senders := map[string]handlers.MessageSender{}
	for _, instance := range cfg.StreamInstances {
		client, err := stream.NewClient(stream.Config{
			BaseURL:        cfg.PlatformURL,
			APIKey:         cfg.PlatformKey,
			Instance:       instance,
			ReconnectDelay: cfg.StreamReconnectDelay,
			MaxAttempts:    cfg.StreamMaxAttempts,
			OnFatal: func(instance string, err error) {
				auditEmitter.Emit(context.Background(), "ERROR", "live stream exhausted reconnect attempts", instance)
				hub.Publish(models.NotifyConnectionUpdate, models.ConnectionUpdatePayload{
					Instance: instance,
					State:    models.ConnectionClosed,
				})
				if gerr := gateway.Do(context.Background(), func(ctx context.Context) error {
					return instanceRepo.UpsertConnectionState(ctx, instance, models.ConnectionClosed, nil)
				}); gerr != nil {
					log.Printf("failed to record closed state instance=%s: %v", instance, gerr)
				}
			},
		}, eventRouter)
		if err != nil {
			log.Fatalf("invalid stream configuration instance=%s: %v", instance, err)
		}
		if err := client.Start(); err != nil {
			log.Printf("initial stream connect failed instance=%s: %v", instance, err)
		}
		defer client.Shutdown()
		senders[instance] = client
	}

	webhookHandler := handlers.NewWebhookHandler(eventRouter)
	eventsHandler := handlers.NewEventsHandler(hub)
	messageHandler := handlers.NewMessageHandler(senders)
	groupHandler := handlers.NewGroupHandler(rec)
	instanceHandler := handlers.NewInstanceHandler(platformClient, instanceRepo)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("wa-sync-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	router.POST("/webhook/:instance/:event", webhookHandler.Receive)
	router.POST("/webhook/:instance", webhookHandler.Receive)
	router.GET("/events", eventsHandler.Stream)
	router.POST("/messages/send", messageHandler.Send)
	router.POST("/groups/refresh", groupHandler.Refresh)
	router.GET("/instances/:instance/status", instanceHandler.Status)
	router.POST("/instances/:instance/connect", instanceHandler.Pair)
	router.GET("/healthz", handlers.Healthz(database, senders))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, auditEmitter, hub, cfg.DebugRoutes)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
