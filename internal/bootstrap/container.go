package bootstrap

import (
	"context"
	"errors"
	"log"
	"time"

	"tourbook-chat/internal/config"
	"tourbook-chat/internal/controller"
	"tourbook-chat/internal/handler"
	"tourbook-chat/internal/pkg/logger"
	"tourbook-chat/internal/pkg/serverutils"
	"tourbook-chat/internal/repository/memory"
	"tourbook-chat/internal/repository/unitofwork"
	"tourbook-chat/internal/service"
	"tourbook-chat/internal/websocket"
	"tourbook-chat/pkg/llm/factory"

	pktNats "tourbook-chat/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	SupportChatController controller.ISupportChatController
	OperatorController    controller.IOperatorController

	// WebSockets & channel fan-out
	SupportChannelHandler *handler.SupportChannelHandler
	WebSocketHub          *websocket.Hub

	// Background Services (started by Start)
	RelayService service.IRelayService
	NatsConsumer *pktNats.Consumer

	Logger logger.ILogger

	cfg     *config.Config
	closers []func()
}

// NewContainer wires the backend. A nil db runs on in-memory repositories.
func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())

	var uowFactory unitofwork.RepositoryFactory
	if db != nil {
		uowFactory = unitofwork.NewRepositoryFactory(db)
	} else {
		log.Println("[WARN] DB_CONNECTION_STRING is empty, using in-memory repositories")
		uowFactory = memory.NewRepositoryFactory(memory.NewDatabase())
	}

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	c := &Container{Logger: sysLogger, cfg: cfg}
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	// 3. LLM Provider
	llmProvider, err := factory.NewLLMProvider(cfg.Ai.LLMProvider, cfg.Ai.LLMModel, cfg.Ai.OllamaBaseURL)
	switch {
	case errors.Is(err, factory.ErrDisabled):
		log.Println("[INFO] LLM Provider disabled, ai mode answers 503")
	case err != nil:
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	default:
		log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)
	}

	// 4. Infrastructure
	rdb := connectRedis(cfg.Realtime.RedisURL)
	if rdb != nil {
		c.closers = append(c.closers, func() { _ = rdb.Close() })
	}

	wsLogger := logger.NewIsolatedLogger(cfg.App.ChannelLogFilePath, !cfg.IsProduction())
	wsHub := websocket.NewHub(rdb, wsLogger)

	// Channel events go to JetStream when NATS is reachable; the durable
	// consumer feeds them back into the hub. Without NATS the relay writes
	// straight into the hub.
	var sink service.ChannelSink = wsHub
	if cfg.Realtime.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.Realtime.NatsURL, cfg.Realtime.ChannelPrefix, sysLogger)
		switch {
		case err != nil:
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		case !natsPub.Connected():
			log.Printf("[WARN] NATS at %s is unreachable, delivering channel events locally", cfg.Realtime.NatsURL)
			natsPub.Close()
		default:
			consumer, err := pktNats.NewConsumer(cfg.Realtime.NatsURL, wsLogger)
			if err != nil {
				log.Printf("[WARN] Failed to connect to NATS Consumer: %v", err)
				natsPub.Close()
				break
			}
			sink = natsPub
			c.NatsConsumer = consumer
			c.closers = append(c.closers, consumer.Close, natsPub.Close)
		}
	}

	publisherService := service.NewPublisherService(cfg.Realtime.EventTopic, pubSub)
	relayService := service.NewRelayService(pubSub, cfg.Realtime.EventTopic, sink, sysLogger)

	// 5. Services
	supportChatService := service.NewSupportChatService(
		uowFactory,
		publisherService,
		llmProvider,
		memory.NewSessionStatusCache(time.Minute),
		sysLogger,
		service.SupportChatOptions{
			ChannelPrefix: cfg.Realtime.ChannelPrefix,
			HistoryLimit:  cfg.App.HistoryLimit,
			SystemPrompt:  cfg.Ai.SystemPrompt,
			ContextWindow: cfg.Ai.ContextWindow,
		},
	)

	// 6. Controllers
	var sendLimiter *serverutils.UserRateLimiter
	if cfg.App.SendRatePerSecond > 0 {
		sendLimiter = serverutils.NewUserRateLimiter(cfg.App.SendRatePerSecond, cfg.App.SendBurst, 10*time.Minute)
	}
	c.SupportChatController = controller.NewSupportChatController(supportChatService, cfg.App.JWTSecret, sendLimiter)
	c.OperatorController = controller.NewOperatorController(supportChatService, cfg.App.JWTSecret)
	c.SupportChannelHandler = handler.NewSupportChannelHandler(wsHub, cfg.App.JWTSecret, cfg.Realtime.ChannelPrefix, wsLogger)
	c.WebSocketHub = wsHub
	c.RelayService = relayService
	return c
}

// Start runs the hub, the relay and, with NATS, the durable consumer. They
// stop when ctx is done.
func (c *Container) Start(ctx context.Context) error {
	go c.WebSocketHub.Run(ctx)

	if err := c.RelayService.Start(ctx); err != nil {
		return err
	}

	if c.NatsConsumer != nil {
		subject := c.cfg.Realtime.ChannelPrefix + ".>"
		if err := c.NatsConsumer.Consume(ctx, subject, c.cfg.Realtime.Durable, c.WebSocketHub.Deliver); err != nil {
			return err
		}
	}
	return nil
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func connectRedis(url string) *redis.Client {
	if url == "" {
		return nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: url,
		}
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v, cluster fan-out disabled", err)
		_ = rdb.Close()
		return nil
	}
	return rdb
}
