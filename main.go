package main

import (
	"context"
	"fmt"
	"time"

	"PGateway/global"
	"PGateway/logger"
	"PGateway/service/chat"
	"PGateway/service/relay"
	"PGateway/service/storage"
	"PGateway/tools/safe"
	"PGateway/tools/security"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := global.Load()
	if err != nil {
		logger.Errorf("[Boot] config: %v", err)
		return
	}

	ctx := context.Background()
	pool, err := storage.OpenPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Errorf("[Boot] database: %v", err)
		return
	}
	defer pool.Close()
	participants := storage.NewParticipantStore(pool)

	var presence chat.PresenceStore
	if p, perr := storage.NewPresence(cfg.RedisURL, cfg.GatewayID); perr != nil {
		// Presence is a mirror, not a delivery path; run without it.
		logger.Warnf("[Boot] presence disabled: %v", perr)
	} else {
		presence = p
		defer p.Close()
	}

	rly := relay.New(relay.Config{URL: cfg.NatsURL, Name: "chat-gateway-" + cfg.GatewayID})
	defer rly.Close()

	registry := chat.NewRegistry()
	coordinator := chat.NewCoordinator(registry, participants, rly)
	gateway := chat.NewGateway(registry, coordinator, security.NewVerifier(cfg.JwtSecret), presence)

	// The consumer keeps retrying through broker outages; the breaker
	// inside the relay spaces the attempts out.
	safe.Go("relayConsumer", func() {
		for {
			if err := chat.StartRelayConsumer(rly, coordinator); err != nil {
				logger.Warnf("[Boot] relay consumer not started: %v", err)
				time.Sleep(5 * time.Second)
				continue
			}
			return
		}
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/ws", gateway.HandleWS)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Infof("[Boot] gateway listening on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Errorf("[Boot] server stopped: %v", err)
	}
}
