package main

import (
	"log"
	"os"

	"carechat/internal/api"
	"carechat/internal/config"
	"carechat/internal/service/ai"
	"carechat/internal/service/assistant"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("CARECHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	strategy, err := cfg.ResponseStrategy()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// A missing credential is not fatal at boot: the handler answers every
	// chat request with a configuration error instead.
	var responder api.Responder
	if apiKey := config.APIKey(); apiKey != "" {
		assistants, err := assistant.NewService(apiKey, cfg.ProviderConfig)
		if err != nil {
			log.Fatalf("init assistant service: %v", err)
		}
		aiService, err := ai.NewService(apiKey, cfg.ProviderConfig, assistants)
		if err != nil {
			log.Fatalf("init ai service: %v", err)
		}
		responder = aiService
	} else {
		log.Printf("OPENAI_API_KEY not set; chat requests will fail with a configuration error")
	}

	handlers := api.NewHandler(responder, strategy)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	log.Printf("carechat listening on %s (strategy=%s)", addr, strategy)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
