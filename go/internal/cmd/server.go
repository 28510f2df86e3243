package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/livequiz/go/internal/game/service"
)

func setupServer(cfg Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{service.ReasonHeader},
	})

	// Register quiz procedures
	services.Quiz.RegisterRoutes(mux, service.Options{
		RequestTimeout: cfg.RequestTimeout,
		JoinRateLimit:  cfg.JoinRateLimit,
	})

	// Websocket and state routes
	services.Gateway.RegisterRoutes(mux)

	setupHealthCheck(mux, services)

	// Wrap with CORS
	handler := c.Handler(mux)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	Games       int    `json:"games"`
	Subscribers int    `json:"subscribers"`
	Connections int    `json:"connections"`
}

func setupHealthCheck(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		games, subscribers := services.Hub.Stats()
		resp := healthResponse{
			Status:      "ok",
			Games:       games,
			Subscribers: subscribers,
			Connections: services.Gateway.Stats().TotalConnections,
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
	if services.RelayHealth != nil {
		mux.Handle("/health/relay", services.RelayHealth)
	}
}
