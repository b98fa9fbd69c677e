package main

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mcdev12/tourney-auction/go/internal/auction/config"
	"github.com/mcdev12/tourney-auction/go/internal/auction/service"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Connect API
	path, handler := services.Auction.Handler()
	r.Mount(path, handler)

	// WebSocket and REST gateway
	services.Gateway.Routes(r)

	r.Method(http.MethodGet, "/health", services.Health)
	r.Method(http.MethodGet, "/metrics", services.Metrics.Handler())

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{
			"Grpc-Status",
			"Grpc-Message",
			service.ErrorKindHeader,
		},
	})

	// Setup HTTP/2 server; no write timeout since websockets and streams stay open
	return &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:     h2c.NewHandler(c.Handler(r), &http2.Server{}),
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}
}
