// Command marketd runs the marketplace server: the agent registry, the
// action execution endpoint, the websocket action feed, and a Prometheus
// metrics listener on a separate port.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"bazaar/internal/config"
	"bazaar/internal/logging"
	"bazaar/internal/models"
	"bazaar/internal/monitoring"
	"bazaar/internal/protocol"
	"bazaar/internal/server"
)

var (
	port        = flag.Int("port", 0, "API server port (overrides config)")
	metricsPort = flag.Int("metrics-port", 0, "Metrics server port (overrides config)")
	configFile  = flag.String("config", "", "Path to configuration file")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *metricsPort != 0 {
		cfg.Server.MetricsPort = *metricsPort
	}
	logging.Init(cfg.Logging)

	store, err := config.OpenStore(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer store.Close()

	metrics := monitoring.NewMetrics()
	srv := server.New(store, metrics, server.Options{
		AuthSecret:       cfg.Server.AuthSecret,
		FetchPersistence: protocol.FetchPersistence(cfg.Experiment.FetchPersistence),
		SearchableText: models.SearchableTextOptions{
			IndexMenuPrices: cfg.Experiment.IndexMenuPrices,
			IndexAmenities:  cfg.Experiment.IndexAmenities,
		},
	})

	go startMetricsServer(cfg.Server.MetricsPort, metrics)

	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Router(),
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown")
		}
	}()

	log.Info().Int("port", cfg.Server.Port).Str("backend", cfg.Database.Backend).Msg("marketplace listening")
	if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}
}

func startMetricsServer(port int, metrics *monitoring.Metrics) {
	router := gin.New()
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	log.Info().Int("port", port).Msg("metrics listening")
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), router); err != nil {
		log.Error().Err(err).Msg("metrics server error")
	}
}
