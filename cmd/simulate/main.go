// Command simulate runs one experiment end to end: it starts an in-process
// marketplace, registers the businesses and customers from the experiment
// data files, and drives them with the launcher until every customer is
// done.
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

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"bazaar/internal/agents"
	"bazaar/internal/client"
	"bazaar/internal/config"
	"bazaar/internal/logging"
	"bazaar/internal/models"
	"bazaar/internal/monitoring"
	"bazaar/internal/protocol"
	"bazaar/internal/server"
)

var (
	configFile     = flag.String("config", "", "Path to configuration file")
	businessesFile = flag.String("businesses", "", "Business profiles file (overrides config)")
	customersFile  = flag.String("customers", "", "Customer profiles file (overrides config)")
	llmModel       = flag.String("model", "gpt-4o-mini", "Model for agent decisions")
	scripted       = flag.Bool("scripted", false, "Use scripted decisions instead of a model")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}
	if *businessesFile != "" {
		cfg.Experiment.BusinessesFile = *businessesFile
	}
	if *customersFile != "" {
		cfg.Experiment.CustomersFile = *customersFile
	}
	logging.Init(cfg.Logging)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("simulation failed")
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	profiles, err := loadProfiles(cfg.Experiment)
	if err != nil {
		return err
	}

	var model llms.LLM
	if !*scripted {
		model, err = openai.New(openai.WithModel(*llmModel))
		if err != nil {
			return fmt.Errorf("initialize model: %w", err)
		}
	}

	store, err := config.OpenStore(cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := server.New(store, monitoring.NewMetrics(), server.Options{
		AuthSecret:       cfg.Server.AuthSecret,
		FetchPersistence: protocol.FetchPersistence(cfg.Experiment.FetchPersistence),
		SearchableText: models.SearchableTextOptions{
			IndexMenuPrices: cfg.Experiment.IndexMenuPrices,
			IndexAmenities:  cfg.Experiment.IndexAmenities,
		},
	})
	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Router(),
	}
	go func() {
		if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Error().Err(err).Msg("marketplace server error")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		apiServer.Shutdown(shutdownCtx)
	}()

	baseURL := fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	launcher := agents.NewLauncher()
	businesses, customers := 0, 0
	for _, profile := range profiles {
		cl := client.New(baseURL, client.DefaultRetryPolicy())
		switch profile.Type {
		case models.ParticipantBusiness:
			launcher.AddDependent(agents.NewBusinessRuntime(
				cl, profile, decisionsFor(profile, model, cfg.Experiment), cfg.Experiment.PollInterval))
			businesses++
		case models.ParticipantCustomer:
			launcher.AddPrimary(agents.NewCustomerRuntime(
				cl, profile, decisionsFor(profile, model, cfg.Experiment), cfg.Experiment.PollInterval, cfg.Experiment.MaxSteps))
			customers++
		}
	}
	log.Info().Int("businesses", businesses).Int("customers", customers).
		Str("search_algorithm", cfg.Experiment.SearchAlgorithm).Msg("starting experiment")

	return launcher.Run(ctx)
}

// loadProfiles reads the configured data files; either may hold businesses,
// customers, or both.
func loadProfiles(cfg config.ExperimentConfig) ([]models.AgentProfile, error) {
	var profiles []models.AgentProfile
	seen := map[string]bool{}
	for _, path := range []string{cfg.BusinessesFile, cfg.CustomersFile} {
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		loaded, err := config.LoadExperimentData(path)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, loaded...)
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no agent profiles configured")
	}
	return profiles, nil
}

// decisionsFor picks the decision client for one agent. Scripted customers
// run a single search so a keyless dry run still exercises the full loop.
func decisionsFor(profile models.AgentProfile, model llms.LLM, cfg config.ExperimentConfig) agents.DecisionClient {
	if model != nil {
		return agents.NewLLMDecisionClient(model, 0)
	}
	if profile.Type == models.ParticipantCustomer {
		query := ""
		if profile.Customer != nil {
			query = profile.Customer.Request
		}
		return agents.NewScriptedDecisions(
			agents.Decision{Action: models.SearchAction{Query: query, Algorithm: cfg.SearchAlgorithm}},
			agents.Decision{Done: true, Reason: "scripted run complete"},
		)
	}
	return agents.NewScriptedDecisions()
}
