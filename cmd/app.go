package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jonboulle/clockwork"

	"github.com/danielolaszy/arisa/internal/config"
	"github.com/danielolaszy/arisa/internal/engine"
	"github.com/danielolaszy/arisa/internal/jira"
	"github.com/danielolaszy/arisa/internal/logging"
)

// app holds everything a command needs to process tickets.
type app struct {
	cfg        *config.Config
	client     *jira.Client
	dispatcher *engine.Dispatcher
	poller     *engine.Poller
}

// newApp loads the configuration, connects to the tracker and builds the module registry.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.SetupLogger(os.Stdout, logging.LogLevel(cfg.Logging.Level), logging.Format(cfg.Logging.Format))

	client, err := jira.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := client.Verify(ctx); err != nil {
		return nil, err
	}

	clock := clockwork.NewRealClock()
	entries, err := engine.NewRegistry(cfg, client, clock)
	if err != nil {
		return nil, fmt.Errorf("failed to build modules: %w", err)
	}

	dispatcher := engine.NewDispatcher(client.Username(), entries)
	poller := engine.NewPoller(client, dispatcher, engine.NewCache(clock, cfg.Cache.TTL), clock, engine.PollerConfig{
		Projects: cfg.Issues.Projects,
		Interval: cfg.Issues.CheckInterval,
		Lookback: cfg.Issues.Lookback,
		Workers:  cfg.Issues.Workers,
	})

	return &app{cfg: cfg, client: client, dispatcher: dispatcher, poller: poller}, nil
}
