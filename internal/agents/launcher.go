package agents

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// Launcher runs an experiment's agents with the required lifecycle ordering:
// dependents (businesses) start before primaries (customers) so the market
// is never searched empty, and dependents are shut down only after every
// primary completes, so they never outlive the experiment they serve.
type Launcher struct {
	primaries  []*Runtime
	dependents []*Runtime
}

// NewLauncher returns an empty launcher.
func NewLauncher() *Launcher {
	return &Launcher{}
}

// AddPrimary adds a runtime whose completion ends the experiment.
func (l *Launcher) AddPrimary(r *Runtime) {
	l.primaries = append(l.primaries, r)
}

// AddDependent adds a runtime that serves the experiment until the
// primaries are done.
func (l *Launcher) AddDependent(r *Runtime) {
	l.dependents = append(l.dependents, r)
}

// Run starts dependents, then primaries, waits for all primaries, signals
// the dependents to stop, and waits for graceful termination of everything
// before returning. Individual agent failures are collected, not fatal to
// the other agents.
func (l *Launcher) Run(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	record := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	var dependents sync.WaitGroup
	for _, r := range l.dependents {
		dependents.Add(1)
		go func(r *Runtime) {
			defer dependents.Done()
			record(r.Run(ctx))
		}(r)
	}

	// Hold primaries until every dependent has registered, so the market is
	// populated before the first search.
	for _, r := range l.dependents {
		select {
		case <-r.Started():
		case <-ctx.Done():
		}
	}

	var primaries sync.WaitGroup
	for _, r := range l.primaries {
		primaries.Add(1)
		go func(r *Runtime) {
			defer primaries.Done()
			record(r.Run(ctx))
		}(r)
	}
	primaries.Wait()

	log.Info().Int("dependents", len(l.dependents)).Msg("primaries complete, shutting down dependents")
	for _, r := range l.dependents {
		r.Shutdown()
	}
	dependents.Wait()

	return errors.Join(errs...)
}
