package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/danielolaszy/arisa/internal/logging"
	"github.com/danielolaszy/arisa/internal/metrics"
	"github.com/danielolaszy/arisa/internal/module"
	"github.com/danielolaszy/arisa/pkg/models"
)

// Source is the read side of the tracker the poller works from.
type Source interface {
	SearchIssues(ctx context.Context, jql string) ([]string, error)
	GetIssue(ctx context.Context, key string) (*models.Issue, error)
	GetProject(ctx context.Context, key string) (*models.Project, error)
}

// PollerConfig controls what is polled and how often.
type PollerConfig struct {
	Projects []string
	Interval time.Duration
	// Lookback is how far back the search looks for updated tickets
	Lookback time.Duration
	Workers  int
}

// Poller queries the tracker for recently updated tickets and dispatches each one.
type Poller struct {
	source     Source
	dispatcher *Dispatcher
	cache      *Cache
	clock      clockwork.Clock
	cfg        PollerConfig
	jql        string

	// lastRun is the start of the last cycle whose search succeeded
	lastRun time.Time
}

// NewPoller returns a poller whose first cycle looks back cfg.Lookback from now.
func NewPoller(source Source, dispatcher *Dispatcher, cache *Cache, clock clockwork.Clock, cfg PollerConfig) *Poller {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Poller{
		source:     source,
		dispatcher: dispatcher,
		cache:      cache,
		clock:      clock,
		cfg:        cfg,
		jql:        BuildJQL(cfg.Projects, cfg.Lookback),
		lastRun:    clock.Now().Add(-cfg.Lookback),
	}
}

// BuildJQL returns the search for open or awaiting tickets updated within lookback.
func BuildJQL(projects []string, lookback time.Duration) string {
	minutes := int(lookback.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf(`project in (%s) AND resolution in (Unresolved, "Awaiting Response") AND updated >= -%dm`,
		strings.Join(projects, ", "), minutes)
}

// LastRun returns the time modules currently compare against.
func (p *Poller) LastRun() time.Time {
	return p.lastRun
}

// Run polls until ctx is cancelled. A failed cycle is logged and the loop carries on after the interval.
func (p *Poller) Run(ctx context.Context) error {
	logging.Info("starting poll loop",
		"projects", p.cfg.Projects,
		"interval", p.cfg.Interval,
		"lookback", p.cfg.Lookback,
		"workers", p.cfg.Workers)

	for {
		_ = p.RunCycle(ctx)

		select {
		case <-ctx.Done():
			logging.Info("poll loop stopped")
			return nil
		case <-p.clock.After(p.cfg.Interval):
		}
	}
}

// RunCycle performs one search and dispatches every ticket not in the dedup cache.
// It returns the search error, if any; per-ticket failures are only logged.
func (p *Poller) RunCycle(ctx context.Context) error {
	start := p.clock.Now()
	log := logging.With("cycle", uuid.NewString())

	if removed := p.cache.Sweep(); removed > 0 {
		log.Debug("expired dedup cache entries", "removed", removed)
	}
	p.cache.Forget(start.Add(-p.cfg.Lookback))
	metrics.SetDedupCacheSize(p.cache.Len())

	keys, err := p.source.SearchIssues(ctx, p.jql)
	if err != nil {
		log.Error("failed to search for tickets", "jql", p.jql, "error", err)
		metrics.ObservePollDuration(p.clock.Since(start), "error")
		return fmt.Errorf("search failed: %w", err)
	}

	lastRun := p.lastRun
	projects := newProjectCache(p.source)

	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)

	skipped := 0
	for _, key := range keys {
		key := key
		if p.cache.Contains(key) {
			skipped++
			continue
		}
		since := lastRun
		// changes made while the ticket was skipped are older than lastRun
		if inserted, ok := p.cache.Lapsed(key); ok && inserted.Before(since) {
			since = inserted
		}
		g.Go(func() error {
			p.handle(ctx, log, key, since, projects)
			return nil
		})
	}
	_ = g.Wait()

	p.lastRun = start
	metrics.SetDedupCacheSize(p.cache.Len())
	metrics.ObservePollDuration(p.clock.Since(start), "success")
	log.Info("poll cycle complete",
		"tickets", len(keys),
		"skipped", skipped,
		"duration_ms", p.clock.Since(start).Milliseconds())
	return nil
}

// ProcessTicket fetches one ticket and dispatches it without touching the dedup cache.
func (p *Poller) ProcessTicket(ctx context.Context, key string, lastRun time.Time) (map[string]module.Outcome, error) {
	return p.process(ctx, key, lastRun, newProjectCache(p.source))
}

func (p *Poller) process(ctx context.Context, key string, lastRun time.Time, projects *projectCache) (map[string]module.Outcome, error) {
	issue, err := p.source.GetIssue(ctx, key)
	if err != nil {
		return nil, err
	}
	project := projects.get(ctx, issue.Project)
	return p.dispatcher.Dispatch(ctx, issue, project, lastRun), nil
}

func (p *Poller) handle(ctx context.Context, log *slog.Logger, key string, lastRun time.Time, projects *projectCache) {
	outcomes, err := p.process(ctx, key, lastRun, projects)
	if err != nil {
		log.Error("failed to fetch ticket", "issue", key, "error", err)
		metrics.IncTicketProcessed("error")
		return
	}

	if LogOutcomes(log, key, p.dispatcher.Names(), outcomes) {
		p.cache.Remove(key)
		metrics.IncTicketProcessed("actioned")
		return
	}
	p.cache.Add(key)
	metrics.IncTicketProcessed("cached")
}

// LogOutcomes writes one response line per module outcome, in module order, and reports
// whether any module succeeded.
func LogOutcomes(log *slog.Logger, key string, names []string, outcomes map[string]module.Outcome) bool {
	succeeded := false
	for _, name := range names {
		outcome, ok := outcomes[name]
		if !ok {
			continue
		}
		metrics.IncModuleOutcome(name, outcome.Kind().String())

		switch outcome.Kind() {
		case module.KindSuccess:
			succeeded = true
			log.Info(fmt.Sprintf("[RESPONSE] [%s] [%s] Successful", key, name), "issue", key, "module", name)
		case module.KindNoActionNeeded:
			log.Info(fmt.Sprintf("[RESPONSE] [%s] [%s] Operation not needed", key, name), "issue", key, "module", name)
		case module.KindFailed:
			for _, err := range outcome.Errors() {
				log.Error(fmt.Sprintf("[RESPONSE] [%s] [%s] Failed", key, name),
					"issue", key,
					"module", name,
					"error", err,
					"applied", outcome.Applied())
			}
		}
	}
	return succeeded
}

// projectCache fetches each project at most once per cycle.
type projectCache struct {
	source  Source
	mu      sync.Mutex
	entries map[string]*projectEntry
}

type projectEntry struct {
	once    sync.Once
	project *models.Project
}

func newProjectCache(source Source) *projectCache {
	return &projectCache{source: source, entries: make(map[string]*projectEntry)}
}

// get returns the project, or nil when it could not be fetched.
func (c *projectCache) get(ctx context.Context, key string) *models.Project {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		entry = &projectEntry{}
		c.entries[key] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		project, err := c.source.GetProject(ctx, key)
		if err != nil {
			logging.Warn("failed to fetch project", "project", key, "error", err)
			return
		}
		entry.project = project
	})
	return entry.project
}
