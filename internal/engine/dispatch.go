// Package engine drives the rule modules: it decides which modules run against a ticket,
// remembers tickets that needed nothing, and polls the tracker on a fixed interval.
package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/danielolaszy/arisa/internal/logging"
	"github.com/danielolaszy/arisa/internal/module"
	"github.com/danielolaszy/arisa/pkg/models"
)

// Entry is one registered module with the projects it is enabled for.
type Entry struct {
	Name      string
	Module    module.Module
	Whitelist []string
}

// Dispatcher runs the registered modules against a ticket in registration order.
type Dispatcher struct {
	entries []Entry
	botUser string
}

// NewDispatcher creates a dispatcher. botUser is the account the engine acts as;
// resolutions made by it never start a quiet period.
func NewDispatcher(botUser string, entries []Entry) *Dispatcher {
	return &Dispatcher{entries: entries, botUser: botUser}
}

// Names returns the module names in registration order.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.entries))
	for _, entry := range d.entries {
		names = append(names, entry.Name)
	}
	return names
}

// Dispatch evaluates every module against issue. An empty map means the ticket is in its
// quiet period and nothing ran.
func (d *Dispatcher) Dispatch(ctx context.Context, issue *models.Issue, project *models.Project, lastRun time.Time) map[string]module.Outcome {
	outcomes := make(map[string]module.Outcome, len(d.entries))
	if d.inQuietPeriod(issue) {
		logging.Debug("ticket recently resolved by a human, skipping", "issue", issue.Key)
		return outcomes
	}

	req := module.Request{Issue: issue, Project: project, LastRun: lastRun}
	for _, entry := range d.entries {
		if !whitelisted(entry.Whitelist, issue.Project) {
			outcomes[entry.Name] = module.NoActionNeeded()
			continue
		}
		outcomes[entry.Name] = run(ctx, entry, req)
	}
	return outcomes
}

// inQuietPeriod reports whether a human resolved the ticket last and nobody commented since.
func (d *Dispatcher) inQuietPeriod(issue *models.Issue) bool {
	latest := issue.LatestChange()
	if latest == nil || !latest.HasField("resolution") || latest.Author.Name == d.botUser {
		return false
	}
	for _, comment := range issue.Comments {
		if comment.Updated.After(latest.Created) {
			return false
		}
	}
	return true
}

func whitelisted(whitelist []string, project string) bool {
	for _, key := range whitelist {
		if key == project {
			return true
		}
	}
	return false
}

// run invokes a module, converting a panic into a failed outcome.
func run(ctx context.Context, entry Entry, req module.Request) (outcome module.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("module panicked",
				"issue", req.Issue.Key,
				"module", entry.Name,
				"panic", r,
				"stack", string(debug.Stack()))
			outcome = module.Failed(fmt.Errorf("module %s panicked: %v", entry.Name, r))
		}
	}()
	return entry.Module.Run(ctx, req)
}
