package module

import (
	"context"
	"strings"
)

// Piracy resolves tickets that mention known cracked launchers as Invalid.
type Piracy struct {
	tracker    Tracker
	message    string
	signatures []string
}

// NewPiracy returns the module resolving reports from pirated launchers.
func NewPiracy(tracker Tracker, message string, signatures []string) *Piracy {
	return &Piracy{tracker: tracker, message: message, signatures: signatures}
}

func (m *Piracy) Run(ctx context.Context, req Request) Outcome {
	issue := req.Issue
	text := issue.Environment + " " + issue.Summary + " " + issue.Description
	if !m.matches(text) {
		return NoActionNeeded()
	}

	var fx effects
	if fx.do(m.tracker.ResolveAs(ctx, issue.Key, "Invalid")) {
		fx.do(m.tracker.AddComment(ctx, issue.Key, m.message))
	}
	return fx.outcome()
}

func (m *Piracy) matches(text string) bool {
	for _, signature := range m.signatures {
		if signature != "" && strings.Contains(text, signature) {
			return true
		}
	}
	return false
}
