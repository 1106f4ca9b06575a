package module

import (
	"context"
	"strings"
)

const (
	defaultDescription = "Put the summary of the bug you're having here\n\n" +
		"*What I expected to happen was...:*\nDescribe what you thought should happen here\n\n" +
		"*What actually happened was...:*\nDescribe what happened here\n\n" +
		"*Steps to Reproduce:*\n1. Put a step by step guide on how to trigger the bug here\n2. ...\n3. ..."
	defaultEnvironment = "Put your operating system (Windows 7, Windows XP, OSX) and Java version if you know it here"
)

// Empty resolves tickets that carry no information as Incomplete.
type Empty struct {
	tracker Tracker
	message string
}

// NewEmpty returns the module resolving reports without any content.
func NewEmpty(tracker Tracker, message string) *Empty {
	return &Empty{tracker: tracker, message: message}
}

func (m *Empty) Run(ctx context.Context, req Request) Outcome {
	issue := req.Issue
	if len(issue.Attachments) > 0 ||
		!isBlankOr(issue.Description, defaultDescription) ||
		!isBlankOr(issue.Environment, defaultEnvironment) {
		return NoActionNeeded()
	}

	var fx effects
	if fx.do(m.tracker.ResolveAs(ctx, issue.Key, "Incomplete")) {
		fx.do(m.tracker.AddComment(ctx, issue.Key, m.message))
	}
	return fx.outcome()
}

func isBlankOr(value, template string) bool {
	value = strings.TrimSpace(strings.ReplaceAll(value, "\r\n", "\n"))
	return value == "" || value == template
}
