package module

import (
	"context"
	"strings"
)

// KeepPrivate puts tickets back to private when staff tagged them to stay private.
type KeepPrivate struct {
	tracker Tracker
	tag     string
	message string
	levels  func(project string) string
}

// NewKeepPrivate returns the module restoring the private level of tagged tickets.
func NewKeepPrivate(tracker Tracker, tag, message string, levels func(project string) string) *KeepPrivate {
	return &KeepPrivate{tracker: tracker, tag: tag, message: message, levels: levels}
}

func (m *KeepPrivate) Run(ctx context.Context, req Request) Outcome {
	issue := req.Issue
	if m.tag == "" {
		return NoActionNeeded()
	}

	tagged := false
	for _, comment := range issue.Comments {
		if comment.IsRestrictedTo(StaffGroup) && strings.Contains(comment.Body, m.tag) {
			tagged = true
			break
		}
	}
	level := m.levels(issue.Project)
	if !tagged || issue.SecurityLevel == level {
		return NoActionNeeded()
	}

	var fx effects
	if fx.do(m.tracker.UpdateSecurity(ctx, issue.Key, level)) {
		fx.do(m.tracker.AddComment(ctx, issue.Key, m.message))
	}
	return fx.outcome()
}
