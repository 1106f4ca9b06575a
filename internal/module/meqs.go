package module

import (
	"context"
	"regexp"
	"strings"
)

// MEQS tags are moderation markers only staff may leave in comments.
const removedMeqsPrefix = "MEQS_ARISA_REMOVED_"

var meqsTagPattern = regexp.MustCompile(`MEQS_[A-Z_]+`)

// removeMeqsTags neutralizes every listed tag in body and appends the removal reason.
func removeMeqsTags(body string, tags []string, reason string) string {
	for _, tag := range tags {
		body = strings.ReplaceAll(body, tag, removedMeqsPrefix+strings.TrimPrefix(tag, "MEQS_"))
	}
	return body + "\nRemoval Reason: " + reason
}

// activeMeqsTags returns the MEQS tags in body that have not been neutralized yet.
func activeMeqsTags(body string) []string {
	var tags []string
	for _, tag := range meqsTagPattern.FindAllString(body, -1) {
		if !strings.HasPrefix(tag, removedMeqsPrefix) {
			tags = append(tags, tag)
		}
	}
	return tags
}

// RemoveTriagedMeqs neutralizes MEQS tags once a ticket has been triaged.
type RemoveTriagedMeqs struct {
	tracker       Tracker
	tags          []string
	reason        string
	priorityField string
	triagedField  string
}

// NewRemoveTriagedMeqs returns the module removing MEQS tags from triaged tickets.
func NewRemoveTriagedMeqs(tracker Tracker, tags []string, reason, priorityField, triagedField string) *RemoveTriagedMeqs {
	return &RemoveTriagedMeqs{
		tracker:       tracker,
		tags:          tags,
		reason:        reason,
		priorityField: priorityField,
		triagedField:  triagedField,
	}
}

func (m *RemoveTriagedMeqs) Run(ctx context.Context, req Request) Outcome {
	issue := req.Issue
	if issue.CustomField(m.priorityField) == "" && issue.CustomField(m.triagedField) == "" {
		return NoActionNeeded()
	}

	var fx effects
	for _, comment := range issue.Comments {
		var present []string
		for _, tag := range m.tags {
			if strings.Contains(comment.Body, tag) {
				present = append(present, tag)
			}
		}
		if len(present) == 0 {
			continue
		}
		fx.do(m.tracker.UpdateCommentBody(ctx, issue.Key, comment.ID, removeMeqsTags(comment.Body, present, m.reason)))
	}
	return fx.outcome()
}

// RemoveNonStaffMeqs hides MEQS tags left in comments that are not restricted to staff.
type RemoveNonStaffMeqs struct {
	tracker Tracker
	reason  string
}

// NewRemoveNonStaffMeqs returns the module removing MEQS tags added by non-staff users.
func NewRemoveNonStaffMeqs(tracker Tracker, reason string) *RemoveNonStaffMeqs {
	return &RemoveNonStaffMeqs{tracker: tracker, reason: reason}
}

func (m *RemoveNonStaffMeqs) Run(ctx context.Context, req Request) Outcome {
	issue := req.Issue

	var fx effects
	for _, comment := range issue.Comments {
		if comment.IsRestrictedTo(StaffGroup) {
			continue
		}
		tags := activeMeqsTags(comment.Body)
		if len(tags) == 0 {
			continue
		}
		body := removeMeqsTags(comment.Body, tags, m.reason)
		fx.do(m.tracker.RestrictComment(ctx, issue.Key, comment.ID, StaffGroup, body))
	}
	return fx.outcome()
}
