package module

import (
	"context"
	"time"
)

// updateTolerance absorbs the delay between a write and the ticket's updated timestamp.
const updateTolerance = 2 * time.Second

// ReopenAwaiting reopens tickets resolved as Awaiting Response once someone comments on them.
type ReopenAwaiting struct {
	tracker Tracker
}

// NewReopenAwaiting returns the module reopening tickets the reporter answered.
func NewReopenAwaiting(tracker Tracker) *ReopenAwaiting {
	return &ReopenAwaiting{tracker: tracker}
}

func (m *ReopenAwaiting) Run(ctx context.Context, req Request) Outcome {
	issue := req.Issue
	if issue.Resolution != "Awaiting Response" {
		return NoActionNeeded()
	}
	// freshly created tickets can carry the resolution from the create screen
	if !issue.Updated.After(issue.Created.Add(updateTolerance)) {
		return NoActionNeeded()
	}
	if len(issue.Comments) == 0 {
		return NoActionNeeded()
	}

	last := issue.Comments[len(issue.Comments)-1]
	if last.Updated.Add(updateTolerance).Before(issue.Updated) {
		return NoActionNeeded()
	}

	if err := m.tracker.Reopen(ctx, issue.Key); err != nil {
		return Failed(err)
	}
	return Success()
}
