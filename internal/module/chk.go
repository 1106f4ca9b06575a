package module

import (
	"context"

	"github.com/jonboulle/clockwork"
)

// jiraTimeLayout is the timestamp format the tracker expects for date-time fields.
const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

// CHK stamps the "confirmed" time of a ticket the first time it gets a confirmation status.
type CHK struct {
	tracker           Tracker
	clock             clockwork.Clock
	chkField          string
	confirmationField string
}

// NewCHK returns the module stamping the CHK field of confirmed tickets.
func NewCHK(tracker Tracker, clock clockwork.Clock, chkField, confirmationField string) *CHK {
	return &CHK{tracker: tracker, clock: clock, chkField: chkField, confirmationField: confirmationField}
}

func (m *CHK) Run(ctx context.Context, req Request) Outcome {
	issue := req.Issue
	confirmation := issue.CustomField(m.confirmationField)
	if confirmation == "" || confirmation == "Unconfirmed" || confirmation == "Undefined" {
		return NoActionNeeded()
	}
	if issue.CustomField(m.chkField) != "" {
		return NoActionNeeded()
	}

	if err := m.tracker.UpdateField(ctx, issue.Key, m.chkField, m.clock.Now().Format(jiraTimeLayout)); err != nil {
		return Failed(err)
	}
	return Success()
}
