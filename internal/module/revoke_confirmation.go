package module

import (
	"context"
	"fmt"
)

const unconfirmed = "Unconfirmed"

// RevokeConfirmation reverts confirmation status changes made by users without a privileged role.
type RevokeConfirmation struct {
	tracker           Tracker
	confirmationField string
	confirmationName  string
}

// NewRevokeConfirmation returns the module reverting unauthorized confirmation changes.
func NewRevokeConfirmation(tracker Tracker, confirmationField, confirmationName string) *RevokeConfirmation {
	return &RevokeConfirmation{
		tracker:           tracker,
		confirmationField: confirmationField,
		confirmationName:  confirmationName,
	}
}

func (m *RevokeConfirmation) Run(ctx context.Context, req Request) Outcome {
	issue := req.Issue
	current := issue.CustomField(m.confirmationField)
	if current == "" {
		current = unconfirmed
	}

	approved := unconfirmed
	memberships := map[string]bool{}
	for _, entry := range issue.ChangeLog {
		for _, item := range entry.Items {
			if item.Field != m.confirmationName {
				continue
			}
			privileged, seen := memberships[entry.Author.Name]
			if !seen {
				var err error
				privileged, err = isPrivileged(ctx, m.tracker, entry.Author)
				if err != nil {
					return Failed(fmt.Errorf("failed to look up groups of %s: %w", entry.Author.Name, err))
				}
				memberships[entry.Author.Name] = privileged
			}
			if !privileged {
				continue
			}
			approved = item.ToString
			if approved == "" {
				approved = unconfirmed
			}
		}
	}

	if current == approved {
		return NoActionNeeded()
	}

	value := map[string]string{"value": approved}
	if err := m.tracker.UpdateField(ctx, issue.Key, m.confirmationField, value); err != nil {
		return Failed(err)
	}
	return Success()
}
