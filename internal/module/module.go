// Package module contains the rule modules evaluated against every polled ticket.
package module

import (
	"context"
	"time"

	"github.com/danielolaszy/arisa/pkg/models"
)

// Module names, used as registry keys and in log lines.
const (
	NameAttachment         = "Attachment"
	NameCHK                = "CHK"
	NameReopenAwaiting     = "ReopenAwaiting"
	NamePiracy             = "Piracy"
	NameRemoveTriagedMeqs  = "RemoveTriagedMeqs"
	NameFutureVersion      = "FutureVersion"
	NameRemoveNonStaffMeqs = "RemoveNonStaffMeqs"
	NameEmpty              = "Empty"
	NameCrash              = "Crash"
	NameRevokeConfirmation = "RevokeConfirmation"
	NameKeepPrivate        = "KeepPrivate"
	NameHideImpostors      = "HideImpostors"
	NamePrivacy            = "Privacy"
)

// StaffGroup is the group that restricted comments are made visible to.
const StaffGroup = "staff"

var privilegedGroups = map[string]bool{
	"helper":            true,
	"global-moderators": true,
	"staff":             true,
}

// Request is what every module receives for one ticket.
type Request struct {
	Issue *models.Issue

	// Project is nil when it could not be fetched
	Project *models.Project

	// LastRun is the start of the previous successful poll cycle
	LastRun time.Time
}

// Module evaluates one rule against a ticket and applies its remediation.
type Module interface {
	Run(ctx context.Context, req Request) Outcome
}

// Tracker is the write side of the issue tracker the modules act through.
type Tracker interface {
	AddComment(ctx context.Context, issueKey, body string) error
	UpdateCommentBody(ctx context.Context, issueKey, commentID, body string) error
	RestrictComment(ctx context.Context, issueKey, commentID, group, body string) error
	DeleteAttachment(ctx context.Context, attachmentID string) error
	ResolveAs(ctx context.Context, issueKey, resolution string) error
	Reopen(ctx context.Context, issueKey string) error
	LinkIssue(ctx context.Context, issueKey, linkType, targetKey string) error
	AddAffectedVersion(ctx context.Context, issueKey, versionID string) error
	RemoveAffectedVersion(ctx context.Context, issueKey, versionID string) error
	UpdateField(ctx context.Context, issueKey, field string, value interface{}) error
	UpdateSecurity(ctx context.Context, issueKey, levelID string) error
	Groups(ctx context.Context, username string) ([]string, error)
}

// isPrivileged reports whether a user belongs to helper, global-moderators or staff.
func isPrivileged(ctx context.Context, tracker Tracker, user models.User) (bool, error) {
	groups, err := tracker.Groups(ctx, user.Name)
	if err != nil {
		return false, err
	}
	for _, group := range groups {
		if privilegedGroups[group] {
			return true, nil
		}
	}
	return false, nil
}
