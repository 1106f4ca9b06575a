package module

import (
	"context"

	"github.com/danielolaszy/arisa/pkg/models"
)

// FutureVersion replaces affected versions that have not been released yet with the latest released one.
type FutureVersion struct {
	tracker Tracker
	message string
}

// NewFutureVersion returns the module replacing unreleased affected versions.
func NewFutureVersion(tracker Tracker, message string) *FutureVersion {
	return &FutureVersion{tracker: tracker, message: message}
}

func (m *FutureVersion) Run(ctx context.Context, req Request) Outcome {
	issue := req.Issue
	if req.Project == nil || len(issue.AffectedVersions) == 0 {
		return NoActionNeeded()
	}

	known := make(map[string]models.Version, len(req.Project.Versions))
	var latest *models.Version
	for i, version := range req.Project.Versions {
		known[version.ID] = version
		if version.Released && !version.Archived {
			latest = &req.Project.Versions[i]
		}
	}

	var future []models.Version
	hasLatest := false
	for _, affected := range issue.AffectedVersions {
		version, ok := known[affected.ID]
		if ok && !version.Released && !version.Archived {
			future = append(future, version)
		}
		if latest != nil && affected.ID == latest.ID {
			hasLatest = true
		}
	}
	if len(future) == 0 || latest == nil {
		return NoActionNeeded()
	}

	var fx effects
	if !hasLatest && !fx.do(m.tracker.AddAffectedVersion(ctx, issue.Key, latest.ID)) {
		return fx.outcome()
	}
	for _, version := range future {
		fx.do(m.tracker.RemoveAffectedVersion(ctx, issue.Key, version.ID))
	}
	if !fx.failed() {
		fx.do(m.tracker.AddComment(ctx, issue.Key, m.message))
	}
	return fx.outcome()
}
