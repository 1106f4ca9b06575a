package module

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jonboulle/clockwork"
)

const impostorWindow = 24 * time.Hour

// badgePattern matches display names like "[Mod] Steve".
var badgePattern = regexp.MustCompile(`^\[(?:\p{L}|\p{N}|\s)+]\s.+$`)

// HideImpostors restricts recent comments from users pretending to hold a role.
type HideImpostors struct {
	tracker Tracker
	clock   clockwork.Clock
}

// NewHideImpostors returns the module restricting comments by users posing as staff.
func NewHideImpostors(tracker Tracker, clock clockwork.Clock) *HideImpostors {
	return &HideImpostors{tracker: tracker, clock: clock}
}

func (m *HideImpostors) Run(ctx context.Context, req Request) Outcome {
	issue := req.Issue
	cutoff := m.clock.Now().Add(-impostorWindow)

	var fx effects
	for _, comment := range issue.Comments {
		if comment.Visibility != nil || comment.Created.Before(cutoff) {
			continue
		}
		if !badgePattern.MatchString(comment.Author.DisplayName) {
			continue
		}
		privileged, err := isPrivileged(ctx, m.tracker, comment.Author)
		if err != nil {
			fx.do(fmt.Errorf("failed to look up groups of %s: %w", comment.Author.Name, err))
			continue
		}
		if privileged {
			continue
		}
		fx.do(m.tracker.RestrictComment(ctx, issue.Key, comment.ID, StaffGroup, comment.Body))
	}
	return fx.outcome()
}
