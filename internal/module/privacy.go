package module

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/danielolaszy/arisa/internal/logging"
	"github.com/danielolaszy/arisa/pkg/models"
)

var leakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\(Session ID is token:`),
	regexp.MustCompile(`--accessToken ey`),
}

// emailPattern skips matches directly preceded by "[~", the tracker's user mention syntax.
// RE2 has no lookbehind, hence regexp2.
const emailPattern = `(?<!\[~)\b[a-zA-Z0-9.\-_]+@[a-zA-Z0-9.\-_]+\.[a-zA-Z0-9.\-]{2,15}\b`

// CommentRestriction describes a comment to restrict and the body it gets.
type CommentRestriction struct {
	CommentID string
	Body      string
}

// PrivacyFindings is the result of scanning a ticket for leaked credentials and emails.
type PrivacyFindings struct {
	// ContentMatched is set when the fields, attachments or change log leaked something
	ContentMatched bool

	Restrictions []CommentRestriction

	// LookupErrors holds group lookups that failed; those authors are treated as unprivileged
	LookupErrors []error
}

// Empty reports whether nothing needs to be done.
func (f PrivacyFindings) Empty() bool {
	return !f.ContentMatched && len(f.Restrictions) == 0
}

// Privacy makes tickets private or restricts comments that leak session tokens or email addresses.
type Privacy struct {
	tracker       Tracker
	message       string
	commentNote   string
	allowedEmails []*regexp2.Regexp
	levels        func(project string) string
	email         *regexp2.Regexp
}

// NewPrivacy compiles the allow-listed email patterns. Each must match an address in full
// and may use lookaround.
func NewPrivacy(tracker Tracker, message, commentNote string, allowedEmails []string, levels func(project string) string) (*Privacy, error) {
	allowed := make([]*regexp2.Regexp, 0, len(allowedEmails))
	for _, pattern := range allowedEmails {
		re, err := regexp2.Compile("^(?:"+pattern+")$", regexp2.None)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed email pattern %q: %w", pattern, err)
		}
		re.MatchTimeout = time.Second
		allowed = append(allowed, re)
	}

	email := regexp2.MustCompile(emailPattern, regexp2.None)
	email.MatchTimeout = time.Second

	return &Privacy{
		tracker:       tracker,
		message:       message,
		commentNote:   commentNote,
		allowedEmails: allowed,
		levels:        levels,
		email:         email,
	}, nil
}

func (m *Privacy) Run(ctx context.Context, req Request) Outcome {
	if !req.Issue.IsPublic() {
		return NoActionNeeded()
	}

	findings, err := m.Detect(ctx, req)
	if err != nil {
		return Failed(err)
	}
	if findings.Empty() {
		return NoActionNeeded()
	}

	return m.Apply(ctx, req.Issue, findings)
}

// Detect scans everything that changed since req.LastRun. It performs no writes.
func (m *Privacy) Detect(ctx context.Context, req Request) (PrivacyFindings, error) {
	issue := req.Issue
	var findings PrivacyFindings

	content, err := m.recentContent(ctx, issue, req.LastRun)
	if err != nil {
		return findings, err
	}

	leaked, err := m.leaks(content)
	if err != nil {
		return findings, err
	}
	findings.ContentMatched = leaked

	for _, comment := range issue.Comments {
		if !comment.Created.After(req.LastRun) || comment.Visibility != nil {
			continue
		}

		leaked, err := m.leaks(comment.Body)
		if err != nil {
			return findings, err
		}
		if !leaked {
			continue
		}

		privileged, err := isPrivileged(ctx, m.tracker, comment.Author)
		if err != nil {
			findings.LookupErrors = append(findings.LookupErrors,
				fmt.Errorf("failed to look up groups of %s: %w", comment.Author.Name, err))
		} else if privileged {
			continue
		}

		findings.Restrictions = append(findings.Restrictions, CommentRestriction{
			CommentID: comment.ID,
			Body:      comment.Body + m.commentNote,
		})
	}

	return findings, nil
}

// Apply makes the ticket private when the content matched and restricts every listed comment.
// Failed group lookups are reported after every effect has been attempted.
func (m *Privacy) Apply(ctx context.Context, issue *models.Issue, findings PrivacyFindings) Outcome {
	var fx effects

	if findings.ContentMatched {
		level := m.levels(issue.Project)
		if fx.do(m.tracker.UpdateSecurity(ctx, issue.Key, level)) {
			fx.do(m.tracker.AddComment(ctx, issue.Key, m.message))
		}
	}

	for _, restriction := range findings.Restrictions {
		if !fx.do(m.tracker.RestrictComment(ctx, issue.Key, restriction.CommentID, StaffGroup, restriction.Body)) {
			logging.Warn("failed to restrict comment",
				"issue", issue.Key,
				"comment", restriction.CommentID,
				"applied", fx.applied)
		}
	}

	fx.errs = append(fx.errs, findings.LookupErrors...)
	return fx.outcome()
}

// recentContent joins the fields, text attachments and change log values added since lastRun.
func (m *Privacy) recentContent(ctx context.Context, issue *models.Issue, lastRun time.Time) (string, error) {
	var b strings.Builder

	if issue.Created.After(lastRun) {
		b.WriteString(issue.Summary + " " + issue.Environment + " " + issue.Description + " ")
	}

	for _, attachment := range issue.Attachments {
		if !attachment.Created.After(lastRun) || !strings.HasPrefix(attachment.MimeType, "text/") {
			continue
		}
		data, err := attachment.Content(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to read attachment %s: %w", attachment.Filename, err)
		}
		b.Write(data)
		b.WriteString(" ")
	}

	for _, entry := range issue.ChangeLog {
		if !entry.Created.After(lastRun) {
			continue
		}
		for _, item := range entry.Items {
			if item.FromString == nil {
				b.WriteString(item.ToString + " ")
			}
		}
	}

	return b.String(), nil
}

func (m *Privacy) leaks(text string) (bool, error) {
	if text == "" {
		return false, nil
	}
	for _, pattern := range leakPatterns {
		if pattern.MatchString(text) {
			return true, nil
		}
	}
	return m.matchesEmail(text)
}

// matchesEmail reports whether text holds an email address that is not allow-listed.
func (m *Privacy) matchesEmail(text string) (bool, error) {
	match, err := m.email.FindStringMatch(text)
	for match != nil && err == nil {
		allowed, allowErr := m.isAllowed(match.String())
		if allowErr != nil {
			return false, allowErr
		}
		if !allowed {
			return true, nil
		}
		match, err = m.email.FindNextMatch(match)
	}
	if err != nil {
		return false, fmt.Errorf("failed to match email pattern: %w", err)
	}
	return false, nil
}

func (m *Privacy) isAllowed(email string) (bool, error) {
	for _, re := range m.allowedEmails {
		ok, err := re.MatchString(email)
		if err != nil {
			return false, fmt.Errorf("failed to match allowed email pattern: %w", err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
