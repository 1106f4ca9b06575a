package module

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danielolaszy/arisa/pkg/models"
)

// call is one recorded tracker mutation.
type call struct {
	Op     string
	Issue  string
	Target string
	Value  interface{}
}

// fakeTracker records mutations and serves group memberships from memory.
type fakeTracker struct {
	calls  []call
	groups map[string][]string
	// fail makes the named operation return an error
	fail map[string]error
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		groups: map[string][]string{},
		fail:   map[string]error{},
	}
}

var errTracker = errors.New("tracker unavailable")

func (f *fakeTracker) record(op, issue, target string, value interface{}) error {
	if err, ok := f.fail[op]; ok {
		return err
	}
	f.calls = append(f.calls, call{Op: op, Issue: issue, Target: target, Value: value})
	return nil
}

func (f *fakeTracker) ops() []string {
	ops := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		ops = append(ops, c.Op)
	}
	return ops
}

func (f *fakeTracker) callsOf(op string) []call {
	var out []call
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTracker) AddComment(_ context.Context, issueKey, body string) error {
	return f.record("AddComment", issueKey, "", body)
}

func (f *fakeTracker) UpdateCommentBody(_ context.Context, issueKey, commentID, body string) error {
	return f.record("UpdateCommentBody", issueKey, commentID, body)
}

func (f *fakeTracker) RestrictComment(_ context.Context, issueKey, commentID, group, body string) error {
	return f.record("RestrictComment", issueKey, commentID, group+":"+body)
}

func (f *fakeTracker) DeleteAttachment(_ context.Context, attachmentID string) error {
	return f.record("DeleteAttachment", "", attachmentID, nil)
}

func (f *fakeTracker) ResolveAs(_ context.Context, issueKey, resolution string) error {
	return f.record("ResolveAs", issueKey, resolution, nil)
}

func (f *fakeTracker) Reopen(_ context.Context, issueKey string) error {
	return f.record("Reopen", issueKey, "", nil)
}

func (f *fakeTracker) LinkIssue(_ context.Context, issueKey, linkType, targetKey string) error {
	return f.record("LinkIssue", issueKey, targetKey, linkType)
}

func (f *fakeTracker) AddAffectedVersion(_ context.Context, issueKey, versionID string) error {
	return f.record("AddAffectedVersion", issueKey, versionID, nil)
}

func (f *fakeTracker) RemoveAffectedVersion(_ context.Context, issueKey, versionID string) error {
	return f.record("RemoveAffectedVersion", issueKey, versionID, nil)
}

func (f *fakeTracker) UpdateField(_ context.Context, issueKey, field string, value interface{}) error {
	return f.record("UpdateField", issueKey, field, value)
}

func (f *fakeTracker) UpdateSecurity(_ context.Context, issueKey, levelID string) error {
	return f.record("UpdateSecurity", issueKey, levelID, nil)
}

func (f *fakeTracker) Groups(_ context.Context, username string) ([]string, error) {
	if err, ok := f.fail["Groups"]; ok {
		return nil, err
	}
	return f.groups[username], nil
}

var (
	lastRun = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	before  = lastRun.Add(-time.Hour)
	after   = lastRun.Add(time.Minute)
)

func textAttachment(id, mime string, created time.Time, content string) models.Attachment {
	return models.Attachment{
		ID:       id,
		Filename: id + ".txt",
		MimeType: mime,
		Created:  created,
		Fetch: func(context.Context) ([]byte, error) {
			return []byte(content), nil
		},
	}
}

func comment(id, author, body string, created time.Time) models.Comment {
	return models.Comment{
		ID:      id,
		Author:  models.User{Name: author, DisplayName: author},
		Body:    body,
		Created: created,
		Updated: created,
	}
}

func strPtr(s string) *string { return &s }

func describe(c call) string {
	return fmt.Sprintf("%s %s %s %v", c.Op, c.Issue, c.Target, c.Value)
}
