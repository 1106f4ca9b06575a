package jira

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	jira "github.com/andygrunwald/go-jira"

	"github.com/danielolaszy/arisa/internal/metrics"
)

// Transition names of the tracker workflow.
const (
	resolveTransition = "Resolve Issue"
	reopenTransition  = "Reopen Issue"
)

// done records a tracker call and closes the body of a response nobody decoded.
func done(operation string, resp *jira.Response, err error) error {
	if err == nil && resp != nil && resp.Response != nil && resp.Body != nil {
		resp.Body.Close()
	}
	metrics.ObserveTrackerRequest(operation, err)
	return err
}

// AddComment posts a public comment.
func (c *Client) AddComment(ctx context.Context, issueKey, body string) error {
	_, resp, err := c.client.Issue.AddCommentWithContext(ctx, issueKey, &jira.Comment{Body: body})
	if err := done("add_comment", nil, err); err != nil {
		return fmt.Errorf("failed to comment on %s: %w (status: %d)", issueKey, err, statusCode(resp))
	}
	return nil
}

// UpdateCommentBody replaces a comment's body and keeps its visibility.
func (c *Client) UpdateCommentBody(ctx context.Context, issueKey, commentID, body string) error {
	_, resp, err := c.client.Issue.UpdateCommentWithContext(ctx, issueKey, &jira.Comment{ID: commentID, Body: body})
	if err != nil {
		err = jira.NewJiraError(resp, err)
	}
	if err := done("update_comment", nil, err); err != nil {
		return fmt.Errorf("failed to update comment %s on %s: %w", commentID, issueKey, err)
	}
	return nil
}

type restrictedComment struct {
	Body       string                 `json:"body"`
	Visibility jira.CommentVisibility `json:"visibility"`
}

// RestrictComment makes a comment visible to group only and replaces its body.
func (c *Client) RestrictComment(ctx context.Context, issueKey, commentID, group, body string) error {
	endpoint := fmt.Sprintf("rest/api/2/issue/%s/comment/%s", url.PathEscape(issueKey), url.PathEscape(commentID))
	req, err := c.client.NewRequestWithContext(ctx, "PUT", endpoint, restrictedComment{
		Body:       body,
		Visibility: jira.CommentVisibility{Type: "group", Value: group},
	})
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req, nil)
	if err != nil {
		err = jira.NewJiraError(resp, err)
	}
	if err := done("restrict_comment", resp, err); err != nil {
		return fmt.Errorf("failed to restrict comment %s on %s: %w", commentID, issueKey, err)
	}
	return nil
}

// DeleteAttachment removes an attachment.
func (c *Client) DeleteAttachment(ctx context.Context, attachmentID string) error {
	resp, err := c.client.Issue.DeleteAttachmentWithContext(ctx, attachmentID)
	if err := done("delete_attachment", resp, err); err != nil {
		return fmt.Errorf("failed to delete attachment %s: %w", attachmentID, err)
	}
	return nil
}

// ResolveAs resolves a ticket with the given resolution name.
func (c *Client) ResolveAs(ctx context.Context, issueKey, resolution string) error {
	payload := map[string]interface{}{
		"fields": map[string]interface{}{
			"resolution": map[string]string{"name": resolution},
		},
	}
	if err := c.transition(ctx, issueKey, resolveTransition, payload); err != nil {
		return fmt.Errorf("failed to resolve %s as %s: %w", issueKey, resolution, err)
	}
	return nil
}

// Reopen moves a resolved ticket back to open.
func (c *Client) Reopen(ctx context.Context, issueKey string) error {
	if err := c.transition(ctx, issueKey, reopenTransition, map[string]interface{}{}); err != nil {
		return fmt.Errorf("failed to reopen %s: %w", issueKey, err)
	}
	return nil
}

// transition executes the named workflow transition, merging payload into the request.
func (c *Client) transition(ctx context.Context, issueKey, name string, payload map[string]interface{}) error {
	transitions, resp, err := c.client.Issue.GetTransitionsWithContext(ctx, issueKey)
	metrics.ObserveTrackerRequest("get_transitions", err)
	if err != nil {
		return fmt.Errorf("failed to list transitions: %w (status: %d)", err, statusCode(resp))
	}

	var id string
	for _, t := range transitions {
		if strings.EqualFold(t.Name, name) {
			id = t.ID
			break
		}
	}
	if id == "" {
		return fmt.Errorf("transition %q is not available", name)
	}

	payload["transition"] = map[string]string{"id": id}
	resp, err = c.client.Issue.DoTransitionWithPayloadWithContext(ctx, issueKey, payload)
	return done("transition", resp, err)
}

// LinkIssue links issueKey to targetKey with the named link type.
func (c *Client) LinkIssue(ctx context.Context, issueKey, linkType, targetKey string) error {
	resp, err := c.client.Issue.AddLinkWithContext(ctx, &jira.IssueLink{
		Type:         jira.IssueLinkType{Name: linkType},
		InwardIssue:  &jira.Issue{Key: issueKey},
		OutwardIssue: &jira.Issue{Key: targetKey},
	})
	if err := done("link_issue", resp, err); err != nil {
		return fmt.Errorf("failed to link %s to %s: %w", issueKey, targetKey, err)
	}
	return nil
}

// AddAffectedVersion adds a version to the ticket's affected versions.
func (c *Client) AddAffectedVersion(ctx context.Context, issueKey, versionID string) error {
	return c.updateVersions(ctx, issueKey, "add", versionID)
}

// RemoveAffectedVersion removes a version from the ticket's affected versions.
func (c *Client) RemoveAffectedVersion(ctx context.Context, issueKey, versionID string) error {
	return c.updateVersions(ctx, issueKey, "remove", versionID)
}

func (c *Client) updateVersions(ctx context.Context, issueKey, verb, versionID string) error {
	data := map[string]interface{}{
		"update": map[string]interface{}{
			"versions": []map[string]interface{}{
				{verb: map[string]string{"id": versionID}},
			},
		},
	}
	if err := c.update(ctx, verb+"_version", issueKey, data); err != nil {
		return fmt.Errorf("failed to %s version %s on %s: %w", verb, versionID, issueKey, err)
	}
	return nil
}

// UpdateField sets a single field.
func (c *Client) UpdateField(ctx context.Context, issueKey, field string, value interface{}) error {
	data := map[string]interface{}{
		"fields": map[string]interface{}{field: value},
	}
	if err := c.update(ctx, "update_field", issueKey, data); err != nil {
		return fmt.Errorf("failed to update %s on %s: %w", field, issueKey, err)
	}
	return nil
}

// UpdateSecurity sets the ticket's security level.
func (c *Client) UpdateSecurity(ctx context.Context, issueKey, levelID string) error {
	data := map[string]interface{}{
		"fields": map[string]interface{}{
			"security": map[string]string{"id": levelID},
		},
	}
	if err := c.update(ctx, "update_security", issueKey, data); err != nil {
		return fmt.Errorf("failed to set security level %s on %s: %w", levelID, issueKey, err)
	}
	return nil
}

func (c *Client) update(ctx context.Context, operation, issueKey string, data map[string]interface{}) error {
	resp, err := c.client.Issue.UpdateIssueWithContext(ctx, issueKey, data)
	if err != nil {
		err = jira.NewJiraError(resp, err)
	}
	return done(operation, resp, err)
}
