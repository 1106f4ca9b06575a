package jira

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	jira "github.com/andygrunwald/go-jira"

	"github.com/danielolaszy/arisa/internal/logging"
	"github.com/danielolaszy/arisa/internal/metrics"
	"github.com/danielolaszy/arisa/pkg/models"
)

const (
	// timeLayout is how the REST API formats timestamps outside of jira.Time fields.
	timeLayout = "2006-01-02T15:04:05.000-0700"

	searchPageSize    = 50
	maxAttachmentSize = 10 << 20
	groupsTTL         = 5 * time.Minute
)

// SearchIssues returns the keys of every ticket matching jql, following pagination.
func (c *Client) SearchIssues(ctx context.Context, jql string) ([]string, error) {
	if c.client == nil {
		return nil, fmt.Errorf("JIRA client not initialized")
	}

	var keys []string
	startAt := 0
	for {
		issues, resp, err := c.client.Issue.SearchWithContext(ctx, jql, &jira.SearchOptions{
			StartAt:    startAt,
			MaxResults: searchPageSize,
			Fields:     []string{"key"},
		})
		metrics.ObserveTrackerRequest("search", err)
		if err != nil {
			return nil, fmt.Errorf("failed to search JIRA issues: %w (status: %d)", err, statusCode(resp))
		}

		for _, issue := range issues {
			keys = append(keys, issue.Key)
		}

		startAt += len(issues)
		if len(issues) == 0 || startAt >= resp.Total {
			break
		}
	}

	logging.Debug("jira search complete", "jql", jql, "count", len(keys))
	return keys, nil
}

// GetIssue fetches a ticket with its change log and converts it to a snapshot.
func (c *Client) GetIssue(ctx context.Context, key string) (*models.Issue, error) {
	if c.client == nil {
		return nil, fmt.Errorf("JIRA client not initialized")
	}

	issue, resp, err := c.client.Issue.GetWithContext(ctx, key, &jira.GetQueryOptions{Fields: "*all", Expand: "changelog"})
	metrics.ObserveTrackerRequest("get_issue", err)
	if err != nil {
		return nil, fmt.Errorf("failed to get JIRA issue %s: %w (status: %d)", key, err, statusCode(resp))
	}
	if issue.Fields == nil {
		return nil, fmt.Errorf("JIRA issue %s has no fields", key)
	}

	return c.toSnapshot(issue), nil
}

// projectVersion is the subset of the version resource the modules need.
type projectVersion struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Released bool   `json:"released"`
	Archived bool   `json:"archived"`
}

// GetProject fetches a project's versions in release order.
func (c *Client) GetProject(ctx context.Context, key string) (*models.Project, error) {
	if c.client == nil {
		return nil, fmt.Errorf("JIRA client not initialized")
	}

	endpoint := fmt.Sprintf("rest/api/2/project/%s/versions", url.PathEscape(key))
	req, err := c.client.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}

	var versions []projectVersion
	resp, err := c.client.Do(req, &versions)
	if err != nil {
		err = jira.NewJiraError(resp, err)
	}
	metrics.ObserveTrackerRequest("get_project", err)
	if err != nil {
		return nil, fmt.Errorf("failed to get versions of project %s: %w", key, err)
	}

	project := &models.Project{Key: key, Versions: make([]models.Version, 0, len(versions))}
	for _, v := range versions {
		project.Versions = append(project.Versions, models.Version{
			ID:       v.ID,
			Name:     v.Name,
			Released: v.Released,
			Archived: v.Archived,
		})
	}
	return project, nil
}

type userGroups struct {
	Groups struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
	} `json:"groups"`
}

type cachedGroups struct {
	groups  []string
	fetched time.Time
}

// groupCache remembers group memberships for a short while; every module asks for the same authors.
type groupCache struct {
	mu      sync.Mutex
	entries map[string]cachedGroups
}

func (g *groupCache) get(username string) ([]string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.entries[username]
	if !ok || time.Since(entry.fetched) > groupsTTL {
		return nil, false
	}
	return entry.groups, true
}

func (g *groupCache) put(username string, groups []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.entries == nil {
		g.entries = make(map[string]cachedGroups)
	}
	g.entries[username] = cachedGroups{groups: groups, fetched: time.Now()}
}

// Groups returns the names of the groups a user belongs to.
func (c *Client) Groups(ctx context.Context, username string) ([]string, error) {
	if c.client == nil {
		return nil, fmt.Errorf("JIRA client not initialized")
	}
	if groups, ok := c.groups.get(username); ok {
		return groups, nil
	}

	query := url.Values{}
	query.Set("username", username)
	query.Set("expand", "groups")
	req, err := c.client.NewRequestWithContext(ctx, "GET", "rest/api/2/user?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var user userGroups
	resp, err := c.client.Do(req, &user)
	if err != nil {
		err = jira.NewJiraError(resp, err)
	}
	metrics.ObserveTrackerRequest("groups", err)
	if err != nil {
		return nil, fmt.Errorf("failed to get groups of %s: %w", username, err)
	}

	groups := make([]string, 0, len(user.Groups.Items))
	for _, item := range user.Groups.Items {
		groups = append(groups, item.Name)
	}
	c.groups.put(username, groups)
	return groups, nil
}

func (c *Client) toSnapshot(issue *jira.Issue) *models.Issue {
	fields := issue.Fields

	snapshot := &models.Issue{
		Key:           issue.Key,
		Project:       fields.Project.Key,
		Created:       time.Time(fields.Created),
		Updated:       time.Time(fields.Updated),
		Summary:       fields.Summary,
		Description:   fields.Description,
		Environment:   fields.Environment,
		SecurityLevel: securityLevel(fields.Unknowns["security"]),
		CustomFields:  make(map[string]string),
	}
	if fields.Resolution != nil {
		snapshot.Resolution = fields.Resolution.Name
	}

	for _, attachment := range fields.Attachments {
		if attachment == nil {
			continue
		}
		snapshot.Attachments = append(snapshot.Attachments, models.Attachment{
			ID:       attachment.ID,
			Filename: attachment.Filename,
			MimeType: attachment.MimeType,
			Created:  parseTime(attachment.Created),
			Author:   toUser(attachment.Author),
			Fetch:    c.attachmentContent(attachment.ID),
		})
	}

	if fields.Comments != nil {
		for _, comment := range fields.Comments.Comments {
			if comment == nil {
				continue
			}
			converted := models.Comment{
				ID:      comment.ID,
				Author:  toUser(&comment.Author),
				Body:    comment.Body,
				Created: parseTime(comment.Created),
				Updated: parseTime(comment.Updated),
			}
			if comment.Visibility.Type != "" {
				converted.Visibility = &models.Visibility{Type: comment.Visibility.Type, Value: comment.Visibility.Value}
			}
			snapshot.Comments = append(snapshot.Comments, converted)
		}
	}

	if issue.Changelog != nil {
		for _, history := range issue.Changelog.Histories {
			entry := models.ChangeLogEntry{
				ID:      history.Id,
				Author:  toUser(&history.Author),
				Created: parseTime(history.Created),
			}
			for _, item := range history.Items {
				change := models.ChangeItem{Field: item.Field, ToString: item.ToString}
				// a set-from-nothing change has neither a from value nor a from string
				if item.From != nil || item.FromString != "" {
					from := item.FromString
					change.FromString = &from
				}
				entry.Items = append(entry.Items, change)
			}
			snapshot.ChangeLog = append(snapshot.ChangeLog, entry)
		}
		sort.SliceStable(snapshot.ChangeLog, func(i, j int) bool {
			return snapshot.ChangeLog[i].Created.Before(snapshot.ChangeLog[j].Created)
		})
	}

	for _, version := range fields.AffectsVersions {
		if version == nil {
			continue
		}
		snapshot.AffectedVersions = append(snapshot.AffectedVersions, models.Version{
			ID:       version.ID,
			Name:     version.Name,
			Released: version.Released != nil && *version.Released,
			Archived: version.Archived != nil && *version.Archived,
		})
	}

	for name, value := range fields.Unknowns {
		if !strings.HasPrefix(name, "customfield_") {
			continue
		}
		if flat := flattenField(value); flat != "" {
			snapshot.CustomFields[name] = flat
		}
	}

	return snapshot
}

func (c *Client) attachmentContent(id string) models.ContentFunc {
	return func(ctx context.Context) ([]byte, error) {
		resp, err := c.client.Issue.DownloadAttachmentWithContext(ctx, id)
		metrics.ObserveTrackerRequest("download_attachment", err)
		if err != nil {
			return nil, fmt.Errorf("failed to download attachment %s: %w", id, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentSize))
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %s: %w", id, err)
		}
		return data, nil
	}
}

func toUser(user *jira.User) models.User {
	if user == nil {
		return models.User{}
	}
	return models.User{Name: user.Name, DisplayName: user.DisplayName}
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		logging.Debug("unparseable jira timestamp", "value", value, "error", err)
		return time.Time{}
	}
	return t
}

// securityLevel extracts the level ID from the security field, "" when the ticket is public.
func securityLevel(value interface{}) string {
	level, ok := value.(map[string]interface{})
	if !ok {
		return ""
	}
	id, _ := level["id"].(string)
	return id
}

// flattenField reduces a custom field value to a string: options to their value,
// users to their name, arrays to a comma separated list.
func flattenField(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case map[string]interface{}:
		for _, key := range []string{"value", "name", "id"} {
			if inner, ok := v[key]; ok {
				return flattenField(inner)
			}
		}
		return ""
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if flat := flattenField(item); flat != "" {
				parts = append(parts, flat)
			}
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v)
	}
}
