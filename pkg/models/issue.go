// Package models defines the ticket snapshot shared across the application.
package models

import (
	"context"
	"time"
)

// Issue is a read-only projection of one ticket as fetched from the tracker.
// A fresh Issue is fetched every poll cycle; nothing is carried across cycles.
type Issue struct {
	// Key is the ticket identifier (e.g., "MC-123")
	Key string

	// Project is the key of the owning project (e.g., "MC")
	Project string

	Created time.Time
	Updated time.Time

	Summary     string
	Description string
	Environment string

	// Resolution is the resolution name, empty while unresolved
	Resolution string

	// SecurityLevel is the security level ID, empty when the ticket is public
	SecurityLevel string

	Attachments      []Attachment
	Comments         []Comment
	ChangeLog        []ChangeLogEntry
	AffectedVersions []Version

	// CustomFields holds custom field values flattened to strings, keyed by field ID
	CustomFields map[string]string
}

// IsPublic reports whether the ticket has no security level set.
func (i *Issue) IsPublic() bool {
	return i.SecurityLevel == ""
}

// CustomField returns the value of a custom field, or "" when unset.
func (i *Issue) CustomField(id string) string {
	if i.CustomFields == nil {
		return ""
	}
	return i.CustomFields[id]
}

// LatestChange returns the most recent change-log entry, or nil.
func (i *Issue) LatestChange() *ChangeLogEntry {
	if len(i.ChangeLog) == 0 {
		return nil
	}
	return &i.ChangeLog[len(i.ChangeLog)-1]
}

// User identifies an author on the tracker.
type User struct {
	Name        string
	DisplayName string
}

// ContentFunc fetches attachment bytes on demand.
type ContentFunc func(ctx context.Context) ([]byte, error)

// Attachment is a file attached to a ticket.
type Attachment struct {
	ID       string
	Filename string
	MimeType string
	Created  time.Time
	Author   User

	// Fetch downloads the content; nil means the attachment has no content
	Fetch ContentFunc
}

// Content returns the attachment bytes.
func (a Attachment) Content(ctx context.Context) ([]byte, error) {
	if a.Fetch == nil {
		return nil, nil
	}
	return a.Fetch(ctx)
}

// Visibility restricts a comment to a group or role.
type Visibility struct {
	Type  string
	Value string
}

// Comment is a ticket comment.
type Comment struct {
	ID      string
	Author  User
	Body    string
	Created time.Time
	Updated time.Time

	// Visibility is nil when the comment is visible to everyone
	Visibility *Visibility
}

// IsRestrictedTo reports whether the comment is restricted to the given group.
func (c Comment) IsRestrictedTo(group string) bool {
	return c.Visibility != nil && c.Visibility.Type == "group" && c.Visibility.Value == group
}

// ChangeLogEntry is one history record of a ticket.
type ChangeLogEntry struct {
	ID      string
	Author  User
	Created time.Time
	Items   []ChangeItem
}

// HasField reports whether any item of the entry changed the given field.
func (e ChangeLogEntry) HasField(field string) bool {
	for _, item := range e.Items {
		if item.Field == field {
			return true
		}
	}
	return false
}

// ChangeItem is a single field change.
type ChangeItem struct {
	Field string

	// FromString is nil when the field was set rather than changed
	FromString *string

	ToString string
}

// Version is a project version.
type Version struct {
	ID       string
	Name     string
	Released bool
	Archived bool
}

// Project is the subset of a tracker project the rule modules need.
type Project struct {
	Key      string
	Versions []Version
}
