package module

import (
	"context"
	"strings"
)

// Attachment deletes attachments with blacklisted file extensions.
type Attachment struct {
	tracker            Tracker
	extensionBlacklist []string
}

// NewAttachment returns the module deleting attachments with a blacklisted extension.
func NewAttachment(tracker Tracker, extensionBlacklist []string) *Attachment {
	return &Attachment{tracker: tracker, extensionBlacklist: extensionBlacklist}
}

func (m *Attachment) Run(ctx context.Context, req Request) Outcome {
	var fx effects
	for _, attachment := range req.Issue.Attachments {
		if hasExtension(attachment.Filename, m.extensionBlacklist) {
			fx.do(m.tracker.DeleteAttachment(ctx, attachment.ID))
		}
	}
	return fx.outcome()
}

// hasExtension reports whether filename ends with one of the extensions, ignoring case.
func hasExtension(filename string, extensions []string) bool {
	name := strings.ToLower(filename)
	for _, extension := range extensions {
		if strings.HasSuffix(name, "."+strings.ToLower(strings.TrimPrefix(extension, "."))) {
			return true
		}
	}
	return false
}
