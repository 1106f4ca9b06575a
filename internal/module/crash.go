package module

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	minecraftCrashHeader = "---- Minecraft Crash Report ----"
	jvmCrashHeader       = "# A fatal error has been detected by the Java Runtime Environment"
)

// CrashReport is the part of a crash report the Crash module decides on.
type CrashReport struct {
	Modded    bool
	Exception string
}

// ParseCrashReport recognizes Minecraft crash reports and JVM fatal error logs.
func ParseCrashReport(text string) (CrashReport, bool) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	switch {
	case strings.Contains(text, minecraftCrashHeader):
		return parseMinecraftCrash(text), true
	case strings.Contains(text, jvmCrashHeader):
		return parseJVMCrash(text), true
	default:
		return CrashReport{}, false
	}
}

func parseMinecraftCrash(text string) CrashReport {
	var report CrashReport
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if value, ok := strings.CutPrefix(trimmed, "Is Modded: "); ok {
			report.Modded = strings.HasPrefix(value, "Definitely") || strings.HasPrefix(value, "Very likely")
		}
		if report.Exception == "" && strings.HasPrefix(trimmed, "Description: ") {
			report.Exception = firstNonBlank(lines[i+1:])
		}
	}
	return report
}

func parseJVMCrash(text string) CrashReport {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "# Problematic frame:") && i+1 < len(lines) {
			return CrashReport{Exception: strings.TrimSpace(strings.TrimPrefix(lines[i+1], "#"))}
		}
	}
	return CrashReport{}
}

func firstNonBlank(lines []string) string {
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// CrashDuplicate maps an exception pattern to the ticket all matching crashes duplicate.
type CrashDuplicate struct {
	Exception *regexp.Regexp
	Key       string
}

// Crash resolves tickets whose crash reports are modded or duplicate a known crash.
type Crash struct {
	tracker          Tracker
	clock            clockwork.Clock
	extensions       []string
	duplicates       []CrashDuplicate
	maxAttachmentAge time.Duration
	moddedMessage    string
	duplicateMessage string
}

// NewCrash builds the module. maxAttachmentAgeDays bounds which attachments are still read.
func NewCrash(tracker Tracker, clock clockwork.Clock, extensions []string, duplicates []CrashDuplicate,
	maxAttachmentAgeDays int, moddedMessage, duplicateMessage string) *Crash {
	return &Crash{
		tracker:          tracker,
		clock:            clock,
		extensions:       extensions,
		duplicates:       duplicates,
		maxAttachmentAge: time.Duration(maxAttachmentAgeDays) * 24 * time.Hour,
		moddedMessage:    moddedMessage,
		duplicateMessage: duplicateMessage,
	}
}

func (m *Crash) Run(ctx context.Context, req Request) Outcome {
	reports, err := m.reports(ctx, req)
	if err != nil {
		return Failed(err)
	}
	if len(reports) == 0 {
		return NoActionNeeded()
	}

	issue := req.Issue
	var fx effects

	for _, report := range reports {
		if report.Modded {
			if fx.do(m.tracker.ResolveAs(ctx, issue.Key, "Invalid")) {
				fx.do(m.tracker.AddComment(ctx, issue.Key, m.moddedMessage))
			}
			return fx.outcome()
		}
	}

	for _, report := range reports {
		duplicate := m.duplicateOf(report)
		if duplicate == "" || duplicate == issue.Key {
			continue
		}
		if fx.do(m.tracker.ResolveAs(ctx, issue.Key, "Duplicate")) &&
			fx.do(m.tracker.LinkIssue(ctx, issue.Key, "Duplicate", duplicate)) {
			fx.do(m.tracker.AddComment(ctx, issue.Key, strings.ReplaceAll(m.duplicateMessage, "{DUPLICATE}", duplicate)))
		}
		return fx.outcome()
	}

	return NoActionNeeded()
}

func (m *Crash) duplicateOf(report CrashReport) string {
	if report.Exception == "" {
		return ""
	}
	for _, duplicate := range m.duplicates {
		if duplicate.Exception.MatchString(report.Exception) {
			return duplicate.Key
		}
	}
	return ""
}

// reports parses the description and every recent attachment with a crash extension.
func (m *Crash) reports(ctx context.Context, req Request) ([]CrashReport, error) {
	var reports []CrashReport
	if report, ok := ParseCrashReport(req.Issue.Description); ok {
		reports = append(reports, report)
	}

	cutoff := m.clock.Now().Add(-m.maxAttachmentAge)
	for _, attachment := range req.Issue.Attachments {
		if attachment.Created.Before(cutoff) || !hasExtension(attachment.Filename, m.extensions) {
			continue
		}
		data, err := attachment.Content(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %s: %w", attachment.Filename, err)
		}
		if report, ok := ParseCrashReport(string(data)); ok {
			reports = append(reports, report)
		}
	}
	return reports, nil
}
