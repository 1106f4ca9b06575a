package engine

import (
	"fmt"
	"regexp"

	"github.com/jonboulle/clockwork"

	"github.com/danielolaszy/arisa/internal/config"
	"github.com/danielolaszy/arisa/internal/module"
)

// NewRegistry builds every rule module from cfg, in the order they run against a ticket.
func NewRegistry(cfg *config.Config, tracker module.Tracker, clock clockwork.Clock) ([]Entry, error) {
	modules := cfg.Modules
	fields := cfg.CustomFields
	levels := cfg.PrivateSecurityLevel.For

	duplicates := make([]module.CrashDuplicate, 0, len(modules.Crash.Duplicates))
	for _, duplicate := range modules.Crash.Duplicates {
		exception, err := regexp.Compile(duplicate.Exception)
		if err != nil {
			return nil, fmt.Errorf("invalid crash duplicate pattern %q: %w", duplicate.Exception, err)
		}
		duplicates = append(duplicates, module.CrashDuplicate{Exception: exception, Key: duplicate.Duplicate})
	}

	privacy, err := module.NewPrivacy(tracker,
		modules.Privacy.Message,
		modules.Privacy.CommentNote,
		modules.Privacy.AllowedEmails,
		levels)
	if err != nil {
		return nil, err
	}

	return []Entry{
		{
			Name:      module.NameAttachment,
			Module:    module.NewAttachment(tracker, modules.Attachment.ExtensionBlacklist),
			Whitelist: modules.Attachment.Whitelist,
		},
		{
			Name:      module.NameCHK,
			Module:    module.NewCHK(tracker, clock, fields.CHK, fields.Confirmation),
			Whitelist: modules.CHK.Whitelist,
		},
		{
			Name:      module.NameReopenAwaiting,
			Module:    module.NewReopenAwaiting(tracker),
			Whitelist: modules.ReopenAwaiting.Whitelist,
		},
		{
			Name:      module.NamePiracy,
			Module:    module.NewPiracy(tracker, modules.Piracy.PiracyMessage, modules.Piracy.PiracySignatures),
			Whitelist: modules.Piracy.Whitelist,
		},
		{
			Name: module.NameRemoveTriagedMeqs,
			Module: module.NewRemoveTriagedMeqs(tracker,
				modules.RemoveTriagedMeqs.MeqsTags,
				modules.RemoveTriagedMeqs.RemovalReason,
				fields.MojangPriority,
				fields.TriagedTime),
			Whitelist: modules.RemoveTriagedMeqs.Whitelist,
		},
		{
			Name:      module.NameFutureVersion,
			Module:    module.NewFutureVersion(tracker, modules.FutureVersion.FutureVersionMessage),
			Whitelist: modules.FutureVersion.Whitelist,
		},
		{
			Name:      module.NameRemoveNonStaffMeqs,
			Module:    module.NewRemoveNonStaffMeqs(tracker, modules.RemoveNonStaffMeqs.RemovalReason),
			Whitelist: modules.RemoveNonStaffMeqs.Whitelist,
		},
		{
			Name:      module.NameEmpty,
			Module:    module.NewEmpty(tracker, modules.Empty.EmptyMessage),
			Whitelist: modules.Empty.Whitelist,
		},
		{
			Name: module.NameCrash,
			Module: module.NewCrash(tracker, clock,
				modules.Crash.CrashExtensions,
				duplicates,
				modules.Crash.MaxAttachmentAge,
				modules.Crash.ModdedMessage,
				modules.Crash.DuplicateMessage),
			Whitelist: modules.Crash.Whitelist,
		},
		{
			Name:      module.NameRevokeConfirmation,
			Module:    module.NewRevokeConfirmation(tracker, fields.Confirmation, fields.ConfirmationName),
			Whitelist: modules.RevokeConfirmation.Whitelist,
		},
		{
			Name:      module.NameKeepPrivate,
			Module:    module.NewKeepPrivate(tracker, modules.KeepPrivate.Tag, modules.KeepPrivate.KeepPrivateMessage, levels),
			Whitelist: modules.KeepPrivate.Whitelist,
		},
		{
			Name:      module.NameHideImpostors,
			Module:    module.NewHideImpostors(tracker, clock),
			Whitelist: modules.HideImpostors.Whitelist,
		},
		{
			Name:      module.NamePrivacy,
			Module:    privacy,
			Whitelist: modules.Privacy.Whitelist,
		},
	}, nil
}
