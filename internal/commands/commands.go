// internal/commands/commands.go

// Package commands parses chat messages into core operations and turns
// every outcome, including every failure, into a user-facing reply.
package commands

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/giziti/beltbot/internal/belt"
	"github.com/giziti/beltbot/internal/provider"
	"github.com/giziti/beltbot/internal/store"
	"github.com/giziti/beltbot/internal/sync"
)

// DefaultPrefix marks bot commands in chat.
const DefaultPrefix = "!"

// Event is one inbound chat message. Moderator is asserted by the
// gateway from the platform's role data; privileged commands trust it.
type Event struct {
	Identity  string
	Channel   string
	Content   string
	Moderator bool
}

// Core is the slice of the synchronizer the dispatcher needs.
type Core interface {
	Link(ctx context.Context, providerName, username, identity string) (*sync.LinkResult, error)
	Update(ctx context.Context, identity string) (*sync.UpdateResult, error)
	Unlink(ctx context.Context, providerName, identity string) (int64, error)
	Profile(ctx context.Context, identity string) (*sync.ProfileView, error)
	Top(ctx context.Context, providerName string) ([]store.LadderEntry, error)
	Page(ctx context.Context, providerName, identity string) ([]store.LadderEntry, error)
	AwardRank(ctx context.Context, identity string, rank belt.Rank, awardedBy string) (*sync.Outcome, error)
	DeleteIdentity(ctx context.Context, identity string) (int64, error)
}

// Dispatcher routes prefixed chat commands to the core.
type Dispatcher struct {
	core   Core
	logger *logrus.Logger
	prefix string
}

// NewDispatcher builds a Dispatcher. An empty prefix falls back to
// DefaultPrefix.
func NewDispatcher(core Core, logger *logrus.Logger, prefix string) *Dispatcher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Dispatcher{core: core, logger: logger, prefix: prefix}
}

// Dispatch handles one chat event and returns the reply text. An empty
// reply means the message was not a command for this bot.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) string {
	if !strings.HasPrefix(ev.Content, d.prefix) {
		return ""
	}
	fields := strings.Fields(strings.TrimPrefix(ev.Content, d.prefix))
	if len(fields) == 0 {
		return ""
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	d.logger.WithFields(logrus.Fields{
		"invocation": uuid.NewString(),
		"command":    cmd,
		"identity":   ev.Identity,
	}).Info("command received")

	switch cmd {
	case "chess":
		return d.link(ctx, ev, provider.ChessComName, args)
	case "lichess":
		return d.link(ctx, ev, provider.LichessName, args)
	case "link":
		if len(args) < 2 {
			return "usage: " + d.prefix + "link <chesscom|lichess> <username>"
		}
		return d.link(ctx, ev, strings.ToLower(args[0]), args[1:])
	case "update":
		return d.update(ctx, ev)
	case "unlink":
		return d.unlink(ctx, ev, args)
	case "profile":
		target := ev.Identity
		if len(args) > 0 {
			target = stripMention(args[0])
		}
		return d.profile(ctx, target)
	case "rank":
		return d.rank(ctx, ev)
	case "progress":
		return d.progress(ctx, ev)
	case "top":
		return d.top(ctx, args)
	case "page":
		return d.page(ctx, ev, args)
	case "award":
		return d.award(ctx, ev, args)
	case "forget":
		return d.forget(ctx, ev, args)
	case "help":
		return helpText(d.prefix)
	default:
		return ""
	}
}

func (d *Dispatcher) link(ctx context.Context, ev Event, providerName string, args []string) string {
	if len(args) < 1 {
		return "tell me the username to link: " + d.prefix + "link " + providerName + " <username>"
	}
	res, err := d.core.Link(ctx, providerName, args[0], ev.Identity)
	if err != nil {
		return d.errorReply(err)
	}
	reply := "linked " + res.Username + " on " + res.Provider + ": " + res.Belt.String() + " belt"
	if res.Rating != nil {
		reply += " (rating " + itoa(*res.Rating) + ")"
	} else {
		reply += " (no stable rating yet)"
	}
	if res.Promoted {
		reply += " — promoted to " + res.Best.String() + "!"
	}
	return reply
}

func (d *Dispatcher) update(ctx context.Context, ev Event) string {
	res, err := d.core.Update(ctx, ev.Identity)
	if err != nil {
		return d.errorReply(err)
	}
	var b strings.Builder
	b.WriteString("profile updated:")
	for _, u := range res.Updated {
		b.WriteString(" [" + u.Provider + "/" + u.Username + " " + u.Belt.String())
		if u.NewRating != nil {
			b.WriteString(" " + itoa(*u.NewRating))
		}
		b.WriteString("]")
	}
	if res.Promoted {
		b.WriteString(" — promoted to " + res.Best.String() + "!")
	}
	return b.String()
}

func (d *Dispatcher) unlink(ctx context.Context, ev Event, args []string) string {
	providerName := ""
	if len(args) > 0 {
		providerName = strings.ToLower(args[0])
	}
	removed, err := d.core.Unlink(ctx, providerName, ev.Identity)
	if err != nil {
		return d.errorReply(err)
	}
	if removed == 0 {
		return "nothing to unlink"
	}
	return "unlinked " + itoa64(removed) + " account(s)"
}

func (d *Dispatcher) profile(ctx context.Context, identity string) string {
	view, err := d.core.Profile(ctx, identity)
	if err != nil {
		return d.errorReply(err)
	}
	var b strings.Builder
	b.WriteString(identity + ": " + view.Best.String() + " belt")
	for _, p := range view.Aggregate.Profiles {
		b.WriteString("\n" + p.Provider + ": " + p.Username + " — " + p.Belt.String())
		if p.CurrentRating != nil {
			b.WriteString(" (" + itoa(*p.CurrentRating) + ")")
		} else {
			b.WriteString(" (unrated)")
		}
	}
	if view.Aggregate.ModRank != nil {
		b.WriteString("\nawarded: " + view.Aggregate.ModRank.String())
	}
	return b.String()
}

func (d *Dispatcher) rank(ctx context.Context, ev Event) string {
	view, err := d.core.Profile(ctx, ev.Identity)
	if err != nil {
		return d.errorReply(err)
	}
	return "you hold the " + view.Best.String() + " belt"
}

func (d *Dispatcher) progress(ctx context.Context, ev Event) string {
	view, err := d.core.Profile(ctx, ev.Identity)
	if err != nil {
		return d.errorReply(err)
	}
	var b strings.Builder
	b.WriteString("progress:")
	any := false
	for _, p := range view.Aggregate.Profiles {
		if p.CurrentRating == nil || p.PreviousRating == nil {
			continue
		}
		any = true
		delta := *p.CurrentRating - *p.PreviousRating
		sign := "+"
		if delta < 0 {
			sign = ""
		}
		b.WriteString(" " + p.Provider + " " + sign + itoa(delta))
	}
	if !any {
		return "no rating history yet; run " + d.prefix + "update after a few games"
	}
	return b.String()
}

func (d *Dispatcher) top(ctx context.Context, args []string) string {
	providerName := provider.ChessComName
	if len(args) > 0 {
		providerName = strings.ToLower(args[0])
	}
	entries, err := d.core.Top(ctx, providerName)
	if err != nil {
		return d.errorReply(err)
	}
	if len(entries) == 0 {
		return "no rated players linked on " + providerName + " yet"
	}
	var b strings.Builder
	b.WriteString("top " + providerName + ":")
	for i, e := range entries {
		b.WriteString("\n" + itoa(i+1) + ". " + e.Username + " (" + itoa(e.Rating) + ")")
	}
	return b.String()
}

func (d *Dispatcher) page(ctx context.Context, ev Event, args []string) string {
	providerName := provider.ChessComName
	if len(args) > 0 {
		providerName = strings.ToLower(args[0])
	}
	entries, err := d.core.Page(ctx, providerName, ev.Identity)
	if err != nil {
		return d.errorReply(err)
	}
	if len(entries) == 0 {
		return "nobody near you on the " + providerName + " ladder yet"
	}
	var b strings.Builder
	b.WriteString("players near you on " + providerName + ":")
	for _, e := range entries {
		b.WriteString("\n" + e.Username + " (" + itoa(e.Rating) + ")")
	}
	return b.String()
}

func (d *Dispatcher) award(ctx context.Context, ev Event, args []string) string {
	if !ev.Moderator {
		return d.errorReply(sync.ErrUnauthorized)
	}
	if len(args) < 2 {
		return "usage: " + d.prefix + "award <identity> <belt>"
	}
	rank, err := belt.ParseRank(args[1])
	if err != nil {
		return "that's not a belt I know; one of " + strings.Join(belt.Names(), ", ")
	}
	target := stripMention(args[0])
	res, err := d.core.AwardRank(ctx, target, rank, ev.Identity)
	if err != nil {
		return d.errorReply(err)
	}
	reply := "awarded " + rank.String() + " to " + target
	if res.Promoted {
		reply += " — promoted to " + res.Best.String() + "!"
	}
	return reply
}

func (d *Dispatcher) forget(ctx context.Context, ev Event, args []string) string {
	if !ev.Moderator {
		return d.errorReply(sync.ErrUnauthorized)
	}
	if len(args) < 1 {
		return "usage: " + d.prefix + "forget <identity>"
	}
	target := stripMention(args[0])
	removed, err := d.core.DeleteIdentity(ctx, target)
	if err != nil {
		return d.errorReply(err)
	}
	if removed == 0 {
		return "never heard of " + target
	}
	return "forgot everything about " + target
}

// stripMention unwraps the chat platform's <@id> mention syntax.
func stripMention(arg string) string {
	arg = strings.TrimPrefix(arg, "<@")
	arg = strings.TrimPrefix(arg, "!")
	return strings.TrimSuffix(arg, ">")
}

func helpText(prefix string) string {
	return strings.Join([]string{
		prefix + "chess <username> / " + prefix + "lichess <username> — link your accounts",
		prefix + "update — refresh your ratings and belt",
		prefix + "unlink [provider] — unlink one or all accounts",
		prefix + "profile [@user] — view a profile",
		prefix + "rank — your current belt",
		prefix + "progress — rating change since last update",
		prefix + "top [provider] — server leaderboard",
		prefix + "page [provider] — players rated near you",
		prefix + "award <user> <belt> — (mods) award a belt",
		prefix + "forget <user> — (mods) delete a profile",
	}, "\n")
}
