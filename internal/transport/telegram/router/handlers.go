package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"schedbot/internal/eventbus"
	"schedbot/internal/schedule"
	"schedbot/internal/syncer"
	kit "schedbot/internal/transport"
	logx "schedbot/pkg/logx"
)

const (
	notOrganizerText = "Sorry, you are not an organizer of this event.\n" +
		"Try /start again.\n" +
		"If this is a mistake, contact the event staff."
	authorizedText        = "Authorization successful.\nSend /help to list the available commands."
	alreadyAuthorizedText = "You are already authorized.\nSend /help to list the available commands."
	failureText           = "Something went wrong, please contact the bot maintainers or the event staff."
	unauthorizedText      = "unauthorized"
	busyText              = "busy, try again"

	scheduleIntroText = "Get someone's schedule.\nSearch by surname or by name and surname?"
	bySurnameButton   = "By surname"
	byFullNameButton  = "By name and surname"
	askFirstNameText  = "Enter the first name"
	askSurnameText    = "Enter the surname"
	userNotFoundText  = "User not found"
	noEventsText      = "No events found."
)

func (r *Router) builtinCommands() []Command {
	return []Command{
		{Name: "myschedule", Description: "my schedule", Access: AccessAuthorized, Handle: r.cmdMySchedule},
		{Name: "start", Description: "authorize", Access: AccessEveryone, Handle: r.cmdStart},
		{Name: "schedule", Description: "someone else's schedule", Access: AccessAuthorized, Handle: r.cmdSchedule},
		{Name: "help", Aliases: []string{"h"}, Description: "available commands", Access: AccessAuthorized, Handle: r.cmdHelp},
		{Name: "status", Description: "polling loop status", Access: AccessOwnerOnly, Handle: r.cmdStatus},
	}
}

func (r *Router) cmdStart(ctx context.Context, req *Request) error {
	res, err := r.dir.Authorize(ctx, req.Username, req.Chat.ChatID)
	if err != nil {
		req.Outcome = "failure"
		_ = r.reply(ctx, req, failureText, nil)
		return err
	}
	req.Outcome = authOutcome(res)
	switch res {
	case schedule.Authorized:
		req.Logger.Info("chat authorized", logx.String("handle", req.Username))
		r.bus.Publish(eventbus.Event{
			Type: eventbus.TopicAuthorized,
			Time: time.Now(),
			Data: map[string]any{"handle": req.Username, "chat_id": req.Chat.ChatID},
		})
		return r.reply(ctx, req, authorizedText, nil)
	case schedule.AlreadyAuthorized:
		return r.reply(ctx, req, alreadyAuthorizedText, nil)
	default:
		return r.reply(ctx, req, notOrganizerText, nil)
	}
}

func authOutcome(res schedule.AuthResult) string {
	switch res {
	case schedule.Authorized:
		return "authorized"
	case schedule.AlreadyAuthorized:
		return "already_authorized"
	default:
		return "not_organizer"
	}
}

func (r *Router) cmdHelp(ctx context.Context, req *Request) error {
	req.Outcome = "help"
	return r.reply(ctx, req, r.helpText(r.isOwner(req.FromID)), &kit.SendOptions{DisablePreview: true})
}

func (r *Router) cmdMySchedule(ctx context.Context, req *Request) error {
	slots, err := r.dir.EventsForHandle(ctx, req.Username)
	return r.sendTimeline(ctx, req, slots, err)
}

func (r *Router) cmdSchedule(ctx context.Context, req *Request) error {
	return r.reply(ctx, req, scheduleIntroText, &kit.SendOptions{
		Keyboard: [][]string{{bySurnameButton, byFullNameButton}},
	})
}

// onText drives the /schedule conversation; any other text shows help.
func (r *Router) onText(ctx context.Context, req *Request) error {
	chat := req.Chat.ChatID
	if st, ok := r.convs.take(chat); ok {
		return r.continueLookup(ctx, req, st)
	}
	switch req.Text {
	case bySurnameButton:
		r.convs.put(chat, convState{step: stepSurnameOnly})
		req.Outcome = "ask_surname"
		return r.reply(ctx, req, askSurnameText, &kit.SendOptions{RemoveKeyboard: true})
	case byFullNameButton:
		r.convs.put(chat, convState{step: stepFirstName})
		req.Outcome = "ask_first_name"
		return r.reply(ctx, req, askFirstNameText, &kit.SendOptions{RemoveKeyboard: true})
	default:
		return r.cmdHelp(ctx, req)
	}
}

func (r *Router) continueLookup(ctx context.Context, req *Request, st convState) error {
	req.Step = st.step.String()
	switch st.step {
	case stepFirstName:
		r.convs.put(req.Chat.ChatID, convState{step: stepSurname, first: req.Text})
		req.Outcome = "ask_surname"
		return r.reply(ctx, req, askSurnameText, nil)
	case stepSurname:
		slots, err := r.dir.EventsFor(ctx, schedule.Filter{FirstName: st.first, LastName: req.Text})
		return r.sendTimeline(ctx, req, slots, err)
	case stepSurnameOnly:
		slots, err := r.dir.EventsFor(ctx, schedule.Filter{LastName: req.Text, BySurnameOnly: true})
		return r.sendTimeline(ctx, req, slots, err)
	default:
		return r.cmdHelp(ctx, req)
	}
}

func (r *Router) sendTimeline(ctx context.Context, req *Request, slots []schedule.Slot, err error) error {
	switch {
	case errors.Is(err, schedule.ErrPersonNotFound):
		req.Outcome = "not_found"
		return r.reply(ctx, req, userNotFoundText, nil)
	case err != nil:
		req.Outcome = "failure"
		_ = r.reply(ctx, req, failureText, nil)
		return err
	case len(slots) == 0:
		req.Outcome = "no_events"
		return r.reply(ctx, req, noEventsText, nil)
	}
	req.Outcome, req.Slots = "timeline", len(slots)
	for _, chunk := range schedule.ChunkLines(schedule.FormatTimeline(slots), schedule.TimelineChunk) {
		if err := r.reply(ctx, req, chunk, nil); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) cmdStatus(ctx context.Context, req *Request) error {
	if r.status == nil {
		return r.reply(ctx, req, "sync loop not running", nil)
	}
	return r.reply(ctx, req, formatStatus(r.status.Snapshot()), nil)
}

func formatStatus(s syncer.Snapshot) string {
	var b strings.Builder
	if s.Enabled {
		fmt.Fprintf(&b, "Sync: enabled (%s)\n", s.Spec)
	} else {
		b.WriteString("Sync: disabled\n")
	}
	fmt.Fprintf(&b, "State: %s\n", s.State)
	if !s.Next.IsZero() {
		fmt.Fprintf(&b, "Next: %s\n", s.Next.Format("15:04:05"))
	}
	fmt.Fprintf(&b, "Cycles: %d, failures: %d, overlaps skipped: %d\n", s.Cycles, s.Failures, s.Overlaps)
	if last := s.Last; last != nil {
		rep := last.Reconcile
		fmt.Fprintf(&b, "Last cycle %s at %s took %s\n", last.ID, last.StartedAt.Format("15:04:05"), last.Took.Round(time.Millisecond))
		fmt.Fprintf(&b, "  entries %d (rows skipped %d), mode %s\n", last.Entries, last.SkippedRows, rep.Mode)
		fmt.Fprintf(&b, "  people +%d, events +%d ~%d, activity changes %d\n", rep.PeopleCreated, rep.EventsCreated, rep.EventsUpdated, rep.ActivityChanges)
		fmt.Fprintf(&b, "  messages sent %d, failed %d\n", last.Delivery.Sent, last.Delivery.Failed)
		if last.Error != "" {
			fmt.Fprintf(&b, "  failed in %s: %s\n", last.FailedIn, last.Error)
		}
	}
	if s.LastError != "" {
		fmt.Fprintf(&b, "Last error (%s): %s\n", s.LastErrAt.Format("2006-01-02 15:04:05"), s.LastError)
	}
	return strings.TrimRight(b.String(), "\n")
}
