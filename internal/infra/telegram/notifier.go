package telegram

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/telebot.v3"

	"inbox_monitor/internal/domain/activity"
	domainTelegram "inbox_monitor/internal/domain/telegram"
)

const maxDetailRunes = 300

// Notifier forwards selected activity entries to a Telegram chat. It is an
// activity.Sink and is meant to sit next to the persistent log in an
// activity.Multi.
type Notifier struct {
	client   domainTelegram.Client
	chatID   int64
	statuses map[activity.Status]bool
}

// NewNotifier forwards the given statuses, or RESPONDED and ERROR when none
// are given.
func NewNotifier(client domainTelegram.Client, chatID int64, statuses ...activity.Status) *Notifier {
	if len(statuses) == 0 {
		statuses = []activity.Status{activity.StatusResponded, activity.StatusError}
	}
	set := make(map[activity.Status]bool, len(statuses))
	for _, s := range statuses {
		set[s] = true
	}
	return &Notifier{client: client, chatID: chatID, statuses: set}
}

func (n *Notifier) Record(ctx context.Context, e activity.Entry) error {
	if !n.statuses[e.Status] {
		return nil
	}
	if err := n.client.SendMessage(n.chatID, FormatEntry(e), &telebot.SendOptions{DisableWebPagePreview: true}); err != nil {
		return fmt.Errorf("failed to notify chat %d: %w", n.chatID, err)
	}
	return nil
}

// FormatEntry renders an entry as a short plain-text line block.
func FormatEntry(e activity.Entry) string {
	var b strings.Builder
	icon := "•"
	switch e.Status {
	case activity.StatusResponded:
		icon = "✅"
	case activity.StatusError:
		icon = "⚠️"
	case activity.StatusFiltered:
		icon = "🔇"
	}
	fmt.Fprintf(&b, "%s %s · user %s · monitor %s", icon, e.Status, e.UserID, e.MonitorID)
	if e.ItemID != "" {
		fmt.Fprintf(&b, "\nitem: %s", e.ItemID)
	}
	if d := strings.TrimSpace(e.Detail); d != "" {
		if r := []rune(d); len(r) > maxDetailRunes {
			d = string(r[:maxDetailRunes]) + "…"
		}
		fmt.Fprintf(&b, "\n%s", d)
	}
	if !e.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "\n%s", e.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	return b.String()
}
