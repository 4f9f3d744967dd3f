package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"inbox_monitor/internal/app"
)

const (
	msgUnauthorized = "Error: you are not allowed to run this command."
	maxActivity     = 50
)

// RegisterAdminHandlers registers the usage and activity commands. Every
// command is limited to adminTelegramID.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, usage *app.UsageService, adminTelegramID int64, baseLogger *logrus.Entry) {
	commands := map[string]func(ctx context.Context, senderID int64, args []string) (string, error){
		"/usage":       func(ctx context.Context, id int64, args []string) (string, error) { return usageReply(ctx, usage, id, args) },
		"/reset_usage": func(ctx context.Context, id int64, args []string) (string, error) { return resetReply(ctx, usage, id, args) },
		"/activity":    func(ctx context.Context, id int64, args []string) (string, error) { return activityReply(ctx, usage, id, args) },
	}

	for name, run := range commands {
		name, run := name, run
		b.Handle(name, func(c telebot.Context) error {
			handlerLogger := baseLogger.WithFields(logrus.Fields{
				"handler":   name,
				"sender_id": c.Sender().ID,
			})
			handlerLogger.Info("Command received")

			if c.Sender().ID != adminTelegramID {
				handlerLogger.Warn("Unauthorized access attempt")
				return c.Send(msgUnauthorized)
			}

			reply, err := run(ctx, c.Sender().ID, c.Args())
			if err != nil {
				handlerLogger.WithError(err).Error("Command failed")
			}
			return c.Send(reply)
		})
	}
}

// The reply builders return the text to send and, for unexpected failures,
// the error to log. Expected failures only produce a reply.

func usageReply(ctx context.Context, usage *app.UsageService, senderID int64, args []string) (string, error) {
	if len(args) != 1 {
		return "Usage: /usage <user_id>", nil
	}
	counters, err := usage.ListUsage(ctx, senderID, args[0])
	if err != nil {
		return errorReply("listing usage", err)
	}
	if len(counters) == 0 {
		return fmt.Sprintf("No usage recorded for %s.", args[0]), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Usage for %s:\n", args[0])
	for _, c := range counters {
		fmt.Fprintf(&b, "%s  %s  %d/%d\n", c.PeriodID, c.MonitorID, c.CurrentCount, c.MaxCount)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func resetReply(ctx context.Context, usage *app.UsageService, senderID int64, args []string) (string, error) {
	if len(args) != 1 {
		return "Usage: /reset_usage <user_id>", nil
	}
	n, err := usage.ResetUsage(ctx, senderID, args[0])
	if err != nil {
		return errorReply("resetting usage", err)
	}
	return fmt.Sprintf("Reset %d counter(s) for %s.", n, args[0]), nil
}

func activityReply(ctx context.Context, usage *app.UsageService, senderID int64, args []string) (string, error) {
	if len(args) < 1 || len(args) > 2 {
		return "Usage: /activity <user_id> [limit]", nil
	}
	limit := 0
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 || n > maxActivity {
			return fmt.Sprintf("Error: limit must be a number between 1 and %d.", maxActivity), nil
		}
		limit = n
	}
	entries, err := usage.RecentActivity(ctx, senderID, args[0], limit)
	if err != nil {
		return errorReply("reading activity", err)
	}
	if len(entries) == 0 {
		return fmt.Sprintf("No activity recorded for %s.", args[0]), nil
	}
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = FormatEntry(e)
	}
	return strings.Join(parts, "\n\n"), nil
}

func errorReply(action string, err error) (string, error) {
	switch {
	case errors.Is(err, app.ErrAdminNotAuthorized):
		return msgUnauthorized, nil
	case errors.Is(err, app.ErrUserIDRequired):
		return "Error: user id must not be empty.", nil
	case errors.Is(err, app.ErrActivityUnavailable):
		return "Activity log is not available with this storage backend.", nil
	default:
		return fmt.Sprintf("An error occurred while %s: %s", action, err.Error()), err
	}
}
