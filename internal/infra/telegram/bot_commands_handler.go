package telegram

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterBotCommands registers /start and /help.
func RegisterBotCommands(b *telebot.Bot, adminTelegramID int64, baseLogger *logrus.Entry) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")

		if senderID == adminTelegramID {
			return c.Send(fmt.Sprintf("Hello, %s! The inbox monitor is running. Use /help for the list of commands.", c.Sender().FirstName))
		}
		return c.Send("This bot reports on the inbox monitor to its administrator only.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/help").WithField("sender_id", senderID)
		logCtx.Info("Processing /help command")

		if senderID != adminTelegramID {
			return c.Send("No commands are available to you.")
		}
		return c.Send(adminHelp(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	})
}

func adminHelp() string {
	var helpText strings.Builder
	helpText.WriteString("Administrator commands:\n\n")
	helpText.WriteString("`/usage <user_id>`\n - Show quota usage per period and monitor.\n\n")
	helpText.WriteString("`/reset_usage <user_id>`\n - Zero every quota counter of the user.\n\n")
	helpText.WriteString("`/activity <user_id> [limit]`\n - Show the latest activity log entries.\n\n")
	helpText.WriteString("`/help`\n - Show this message.")
	return helpText.String()
}
