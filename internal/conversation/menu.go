package conversation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"habitbot/internal/storage"
	kit "habitbot/internal/transport"
)

const (
	BtnAddHabit    = "Add habit"
	BtnMyItems     = "My items"
	BtnAddDeadline = "Add deadline"
	BtnDelete      = "Delete"
	BtnReminders   = "Reminder settings"
	BtnMarkDone    = "Mark deadline done"
	BtnHelp        = "Help"
	BtnCancel      = "Cancel"
)

var mainMenuRows = [][]string{
	{BtnAddHabit, BtnMyItems},
	{BtnAddDeadline, BtnDelete},
	{BtnReminders, BtnMarkDone},
	{BtnHelp},
}

// MainMenu returns send options carrying the main reply keyboard.
func MainMenu() *kit.SendOptions {
	rows := make([][]string, len(mainMenuRows))
	for i, r := range mainMenuRows {
		rows[i] = append([]string(nil), r...)
	}
	return &kit.SendOptions{Keyboard: rows}
}

func isMenuButton(text string) bool {
	for _, r := range mainMenuRows {
		for _, b := range r {
			if b == text {
				return true
			}
		}
	}
	return false
}

func noKeyboard() *kit.SendOptions { return &kit.SendOptions{RemoveKeyboard: true} }

// idPicker lists item ids one per row, followed by Cancel.
func idPicker(items []storage.Item) *kit.SendOptions {
	rows := make([][]string, 0, len(items)+1)
	for _, it := range items {
		rows = append(rows, []string{strconv.FormatInt(it.ID, 10)})
	}
	rows = append(rows, []string{BtnCancel})
	return &kit.SendOptions{Keyboard: rows}
}

// Bot menu commands.
var Commands = []kit.BotCommand{
	{Command: "start", Description: "show the main menu"},
	{Command: "help", Description: "how to use the bot"},
	{Command: "cancel", Description: "cancel the current action"},
}

const (
	msgGreeting     = "Hi! I track your habits and deadlines.\nChoose an action:"
	msgCancelled    = "Action cancelled"
	msgUnknown      = "I don't understand that. Please use the menu buttons."
	msgInternal     = "Something went wrong, please try again later."
	msgPrivateOnly  = "Please talk to me in a private chat."
	msgAskHabit     = "Enter the habit name:"
	msgAskDeadline  = "Enter the deadline name:"
	msgAskDate      = "Enter the deadline date as DD.MM.YYYY (for example, 31.12.2025):"
	msgPastDate     = "❌ The deadline date can't be earlier than today! Enter a valid date:"
	msgBadDate      = "❌ Wrong date format. Please enter the date as DD.MM.YYYY:"
	msgAskTime      = "⏰ Enter the reminder time as HH:MM (for example, 09:30):"
	msgPastTime     = "❌ That time has already passed! Enter a new time:"
	msgBadTime      = "❌ Wrong time format. Please enter the time as HH:MM:"
	msgEmptyTitle   = "The name can't be empty. Try again:"
	msgNoItems      = "You have no habits or deadlines yet."
	msgNoDeadlines  = "You have no deadlines to mark."
	msgNoDeletable  = "You have no habits or deadlines to delete."
	msgNoHabits     = "You have no habits to set reminders for."
	msgPickDeadline = "Choose the ID of the deadline you finished:"
	msgPickDelete   = "Choose the ID of the habit or deadline to delete:"
	msgPickHabit    = "Choose the ID of the habit to configure:"
	msgBadID        = "Please enter a valid ID."
	msgDeadlineGone = "Deadline not found."
	msgItemGone     = "Habit or deadline not found."
	msgHabitGone    = "Habit not found or it is a deadline."
	msgBadInterval  = "Wrong format. Use days:hours:minutes:seconds (for example, 0:1:0:0)."
	msgZeroInterval = "The interval must be greater than 0 seconds."
	msgLongInterval = "That interval is too long."
)

const helpText = "ℹ️ Help\n\n" +
	"📌 What I can do:\n" +
	"• " + BtnAddHabit + " - create a habit with recurring reminders\n" +
	"• " + BtnAddDeadline + " - create a deadline with daily reminders\n" +
	"• " + BtnMyItems + " - list your habits and deadlines\n" +
	"• " + BtnMarkDone + " - mark a deadline as finished\n" +
	"• " + BtnDelete + " - delete a habit or deadline\n" +
	"• " + BtnReminders + " - change a habit's reminder interval\n\n" +
	"📅 Deadline dates: DD.MM.YYYY (for example, 31.12.2025)\n" +
	"⏱ Reminder intervals: days:hours:minutes:seconds (for example, 0:1:30:0)\n" +
	"Times are in UTC. /cancel stops the current action."

func habitAddedText(it storage.Item) string {
	return fmt.Sprintf("Habit '%s' added! Reminders come %s.\nYou can change the interval with '%s'.", it.Title, everyText(it.ReminderInterval), BtnReminders)
}

func deadlineAddedText(it storage.Item) string {
	return fmt.Sprintf("✅ Deadline '%s' added!\n📅 Date: %s\n⏰ Reminder: daily at %s UTC", it.Title, it.DeadlineAt.Format(dateLayout), it.DeadlineAt.Format(clockLayout))
}

func markedDoneText(it storage.Item) string {
	return fmt.Sprintf("Deadline '%s' marked as done! Reminders are off.", it.Title)
}

func deletedText(it storage.Item) string {
	return fmt.Sprintf("Habit or deadline '%s' deleted!", it.Title)
}

func askIntervalText(title string) string {
	return "Reminder settings for habit: " + title + "\n" +
		"Enter the new interval as days:hours:minutes:seconds\n" +
		"For example:\n" +
		"0:1:0:0 - every hour\n" +
		"0:0:30:0 - every 30 minutes\n" +
		"1:0:0:0 - every day"
}

func intervalSetText(title string, iv Interval) string {
	return fmt.Sprintf("Reminders for habit '%s' now come every %s.", title, iv)
}

func everyText(d time.Duration) string {
	if d == time.Hour {
		return "every hour"
	}
	return "every " + hoursMinutes(d)
}

func hoursMinutes(d time.Duration) string {
	secs := int64(d / time.Second)
	return fmt.Sprintf("%dh %dm", secs/3600, (secs%3600)/60)
}

func listText(items []storage.Item) string {
	var b strings.Builder
	b.WriteString("📋 Your habits and deadlines:\n\n")
	for _, it := range items {
		var status string
		if it.Kind == storage.KindDeadline {
			status = "📅 Deadline: " + it.DeadlineAt.Format(dateLayout)
		} else {
			status = "⏰ Reminder: every " + hoursMinutes(it.ReminderInterval)
		}
		done := "❌ Not done"
		if it.Done {
			done = "✅ Done"
		}
		fmt.Fprintf(&b, "%d. %s\n%s - %s\n\n", it.ID, it.Title, status, done)
	}
	return strings.TrimRight(b.String(), "\n")
}
