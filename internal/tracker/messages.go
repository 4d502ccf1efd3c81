package tracker

import (
	"fmt"

	"habitbot/internal/storage"
)

// DateLayout is how dates are shown to and read from users.
const DateLayout = "02.01.2006"

func reminderText(it storage.Item) string {
	return fmt.Sprintf("🔔 Reminder: don't forget your habit '%s'!", it.Title)
}

func deadlineUpcomingText(it storage.Item, left int64) string {
	return fmt.Sprintf("⏳ Deadline: %s\n📅 Date: %s\n⏱ Days left: %d", it.Title, it.DeadlineAt.Format(DateLayout), left)
}

func deadlineLastDayText(it storage.Item) string {
	return fmt.Sprintf("⚠️ Today is the last day!\nDeadline: %s\nDon't forget to finish it!", it.Title)
}

func deadlineOverdueText(it storage.Item, overdue int64) string {
	return fmt.Sprintf("🚨 Deadline overdue!\n%s was due %s\nOverdue by %d day(s)", it.Title, it.DeadlineAt.Format(DateLayout), overdue)
}
