package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"flat-todo/internal/model"
	"flat-todo/internal/repository"
	"flat-todo/internal/service"
)

func categoriesView(categories []model.Category) (string, *tgbotapi.InlineKeyboardMarkup) {
	if len(categories) == 0 {
		return "No categories yet. Create one with /add.", nil
	}

	var builder strings.Builder
	builder.WriteString("📂 <b>Categories</b>\n")
	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, cat := range categories {
		if cat.Deletable() {
			builder.WriteString(fmt.Sprintf("• %s <i>(empty)</i>\n", escape(cat.Name)))
			if data, ok := callbackData(cbDeleteCatPrefix, cat.Name); ok {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData("🗑 "+shortTitle(cat.Name, 24), data),
				))
			}
			continue
		}
		builder.WriteString(fmt.Sprintf("• %s · %d bytes\n", escape(cat.Name), cat.Size))
	}
	text := strings.TrimSpace(builder.String())
	if len(buttons) == 0 {
		return text, nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(buttons...)
	return text, &markup
}

func taskListView(category string, tasks []model.Task, now time.Time) (string, *tgbotapi.InlineKeyboardMarkup) {
	if len(tasks) == 0 {
		return fmt.Sprintf("📋 <b>%s</b>\nNo open tasks. Add one with /add %s", escape(category), escape(category)), nil
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📋 <b>%s</b>\n", escape(category)))
	builder.WriteString("Tap a button to mark a task as done.\n\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	for i, task := range tasks {
		n := i + 1
		builder.WriteString(formatTask(n, task, now))
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("✅ %d · %s", n, shortTitle(task.Description, 24)),
				cbCompletePrefix+strconv.Itoa(n),
			),
		))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(buttons...)
	return strings.TrimSpace(builder.String()), &markup
}

func formatTask(n int, task model.Task, now time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>%d.</b> [%d] %s", service.DueIcon(task, now), n, task.Priority, escape(task.Description)))
	if task.Status != "" {
		b.WriteString(fmt.Sprintf(" <i>(%s)</i>", escape(task.Status)))
	}
	b.WriteByte('\n')
	if task.StartDate != "" || task.DueDate != "" {
		b.WriteString(fmt.Sprintf("   🗓 %s → %s\n", dateOrDash(task.StartDate), dateOrDash(task.DueDate)))
	}
	return b.String()
}

func dateOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return escape(s)
}

func invalidCategoryText(name string, categories []model.Category) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("⚠️ <b>%s</b> is not a valid category name.\n", escape(name)))
	b.WriteString("Use 1 to 20 characters without <code>\\ / : * ? \" &lt; &gt; | .</code>")
	if len(categories) > 0 {
		names := make([]string, 0, len(categories))
		for _, c := range categories {
			names = append(names, escape(c.Name))
		}
		b.WriteString("\n\nExisting categories: ")
		b.WriteString(strings.Join(names, ", "))
	}
	return b.String()
}

func deleteOutcomeText(category string, out model.DeleteOutcome) string {
	if out.Deleted {
		return fmt.Sprintf("🗑 Category <b>%s</b> deleted.", escape(category))
	}
	switch out.Reason {
	case model.BlockedNotEmpty:
		return fmt.Sprintf("Category <b>%s</b> still has tasks. Finish or remove them first.", escape(category))
	case model.BlockedMissing:
		return fmt.Sprintf("Category <b>%s</b> does not exist.", escape(category))
	default:
		return fmt.Sprintf("Category <b>%s</b> cannot be deleted: %s.", escape(category), escape(string(out.Reason)))
	}
}

// userErrorText turns the errors a user can cause into a reply. Other
// errors are left to the caller.
func userErrorText(err error, category string) (string, bool) {
	switch {
	case errors.Is(err, repository.ErrCategoryCollision):
		return fmt.Sprintf("Category <b>%s</b> already exists, nothing was changed.", escape(category)), true
	case errors.Is(err, repository.ErrInvalidCategory), errors.Is(err, repository.ErrUnrepresentableName):
		return invalidCategoryText(category, nil), true
	case errors.Is(err, service.ErrNoSuchTask):
		return "Task not found. The list may have changed, open it again with /list.", true
	default:
		return "", false
	}
}

// parseDoneArgs splits "<category> <n>". The category may contain spaces.
func parseDoneArgs(args string) (string, int, error) {
	args = strings.TrimSpace(args)
	i := strings.LastIndexAny(args, " \t")
	if i < 0 {
		return "", 0, fmt.Errorf("expected category and task number")
	}
	n, err := strconv.Atoi(args[i+1:])
	if err != nil || n < 1 {
		return "", 0, fmt.Errorf("invalid task number %q", args[i+1:])
	}
	category := strings.TrimSpace(args[:i])
	if category == "" {
		return "", 0, fmt.Errorf("expected category and task number")
	}
	return category, n, nil
}

// parseRenameArgs accepts "old new" or, for names with spaces, "old | new".
func parseRenameArgs(args string) (string, string, error) {
	if before, after, ok := strings.Cut(args, "|"); ok {
		oldName, newName := strings.TrimSpace(before), strings.TrimSpace(after)
		if oldName == "" || newName == "" {
			return "", "", fmt.Errorf("expected old and new name")
		}
		return oldName, newName, nil
	}
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return "", "", fmt.Errorf("expected old and new name")
	}
	return fields[0], fields[1], nil
}

func parsePriority(text string, max int) (int, bool) {
	if isSkipInput(text) {
		return defaultPriority, true
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 || n > max {
		return 0, false
	}
	return n, true
}

func callbackData(prefix, value string) (string, bool) {
	data := prefix + value
	if len(data) > maxCallbackData {
		return "", false
	}
	return data, true
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func confirmKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnConfirm),
			tgbotapi.NewKeyboardButton(btnCancel),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelNewTask),
			tgbotapi.NewKeyboardButton(menuLabelCategories),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelReport),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func priorityKeyboard(max int) tgbotapi.ReplyKeyboardMarkup {
	var row []tgbotapi.KeyboardButton
	for p := 1; p <= max; p++ {
		row = append(row, tgbotapi.NewKeyboardButton(strconv.Itoa(p)))
	}
	kb := tgbotapi.NewReplyKeyboard(
		row,
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

// categoryKeyboard offers existing categories two per row.
func categoryKeyboard(categories []model.Category) tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	var row []tgbotapi.KeyboardButton
	for _, cat := range categories {
		row = append(row, tgbotapi.NewKeyboardButton(cat.Name))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnCancelDialog)))
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "skip"
}

func isConfirmInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnConfirm) || value == "confirm" || value == "yes"
}

func isCancelInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancel) || value == "cancel" || value == "no"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "stop"
}
