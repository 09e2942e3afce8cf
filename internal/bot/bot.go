package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"flat-todo/internal/model"
	"flat-todo/internal/repository"
	"flat-todo/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageCategory
	stageDescription
	stagePriority
	stageDue
)

const (
	cbCompletePrefix  = "complete:"
	cbDeleteCatPrefix = "deletecat:"

	// Telegram rejects callback data longer than this many bytes.
	maxCallbackData = 64
)

const (
	btnSkip             = "⏭️ Skip"
	btnConfirm          = "✅ Confirm"
	btnCancel           = "↩️ Cancel"
	btnCancelDialog     = "⏪ Stop input"
	menuLabelNewTask    = "➕ New task"
	menuLabelCategories = "📂 Categories"
	menuLabelReport     = "📋 Report"
	menuLabelHelp       = "ℹ️ Help"
	defaultPriority     = 3
)

type conversationState struct {
	stage    conversationStage
	category string
	task     model.Task
}

type confirmationAction int

const (
	actionComplete confirmationAction = iota
	actionDeleteCategory
)

type confirmationRequest struct {
	action   confirmationAction
	category string
	index    int
}

// sender is the part of the Telegram API the handlers use.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api           *tgbotapi.BotAPI
	out           sender
	userRepo      *repository.UserRepository
	categorySvc   *service.CategoryService
	taskSvc       *service.TaskService
	reminderSvc   *service.ReminderService
	reportChats   []int64
	logger        *log.Logger
	now           func() time.Time
	conversations map[int64]*conversationState
	confirmations map[int64]confirmationRequest
	// views remembers the category last listed in each chat; inline
	// buttons refer to its task numbers.
	views map[int64]string
	mu    sync.Mutex
}

func New(token string, userRepo *repository.UserRepository, categorySvc *service.CategoryService, taskSvc *service.TaskService, reminderSvc *service.ReminderService, reportChats []int64, logger *log.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	b := newBot(api, userRepo, categorySvc, taskSvc, reminderSvc, reportChats, logger)
	b.api = api
	b.logger.Info("bot authorized", "account", api.Self.UserName)
	return b, nil
}

func newBot(out sender, userRepo *repository.UserRepository, categorySvc *service.CategoryService, taskSvc *service.TaskService, reminderSvc *service.ReminderService, reportChats []int64, logger *log.Logger) *Bot {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Bot{
		out:           out,
		userRepo:      userRepo,
		categorySvc:   categorySvc,
		taskSvc:       taskSvc,
		reminderSvc:   reminderSvc,
		reportChats:   reportChats,
		logger:        logger,
		now:           time.Now,
		conversations: make(map[int64]*conversationState),
		confirmations: make(map[int64]confirmationRequest),
		views:         make(map[int64]string),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.logger.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		if err := b.handleUpdate(ctx, update); err != nil {
			if errors.Is(err, repository.ErrDataDirUnavailable) {
				return err
			}
			b.logger.Error("handle update", "err", err)
		}
	}

	return nil
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	switch {
	case update.CallbackQuery != nil:
		return b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			return nil
		}
		return b.handleMessage(ctx, update.Message)
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Input cancelled.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		b.logger.Debug("command", "user", msg.From.ID, "command", msg.Command(), "args", msg.CommandArguments())
		return b.handleCommand(ctx, msg)
	}

	if pending, ok := b.getConfirmation(msg.From.ID); ok {
		return b.handleConfirmationResponse(ctx, msg, pending)
	}

	if b.hasConversation(msg.From.ID) {
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "I did not understand that. Send /add to create a task or /help for the command list.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "categories":
		return b.handleCategories(ctx, msg.Chat.ID)
	case "list":
		return b.handleList(ctx, msg)
	case "add":
		return b.startAddConversation(ctx, msg)
	case "done":
		return b.handleDone(ctx, msg)
	case "rename":
		return b.handleRename(ctx, msg)
	case "deletecat":
		return b.handleDeleteCategory(ctx, msg)
	case "report":
		return b.handleReport(ctx, msg.Chat.ID)
	case "cancel":
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Input cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg); err != nil {
		return err
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf("👋 Hi, %s!\n<b>I keep your task lists, one per category.</b>\n\n%s", escape(name), helpText)
	return b.sendText(msg.Chat.ID, text)
}

const helpText = "Commands:\n" +
	"• /categories — all categories and their size\n" +
	"• /list &lt;category&gt; — open tasks of a category\n" +
	"• /add [category] — add a task step by step\n" +
	"• /done &lt;category&gt; &lt;n&gt; — mark task n as done\n" +
	"• /rename &lt;old&gt; | &lt;new&gt; — rename a category\n" +
	"• /deletecat &lt;category&gt; — delete an empty category\n" +
	"• /report — summary of all open tasks\n" +
	"• /cancel — stop the current input"

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	return b.sendText(msg.Chat.ID, "ℹ️ <b>Help</b>\n"+helpText)
}

func (b *Bot) handleReport(ctx context.Context, chatID int64) error {
	text, err := b.reminderSvc.Summary(ctx, b.now())
	if err != nil {
		if errors.Is(err, repository.ErrDataDirUnavailable) {
			return err
		}
		return b.sendText(chatID, fmt.Sprintf("Could not build the report: %s", escape(err.Error())))
	}
	return b.sendText(chatID, text)
}

func (b *Bot) handleCategories(ctx context.Context, chatID int64) error {
	categories, err := b.categorySvc.List(ctx)
	if err != nil {
		return err
	}
	text, markup := categoriesView(categories)
	if markup == nil {
		return b.sendText(chatID, text)
	}
	return b.sendWithReplyMarkup(chatID, text, *markup)
}

func (b *Bot) handleList(ctx context.Context, msg *tgbotapi.Message) error {
	category := strings.TrimSpace(msg.CommandArguments())
	if category == "" {
		return b.sendText(msg.Chat.ID, "Name a category: /list Work")
	}
	return b.sendTaskList(ctx, msg.Chat.ID, category)
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64, category string) error {
	resp, err := b.taskSvc.Process(ctx, service.Request{Category: category})
	if err != nil {
		return err
	}
	if !resp.Valid {
		return b.sendText(chatID, invalidCategoryText(category, resp.Categories))
	}

	visible := service.VisibleTasks(resp.Tasks, b.taskSvc.Labels())
	b.setView(chatID, resp.Category)

	text, markup := taskListView(resp.Category, visible, b.now())
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = *markup
	} else {
		msg.ReplyMarkup = mainMenuKeyboard()
	}
	_, err = b.out.Send(msg)
	return err
}

func (b *Bot) startAddConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg); err != nil {
		return err
	}

	if preset := strings.TrimSpace(msg.CommandArguments()); preset != "" {
		if !b.categorySvc.Valid(preset) {
			categories, err := b.categorySvc.List(ctx)
			if err != nil {
				return err
			}
			return b.sendText(msg.Chat.ID, invalidCategoryText(preset, categories))
		}
		b.setConversation(msg.From.ID, &conversationState{stage: stageDescription, category: preset})
		return b.sendWithReplyMarkup(msg.Chat.ID, fmt.Sprintf("🆕 New task in <b>%s</b>.\nWhat needs doing?", escape(preset)), cancelKeyboard())
	}

	categories, err := b.categorySvc.List(ctx)
	if err != nil {
		return err
	}
	b.logger.Debug("start add conversation", "user", msg.From.ID)
	b.setConversation(msg.From.ID, &conversationState{stage: stageCategory})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 New task.\n<b>Step 1:</b> pick a category or type a new name.", categoryKeyboard(categories))
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageCategory:
		if !b.categorySvc.Valid(text) {
			return b.sendWithReplyMarkup(msg.Chat.ID, "That name cannot be used: 1 to 20 characters, none of <code>\\ / : * ? \" &lt; &gt; | .</code>", cancelKeyboard())
		}
		state.category = text
		state.stage = stageDescription
		return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ What needs doing?", cancelKeyboard())
	case stageDescription:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "The description cannot be empty.", cancelKeyboard())
		}
		state.task.Description = text
		state.stage = stagePriority
		return b.sendWithReplyMarkup(msg.Chat.ID, fmt.Sprintf("🔢 Priority from 1 to %d?", b.taskSvc.MaxPriority()), priorityKeyboard(b.taskSvc.MaxPriority()))
	case stagePriority:
		priority, ok := parsePriority(text, b.taskSvc.MaxPriority())
		if !ok {
			return b.sendWithReplyMarkup(msg.Chat.ID, fmt.Sprintf("Send a number from 1 to %d or «Skip».", b.taskSvc.MaxPriority()), priorityKeyboard(b.taskSvc.MaxPriority()))
		}
		state.task.Priority = priority
		state.stage = stageDue
		return b.sendWithReplyMarkup(msg.Chat.ID, "⏰ Due date as <code>2025/11/30</code> (or «Skip»).", skipKeyboard())
	case stageDue:
		if !isSkipInput(text) {
			due, ok := service.ParseDue(text, b.now().Location())
			if !ok {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Cannot read that date. Use <code>2025/11/30</code> or «Skip».", skipKeyboard())
			}
			state.task.DueDate = due.AddDate(0, 0, -1).Format("2006/01/02")
		}
		err := b.finishTask(ctx, msg.Chat.ID, state)
		b.clearConversation(msg.From.ID)
		return err
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Input reset. Try /add again.")
	}
}

func (b *Bot) finishTask(ctx context.Context, chatID int64, state *conversationState) error {
	task := state.task
	task.StartDate = b.now().Format("2006/01/02")

	if _, err := b.taskSvc.Add(ctx, state.category, task); err != nil {
		if text, ok := userErrorText(err, state.category); ok {
			return b.sendText(chatID, text)
		}
		return err
	}
	b.logger.Info("task added via bot", "category", state.category)

	var summary strings.Builder
	summary.WriteString("✅ <b>Task saved</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>Category:</b> %s\n", escape(state.category)))
	summary.WriteString(fmt.Sprintf("• <b>Task:</b> %s\n", escape(task.Description)))
	summary.WriteString(fmt.Sprintf("• <b>Priority:</b> %d\n", task.Priority))
	if task.DueDate != "" {
		summary.WriteString(fmt.Sprintf("• <b>Due:</b> %s\n", escape(task.DueDate)))
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(summary.String()))
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.out.Send(msg); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID, state.category)
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message) error {
	category, n, err := parseDoneArgs(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Usage: /done &lt;category&gt; &lt;n&gt;, for example /done Work 2")
	}
	return b.completeAndRefresh(ctx, msg.Chat.ID, category, n)
}

func (b *Bot) completeAndRefresh(ctx context.Context, chatID int64, category string, n int) error {
	task, err := b.taskSvc.Complete(ctx, category, n)
	if err != nil {
		if text, ok := userErrorText(err, category); ok {
			return b.sendTextWithRemove(chatID, text)
		}
		return err
	}
	if err := b.sendTextWithRemove(chatID, fmt.Sprintf("✅ «%s» is done.", escape(task.Description))); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID, category)
}

func (b *Bot) handleRename(ctx context.Context, msg *tgbotapi.Message) error {
	oldName, newName, err := parseRenameArgs(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Usage: /rename &lt;old&gt; &lt;new&gt; or /rename &lt;old&gt; | &lt;new&gt;")
	}
	if err := b.taskSvc.Rename(ctx, oldName, newName); err != nil {
		if text, ok := userErrorText(err, newName); ok {
			return b.sendText(msg.Chat.ID, text)
		}
		return err
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✏️ <b>%s</b> is now <b>%s</b>.", escape(oldName), escape(newName)))
}

func (b *Bot) handleDeleteCategory(ctx context.Context, msg *tgbotapi.Message) error {
	category := strings.TrimSpace(msg.CommandArguments())
	if category == "" {
		return b.sendText(msg.Chat.ID, "Name a category: /deletecat Old")
	}
	return b.askDeleteConfirmation(msg.Chat.ID, msg.From.ID, category)
}

func (b *Bot) askDeleteConfirmation(chatID, userID int64, category string) error {
	b.setConfirmation(userID, confirmationRequest{action: actionDeleteCategory, category: category})
	text := fmt.Sprintf("Delete category <b>%s</b>? Only empty categories can be deleted.", escape(category))
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) askCompleteConfirmation(ctx context.Context, chatID, userID int64, n int) error {
	category, ok := b.getView(chatID)
	if !ok {
		return b.sendText(chatID, "That list is gone. Open it again with /list.")
	}
	visible, err := b.taskSvc.Visible(ctx, category)
	if err != nil {
		if text, ok := userErrorText(err, category); ok {
			return b.sendText(chatID, text)
		}
		return err
	}
	if n < 1 || n > len(visible) {
		return b.sendText(chatID, "Task not found. The list may have changed, open it again with /list.")
	}

	b.setConfirmation(userID, confirmationRequest{action: actionComplete, category: category, index: n})
	text := fmt.Sprintf("Mark «%s» in <b>%s</b> as done?", escape(visible[n-1].Description), escape(category))
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) handleConfirmationResponse(ctx context.Context, msg *tgbotapi.Message, req confirmationRequest) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.clearConfirmation(msg.From.ID)
		if req.action == actionDeleteCategory {
			return b.deleteCategory(ctx, msg.Chat.ID, req.category)
		}
		return b.completeAndRefresh(ctx, msg.Chat.ID, req.category, req.index)
	case isCancelInput(text):
		b.clearConfirmation(msg.From.ID)
		return b.sendMenuPlaceholder(msg.Chat.ID)
	default:
		return b.sendWithReplyMarkup(msg.Chat.ID, "Confirm or cancel first.", confirmKeyboard())
	}
}

func (b *Bot) deleteCategory(ctx context.Context, chatID int64, category string) error {
	resp, err := b.taskSvc.Process(ctx, service.Request{Category: category, Delete: true})
	if err != nil {
		return err
	}
	if !resp.Valid && resp.DeleteOutcome == nil {
		return b.sendTextWithRemove(chatID, invalidCategoryText(category, resp.Categories))
	}
	if err := b.sendTextWithRemove(chatID, deleteOutcomeText(category, *resp.DeleteOutcome)); err != nil {
		return err
	}
	text, markup := categoriesView(resp.Categories)
	if markup == nil {
		return b.sendText(chatID, text)
	}
	return b.sendWithReplyMarkup(chatID, text, *markup)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}

	if _, err := b.out.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Warn("callback ack", "err", err)
	}

	data := cb.Data
	switch {
	case strings.HasPrefix(data, cbCompletePrefix):
		n, err := strconv.Atoi(strings.TrimPrefix(data, cbCompletePrefix))
		if err != nil {
			return nil
		}
		return b.askCompleteConfirmation(ctx, cb.Message.Chat.ID, cb.From.ID, n)
	case strings.HasPrefix(data, cbDeleteCatPrefix):
		return b.askDeleteConfirmation(cb.Message.Chat.ID, cb.From.ID, strings.TrimPrefix(data, cbDeleteCatPrefix))
	default:
		return nil
	}
}

// SendReports sends the open task summary to the configured report chats
// and to every chat that used /start.
func (b *Bot) SendReports(ctx context.Context) error {
	users, err := b.userRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	chats := reportRecipients(b.reportChats, users)
	if len(chats) == 0 {
		return nil
	}

	text, err := b.reminderSvc.Summary(ctx, b.now())
	if err != nil {
		return err
	}
	for _, chatID := range chats {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := b.sendText(chatID, text); err != nil {
			b.logger.Warn("send report", "chat", chatID, "err", err)
		}
	}
	b.logger.Info("reports sent", "chats", len(chats))
	return nil
}

func reportRecipients(configured []int64, users []model.User) []int64 {
	seen := make(map[int64]bool)
	var chats []int64
	add := func(id int64) {
		if id == 0 || seen[id] {
			return
		}
		seen[id] = true
		chats = append(chats, id)
	}
	for _, id := range configured {
		add(id)
	}
	for _, u := range users {
		add(u.ChatID)
	}
	return chats
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelNewTask):
		return true, b.startAddConversation(ctx, msg)
	case strings.ToLower(menuLabelCategories):
		return true, b.handleCategories(ctx, msg.Chat.ID)
	case strings.ToLower(menuLabelReport):
		return true, b.handleReport(ctx, msg.Chat.ID)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

func (b *Bot) ensureUser(ctx context.Context, msg *tgbotapi.Message) (*model.User, error) {
	from := msg.From
	return b.userRepo.UpsertFromTelegram(ctx, from.ID, msg.Chat.ID, from.FirstName, from.LastName, from.UserName)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.out.Send(msg)
	return err
}

func (b *Bot) sendTextWithRemove(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	_, err := b.out.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.out.Send(msg)
	return err
}

func (b *Bot) sendMenuPlaceholder(chatID int64) error {
	return b.sendText(chatID, "🔹 Main menu")
}

func (b *Bot) getConfirmation(userID int64) (confirmationRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.confirmations[userID]
	return req, ok
}

func (b *Bot) setConfirmation(userID int64, req confirmationRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmations[userID] = req
}

func (b *Bot) clearConfirmation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.confirmations, userID)
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}

func (b *Bot) setView(chatID int64, category string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.views[chatID] = category
}

func (b *Bot) getView(chatID int64) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	category, ok := b.views[chatID]
	return category, ok
}

func escape(s string) string {
	return html.EscapeString(s)
}
