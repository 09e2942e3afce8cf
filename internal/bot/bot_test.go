package bot

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"flat-todo/internal/model"
	"flat-todo/internal/repository"
	"flat-todo/internal/service"
)

var testNow = time.Date(2024, 1, 8, 9, 0, 0, 0, time.Local)

const (
	testUserID = 1
	testChatID = 100
)

type fakeSender struct {
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) last() tgbotapi.MessageConfig {
	for i := len(f.sent) - 1; i >= 0; i-- {
		if msg, ok := f.sent[i].(tgbotapi.MessageConfig); ok {
			return msg
		}
	}
	return tgbotapi.MessageConfig{}
}

func (f *fakeSender) transcript() string {
	var parts []string
	for _, c := range f.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			parts = append(parts, msg.Text)
		}
	}
	return strings.Join(parts, "\n---\n")
}

type harness struct {
	dir   string
	bot   *Bot
	out   *fakeSender
	tasks *service.TaskService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	store, err := repository.NewFileStore(dir, repository.Options{
		CasePolicy: repository.CaseSensitive,
		Now:        func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatal(err)
	}
	taskRepo := repository.NewTaskRepository(store)
	categories := service.NewCategoryService(repository.NewCategoryRepository(store), taskRepo, nil)
	tasks := service.NewTaskService(taskRepo, categories, service.TaskConfig{}, nil)
	reminders := service.NewReminderService(tasks, categories)

	out := &fakeSender{}
	b := newBot(out, repository.NewUserRepository(), categories, tasks, reminders, []int64{7}, nil)
	b.now = func() time.Time { return testNow }
	return &harness{dir: dir, bot: b, out: out, tasks: tasks}
}

func message(text string) *tgbotapi.Message {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: testUserID, FirstName: "Ann"},
		Chat: &tgbotapi.Chat{ID: testChatID, Type: "private"},
		Text: text,
	}
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text, " ")
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return msg
}

func (h *harness) say(t *testing.T, text string) string {
	t.Helper()
	if err := h.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: message(text)}); err != nil {
		t.Fatalf("%q: %v", text, err)
	}
	return h.out.last().Text
}

func (h *harness) tap(t *testing.T, data string) string {
	t.Helper()
	cb := &tgbotapi.CallbackQuery{ID: "cb", From: &tgbotapi.User{ID: testUserID}, Message: message(""), Data: data}
	if err := h.bot.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: cb}); err != nil {
		t.Fatalf("callback %q: %v", data, err)
	}
	return h.out.last().Text
}

func TestIgnoresGroupChats(t *testing.T) {
	h := newHarness(t)
	msg := message("/help")
	msg.Chat.Type = "group"
	if err := h.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: msg}); err != nil {
		t.Fatal(err)
	}
	if len(h.out.sent) != 0 {
		t.Errorf("replied in a group chat")
	}
}

func TestAddConversation(t *testing.T) {
	h := newHarness(t)
	h.say(t, "/add")
	if got := h.say(t, "bad/name"); !strings.Contains(got, "cannot be used") {
		t.Errorf("invalid category accepted: %q", got)
	}
	h.say(t, "Work")
	h.say(t, "Buy milk")
	if got := h.say(t, "9"); !strings.Contains(got, "from 1 to 5") {
		t.Errorf("out of range priority accepted: %q", got)
	}
	h.say(t, "4")
	if got := h.say(t, "someday"); !strings.Contains(got, "Cannot read") {
		t.Errorf("bad date accepted: %q", got)
	}
	list := h.say(t, "2024-01-10")
	if !strings.Contains(list, "Buy milk") {
		t.Errorf("list after add = %q", list)
	}
	if h.bot.hasConversation(testUserID) {
		t.Error("conversation not cleared")
	}

	got, err := h.tasks.Load(context.Background(), "Work")
	if err != nil {
		t.Fatal(err)
	}
	want := []model.Task{{Priority: 4, Description: "Buy milk", StartDate: "2024/01/08", DueDate: "2024/01/10"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("stored %+v, want %+v", got, want)
	}
}

func TestAddWithPresetAndSkips(t *testing.T) {
	h := newHarness(t)
	h.say(t, "/add Home")
	h.say(t, "Water plants")
	h.say(t, "Skip")
	h.say(t, "skip")
	got, _ := h.tasks.Load(context.Background(), "Home")
	if len(got) != 1 || got[0].Priority != defaultPriority || got[0].DueDate != "" {
		t.Errorf("stored %+v", got)
	}
}

func TestCancelConversation(t *testing.T) {
	h := newHarness(t)
	h.say(t, "/add")
	h.say(t, btnCancelDialog)
	if h.bot.hasConversation(testUserID) {
		t.Error("conversation survived cancel")
	}
}

func TestListAndCompleteByButton(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.tasks.Replace(ctx, "Work", []model.Task{
		{Priority: 5, Description: "urgent"},
		{Priority: 1, Description: "later"},
	})

	list := h.say(t, "/list Work")
	if !strings.Contains(list, "1.</b> [5] urgent") || !strings.Contains(list, "2.</b> [1] later") {
		t.Errorf("list = %q", list)
	}
	markup, ok := h.out.last().ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(markup.InlineKeyboard) != 2 {
		t.Fatalf("expected two inline buttons, got %#v", h.out.last().ReplyMarkup)
	}

	if got := h.tap(t, "complete:1"); !strings.Contains(got, "urgent") {
		t.Errorf("confirmation = %q", got)
	}
	if len(h.out.requests) != 1 {
		t.Error("callback was not acknowledged")
	}
	h.say(t, btnConfirm)

	visible, _ := h.tasks.Visible(ctx, "Work")
	if len(visible) != 1 || visible[0].Description != "later" {
		t.Errorf("visible after completion = %+v", visible)
	}
}

func TestCompleteByButtonWithoutList(t *testing.T) {
	h := newHarness(t)
	if got := h.tap(t, "complete:1"); !strings.Contains(got, "/list") {
		t.Errorf("reply = %q", got)
	}
}

func TestDoneCommand(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.tasks.Replace(ctx, "My list", []model.Task{{Priority: 2, Description: "call"}})

	h.say(t, "/done My list 1")
	if !strings.Contains(h.out.transcript(), "«call» is done") {
		t.Errorf("transcript = %q", h.out.transcript())
	}
	if got := h.say(t, "/done My list 3"); !strings.Contains(got, "Task not found") {
		t.Errorf("reply = %q", got)
	}
	if got := h.say(t, "/done"); !strings.Contains(got, "Usage") {
		t.Errorf("reply = %q", got)
	}
}

func TestListInvalidCategory(t *testing.T) {
	h := newHarness(t)
	h.tasks.Replace(context.Background(), "Work", nil)
	got := h.say(t, "/list a:b")
	if !strings.Contains(got, "not a valid category") || !strings.Contains(got, "Work") {
		t.Errorf("reply = %q", got)
	}
}

func TestDeleteCategory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.tasks.Replace(ctx, "Empty", nil)
	h.tasks.Replace(ctx, "Full", []model.Task{{Priority: 1, Description: "x"}})

	h.say(t, "/deletecat Full")
	h.say(t, btnConfirm)
	if !strings.Contains(h.out.transcript(), "still has tasks") {
		t.Errorf("transcript = %q", h.out.transcript())
	}

	h.tap(t, cbDeleteCatPrefix+"Empty")
	h.say(t, "yes")
	if !strings.Contains(h.out.transcript(), "<b>Empty</b> deleted") {
		t.Errorf("transcript = %q", h.out.transcript())
	}
	if _, err := os.Stat(filepath.Join(h.dir, "Empty.txt")); !os.IsNotExist(err) {
		t.Error("Empty.txt still exists")
	}

	h.say(t, "/deletecat Full")
	h.say(t, "no")
	if _, ok := h.bot.getConfirmation(testUserID); ok {
		t.Error("confirmation survived cancel")
	}
}

func TestRename(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.tasks.Replace(ctx, "Work", []model.Task{{Priority: 1, Description: "x"}})
	h.tasks.Replace(ctx, "Biz", []model.Task{{Priority: 1, Description: "y"}})

	if got := h.say(t, "/rename Work Biz"); !strings.Contains(got, "already exists") {
		t.Errorf("collision reply = %q", got)
	}
	if got := h.say(t, "/rename Work | New work"); !strings.Contains(got, "is now <b>New work</b>") {
		t.Errorf("rename reply = %q", got)
	}
	got, _ := h.tasks.Load(ctx, "New work")
	if len(got) != 1 || got[0].Description != "x" {
		t.Errorf("renamed list = %+v", got)
	}
}

func TestReportAndRecipients(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.tasks.Replace(ctx, "Work", []model.Task{{Priority: 3, Description: "ship", DueDate: "2024/01/01"}})

	h.say(t, "/start")
	if got := h.say(t, "/report"); !strings.Contains(got, "overdue") {
		t.Errorf("report = %q", got)
	}

	h.out.sent = nil
	if err := h.bot.SendReports(ctx); err != nil {
		t.Fatal(err)
	}
	var chats []int64
	for _, c := range h.out.sent {
		chats = append(chats, c.(tgbotapi.MessageConfig).ChatID)
	}
	if !reflect.DeepEqual(chats, []int64{7, testChatID}) {
		t.Errorf("reports sent to %v", chats)
	}
}

func TestMenuAlias(t *testing.T) {
	h := newHarness(t)
	if got := h.say(t, menuLabelHelp); !strings.Contains(got, "/categories") {
		t.Errorf("help = %q", got)
	}
	if got := h.say(t, menuLabelCategories); !strings.Contains(got, "No categories yet") {
		t.Errorf("categories = %q", got)
	}
	if got := h.say(t, "hello"); !strings.Contains(got, "did not understand") {
		t.Errorf("fallback = %q", got)
	}
}
