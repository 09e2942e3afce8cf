package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"flat-todo/internal/model"
)

// UserRepository remembers the Telegram users seen by the bot for the
// lifetime of the process. Task data never lives here.
type UserRepository struct {
	mu    sync.Mutex
	users map[int64]model.User
	now   func() time.Time
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[int64]model.User), now: time.Now}
}

// UpsertFromTelegram finds or creates a user based on TelegramID and updates basic profile info.
func (r *UserRepository) UpsertFromTelegram(ctx context.Context, telegramID, chatID int64, firstName, lastName, username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	user, ok := r.users[telegramID]
	if !ok {
		user = model.User{TelegramID: telegramID, CreatedAt: now}
	}
	user.ChatID = chatID
	user.FirstName = firstName
	user.LastName = lastName
	user.Username = username
	user.UpdatedAt = now
	r.users[telegramID] = user
	return &user, nil
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[telegramID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].TelegramID < users[j].TelegramID })
	return users, nil
}
