package model

import "time"

// User is a Telegram account that talked to the bot.
type User struct {
	TelegramID int64
	ChatID     int64
	FirstName  string
	LastName   string
	Username   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
