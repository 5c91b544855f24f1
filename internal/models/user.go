package models

import "time"

// User is the subset of the account record this service reads: notification
// preferences and the linked Telegram chat.
type User struct {
	ID                    string `json:"id"`
	Email                 string `json:"email"`
	NotificationsEnabled  bool   `json:"notifications_enabled"`
	DailyNotificationTime string `json:"daily_notification_time,omitempty"` // HH:MM local
	TimeZone              string `json:"time_zone,omitempty"`               // IANA name
	TelegramChatID        *int64 `json:"-"`
}

// TelegramLink is a one-time code binding a Telegram chat to a user.
type TelegramLink struct {
	ID        int64
	UserID    string
	Code      string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}
