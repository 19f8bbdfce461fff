package models

import (
	"time"
)

type User struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Username        string    `gorm:"size:60;uniqueIndex" json:"username"`
	Password        string    `gorm:"size:255" json:"-"`
	FullName        string    `gorm:"size:255" json:"fullname"`
	Bio             string    `gorm:"type:text" json:"bio"`
	ProfileImageURL string    `gorm:"size:1024" json:"pfp"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// UserInfo - публичное представление пользователя без пароля
type UserInfo struct {
	ID              int64  `json:"id"`
	Username        string `json:"username"`
	FullName        string `json:"fullname"`
	Bio             string `json:"bio"`
	ProfileImageURL string `json:"pfp"`
}

func (u User) Info() UserInfo {
	return UserInfo{
		ID:              u.ID,
		Username:        u.Username,
		FullName:        u.FullName,
		Bio:             u.Bio,
		ProfileImageURL: u.ProfileImageURL,
	}
}

type UserTokens struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"index" json:"user_id"`
	Token     string    `gorm:"size:255;uniqueIndex" json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (UserTokens) TableName() string {
	return "user_tokens"
}
