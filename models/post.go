package models

import "time"

// Post - пост пользователя: сохраненное изображение и сгенерированная подпись
type Post struct {
	ID        string    `gorm:"primaryKey;size:36" bson:"_id" json:"id"`
	OwnerID   int64     `gorm:"index" bson:"owner_id" json:"ownerId"`
	ImageURL  string    `gorm:"size:1024;not null" bson:"image_url" json:"imageUrl"`
	ImageKey  string    `gorm:"size:255" bson:"image_key" json:"-"`
	Caption   string    `gorm:"type:text" bson:"caption" json:"caption"`
	CreatedAt time.Time `gorm:"index" bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

func (Post) TableName() string {
	return "posts"
}

// ProfileResponse - ответ API для профиля пользователя
type ProfileResponse struct {
	User  UserInfo `json:"user"`
	Posts []Post   `json:"posts"`
}
