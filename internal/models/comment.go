package models

import "time"

// Модель комментария к посту. После создания не изменяется.
type Comment struct {
	ID        string    `json:"id" bson:"_id"`
	PostID    string    `json:"postId" bson:"postId"` // ID поста, к которому прикреплён комментарий
	Author    string    `json:"author" bson:"author"`
	Content   string    `json:"content" bson:"content"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}
