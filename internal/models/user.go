package models

import "time"

// Identity - ссылка на аутентифицированного пользователя (email)
type Identity struct {
	Email string `json:"email"`
}

const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
)

// User - учётная запись
type User struct {
	Email        string    `json:"email" bson:"_id"`
	PasswordHash string    `json:"-" bson:"passwordHash"`
	Provider     string    `json:"provider" bson:"provider"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

// AuthSession - серверная запись о выданном токене, удаляется при выходе
type AuthSession struct {
	ID        string    `json:"id" bson:"_id"`
	Email     string    `json:"email" bson:"email"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt" bson:"expiresAt"`
}
