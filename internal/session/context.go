package session

import (
	"context"

	"github.com/MosinFAM/blog-posts/internal/models"
)

// Session - аутентификация одного запроса
type Session struct {
	ClientID string
	Token    string
	Identity *models.Identity
}

// Authenticated сообщает, известен ли пользователь
func (s *Session) Authenticated() bool {
	return s != nil && s.Identity != nil
}

type ctxKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext возвращает сессию запроса; для контекста без сессии - анонимную
func FromContext(ctx context.Context) *Session {
	if s, ok := ctx.Value(ctxKey{}).(*Session); ok && s != nil {
		return s
	}
	return &Session{}
}
