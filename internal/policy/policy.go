// Package policy - правила доступа на запись.
package policy

import (
	"github.com/MosinFAM/blog-posts/internal/apperr"
	"github.com/MosinFAM/blog-posts/internal/models"
)

// CanEditPost - изменять и удалять пост может только его автор
func CanEditPost(actor *models.Identity, post *models.Post) error {
	if actor == nil || actor.Email == "" {
		return apperr.Rejected("anonymous write")
	}
	if post.Author != actor.Email {
		return apperr.Rejected("not the author of post " + post.ID)
	}
	return nil
}

// CanWrite - создавать посты, комментарии и лайки может любой вошедший пользователь
func CanWrite(actor *models.Identity) error {
	if actor == nil || actor.Email == "" {
		return apperr.ErrNoIdentity
	}
	return nil
}
