package policy

import (
	"testing"

	"github.com/MosinFAM/blog-posts/internal/apperr"
	"github.com/MosinFAM/blog-posts/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestCanEditPost(t *testing.T) {
	post := &models.Post{ID: "p1", Author: "a@x.io"}

	assert.NoError(t, CanEditPost(&models.Identity{Email: "a@x.io"}, post))
	assert.ErrorIs(t, CanEditPost(&models.Identity{Email: "b@x.io"}, post), apperr.ErrWriteRejected)
	assert.ErrorIs(t, CanEditPost(nil, post), apperr.ErrWriteRejected)
}

func TestCanWrite(t *testing.T) {
	assert.NoError(t, CanWrite(&models.Identity{Email: "a@x.io"}))
	assert.ErrorIs(t, CanWrite(nil), apperr.ErrNoIdentity)
	assert.ErrorIs(t, CanWrite(&models.Identity{}), apperr.ErrNoIdentity)
}
