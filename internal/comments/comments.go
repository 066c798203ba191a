// Package comments - живая лента комментариев поста и отправка новых.
package comments

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/MosinFAM/blog-posts/internal/apperr"
	"github.com/MosinFAM/blog-posts/internal/metrics"
	"github.com/MosinFAM/blog-posts/internal/models"
	"github.com/MosinFAM/blog-posts/internal/policy"
	"github.com/MosinFAM/blog-posts/internal/storage"
	"github.com/MosinFAM/blog-posts/internal/stream"

	"github.com/sirupsen/logrus"
)

// Snapshot - полный список комментариев поста, новые первыми
type Snapshot = storage.CommentSnapshot

type Service struct {
	store storage.Storage
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewService(store storage.Storage, log logrus.FieldLogger) *Service {
	return &Service{store: store, log: log.WithField("component", "comments"), now: time.Now}
}

// List - однократное чтение комментариев поста
func (s *Service) List(ctx context.Context, postID string) ([]models.Comment, error) {
	comments, err := s.store.GetCommentsByPostID(ctx, postID)
	if err != nil {
		return nil, err
	}
	return ordered(postID, comments), nil
}

// Subscribe открывает живую подписку на комментарии поста.
// Первый снимок приходит сразу, следующие - после каждого изменения.
// Подписку обязательно закрыть через Close.
func (s *Service) Subscribe(ctx context.Context, postID string) (*stream.Stream[Snapshot], error) {
	src, err := s.store.SubscribeToComments(ctx, postID)
	if err != nil {
		s.log.WithError(err).WithField("post_id", postID).Error("subscribe to comments")
		return nil, err
	}
	metrics.SubscriptionOpened()

	out := stream.New[Snapshot](1, func() {
		src.Close()
		metrics.SubscriptionClosed()
	})
	go func() {
		defer out.Close()
		for snap := range src.C() {
			if snap.PostID != postID {
				continue
			}
			out.Send(Snapshot{PostID: postID, Comments: ordered(postID, snap.Comments)})
		}
	}()
	return out, nil
}

// Post добавляет комментарий от имени actor. Пустой текст отклоняется без обращения к бэкенду.
func (s *Service) Post(ctx context.Context, actor *models.Identity, postID, content string) (*models.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.ErrEmptyComment
	}
	if err := policy.CanWrite(actor); err != nil {
		return nil, err
	}

	comment, err := s.store.AddComment(ctx, models.Comment{
		PostID:    postID,
		Author:    actor.Email,
		Content:   content,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		metrics.RecordWriteFailure("comment")
		s.log.WithError(err).WithField("post_id", postID).Error("post comment failed")
		return nil, err
	}
	metrics.RecordComment()
	return comment, nil
}

// ordered оставляет только комментарии поста и сортирует их от новых к старым
func ordered(postID string, comments []models.Comment) []models.Comment {
	out := make([]models.Comment, 0, len(comments))
	for _, c := range comments {
		if c.PostID == postID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
