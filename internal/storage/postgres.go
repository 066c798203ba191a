package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MosinFAM/blog-posts/internal/apperr"
	"github.com/MosinFAM/blog-posts/internal/models"
	"github.com/MosinFAM/blog-posts/internal/stream"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const (
	commentsChannel = "comments_changed"
	postColumns     = "id, title, content, author, categories, created_at, updated_at, likes_count, liked_by, keywords"

	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
)

// PostgresStorage - хранилище в PostgreSQL
type PostgresStorage struct {
	DB         *sql.DB
	DataSource string
	log        logrus.FieldLogger
}

// NewPostgresStorage создаёт экземпляр PostgreSQL-хранилища.
// dataSource нужен для LISTEN-подписок на изменения комментариев.
func NewPostgresStorage(db *sql.DB, dataSource string, log logrus.FieldLogger) *PostgresStorage {
	return &PostgresStorage{DB: db, DataSource: dataSource, log: log.WithField("storage", "postgres")}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (models.Post, error) {
	var p models.Post
	err := row.Scan(&p.ID, &p.Title, &p.Content, &p.Author, pq.Array(&p.Categories),
		&p.CreatedAt, &p.UpdatedAt, &p.LikesCount, pq.Array(&p.LikedBy), pq.Array(&p.Keywords))
	return p, err
}

// CreatePost добавляет новый пост в БД
func (s *PostgresStorage) CreatePost(ctx context.Context, post models.Post) (models.Post, error) {
	post.ID = uuid.New().String()
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO posts ("+postColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		post.ID, post.Title, post.Content, post.Author, pq.Array(nonNil(post.Categories)),
		post.CreatedAt, post.UpdatedAt, post.LikesCount, pq.Array(nonNil(post.LikedBy)), pq.Array(nonNil(post.Keywords)))
	if err != nil {
		s.log.WithError(err).Error("insert post")
		return models.Post{}, apperr.Network(err)
	}
	return post, nil
}

// GetPostByID возвращает пост по ID
func (s *PostgresStorage) GetPostByID(ctx context.Context, id string) (*models.Post, error) {
	post, err := scanPost(s.DB.QueryRowContext(ctx, "SELECT "+postColumns+" FROM posts WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("post", id)
	}
	if err != nil {
		s.log.WithError(err).WithField("post_id", id).Error("select post")
		return nil, apperr.Network(err)
	}
	return &post, nil
}

// UpdatePost частично обновляет пост: NULL-параметры оставляют поле как есть
func (s *PostgresStorage) UpdatePost(ctx context.Context, id string, patch models.PostPatch) (*models.Post, error) {
	var categories, keywords any
	if patch.Categories != nil {
		categories = pq.Array(nonNil(*patch.Categories))
	}
	if patch.Keywords != nil {
		keywords = pq.Array(nonNil(*patch.Keywords))
	}

	row := s.DB.QueryRowContext(ctx, `UPDATE posts SET
			title = COALESCE($2, title),
			content = COALESCE($3, content),
			categories = COALESCE($4, categories),
			keywords = COALESCE($5, keywords),
			updated_at = $6
		WHERE id = $1
		RETURNING `+postColumns,
		id, nullString(patch.Title), nullString(patch.Content), categories, keywords, patch.UpdatedAt)
	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("post", id)
	}
	if err != nil {
		s.log.WithError(err).WithField("post_id", id).Error("update post")
		return nil, apperr.Network(err)
	}
	return &post, nil
}

// DeletePost удаляет пост, комментарии удаляются каскадно
func (s *PostgresStorage) DeletePost(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, "DELETE FROM posts WHERE id = $1", id)
	if err != nil {
		s.log.WithError(err).WithField("post_id", id).Error("delete post")
		return apperr.Network(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("post", id)
	}
	s.notifyComments(ctx, id)
	return nil
}

// IteratePosts возвращает ленивый итератор поверх курсора БД
func (s *PostgresStorage) IteratePosts(ctx context.Context, q models.PostQuery) (PostIterator, error) {
	query, args := buildPostQuery(q)
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		s.log.WithError(err).Error("select posts")
		return nil, apperr.Network(err)
	}
	return &rowsIterator{rows: rows}, nil
}

func buildPostQuery(q models.PostQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	if q.Author != "" {
		args = append(args, q.Author)
		where = append(where, "author = $"+strconv.Itoa(len(args)))
	}
	if q.Category != "" {
		args = append(args, q.Category)
		where = append(where, "$"+strconv.Itoa(len(args))+" = ANY(categories)")
	}
	if q.Keyword != "" {
		args = append(args, q.Keyword)
		where = append(where, "$"+strconv.Itoa(len(args))+" = ANY(keywords)")
	}

	query := "SELECT " + postColumns + " FROM posts"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if q.NewestFirst {
		query += " ORDER BY created_at DESC, id"
	}
	return query, args
}

type rowsIterator struct {
	rows *sql.Rows
	cur  models.Post
	err  error
}

func (it *rowsIterator) Next() bool {
	if it.err != nil || !it.rows.Next() {
		return false
	}
	it.cur, it.err = scanPost(it.rows)
	return it.err == nil
}

func (it *rowsIterator) Post() models.Post { return it.cur }

func (it *rowsIterator) Err() error {
	if it.err != nil {
		return apperr.Network(it.err)
	}
	if err := it.rows.Err(); err != nil {
		return apperr.Network(err)
	}
	return nil
}

func (it *rowsIterator) Close() error { return it.rows.Close() }

// AddLike - условное обновление: добавляет identity и увеличивает счётчик одним UPDATE
func (s *PostgresStorage) AddLike(ctx context.Context, postID, identity string) (models.LikeState, error) {
	return s.changeLike(ctx, postID, identity, `UPDATE posts
		SET liked_by = array_append(liked_by, $2), likes_count = likes_count + 1
		WHERE id = $1 AND NOT ($2 = ANY(liked_by))
		RETURNING likes_count, liked_by`)
}

// RemoveLike - симметричное условное обновление
func (s *PostgresStorage) RemoveLike(ctx context.Context, postID, identity string) (models.LikeState, error) {
	return s.changeLike(ctx, postID, identity, `UPDATE posts
		SET liked_by = array_remove(liked_by, $2), likes_count = likes_count - 1
		WHERE id = $1 AND $2 = ANY(liked_by)
		RETURNING likes_count, liked_by`)
}

func (s *PostgresStorage) changeLike(ctx context.Context, postID, identity, query string) (models.LikeState, error) {
	state := models.LikeState{PostID: postID}
	err := s.DB.QueryRowContext(ctx, query, postID, identity).Scan(&state.LikesCount, pq.Array(&state.LikedBy))
	if errors.Is(err, sql.ErrNoRows) {
		// условие не выполнилось: состояние уже целевое, либо поста нет
		err = s.DB.QueryRowContext(ctx, "SELECT likes_count, liked_by FROM posts WHERE id = $1", postID).
			Scan(&state.LikesCount, pq.Array(&state.LikedBy))
		if errors.Is(err, sql.ErrNoRows) {
			return models.LikeState{}, apperr.NotFound("post", postID)
		}
	}
	if err != nil {
		s.log.WithError(err).WithField("post_id", postID).Error("update likes")
		return models.LikeState{}, apperr.Network(err)
	}
	return state, nil
}

// AddComment сохраняет комментарий и отправляет NOTIFY подписчикам
func (s *PostgresStorage) AddComment(ctx context.Context, comment models.Comment) (*models.Comment, error) {
	comment.ID = uuid.New().String()
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO comments (id, post_id, author, content, created_at) VALUES ($1, $2, $3, $4, $5)",
		comment.ID, comment.PostID, comment.Author, comment.Content, comment.CreatedAt)
	if isPQCode(err, pqForeignKeyViolation) {
		return nil, apperr.NotFound("post", comment.PostID)
	}
	if err != nil {
		s.log.WithError(err).WithField("post_id", comment.PostID).Error("insert comment")
		return nil, apperr.Network(err)
	}

	s.notifyComments(ctx, comment.PostID)
	return &comment, nil
}

func (s *PostgresStorage) notifyComments(ctx context.Context, postID string) {
	if _, err := s.DB.ExecContext(ctx, "SELECT pg_notify($1, $2)", commentsChannel, postID); err != nil {
		s.log.WithError(err).WithField("post_id", postID).Warn("notify comments")
	}
}

// GetCommentsByPostID возвращает комментарии к посту, новые первыми
func (s *PostgresStorage) GetCommentsByPostID(ctx context.Context, postID string) ([]models.Comment, error) {
	rows, err := s.DB.QueryContext(ctx,
		"SELECT id, post_id, author, content, created_at FROM comments WHERE post_id = $1 ORDER BY created_at DESC, id DESC",
		postID)
	if err != nil {
		s.log.WithError(err).WithField("post_id", postID).Error("select comments")
		return nil, apperr.Network(err)
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.Author, &c.Content, &c.CreatedAt); err != nil {
			return nil, apperr.Network(err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Network(err)
	}
	return comments, nil
}

// SubscribeToComments подписывается на NOTIFY через pq.Listener.
// На каждое уведомление по этому посту перечитывается полный список.
func (s *PostgresStorage) SubscribeToComments(ctx context.Context, postID string) (*stream.Stream[CommentSnapshot], error) {
	log := s.log.WithField("post_id", postID)

	listener := pq.NewListener(s.DataSource, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.WithError(err).Warn("postgres listener event")
		}
	})
	if err := listener.Listen(commentsChannel); err != nil {
		listener.Close()
		return nil, apperr.Network(fmt.Errorf("listen on %s: %w", commentsChannel, err))
	}

	initial, err := s.GetCommentsByPostID(ctx, postID)
	if err != nil {
		listener.Close()
		return nil, err
	}

	sub := stream.New[CommentSnapshot](1, nil)
	sub.Send(CommentSnapshot{PostID: postID, Comments: initial})

	go func() {
		defer listener.Close()
		ticker := time.NewTicker(90 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-sub.Done():
				return
			case <-ticker.C:
				if err := listener.Ping(); err != nil {
					log.WithError(err).Warn("postgres listener ping")
				}
			case n := <-listener.Notify:
				// nil приходит после переподключения: уведомления могли потеряться
				if n != nil && n.Extra != postID {
					continue
				}
				s.pushSnapshot(sub, postID, log)
			}
		}
	}()

	log.Debug("listening for comments")
	return sub, nil
}

func (s *PostgresStorage) pushSnapshot(sub *stream.Stream[CommentSnapshot], postID string, log logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	comments, err := s.GetCommentsByPostID(ctx, postID)
	if err != nil {
		log.WithError(err).Error("reload comments")
		return
	}
	sub.Send(CommentSnapshot{PostID: postID, Comments: comments})
}

// GetCategories возвращает все категории
func (s *PostgresStorage) GetCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT id, name FROM categories ORDER BY name")
	if err != nil {
		s.log.WithError(err).Error("select categories")
		return nil, apperr.Network(err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, apperr.Network(err)
		}
		categories = append(categories, c)
	}
	return categories, apperr.Network(rows.Err())
}

// AddCategory добавляет категорию
func (s *PostgresStorage) AddCategory(ctx context.Context, name string) (models.Category, error) {
	category := models.Category{ID: uuid.New().String(), Name: name}
	_, err := s.DB.ExecContext(ctx, "INSERT INTO categories (id, name) VALUES ($1, $2)", category.ID, category.Name)
	if isPQCode(err, pqUniqueViolation) {
		return models.Category{}, apperr.ErrAlreadyExists
	}
	if err != nil {
		return models.Category{}, apperr.Network(err)
	}
	return category, nil
}

func (s *PostgresStorage) CreateUser(ctx context.Context, user models.User) error {
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, provider, created_at) VALUES ($1, $2, $3, $4)",
		user.Email, user.PasswordHash, user.Provider, user.CreatedAt)
	if isPQCode(err, pqUniqueViolation) {
		return apperr.ErrAlreadyExists
	}
	return apperr.Network(err)
}

func (s *PostgresStorage) GetUser(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.DB.QueryRowContext(ctx,
		"SELECT email, password_hash, provider, created_at FROM users WHERE email = $1", email).
		Scan(&u.Email, &u.PasswordHash, &u.Provider, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user", email)
	}
	if err != nil {
		return nil, apperr.Network(err)
	}
	return &u, nil
}

func (s *PostgresStorage) CreateSession(ctx context.Context, session models.AuthSession) error {
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO auth_sessions (id, email, created_at, expires_at) VALUES ($1, $2, $3, $4)",
		session.ID, session.Email, session.CreatedAt, session.ExpiresAt)
	return apperr.Network(err)
}

func (s *PostgresStorage) GetSession(ctx context.Context, id string) (*models.AuthSession, error) {
	var a models.AuthSession
	err := s.DB.QueryRowContext(ctx,
		"SELECT id, email, created_at, expires_at FROM auth_sessions WHERE id = $1", id).
		Scan(&a.ID, &a.Email, &a.CreatedAt, &a.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("session", id)
	}
	if err != nil {
		return nil, apperr.Network(err)
	}
	return &a, nil
}

func (s *PostgresStorage) DeleteSession(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, "DELETE FROM auth_sessions WHERE id = $1", id)
	return apperr.Network(err)
}

func (s *PostgresStorage) Close() error {
	return s.DB.Close()
}

func isPQCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
