package storage

import (
	"context"
	"errors"
	"time"

	"github.com/MosinFAM/blog-posts/internal/apperr"
	"github.com/MosinFAM/blog-posts/internal/models"
	"github.com/MosinFAM/blog-posts/internal/stream"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStorage - хранилище в MongoDB. Коллекции: posts, comments, categories, users, auth_sessions.
type MongoStorage struct {
	client     *mongo.Client
	posts      *mongo.Collection
	comments   *mongo.Collection
	categories *mongo.Collection
	users      *mongo.Collection
	sessions   *mongo.Collection
	log        logrus.FieldLogger
}

// NewMongoStorage создаёт хранилище и нужные индексы
func NewMongoStorage(ctx context.Context, client *mongo.Client, database string, log logrus.FieldLogger) *MongoStorage {
	db := client.Database(database)
	s := &MongoStorage{
		client:     client,
		posts:      db.Collection("posts"),
		comments:   db.Collection("comments"),
		categories: db.Collection("categories"),
		users:      db.Collection("users"),
		sessions:   db.Collection("auth_sessions"),
		log:        log.WithField("storage", "mongo"),
	}

	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.posts: {
			{Keys: bson.D{{Key: "author", Value: 1}}},
			{Keys: bson.D{{Key: "keywords", Value: 1}}},
			{Keys: bson.D{{Key: "categories", Value: 1}}},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		},
		s.comments: {
			{Keys: bson.D{{Key: "postId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		s.categories: {
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
	for coll, models := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			s.log.WithError(err).WithField("collection", coll.Name()).Warn("failed to create indexes")
		}
	}
	return s
}

func (s *MongoStorage) CreatePost(ctx context.Context, post models.Post) (models.Post, error) {
	post.ID = uuid.New().String()
	post.Categories = nonNil(post.Categories)
	post.LikedBy = nonNil(post.LikedBy)
	post.Keywords = nonNil(post.Keywords)

	if _, err := s.posts.InsertOne(ctx, post); err != nil {
		s.log.WithError(err).Error("insert post")
		return models.Post{}, apperr.Network(err)
	}
	return post, nil
}

func (s *MongoStorage) GetPostByID(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	err := s.posts.FindOne(ctx, bson.M{"_id": id}).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("post", id)
	}
	if err != nil {
		s.log.WithError(err).WithField("post_id", id).Error("find post")
		return nil, apperr.Network(err)
	}
	return &post, nil
}

func (s *MongoStorage) UpdatePost(ctx context.Context, id string, patch models.PostPatch) (*models.Post, error) {
	set := bson.M{"updatedAt": patch.UpdatedAt}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Content != nil {
		set["content"] = *patch.Content
	}
	if patch.Categories != nil {
		set["categories"] = nonNil(*patch.Categories)
	}
	if patch.Keywords != nil {
		set["keywords"] = nonNil(*patch.Keywords)
	}

	var post models.Post
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := s.posts.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("post", id)
	}
	if err != nil {
		s.log.WithError(err).WithField("post_id", id).Error("update post")
		return nil, apperr.Network(err)
	}
	return &post, nil
}

func (s *MongoStorage) DeletePost(ctx context.Context, id string) error {
	res, err := s.posts.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		s.log.WithError(err).WithField("post_id", id).Error("delete post")
		return apperr.Network(err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("post", id)
	}
	if _, err := s.comments.DeleteMany(ctx, bson.M{"postId": id}); err != nil {
		s.log.WithError(err).WithField("post_id", id).Warn("delete post comments")
	}
	return nil
}

func (s *MongoStorage) IteratePosts(ctx context.Context, q models.PostQuery) (PostIterator, error) {
	filter := bson.M{}
	if q.Author != "" {
		filter["author"] = q.Author
	}
	// для массивов равенство означает "содержит элемент"
	if q.Category != "" {
		filter["categories"] = q.Category
	}
	if q.Keyword != "" {
		filter["keywords"] = q.Keyword
	}

	opts := options.Find()
	if q.NewestFirst {
		opts.SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	}
	cursor, err := s.posts.Find(ctx, filter, opts)
	if err != nil {
		s.log.WithError(err).Error("find posts")
		return nil, apperr.Network(err)
	}
	return &cursorIterator{ctx: ctx, cursor: cursor}, nil
}

type cursorIterator struct {
	ctx    context.Context
	cursor *mongo.Cursor
	cur    models.Post
	err    error
}

func (it *cursorIterator) Next() bool {
	if it.err != nil || !it.cursor.Next(it.ctx) {
		return false
	}
	it.cur = models.Post{}
	it.err = it.cursor.Decode(&it.cur)
	return it.err == nil
}

func (it *cursorIterator) Post() models.Post { return it.cur }

func (it *cursorIterator) Err() error {
	if it.err != nil {
		return apperr.Network(it.err)
	}
	return apperr.Network(it.cursor.Err())
}

func (it *cursorIterator) Close() error {
	return it.cursor.Close(context.Background())
}

// AddLike: $addToSet и $inc в одном обновлении, только если identity ещё нет в likedBy
func (s *MongoStorage) AddLike(ctx context.Context, postID, identity string) (models.LikeState, error) {
	return s.changeLike(ctx, postID,
		bson.M{"_id": postID, "likedBy": bson.M{"$ne": identity}},
		bson.M{"$addToSet": bson.M{"likedBy": identity}, "$inc": bson.M{"likesCount": 1}})
}

// RemoveLike: $pull и $inc -1, только если identity есть в likedBy
func (s *MongoStorage) RemoveLike(ctx context.Context, postID, identity string) (models.LikeState, error) {
	return s.changeLike(ctx, postID,
		bson.M{"_id": postID, "likedBy": identity},
		bson.M{"$pull": bson.M{"likedBy": identity}, "$inc": bson.M{"likesCount": -1}})
}

func (s *MongoStorage) changeLike(ctx context.Context, postID string, filter, update bson.M) (models.LikeState, error) {
	projection := bson.M{"likesCount": 1, "likedBy": 1}
	var post models.Post

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After).SetProjection(projection)
	err := s.posts.FindOneAndUpdate(ctx, filter, update, opts).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		err = s.posts.FindOne(ctx, bson.M{"_id": postID}, options.FindOne().SetProjection(projection)).Decode(&post)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.LikeState{}, apperr.NotFound("post", postID)
		}
	}
	if err != nil {
		s.log.WithError(err).WithField("post_id", postID).Error("update likes")
		return models.LikeState{}, apperr.Network(err)
	}
	return models.LikeState{PostID: postID, LikesCount: post.LikesCount, LikedBy: nonNil(post.LikedBy)}, nil
}

func (s *MongoStorage) AddComment(ctx context.Context, comment models.Comment) (*models.Comment, error) {
	n, err := s.posts.CountDocuments(ctx, bson.M{"_id": comment.PostID}, options.Count().SetLimit(1))
	if err != nil {
		return nil, apperr.Network(err)
	}
	if n == 0 {
		return nil, apperr.NotFound("post", comment.PostID)
	}

	comment.ID = uuid.New().String()
	if _, err := s.comments.InsertOne(ctx, comment); err != nil {
		s.log.WithError(err).WithField("post_id", comment.PostID).Error("insert comment")
		return nil, apperr.Network(err)
	}
	return &comment, nil
}

func (s *MongoStorage) GetCommentsByPostID(ctx context.Context, postID string) ([]models.Comment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.comments.Find(ctx, bson.M{"postId": postID}, opts)
	if err != nil {
		s.log.WithError(err).WithField("post_id", postID).Error("find comments")
		return nil, apperr.Network(err)
	}
	comments := []models.Comment{}
	if err := cursor.All(ctx, &comments); err != nil {
		return nil, apperr.Network(err)
	}
	return comments, nil
}

// SubscribeToComments открывает change stream по коллекции comments.
// Требует replica set. Удаления не несут postId, поэтому на них список тоже перечитывается.
func (s *MongoStorage) SubscribeToComments(ctx context.Context, postID string) (*stream.Stream[CommentSnapshot], error) {
	log := s.log.WithField("post_id", postID)

	cs, err := s.comments.Watch(ctx, commentChangesPipeline(postID))
	if err != nil {
		return nil, apperr.Network(err)
	}

	initial, err := s.GetCommentsByPostID(ctx, postID)
	if err != nil {
		cs.Close(context.Background())
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	sub := stream.New[CommentSnapshot](1, cancel)
	sub.Send(CommentSnapshot{PostID: postID, Comments: initial})

	go func() {
		defer cs.Close(context.Background())
		for cs.Next(watchCtx) {
			reloadCtx, done := context.WithTimeout(watchCtx, 10*time.Second)
			comments, err := s.GetCommentsByPostID(reloadCtx, postID)
			done()
			if err != nil {
				log.WithError(err).Error("reload comments")
				continue
			}
			sub.Send(CommentSnapshot{PostID: postID, Comments: comments})
		}
		if err := cs.Err(); err != nil && watchCtx.Err() == nil {
			log.WithError(err).Warn("comment change stream stopped")
		}
	}()

	return sub, nil
}

// commentChangesPipeline отбирает из change stream вставки комментариев поста и все удаления
func commentChangesPipeline(postID string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"fullDocument.postId": postID},
			bson.M{"operationType": "delete"},
		}}}},
	}
}

func (s *MongoStorage) GetCategories(ctx context.Context) ([]models.Category, error) {
	cursor, err := s.categories.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, apperr.Network(err)
	}
	var categories []models.Category
	if err := cursor.All(ctx, &categories); err != nil {
		return nil, apperr.Network(err)
	}
	return categories, nil
}

func (s *MongoStorage) AddCategory(ctx context.Context, name string) (models.Category, error) {
	category := models.Category{ID: uuid.New().String(), Name: name}
	_, err := s.categories.InsertOne(ctx, category)
	if mongo.IsDuplicateKeyError(err) {
		return models.Category{}, apperr.ErrAlreadyExists
	}
	if err != nil {
		return models.Category{}, apperr.Network(err)
	}
	return category, nil
}

func (s *MongoStorage) CreateUser(ctx context.Context, user models.User) error {
	_, err := s.users.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return apperr.ErrAlreadyExists
	}
	return apperr.Network(err)
}

func (s *MongoStorage) GetUser(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.users.FindOne(ctx, bson.M{"_id": email}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("user", email)
	}
	if err != nil {
		return nil, apperr.Network(err)
	}
	return &user, nil
}

func (s *MongoStorage) CreateSession(ctx context.Context, session models.AuthSession) error {
	_, err := s.sessions.InsertOne(ctx, session)
	return apperr.Network(err)
}

func (s *MongoStorage) GetSession(ctx context.Context, id string) (*models.AuthSession, error) {
	var session models.AuthSession
	err := s.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("session", id)
	}
	if err != nil {
		return nil, apperr.Network(err)
	}
	return &session, nil
}

func (s *MongoStorage) DeleteSession(ctx context.Context, id string) error {
	_, err := s.sessions.DeleteOne(ctx, bson.M{"_id": id})
	return apperr.Network(err)
}

func (s *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
