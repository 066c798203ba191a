// Package auth - провайдер аутентификации: учётные записи, сессионные токены,
// вход через Google и push-уведомления о смене состояния.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MosinFAM/blog-posts/internal/apperr"
	"github.com/MosinFAM/blog-posts/internal/models"
	"github.com/MosinFAM/blog-posts/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 6

// Config - параметры провайдера
type Config struct {
	Secret   []byte
	TokenTTL time.Duration
}

// Service выдаёт и проверяет сессии. Каждое изменение состояния клиента
// (вход, регистрация, выход) публикуется подписчикам его clientID.
type Service struct {
	store    storage.Storage
	cfg      Config
	hub      *Hub
	google   *GoogleProvider
	validate *validator.Validate
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewService(store storage.Storage, cfg Config, log logrus.FieldLogger) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 7 * 24 * time.Hour
	}
	return &Service{
		store:    store,
		cfg:      cfg,
		hub:      NewHub(),
		validate: validator.New(),
		log:      log.WithField("component", "auth"),
		now:      time.Now,
	}
}

// WithGoogle включает вход через Google
func (s *Service) WithGoogle(g *GoogleProvider) *Service {
	s.google = g
	return s
}

func (s *Service) Google() *GoogleProvider { return s.google }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup создаёт учётную запись по паролю и сразу входит
func (s *Service) Signup(ctx context.Context, clientID, email, password string) (string, error) {
	email = normalizeEmail(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return "", apperr.Auth(apperr.InvalidCredentials, err)
	}
	if len(password) < MinPasswordLength {
		return "", apperr.Auth(apperr.WeakPassword, nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	err = s.store.CreateUser(ctx, models.User{
		Email:        email,
		PasswordHash: string(hash),
		Provider:     models.ProviderPassword,
		CreatedAt:    s.now().UTC(),
	})
	if errors.Is(err, apperr.ErrAlreadyExists) {
		return "", apperr.Auth(apperr.AccountExists, nil)
	}
	if err != nil {
		return "", apperr.Auth(apperr.NetworkUnavailable, err)
	}

	s.log.WithField("email", email).Info("account created")
	return s.startSession(ctx, clientID, email)
}

// Login проверяет пароль. Неизвестный email и неверный пароль неразличимы для клиента.
func (s *Service) Login(ctx context.Context, clientID, email, password string) (string, error) {
	email = normalizeEmail(email)
	user, err := s.store.GetUser(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", apperr.Auth(apperr.InvalidCredentials, nil)
	}
	if err != nil {
		return "", apperr.Auth(apperr.NetworkUnavailable, err)
	}
	if user.PasswordHash == "" {
		return "", apperr.Auth(apperr.InvalidCredentials, errors.New("account uses federated login"))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", apperr.Auth(apperr.InvalidCredentials, nil)
	}
	return s.startSession(ctx, clientID, email)
}

// loginFederated входит под email, подтверждённым внешним провайдером, создавая учётную запись при первом входе
func (s *Service) loginFederated(ctx context.Context, clientID, email, provider string) (string, error) {
	email = normalizeEmail(email)
	_, err := s.store.GetUser(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		err = s.store.CreateUser(ctx, models.User{Email: email, Provider: provider, CreatedAt: s.now().UTC()})
		if errors.Is(err, apperr.ErrAlreadyExists) {
			err = nil
		}
	}
	if err != nil {
		return "", apperr.Auth(apperr.NetworkUnavailable, err)
	}
	return s.startSession(ctx, clientID, email)
}

// Claims - содержимое сессионного токена: sub - email, jti - ID серверной сессии
type Claims struct {
	jwt.RegisteredClaims
}

func (s *Service) startSession(ctx context.Context, clientID, email string) (string, error) {
	now := s.now().UTC()
	session := models.AuthSession{
		ID:        uuid.New().String(),
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TokenTTL),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return "", apperr.Auth(apperr.NetworkUnavailable, err)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{jwt.RegisteredClaims{
		Subject:   email,
		ID:        session.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
	}}).SignedString(s.cfg.Secret)
	if err != nil {
		return "", err
	}

	s.hub.Publish(clientID, State{Identity: &models.Identity{Email: email}})
	s.log.WithField("email", email).Debug("session started")
	return token, nil
}

func (s *Service) parse(token string, opts ...jwt.ParserOption) (*Claims, error) {
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, errors.New("token without subject or id")
	}
	return claims, nil
}

// Authenticate возвращает identity по токену. Токен должен быть подписан,
// не просрочен и ссылаться на неотозванную сессию.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.Identity, error) {
	if token == "" {
		return nil, apperr.Auth(apperr.Unauthenticated, nil)
	}
	claims, err := s.parse(token)
	if err != nil {
		return nil, apperr.Auth(apperr.Unauthenticated, err)
	}

	session, err := s.store.GetSession(ctx, claims.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Auth(apperr.Unauthenticated, errors.New("session revoked"))
	}
	if err != nil {
		return nil, apperr.Auth(apperr.NetworkUnavailable, err)
	}
	if session.Email != claims.Subject || !s.now().Before(session.ExpiresAt) {
		return nil, apperr.Auth(apperr.Unauthenticated, errors.New("session expired"))
	}
	return &models.Identity{Email: session.Email}, nil
}

// Logout отзывает сессию токена и сообщает подписчикам clientID об анонимном состоянии.
// Просроченный или пустой токен не ошибка.
func (s *Service) Logout(ctx context.Context, clientID, token string) error {
	if token != "" {
		claims, err := s.parse(token, jwt.WithoutClaimsValidation())
		if err == nil {
			if err := s.store.DeleteSession(ctx, claims.ID); err != nil {
				return apperr.Auth(apperr.NetworkUnavailable, err)
			}
		}
	}
	s.hub.Publish(clientID, State{})
	return nil
}

// Watch подписывает clientID на изменения состояния. Первое состояние
// вычисляется по token и приходит асинхронно; если до этого состояние уже
// сменилось публикацией, начальное не отправляется. Если бэкенд недоступен,
// начального состояния нет: оно неизвестно до следующей публикации.
func (s *Service) Watch(ctx context.Context, clientID, token string) *Subscription {
	sub, seq := s.hub.subscribe(clientID)
	go func() {
		var st State
		identity, err := s.Authenticate(ctx, token)
		switch {
		case err == nil:
			st.Identity = identity
		case !apperr.IsAuth(err, apperr.Unauthenticated):
			s.log.WithError(err).Warn("resolve initial auth state")
			return
		}
		s.hub.sendIfCurrent(clientID, seq, sub, st)
	}()
	return sub
}
