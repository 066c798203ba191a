// Package session - состояние аутентификации клиента и его распространение.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/MosinFAM/blog-posts/internal/apperr"
	"github.com/MosinFAM/blog-posts/internal/auth"
	"github.com/MosinFAM/blog-posts/internal/models"
	"github.com/MosinFAM/blog-posts/internal/stream"

	"github.com/sirupsen/logrus"
)

// State - текущая identity клиента. Пока Loading, identity не определена.
type State struct {
	Identity *models.Identity `json:"identity"`
	Loading  bool             `json:"loading"`
}

// Manager держит состояние сессии одного клиента. Состояние меняется только
// push-уведомлениями провайдера, собственные вызовы его не трогают.
type Manager struct {
	auth     *auth.Service
	clientID string
	log      logrus.FieldLogger

	src *auth.Subscription

	mu    sync.Mutex
	token string
	state State
	subs  map[*stream.Stream[State]]struct{}
}

// NewManager подписывается на состояние clientID. token - уже выданный
// клиенту токен (может быть пустым).
func NewManager(ctx context.Context, svc *auth.Service, clientID, token string, log logrus.FieldLogger) *Manager {
	m := &Manager{
		auth:     svc,
		clientID: clientID,
		log:      log.WithField("client", clientID),
		token:    token,
		state:    State{Loading: true},
		subs:     make(map[*stream.Stream[State]]struct{}),
	}
	m.src = svc.Watch(ctx, clientID, token)
	go m.pump()
	return m
}

func (m *Manager) pump() {
	for st := range m.src.C() {
		m.apply(State{Identity: st.Identity})
	}
}

func (m *Manager) apply(st State) {
	m.mu.Lock()
	m.state = st
	targets := make([]*stream.Stream[State], 0, len(m.subs))
	for s := range m.subs {
		targets = append(targets, s)
	}
	m.mu.Unlock()

	for _, s := range targets {
		s.Send(st)
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Token - токен, выданный последним успешным входом
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *Manager) setToken(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

// Subscribe возвращает поток изменений состояния. Если состояние уже
// известно, оно приходит первым.
func (m *Manager) Subscribe() *stream.Stream[State] {
	var s *stream.Stream[State]
	s = stream.New[State](1, func() {
		m.mu.Lock()
		delete(m.subs, s)
		m.mu.Unlock()
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[s] = struct{}{}
	if !m.state.Loading {
		s.Send(m.state)
	}
	return s
}

func (m *Manager) Signup(ctx context.Context, email, password string) error {
	token, err := m.auth.Signup(ctx, m.clientID, email, password)
	if err != nil {
		m.log.WithError(err).Debug("signup failed")
		return err
	}
	m.setToken(token)
	return nil
}

func (m *Manager) Login(ctx context.Context, email, password string) error {
	token, err := m.auth.Login(ctx, m.clientID, email, password)
	if err != nil {
		m.log.WithError(err).Debug("login failed")
		return err
	}
	m.setToken(token)
	return nil
}

// GoogleLogin завершает вход через Google по ответу провайдера.
// providerErr - параметр error из callback (например, access_denied).
func (m *Manager) GoogleLogin(ctx context.Context, code, state, providerErr string) error {
	g := m.auth.Google()
	if g == nil {
		return apperr.Auth(apperr.NetworkUnavailable, errors.New("google login is not configured"))
	}
	token, _, err := g.Complete(ctx, state, code, providerErr)
	if err != nil {
		m.log.WithError(err).Debug("google login failed")
		return err
	}
	m.setToken(token)
	return nil
}

func (m *Manager) Logout(ctx context.Context) error {
	if err := m.auth.Logout(ctx, m.clientID, m.Token()); err != nil {
		return err
	}
	m.setToken("")
	return nil
}

// Close отписывается от провайдера и закрывает все выданные потоки
func (m *Manager) Close() {
	m.src.Close()

	m.mu.Lock()
	targets := make([]*stream.Stream[State], 0, len(m.subs))
	for s := range m.subs {
		targets = append(targets, s)
	}
	m.mu.Unlock()

	for _, s := range targets {
		s.Close()
	}
}
