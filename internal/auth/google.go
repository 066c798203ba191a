package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MosinFAM/blog-posts/internal/apperr"
	"github.com/MosinFAM/blog-posts/internal/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	pendingTTL        = 10 * time.Minute
)

// GoogleConfig - параметры OAuth-клиента Google
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// GoogleProvider ведёт вход через Google: Begin выдаёт адрес окна согласия,
// Complete завершает вход по ответу провайдера.
type GoogleProvider struct {
	svc         *Service
	oauth       *oauth2.Config
	userInfoURL string

	mu      sync.Mutex
	pending map[string]pendingLogin
}

type pendingLogin struct {
	clientID  string
	expiresAt time.Time
}

func NewGoogleProvider(svc *Service, cfg GoogleConfig) *GoogleProvider {
	g := &GoogleProvider{
		svc: svc,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
		pending:     make(map[string]pendingLogin),
	}
	svc.WithGoogle(g)
	return g
}

// withEndpoints подменяет адреса провайдера
func (g *GoogleProvider) withEndpoints(endpoint oauth2.Endpoint, userInfoURL string) *GoogleProvider {
	g.oauth.Endpoint = endpoint
	g.userInfoURL = userInfoURL
	return g
}

// Begin запоминает попытку входа clientID и возвращает адрес окна согласия
func (g *GoogleProvider) Begin(clientID string) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	state := base64.RawURLEncoding.EncodeToString(buf)

	now := g.svc.now()
	g.mu.Lock()
	for k, p := range g.pending {
		if now.After(p.expiresAt) {
			delete(g.pending, k)
		}
	}
	g.pending[state] = pendingLogin{clientID: clientID, expiresAt: now.Add(pendingTTL)}
	g.mu.Unlock()

	return g.oauth.AuthCodeURL(state), nil
}

func (g *GoogleProvider) take(state string) (pendingLogin, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.pending[state]
	delete(g.pending, state)
	if !ok || g.svc.now().After(p.expiresAt) {
		return pendingLogin{}, false
	}
	return p, true
}

// Complete обменивает code на токен провайдера, узнаёт email и открывает сессию.
// Отказ пользователя и неизвестный state считаются закрытым окном входа.
func (g *GoogleProvider) Complete(ctx context.Context, state, code, providerErr string) (token, clientID string, err error) {
	p, ok := g.take(state)
	if !ok {
		return "", "", apperr.Auth(apperr.PopupClosed, errors.New("unknown or expired state"))
	}
	if providerErr != "" || code == "" {
		return "", p.clientID, apperr.Auth(apperr.PopupClosed, errors.New(providerErr))
	}

	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return "", p.clientID, apperr.Auth(apperr.InvalidCredentials, err)
		}
		return "", p.clientID, apperr.Auth(apperr.NetworkUnavailable, err)
	}

	email, err := g.fetchEmail(ctx, tok)
	if err != nil {
		return "", p.clientID, err
	}

	token, err = g.svc.loginFederated(ctx, p.clientID, email, models.ProviderGoogle)
	return token, p.clientID, err
}

type googleUserInfo struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

func (g *GoogleProvider) fetchEmail(ctx context.Context, tok *oauth2.Token) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := g.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return "", apperr.Auth(apperr.NetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperr.Auth(apperr.InvalidCredentials, fmt.Errorf("userinfo status %d", resp.StatusCode))
	}
	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", apperr.Auth(apperr.NetworkUnavailable, err)
	}
	if info.Email == "" || !info.EmailVerified {
		return "", apperr.Auth(apperr.InvalidCredentials, errors.New("google account has no verified email"))
	}
	return info.Email, nil
}
