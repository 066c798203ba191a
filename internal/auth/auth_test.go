package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/MosinFAM/blog-posts/internal/apperr"
	"github.com/MosinFAM/blog-posts/internal/models"
	"github.com/MosinFAM/blog-posts/internal/storage"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestService(store storage.Storage) *Service {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewService(store, Config{Secret: []byte("test-secret"), TokenTTL: time.Hour}, log)
}

func receive(t *testing.T, sub *Subscription) State {
	t.Helper()
	select {
	case st := <-sub.C():
		return st
	case <-time.After(time.Second):
		t.Fatal("no auth state received")
		return State{}
	}
}

func TestSignupThenAuthenticate(t *testing.T) {
	svc := newTestService(storage.NewMemoryStorage(logrus.New()))
	ctx := context.Background()

	token, err := svc.Signup(ctx, "c1", " Alice@Example.com ", "secret1")
	require.NoError(t, err)

	identity, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", identity.Email)
}

func TestSignupErrors(t *testing.T) {
	svc := newTestService(storage.NewMemoryStorage(logrus.New()))
	ctx := context.Background()

	_, err := svc.Signup(ctx, "", "not-an-email", "secret1")
	assert.True(t, apperr.IsAuth(err, apperr.InvalidCredentials))

	_, err = svc.Signup(ctx, "", "a@b.io", "123")
	assert.True(t, apperr.IsAuth(err, apperr.WeakPassword))

	_, err = svc.Signup(ctx, "", "a@b.io", "secret1")
	require.NoError(t, err)
	_, err = svc.Signup(ctx, "", "a@b.io", "secret2")
	assert.True(t, apperr.IsAuth(err, apperr.AccountExists))
}

func TestLogin(t *testing.T) {
	svc := newTestService(storage.NewMemoryStorage(logrus.New()))
	ctx := context.Background()
	_, err := svc.Signup(ctx, "", "a@b.io", "secret1")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "", "a@b.io", "wrong-password")
	assert.True(t, apperr.IsAuth(err, apperr.InvalidCredentials))

	_, err = svc.Login(ctx, "", "nobody@b.io", "secret1")
	assert.True(t, apperr.IsAuth(err, apperr.InvalidCredentials))

	token, err := svc.Login(ctx, "", "A@B.io", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestLogin_BackendUnavailable(t *testing.T) {
	store := new(storage.MockStorage)
	store.On("GetUser", mock.Anything, "a@b.io").Return(nil, apperr.Network(errors.New("dial tcp")))

	_, err := newTestService(store).Login(context.Background(), "", "a@b.io", "secret1")

	assert.True(t, apperr.IsAuth(err, apperr.NetworkUnavailable))
}

func TestLogoutRevokesToken(t *testing.T) {
	svc := newTestService(storage.NewMemoryStorage(logrus.New()))
	ctx := context.Background()
	token, err := svc.Signup(ctx, "", "a@b.io", "secret1")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, "", token))

	_, err = svc.Authenticate(ctx, token)
	assert.True(t, apperr.IsAuth(err, apperr.Unauthenticated))
	assert.NoError(t, svc.Logout(ctx, "", "garbage"))
}

func TestAuthenticate_RejectsForeignAndExpiredTokens(t *testing.T) {
	store := storage.NewMemoryStorage(logrus.New())
	svc := newTestService(store)
	ctx := context.Background()
	token, err := svc.Signup(ctx, "", "a@b.io", "secret1")
	require.NoError(t, err)

	other := NewService(store, Config{Secret: []byte("other")}, logrus.New())
	_, err = other.Authenticate(ctx, token)
	assert.True(t, apperr.IsAuth(err, apperr.Unauthenticated))

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Authenticate(ctx, token)
	assert.True(t, apperr.IsAuth(err, apperr.Unauthenticated))

	_, err = svc.Authenticate(ctx, "")
	assert.True(t, apperr.IsAuth(err, apperr.Unauthenticated))
}

func TestWatch_PushesInitialAndChangedState(t *testing.T) {
	svc := newTestService(storage.NewMemoryStorage(logrus.New()))
	ctx := context.Background()

	sub := svc.Watch(ctx, "c1", "")
	defer sub.Close()
	assert.Nil(t, receive(t, sub).Identity)

	token, err := svc.Signup(ctx, "c1", "a@b.io", "secret1")
	require.NoError(t, err)
	assert.Equal(t, &models.Identity{Email: "a@b.io"}, receive(t, sub).Identity)

	require.NoError(t, svc.Logout(ctx, "c1", token))
	assert.Nil(t, receive(t, sub).Identity)
}

func TestWatch_InitialStateFromToken(t *testing.T) {
	svc := newTestService(storage.NewMemoryStorage(logrus.New()))
	ctx := context.Background()
	token, err := svc.Signup(ctx, "", "a@b.io", "secret1")
	require.NoError(t, err)

	sub := svc.Watch(ctx, "c2", token)
	defer sub.Close()

	assert.Equal(t, "a@b.io", receive(t, sub).Identity.Email)
}

func TestWatch_BackendFailureLeavesStateUnknown(t *testing.T) {
	ctx := context.Background()
	token, err := newTestService(storage.NewMemoryStorage(logrus.New())).Signup(ctx, "", "a@b.io", "secret1")
	require.NoError(t, err)

	store := new(storage.MockStorage)
	store.On("GetSession", mock.Anything, mock.Anything).Return(nil, apperr.Network(errors.New("dial tcp")))
	svc := newTestService(store)

	sub := svc.Watch(ctx, "c3", token)
	defer sub.Close()

	select {
	case st := <-sub.C():
		t.Fatalf("unexpected initial state %+v", st)
	case <-time.After(100 * time.Millisecond):
	}
	store.AssertCalled(t, "GetSession", mock.Anything, mock.Anything)

	svc.hub.Publish("c3", State{Identity: &models.Identity{Email: "a@b.io"}})
	assert.Equal(t, "a@b.io", receive(t, sub).Identity.Email)
}

func TestHub_CloseUnsubscribes(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe("c")
	b := hub.Subscribe("c")
	assert.Equal(t, 2, hub.Subscribers("c"))

	a.Close()
	hub.Publish("c", State{Identity: &models.Identity{Email: "x@y.z"}})

	assert.Equal(t, 1, hub.Subscribers("c"))
	assert.Equal(t, "x@y.z", (<-b.C()).Identity.Email)
	b.Close()
	assert.Equal(t, 0, hub.Subscribers("c"))
}

func newGoogleServer(t *testing.T, email string, verified bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if verified {
			_, _ = w.Write([]byte(`{"email":"` + email + `","email_verified":true}`))
		} else {
			_, _ = w.Write([]byte(`{"email":"` + email + `","email_verified":false}`))
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestGoogle(svc *Service, srv *httptest.Server) *GoogleProvider {
	return NewGoogleProvider(svc, GoogleConfig{ClientID: "id", ClientSecret: "secret", RedirectURL: "http://app/auth/google/callback"}).
		withEndpoints(oauth2.Endpoint{
			AuthURL:   srv.URL + "/auth",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}, srv.URL+"/userinfo")
}

func stateOf(t *testing.T, consentURL string) string {
	t.Helper()
	u, err := url.Parse(consentURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestGoogle_CompleteCreatesAccount(t *testing.T) {
	store := storage.NewMemoryStorage(logrus.New())
	svc := newTestService(store)
	g := newTestGoogle(svc, newGoogleServer(t, "g@gmail.com", true))
	ctx := context.Background()

	consent, err := g.Begin("c1")
	require.NoError(t, err)

	token, clientID, err := g.Complete(ctx, stateOf(t, consent), "good-code", "")
	require.NoError(t, err)
	assert.Equal(t, "c1", clientID)

	identity, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "g@gmail.com", identity.Email)

	user, err := store.GetUser(ctx, "g@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, models.ProviderGoogle, user.Provider)

	// федеративный аккаунт не входит по паролю
	_, err = svc.Login(ctx, "", "g@gmail.com", "")
	assert.True(t, apperr.IsAuth(err, apperr.InvalidCredentials))
}

func TestGoogle_PopupClosed(t *testing.T) {
	svc := newTestService(storage.NewMemoryStorage(logrus.New()))
	g := newTestGoogle(svc, newGoogleServer(t, "g@gmail.com", true))
	ctx := context.Background()

	consent, err := g.Begin("c1")
	require.NoError(t, err)
	state := stateOf(t, consent)

	_, clientID, err := g.Complete(ctx, state, "", "access_denied")
	assert.True(t, apperr.IsAuth(err, apperr.PopupClosed))
	assert.Equal(t, "c1", clientID)

	// state одноразовый
	_, _, err = g.Complete(ctx, state, "good-code", "")
	assert.True(t, apperr.IsAuth(err, apperr.PopupClosed))
}

func TestGoogle_RejectedCodeAndUnverifiedEmail(t *testing.T) {
	ctx := context.Background()

	svc := newTestService(storage.NewMemoryStorage(logrus.New()))
	g := newTestGoogle(svc, newGoogleServer(t, "g@gmail.com", true))
	consent, err := g.Begin("c1")
	require.NoError(t, err)
	_, _, err = g.Complete(ctx, stateOf(t, consent), "bad-code", "")
	assert.True(t, apperr.IsAuth(err, apperr.InvalidCredentials))

	svc = newTestService(storage.NewMemoryStorage(logrus.New()))
	g = newTestGoogle(svc, newGoogleServer(t, "g@gmail.com", false))
	consent, err = g.Begin("c1")
	require.NoError(t, err)
	_, _, err = g.Complete(ctx, stateOf(t, consent), "good-code", "")
	assert.True(t, apperr.IsAuth(err, apperr.InvalidCredentials))
}
