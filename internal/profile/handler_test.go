package profile_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumora-social/lumora/internal/identity"
	"github.com/lumora-social/lumora/internal/profile"
	"github.com/lumora-social/lumora/internal/token"
	_ "github.com/lumora-social/lumora/testing"
)

type stubAccounts struct {
	accounts map[string]*identity.Account
	calls    int
}

func (s *stubAccounts) GetByID(ctx context.Context, id string) (*identity.Account, error) {
	s.calls++
	acct, ok := s.accounts[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return acct, nil
}

func testAccount(id string) *identity.Account {
	return &identity.Account{
		ID:        id,
		Email:     "a@x.com",
		Username:  "alice",
		Role:      identity.RoleMember,
		Active:    true,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func newProfileServer(t *testing.T, accounts *stubAccounts) (*httptest.Server, *token.Issuer) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	issuer := token.NewIssuer([]byte("test-secret"), "lumora", "lumora-api", time.Hour)
	handler := profile.NewHandler(nil, accounts, profile.NewCache(client, time.Minute), issuer)

	r := chi.NewRouter()
	r.Route("/users", handler.MountRoutes)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, issuer
}

func TestGetByIDCachesLookups(t *testing.T) {
	accounts := &stubAccounts{accounts: map[string]*identity.Account{"u-1": testAccount("u-1")}}
	server, _ := newProfileServer(t, accounts)

	for i := 0; i < 3; i++ {
		res, err := http.Get(server.URL + "/users/u-1")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, res.StatusCode)
		var view identity.AccountView
		require.NoError(t, json.NewDecoder(res.Body).Decode(&view))
		res.Body.Close()
		assert.Equal(t, "u-1", view.ID)
		assert.Equal(t, "alice", view.Username)
	}

	assert.Equal(t, 1, accounts.calls, "repeat reads must come from the cache")
}

func TestGetByIDUnknownAccount(t *testing.T) {
	server, _ := newProfileServer(t, &stubAccounts{accounts: map[string]*identity.Account{}})

	res, err := http.Get(server.URL + "/users/missing")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestOwnProfileRequiresToken(t *testing.T) {
	accounts := &stubAccounts{accounts: map[string]*identity.Account{"u-1": testAccount("u-1")}}
	server, issuer := newProfileServer(t, accounts)

	res, err := http.Get(server.URL + "/users/profile")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	signed, err := issuer.Issue("u-1", "alice")
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodGet, server.URL+"/users/profile", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+signed)
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var view identity.AccountView
	require.NoError(t, json.NewDecoder(res.Body).Decode(&view))
	assert.Equal(t, "u-1", view.ID)
}

func TestOwnProfileGoneAccount(t *testing.T) {
	server, issuer := newProfileServer(t, &stubAccounts{accounts: map[string]*identity.Account{}})

	signed, err := issuer.Issue("u-gone", "ghost")
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodGet, server.URL+"/users/profile", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+signed)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}
