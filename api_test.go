package parley

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPILogin(t *testing.T) {
	var gotBody LoginRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/auth/login", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(AuthResponse{
			Token: "tok-abc",
			User:  User{ID: 1, Username: "alice"},
		})
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, zerolog.Nop())
	resp, err := c.Login(context.Background(), "a@x.io", "pw")
	require.NoError(t, err)

	assert.Equal(t, "a@x.io", gotBody.Email)
	assert.Equal(t, "alice", resp.User.Username)
	assert.Equal(t, "tok-abc", c.Token(), "token is stored for subsequent calls")
}

func TestAPIBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(User{ID: 1})
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, zerolog.Nop())
	c.SetToken("tok-abc")

	_, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-abc", gotAuth)

	t.Run("cleared token sends no header", func(t *testing.T) {
		c.SetToken("")
		_, err := c.CurrentUser(context.Background())
		require.NoError(t, err)
		assert.Empty(t, gotAuth)
	})
}

func TestAPIUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, zerolog.Nop())
	fired := 0
	c.OnUnauthorized(func() { fired++ })

	_, err := c.Friends(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1, fired)
}

func TestAPIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "group not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, zerolog.Nop())
	_, err := c.GetGroup(context.Background(), 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "group not found")
}

func TestAPIPaths(t *testing.T) {
	type call struct{ method, path string }
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, call{r.Method, r.URL.Path})
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, zerolog.Nop())
	ctx := context.Background()

	_, err := c.ChatHistory(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, c.MarkRead(ctx, 2))
	_, err = c.GroupMessages(ctx, 7)
	require.NoError(t, err)
	_, err = c.ChatList(ctx)
	require.NoError(t, err)

	assert.Equal(t, []call{
		{http.MethodGet, "/api/messages/history/2"},
		{http.MethodPut, "/api/messages/read/2"},
		{http.MethodGet, "/api/groups/7/messages"},
		{http.MethodGet, "/api/messages/chat-list"},
	}, calls)
}

func TestAPISearchEscapesQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, zerolog.Nop())
	_, err := c.SearchUsers(context.Background(), "a b&c")
	require.NoError(t, err)
	assert.Equal(t, "a b&c", gotQuery)
}
