package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignInSetsCurrentSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts:signInWithPassword", r.URL.Path)
		assert.Equal(t, "k1", r.URL.Query().Get("key"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "op@example.com", body["email"])
		assert.Equal(t, true, body["returnSecureToken"])

		_, _ = w.Write([]byte(`{"localId":"uid-7","email":"op@example.com","idToken":"tok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k1", 0, nil)
	var changes []*Session
	c.OnChange(func(s *Session) { changes = append(changes, s) })

	s, err := c.SignIn(context.Background(), " op@example.com ", "secret")
	require.NoError(t, err)
	assert.Equal(t, "uid-7", s.UID)
	assert.Equal(t, "tok", s.IDToken)
	assert.Same(t, s, c.Current())

	c.SignOut()
	assert.Nil(t, c.Current())
	require.Len(t, changes, 2)
	assert.Nil(t, changes[1])
}

func TestSignUpUsesSignUpMethod(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts:signUp", r.URL.Path)
		_, _ = w.Write([]byte(`{"localId":"new"}`))
	}))
	defer srv.Close()

	s, err := NewClient(srv.URL, "k", 0, nil).SignUp(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	assert.Equal(t, "new", s.UID)
	assert.Equal(t, "a@b.c", s.Email)
}

func TestProviderErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"EMAIL_EXISTS"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", 0, nil)
	_, err := c.SignUp(context.Background(), "a@b.c", "pw")
	var ae *AuthError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusBadRequest, ae.Status)
	assert.Equal(t, "EMAIL_EXISTS", ae.Error())
	assert.Nil(t, c.Current())
}

func TestMissingCredentials(t *testing.T) {
	_, err := NewClient("http://unused", "k", 0, nil).SignIn(context.Background(), "", "pw")
	var ae *AuthError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "MISSING_EMAIL_OR_PASSWORD", ae.Message)
}

func TestProviderMessageFallbacks(t *testing.T) {
	assert.Equal(t, "plain", providerMessage([]byte("plain")))
	assert.Equal(t, "Unknown error", providerMessage(nil))
}
