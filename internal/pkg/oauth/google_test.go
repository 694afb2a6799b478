package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestGenerateState(t *testing.T) {
	g := NewGoogleService("client", "secret", "http://localhost/callback", []string{"openid", "email"})

	a, err := g.GenerateState()
	require.NoError(t, err)
	b, err := g.GenerateState()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
}

func TestRedirectURL(t *testing.T) {
	g := NewGoogleService("client-id", "secret", "http://localhost/callback", []string{"openid", "email"})

	u, err := url.Parse(g.RedirectURL("xyz"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "xyz", q.Get("state"))
	assert.Equal(t, "http://localhost/callback", q.Get("redirect_uri"))
}

func TestProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"42","email":"dr.house@clinic.example","verified_email":true}`))
	}))
	defer srv.Close()

	g := NewGoogleService("client", "secret", "http://localhost/callback", nil).(*GoogleServiceImpl)
	g.userInfoURL = srv.URL

	profile, err := g.Profile(context.Background(), &oauth2.Token{AccessToken: "access-123", TokenType: "Bearer"})
	require.NoError(t, err)
	assert.Equal(t, "dr.house@clinic.example", profile.Email)
	assert.Equal(t, "42", profile.GoogleID)
	assert.True(t, profile.VerifiedEmail)
}
