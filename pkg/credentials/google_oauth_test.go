package credentials

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeGoogle(t *testing.T, sub string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "postmessage", r.PostForm.Get("redirect_uri"))
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(TokenResponse{AccessToken: "ya29.token", TokenType: "Bearer", ExpiresIn: 3599})
	})
	mux.HandleFunc("/tokeninfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ya29.token", r.URL.Query().Get("access_token"))
		_ = json.NewEncoder(w).Encode(TokenInfo{Sub: sub, Audience: "client-id"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(srv *httptest.Server) *GoogleOAuth {
	return NewGoogleOAuth("client-id", "secret", "postmessage", WithEndpoints(Endpoints{
		Token:     srv.URL + "/token",
		TokenInfo: srv.URL + "/tokeninfo",
	}))
}

func TestAuthenticate(t *testing.T) {
	srv := fakeGoogle(t, "109876543210987654321")
	s, err := newClient(srv).Authenticate(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "ya29.token", s.AccessToken)
	assert.Equal(t, "109876543210987654321", s.SourceID.String())
}

func TestExchangeCode_RejectedCodeIsUpstreamError(t *testing.T) {
	srv := fakeGoogle(t, "1")
	_, err := newClient(srv).ExchangeCode(context.Background(), "bad-code", "")
	require.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestExchangeCode_EmptyCode(t *testing.T) {
	srv := fakeGoogle(t, "1")
	_, err := newClient(srv).ExchangeCode(context.Background(), "", "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUpstream)
}

func TestAuthenticate_NonNumericSubject(t *testing.T) {
	srv := fakeGoogle(t, "not-a-number")
	_, err := newClient(srv).Authenticate(context.Background(), "good-code")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestTokenInfo_Unreachable(t *testing.T) {
	srv := fakeGoogle(t, "1")
	g := newClient(srv)
	srv.Close()
	_, err := g.TokenInfo(context.Background(), "ya29.token")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestNewGoogleOAuth_EnvFallback(t *testing.T) {
	t.Setenv("GOOGLE_CLIENT_ID", "env-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "env-secret")
	g := NewGoogleOAuth("", "", "")
	assert.Equal(t, "env-id", g.ClientID)
	assert.Equal(t, "env-secret", g.ClientSecret)
	assert.Equal(t, googleTokenEndpoint, g.endpoints.Token)
}
