package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

func fakeGitHub(t *testing.T, user string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"bad_verification_code"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "gho_test",
			"token_type":   "bearer",
		})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(user))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testProvider(srv *httptest.Server) *GitHubProvider {
	return NewGitHubProvider("client-id", "client-secret", "http://localhost/auth/github/callback").
		WithEndpoints(oauth2.Endpoint{
			AuthURL:  srv.URL + "/login/oauth/authorize",
			TokenURL: srv.URL + "/login/oauth/access_token",
		}, srv.URL+"/")
}

func TestGitHubProvider_AuthURL(t *testing.T) {
	p := NewGitHubProvider("client-id", "secret", "http://localhost/cb")

	u, err := url.Parse(p.AuthURL("state-123"))
	if err != nil {
		t.Fatalf("AuthURL() not a URL: %v", err)
	}
	if u.Host != "github.com" {
		t.Errorf("host = %q, want github.com", u.Host)
	}
	q := u.Query()
	if q.Get("state") != "state-123" || q.Get("client_id") != "client-id" {
		t.Errorf("query = %v", q)
	}
	if !strings.Contains(q.Get("scope"), "read:user") {
		t.Errorf("scope = %q", q.Get("scope"))
	}
}

func TestGitHubProvider_Exchange(t *testing.T) {
	srv := fakeGitHub(t, `{"id":42,"login":"octo","email":"o@example.com","avatar_url":"https://a/x.png"}`)

	user, err := testProvider(srv).Exchange(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	want := GitHubUser{ID: 42, Login: "octo", Email: "o@example.com", AvatarURL: "https://a/x.png"}
	if *user != want {
		t.Errorf("Exchange() = %+v, want %+v", *user, want)
	}
}

func TestGitHubProvider_ExchangeBadCode(t *testing.T) {
	srv := fakeGitHub(t, `{"id":42}`)

	if _, err := testProvider(srv).Exchange(context.Background(), "bad-code"); err == nil {
		t.Fatal("Exchange() should fail for a rejected code")
	}
}

func TestGitHubProvider_ExchangeRejectsZeroID(t *testing.T) {
	srv := fakeGitHub(t, `{"login":"ghost"}`)

	if _, err := testProvider(srv).Exchange(context.Background(), "good-code"); err == nil {
		t.Fatal("Exchange() should reject a profile without an ID")
	}
}
