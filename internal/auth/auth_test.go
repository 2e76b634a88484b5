package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/widgetcheck/internal/browser"
	"github.com/ternarybob/widgetcheck/internal/common"
)

func TestResolveRole(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Auth.Roles["admin"] = common.RoleConfig{Email: "admin@example.com", Password: "pw"}
	config.Auth.Roles["agent"] = common.RoleConfig{SessionCookieName: "s", SessionCookieValue: "v"}

	rc, err := ResolveRole(config, "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", rc.Email)

	_, err = ResolveRole(config, "owner")
	require.ErrorIs(t, err, ErrUnknownRole)
	assert.Contains(t, err.Error(), `"owner" (configured: admin, agent)`)
}

func TestResolveRoleWithoutCredentials(t *testing.T) {
	config := common.NewDefaultConfig()

	_, err := ResolveRole(config, "admin")
	require.ErrorIs(t, err, ErrUnknownRole)
	assert.Contains(t, err.Error(), "no roles configured")
	assert.Contains(t, err.Error(), "WIDGETCHECK_ADMIN_EMAIL")

	// Selectors alone do not sign anyone in
	config.Auth.Roles["admin"] = common.RoleConfig{EmailSelector: "#email"}
	_, err = ResolveRole(config, "admin")
	require.ErrorIs(t, err, ErrNoCredentials)
	assert.Contains(t, err.Error(), "WIDGETCHECK_ADMIN_COOKIE")
}

func TestOnLoginPage(t *testing.T) {
	tests := []struct {
		location string
		want     bool
	}{
		{"http://localhost:3000/login", true},
		{"http://localhost:3000/login/", true},
		{"http://localhost:3000/login/sso?next=/settings", true},
		{"http://localhost:3000/login-help", false},
		{"http://localhost:3000/settings/chat", false},
		{"http://localhost:3000/", false},
		{"::not a url", false},
	}

	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			assert.Equal(t, tt.want, OnLoginPage(tt.location, "/login"))
		})
	}
}

const loginForm = `<!doctype html>
<html><head><title>Login</title></head>
<body>
<form method="post" action="/login">
	<input type="email" name="email">
	<input type="password" name="password">
	<button type="submit">Sign in</button>
</form>
</body></html>`

// newAuthServer accepts admin@example.com / secret or a session=tok cookie
func newAuthServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if r.FormValue("email") == "admin@example.com" && r.FormValue("password") == "secret" {
				http.SetCookie(w, &http.Cookie{Name: "session", Value: "tok", Path: "/"})
				http.Redirect(w, r, "/settings/chat", http.StatusSeeOther)
				return
			}
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, loginForm)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("session")
		if err != nil || c.Value != "tok" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<!doctype html><html><head><title>Settings</title></head><body>ok</body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newSession(t *testing.T, config *common.Config) *browser.Session {
	t.Helper()
	if testing.Short() {
		t.Skip("browser tests skipped in short mode")
	}
	chrome := browser.FindChrome("")
	if chrome == "" {
		t.Skip("no Chrome or Chromium binary found")
	}
	config.Browser.ExecPath = chrome
	config.Browser.TestTimeout = "60s"

	s, err := browser.NewSession(context.Background(), config, "", arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestLoginAsAgainstFixture(t *testing.T) {
	srv := newAuthServer(t)

	tests := []struct {
		name    string
		role    common.RoleConfig
		wantErr string
	}{
		{name: "form", role: common.RoleConfig{Email: "admin@example.com", Password: "secret"}},
		{name: "cookie", role: common.RoleConfig{SessionCookieName: "session", SessionCookieValue: "tok"}},
		{name: "bad password", role: common.RoleConfig{Email: "admin@example.com", Password: "nope"}, wantErr: "still on"},
		{name: "bad cookie", role: common.RoleConfig{SessionCookieName: "session", SessionCookieValue: "stale"}, wantErr: "still on login page"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := common.NewDefaultConfig()
			config.Target.BaseURL = srv.URL
			config.Waits.NetworkIdleTimeout = "2s"
			// Selector defaults normally come from the loader
			rc := tt.role
			rc.EmailSelector = `input[type='email']`
			rc.PasswordSelector = `input[type='password']`
			rc.SubmitSelector = `button[type='submit']`
			config.Auth.Roles["admin"] = rc

			s := newSession(t, config)
			err := LoginAs(s, config, "admin", arbor.NewLogger())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}
