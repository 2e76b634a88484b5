package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/widgetcheck/internal/common"
)

func TestProbeFollowsRedirectsWithSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/settings/chat", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err != nil || c.Value != "tok" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	config := common.NewDefaultConfig()
	config.Target.BaseURL = srv.URL
	ctx := context.Background()

	status, final, err := Probe(ctx, NewDefaultHTTPClient(time.Second), config.SettingsURL())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, srv.URL+"/login", final)

	client, err := NewHTTPClientWithSession(config, common.RoleConfig{SessionCookieName: "session", SessionCookieValue: "tok"}, time.Second)
	require.NoError(t, err)
	require.NotNil(t, client.Jar)

	status, final, err = Probe(ctx, client, config.SettingsURL())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, srv.URL+"/settings/chat", final)
}

func TestNewHTTPClientWithSessionWithoutCookie(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Target.BaseURL = "http://localhost:3000"

	client, err := NewHTTPClientWithSession(config, common.RoleConfig{Email: "a@example.com", Password: "x"}, time.Second)
	require.NoError(t, err)
	assert.Nil(t, client.Jar)
	assert.Equal(t, time.Second, client.Timeout)
}

func TestProbeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL
	srv.Close()

	_, _, err := Probe(context.Background(), NewDefaultHTTPClient(time.Second), target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service not accessible at "+target)
}
