package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/ternarybob/widgetcheck/internal/common"
)

// NewDefaultHTTPClient creates a simple HTTP client with a timeout
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// NewHTTPClientWithSession creates an HTTP client whose cookie jar carries the
// role's session cookie for the target host. Roles without a cookie get a
// plain client.
func NewHTTPClientWithSession(config *common.Config, rc common.RoleConfig, timeout time.Duration) (*http.Client, error) {
	if !rc.UsesCookie() {
		return NewDefaultHTTPClient(timeout), nil
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	baseURL, err := url.Parse(config.Target.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	jar.SetCookies(baseURL, []*http.Cookie{{
		Name:     rc.SessionCookieName,
		Value:    rc.SessionCookieValue,
		Path:     "/",
		Secure:   baseURL.Scheme == "https",
		HttpOnly: true,
	}})

	return &http.Client{
		Jar:     jar,
		Timeout: timeout,
	}, nil
}

// Probe issues a GET and returns the final status code after redirects along
// with the URL that produced it
func Probe(ctx context.Context, client *http.Client, target string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, "", fmt.Errorf("failed to build request for %s: %w", target, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("service not accessible at %s: %w", target, err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, resp.Request.URL.String(), nil
}
