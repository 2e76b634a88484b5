// Package auth signs the browser in as a named role from the suite config.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/widgetcheck/internal/browser"
	"github.com/ternarybob/widgetcheck/internal/common"
)

var (
	// ErrUnknownRole is returned when the role has no [auth.roles.<name>] entry
	ErrUnknownRole = errors.New("unknown auth role")

	// ErrNoCredentials is returned when a role has neither a session cookie nor email and password
	ErrNoCredentials = errors.New("no credentials configured")
)

// credentialsHint names the environment variables that configure the admin role
const credentialsHint = "set WIDGETCHECK_ADMIN_COOKIE (name=value) or WIDGETCHECK_ADMIN_EMAIL and WIDGETCHECK_ADMIN_PASSWORD"

// ResolveRole returns the credentials configured for role
func ResolveRole(config *common.Config, role string) (common.RoleConfig, error) {
	rc, ok := config.Auth.Roles[role]
	if !ok {
		known := make([]string, 0, len(config.Auth.Roles))
		for name := range config.Auth.Roles {
			known = append(known, name)
		}
		sort.Strings(known)
		if len(known) == 0 {
			return common.RoleConfig{}, fmt.Errorf("%w %q (no roles configured, %s)", ErrUnknownRole, role, credentialsHint)
		}
		return common.RoleConfig{}, fmt.Errorf("%w %q (configured: %s)", ErrUnknownRole, role, strings.Join(known, ", "))
	}
	if !rc.UsesCookie() && !rc.UsesForm() {
		return common.RoleConfig{}, fmt.Errorf("%w for role %q, %s", ErrNoCredentials, role, credentialsHint)
	}
	return rc, nil
}

// LoginAs authenticates the session as role. Cookie roles get their session
// cookie injected, form roles sign in through the login page.
func LoginAs(s *browser.Session, config *common.Config, role string, logger arbor.ILogger) error {
	rc, err := ResolveRole(config, role)
	if err != nil {
		return err
	}
	if logger == nil {
		logger = common.GetLogger()
	}

	if rc.UsesCookie() {
		if err := injectSessionCookie(s.Ctx, config, rc); err != nil {
			return fmt.Errorf("login as %s: %w", role, err)
		}
		if err := s.Navigate(config.URL("/")); err != nil {
			return fmt.Errorf("login as %s: %w", role, err)
		}
	} else {
		if err := formLogin(s, config, rc); err != nil {
			return fmt.Errorf("login as %s: %w", role, err)
		}
	}

	loc, err := s.Location()
	if err != nil {
		return fmt.Errorf("login as %s: %w", role, err)
	}
	if OnLoginPage(loc, config.Auth.LoginPath) {
		return fmt.Errorf("login as %s: still on login page %s", role, loc)
	}

	logger.Info().Str("role", role).Str("location", loc).Msg("Authenticated")
	return nil
}

func injectSessionCookie(ctx context.Context, config *common.Config, rc common.RoleConfig) error {
	// Fail on a malformed base URL before the browser does
	host, err := config.TargetHost()
	if err != nil {
		return err
	}
	secure := strings.HasPrefix(config.Target.BaseURL, "https://")

	err = chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookie(rc.SessionCookieName, rc.SessionCookieValue).
			WithURL(config.URL("/")).
			WithPath("/").
			WithHTTPOnly(true).
			WithSecure(secure).
			Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("failed to set session cookie %s for %s: %w", rc.SessionCookieName, host, err)
	}
	return nil
}

func formLogin(s *browser.Session, config *common.Config, rc common.RoleConfig) error {
	if err := s.Navigate(config.URL(config.Auth.LoginPath)); err != nil {
		return err
	}

	if err := s.CSS(rc.EmailSelector).Fill(rc.Email); err != nil {
		return err
	}
	if err := s.CSS(rc.PasswordSelector).Fill(rc.Password); err != nil {
		return err
	}
	if err := s.CSS(rc.SubmitSelector).Click(); err != nil {
		return err
	}

	return waitLeaveLogin(s, config.Auth.LoginPath, config.NetworkIdleTimeout(), config.PollInterval())
}

func waitLeaveLogin(s *browser.Session, loginPath string, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		loc, err := s.Location()
		if err != nil {
			return err
		}
		if !OnLoginPage(loc, loginPath) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("still on %s after %v, check the credentials", loc, timeout)
		}
		select {
		case <-s.Ctx.Done():
			return s.Ctx.Err()
		case <-time.After(interval):
		}
	}
}

// OnLoginPage reports whether location is the login path or below it
func OnLoginPage(location, loginPath string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	path := strings.TrimRight(u.Path, "/")
	login := strings.TrimRight(loginPath, "/")
	return path == login || strings.HasPrefix(path, login+"/")
}
