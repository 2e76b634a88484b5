// Package browser drives a headless Chrome through chromedp and exposes
// Playwright-style locators for the page under test.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/widgetcheck/internal/common"
)

// Session owns one browser tab for the lifetime of a test
type Session struct {
	Ctx        context.Context
	ResultsDir string

	config *common.Config
	logger arbor.ILogger

	// Cleanup functions, executed in reverse order
	cleanup []func()

	// Screenshot counter for sequential naming
	screenshotNum int

	consoleMu     sync.Mutex
	consoleErrors []string
}

// NewSession starts a browser configured from the [browser] section. The
// returned session is bounded by the configured test timeout.
func NewSession(parent context.Context, config *common.Config, resultsDir string, logger arbor.ILogger) (*Session, error) {
	if logger == nil {
		logger = common.GetLogger()
	}

	if resultsDir != "" {
		if err := os.MkdirAll(resultsDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create results directory: %w", err)
		}
	}

	ctx, cancelTimeout := context.WithTimeout(parent, config.TestTimeout())

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, AllocatorOptions(config)...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	s := &Session{
		Ctx:        browserCtx,
		ResultsDir: resultsDir,
		config:     config,
		logger:     logger,
	}

	s.cleanup = append(s.cleanup, cancelTimeout)
	s.cleanup = append(s.cleanup, cancelAlloc)
	s.cleanup = append(s.cleanup, cancelBrowser)
	s.cleanup = append(s.cleanup, func() {
		if err := chromedp.Cancel(browserCtx); err != nil {
			logger.Debug().Err(err).Msg("Browser cancel returned error")
		}
	})

	// Start the browser so failures surface here rather than in the first action
	if err := chromedp.Run(browserCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	chromedp.ListenTarget(browserCtx, s.handleConsoleEvent)

	logger.Debug().
		Bool("headless", config.Browser.Headless).
		Str("results_dir", resultsDir).
		Msg("Browser session started")

	return s, nil
}

// AllocatorOptions builds the exec allocator options for the configured browser
func AllocatorOptions(config *common.Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Browser.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(config.Browser.WindowWidth, config.Browser.WindowHeight),
	)
	if config.Browser.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(config.Browser.ExecPath))
	}
	// Chrome refuses to start its sandbox as root, which is the norm in CI containers
	if os.Geteuid() == 0 {
		opts = append(opts, chromedp.NoSandbox)
	}
	return opts
}

// Close releases the browser and all contexts. Call this with defer.
func (s *Session) Close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
	s.cleanup = nil
}

func (s *Session) handleConsoleEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		if ev.Type != runtime.APITypeError {
			return
		}
		args := make([]string, 0, len(ev.Args))
		for _, arg := range ev.Args {
			if arg.Value != nil {
				args = append(args, string(arg.Value))
			} else if arg.Description != "" {
				args = append(args, arg.Description)
			}
		}
		s.recordConsoleError("console.error: " + strings.Join(args, " "))
	case *runtime.EventExceptionThrown:
		if ev.ExceptionDetails == nil {
			return
		}
		text := ev.ExceptionDetails.Text
		if ev.ExceptionDetails.Exception != nil && ev.ExceptionDetails.Exception.Description != "" {
			text = ev.ExceptionDetails.Exception.Description
		}
		s.recordConsoleError("exception: " + text)
	}
}

func (s *Session) recordConsoleError(msg string) {
	s.consoleMu.Lock()
	s.consoleErrors = append(s.consoleErrors, msg)
	s.consoleMu.Unlock()
	s.logger.Warn().Str("message", msg).Msg("Browser console error")
}

// ConsoleErrors returns console errors and uncaught exceptions seen so far
func (s *Session) ConsoleErrors() []string {
	s.consoleMu.Lock()
	defer s.consoleMu.Unlock()
	out := make([]string, len(s.consoleErrors))
	copy(out, s.consoleErrors)
	return out
}

// Navigate loads url and waits for the document body
func (s *Session) Navigate(url string) error {
	if err := chromedp.Run(s.Ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	s.logger.Debug().Str("url", url).Msg("Navigated")
	return nil
}

// Location returns the current page URL
func (s *Session) Location() (string, error) {
	var loc string
	if err := chromedp.Run(s.Ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return loc, nil
}

// Title returns the current document title
func (s *Session) Title() (string, error) {
	var title string
	if err := chromedp.Run(s.Ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return title, nil
}

// ExpectTitle waits until the document title matches pattern
func (s *Session) ExpectTitle(pattern *regexp.Regexp, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var last string
	for {
		title, err := s.Title()
		if err != nil {
			return err
		}
		if pattern.MatchString(title) {
			return nil
		}
		last = title
		if time.Now().After(deadline) {
			return fmt.Errorf("title %q did not match %s within %v", last, pattern, timeout)
		}
		select {
		case <-s.Ctx.Done():
			return s.Ctx.Err()
		case <-time.After(s.config.PollInterval()):
		}
	}
}

// HTML returns the outer HTML of the document body
func (s *Session) HTML() (string, error) {
	var html string
	if err := chromedp.Run(s.Ctx, chromedp.OuterHTML(`body`, &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page HTML: %w", err)
	}
	return html, nil
}

// Screenshot takes a full page screenshot with a sequential number prefix
func (s *Session) Screenshot(name string) error {
	if s.ResultsDir == "" {
		return nil
	}
	s.screenshotNum++
	path := filepath.Join(s.ResultsDir, fmt.Sprintf("%02d_%s.png", s.screenshotNum, SanitizeName(name)))

	var buf []byte
	if err := chromedp.Run(s.Ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("failed to save screenshot: %w", err)
	}
	return nil
}

// DumpHTML writes the current body HTML next to the screenshots
func (s *Session) DumpHTML(name string) error {
	if s.ResultsDir == "" {
		return nil
	}
	html, err := s.HTML()
	if err != nil {
		return err
	}
	path := filepath.Join(s.ResultsDir, SanitizeName(name)+".html")
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		return fmt.Errorf("failed to save page HTML: %w", err)
	}
	return nil
}

var unsafeName = regexp.MustCompile(`[^a-z0-9._-]+`)

// SanitizeName converts a name to a safe filename format
func SanitizeName(name string) string {
	return strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(name), "_"), "_")
}
