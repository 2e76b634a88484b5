// uitest_context.go - Shared UI test context for the chat settings suite
// NOTE: This is NOT a test file - it contains shared test infrastructure.

package ui

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/widgetcheck/internal/apiverifier"
	"github.com/ternarybob/widgetcheck/internal/auth"
	"github.com/ternarybob/widgetcheck/internal/browser"
	"github.com/ternarybob/widgetcheck/internal/common"
	"github.com/ternarybob/widgetcheck/internal/pages"
)

// suiteConfigFile is shared by every suite under test/
const suiteConfigFile = "../config/setup.toml"

// AdminRole is the role every chat settings test signs in as
const AdminRole = "admin"

// testMainOutput captures the TestMain output for inclusion in each test.log
var testMainOutput bytes.Buffer

// suiteDirectories maps base/suite to its timestamped run directory
var (
	suiteDirectories      = make(map[string]string)
	suiteDirectoriesMutex sync.Mutex
)

// UITestContext holds the per-test browser, capture and page object
type UITestContext struct {
	T          *testing.T
	Config     *common.Config
	Session    *browser.Session
	Verifier   *apiverifier.Verifier
	Page       *pages.ChatSettingsPage
	ResultsDir string
	Logger     arbor.ILogger

	testLog *os.File
	started time.Time

	// Internal cleanup functions, executed in reverse order
	cleanup []func()
}

// LoadSuiteConfig loads the files listed in WIDGETCHECK_CONFIG, in order, then
// the environment. Plain go test runs without the variable read
// test/config/setup.toml instead.
func LoadSuiteConfig() (*common.Config, error) {
	config, err := common.LoadFromFiles(suiteConfigPaths()...)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// suiteConfigPaths returns the runner's config files when it set them
func suiteConfigPaths() []string {
	if value := os.Getenv(common.ConfigPathsEnv); value != "" {
		return common.SplitConfigPaths(value)
	}
	if _, err := os.Stat(suiteConfigFile); err == nil {
		return []string{suiteConfigFile}
	}
	return nil
}

// NewUITestContext runs the shared setup of every chat settings test: start
// API capture, sign in as admin, open /settings/chat and wait for the network
// to go idle. The test is skipped when no target is configured.
func NewUITestContext(t *testing.T) *UITestContext {
	t.Helper()

	config, err := LoadSuiteConfig()
	if errors.Is(err, common.ErrNotConfigured) {
		t.Skipf("Skipping chat settings UI test: %v", err)
	}
	if err != nil {
		t.Fatalf("Failed to load suite config: %v", err)
	}

	resultsDir, err := testResultsDir(config.Output.ResultsDir, t.Name())
	if err != nil {
		t.Fatalf("Failed to create results directory: %v", err)
	}

	testLog, err := os.Create(filepath.Join(resultsDir, "test.log"))
	if err != nil {
		t.Fatalf("Failed to create test log file: %v", err)
	}

	logger := common.GetLogger().WithCorrelationId(common.NewRunID())

	utc := &UITestContext{
		T:          t,
		Config:     config,
		ResultsDir: resultsDir,
		Logger:     logger,
		testLog:    testLog,
		started:    time.Now(),
	}
	utc.cleanup = append(utc.cleanup, func() { testLog.Close() })

	if testMainOutput.Len() > 0 {
		testLog.WriteString("=== TEST MAIN OUTPUT ===\n")
		testLog.Write(testMainOutput.Bytes())
		testLog.WriteString("========================\n\n")
	}

	utc.Log("=== RUN %s", t.Name())
	utc.Log("Target: %s", config.SettingsURL())
	utc.Log("Results directory: %s", resultsDir)

	session, err := browser.NewSession(t.Context(), config, resultsDir, logger)
	if err != nil {
		utc.fatalSetup("start browser", err)
	}
	utc.Session = session
	utc.cleanup = append(utc.cleanup, session.Close)

	utc.Verifier = apiverifier.New(logger)
	if err := utc.Verifier.StartCapturing(session.Ctx); err != nil {
		utc.fatalSetup("start API capture", err)
	}

	if err := auth.LoginAs(session, config, AdminRole, logger); err != nil {
		utc.fatalSetup("authenticate", err)
	}

	utc.Page = pages.NewChatSettingsPage(session, config, utc.Verifier, logger)
	if err := utc.Page.Open(); err != nil {
		utc.fatalSetup("open chat settings", err)
	}

	return utc
}

func (utc *UITestContext) fatalSetup(step string, err error) {
	utc.T.Helper()
	utc.T.Errorf("Failed to %s: %v", step, err)
	utc.Cleanup()
	utc.T.FailNow()
}

// Cleanup writes failure artifacts and the test result, then releases all
// resources. Call this with defer.
func (utc *UITestContext) Cleanup() {
	if utc.cleanup == nil {
		return
	}

	if utc.Verifier != nil {
		// Failed background calls are reported, not fatal
		if err := utc.Verifier.VerifyNoFailedCalls(); err != nil {
			utc.Logger.Warn().Err(err).Msg("API calls failed during test")
			utc.Log("WARNING: %v", err)
		}
	}

	if utc.T.Failed() {
		utc.captureFailure("failure")
	}

	elapsed := time.Since(utc.started)
	if utc.T.Failed() {
		utc.Log("--- FAIL: %s (%.2fs)", utc.T.Name(), elapsed.Seconds())
		utc.Log("=== TEST RESULT: FAIL ===")
	} else {
		utc.Log("--- PASS: %s (%.2fs)", utc.T.Name(), elapsed.Seconds())
		utc.Log("=== TEST RESULT: PASS ===")
	}

	for i := len(utc.cleanup) - 1; i >= 0; i-- {
		utc.cleanup[i]()
	}
	utc.cleanup = nil
}

// captureFailure saves a screenshot and the page HTML, plus any console errors
func (utc *UITestContext) captureFailure(name string) {
	if utc.Session == nil {
		return
	}
	if err := utc.Session.Screenshot(name); err != nil {
		utc.Log("Failed to capture screenshot: %v", err)
	}
	if err := utc.Session.DumpHTML(name); err != nil {
		utc.Log("Failed to dump page HTML: %v", err)
	}
	if loc, err := utc.Session.Location(); err == nil {
		utc.Log("Page at failure: %s", loc)
	}
	for _, msg := range utc.Session.ConsoleErrors() {
		utc.Log("Browser console: %s", msg)
	}
}

// Log writes a message to test.log and the test output
func (utc *UITestContext) Log(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if utc.testLog != nil {
		fmt.Fprintf(utc.testLog, "[%s] %s\n", time.Now().Format("15:04:05"), msg)
	}
	utc.T.Log(msg)
}

// Screenshot takes a numbered full page screenshot, logging rather than failing on error
func (utc *UITestContext) Screenshot(name string) {
	if err := utc.Session.Screenshot(name); err != nil {
		utc.Log("Failed to capture screenshot %s: %v", name, err)
	}
}

// Step logs a test step, takes a screenshot after it and returns its error
func (utc *UITestContext) Step(name string, fn func() error) error {
	utc.Log("Step: %s", name)
	err := fn()
	if err != nil {
		utc.Log("Step %s failed: %v", name, err)
		return err
	}
	utc.Screenshot(name)
	return nil
}

// testResultsDir returns <base>/ui/<suite>-<timestamp>/<test>, creating it
func testResultsDir(base, testName string) (string, error) {
	runDir, err := suiteRunDir(filepath.Join(base, "ui"), extractSuiteName(testName))
	if err != nil {
		return "", err
	}
	dir := filepath.Join(runDir, browser.SanitizeName(testName))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create test directory: %w", err)
	}
	return dir, nil
}

// extractSuiteName is the lowercased first word of a test name after "Test",
// so "TestChatSettingsHostURL" belongs to suite "chat"
func extractSuiteName(testName string) string {
	name, _, _ := strings.Cut(strings.TrimPrefix(testName, "Test"), "/")
	if end := strings.IndexFunc(name[min(1, len(name)):], unicode.IsUpper); end >= 0 {
		name = name[:end+1]
	}
	return strings.ToLower(name)
}

// suiteRunDir returns the timestamped directory shared by every test of suite
// under base in this process
func suiteRunDir(base, suite string) (string, error) {
	suiteDirectoriesMutex.Lock()
	defer suiteDirectoriesMutex.Unlock()

	key := filepath.Join(base, suite)
	if dir, ok := suiteDirectories[key]; ok {
		return dir, nil
	}

	dir := fmt.Sprintf("%s-%s", key, time.Now().Format("20060102-150405"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create suite directory: %w", err)
	}
	suiteDirectories[key] = dir
	return dir, nil
}
