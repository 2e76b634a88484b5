package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/widgetcheck/internal/auth"
	"github.com/ternarybob/widgetcheck/internal/browser"
	"github.com/ternarybob/widgetcheck/internal/common"
	"github.com/ternarybob/widgetcheck/internal/httpclient"
)

const (
	// suiteDir holds the chat settings suite
	suiteDir = "test/ui"

	// defaultConfigFile is the suite config shared with go test runs
	defaultConfigFile = "test/config/setup.toml"

	// adminRole is the role the suite signs in as
	adminRole = "admin"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	baseURL      = flag.String("base-url", "", "Application base URL (overrides config and TEST_SERVER_URL)")
	runPattern   = flag.String("run", "TestChatSettings", "Test name pattern passed to go test -run")
	resultsDir   = flag.String("results", "", "Directory for logs, screenshots and page dumps (overrides config)")
	skipCheck    = flag.Bool("skip-check", false, "Skip the connectivity check")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("widgetcheck version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Startup sequence:
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides
	// 3. Initialize logger
	// 4. Print banner
	if len(configFiles) == 0 {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			configFiles = append(configFiles, defaultConfigFile)
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration files")
		os.Exit(1)
	}

	if *baseURL != "" {
		config.Target.BaseURL = *baseURL
	}
	// Relative results_dir values are relative to the suite directory, where
	// go test runs. The test process gets an absolute path either way.
	switch {
	case *resultsDir != "":
		config.Output.ResultsDir = absPath(*resultsDir)
	case !filepath.IsAbs(config.Output.ResultsDir):
		config.Output.ResultsDir = absPath(filepath.Join(suiteDir, config.Output.ResultsDir))
	}

	if err := config.Validate(); err != nil {
		if errors.Is(err, common.ErrNotConfigured) {
			fmt.Fprintln(os.Stderr, "widgetcheck: no target, pass -base-url or set TEST_SERVER_URL")
		} else {
			fmt.Fprintf(os.Stderr, "widgetcheck: %v\n", err)
		}
		os.Exit(2)
	}
	rc, err := auth.ResolveRole(config, adminRole)
	if err != nil {
		fmt.Fprintf(os.Stderr, "widgetcheck: %v\n", err)
		os.Exit(2)
	}

	logger := common.InitLogger(config)
	common.PrintBanner(config, logger)

	if !*skipCheck {
		if err := preflight(config, rc, logger); err != nil {
			logger.Error().Err(err).Msg("Connectivity check failed")
			os.Exit(1)
		}
	}

	os.Exit(runSuite(config, logger))
}

// preflight checks the target answers and warns when the admin session cookie
// is already rejected
func preflight(config *common.Config, rc common.RoleConfig, logger arbor.ILogger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := browser.VerifyConnectivity(ctx, config)
	if err != nil {
		return err
	}
	logger.Info().
		Str("url", result.URL).
		Int("status", result.Status).
		Str("title", result.Title).
		Msg("Service connectivity verified")

	if !rc.UsesCookie() {
		return nil
	}
	client, err := httpclient.NewHTTPClientWithSession(config, rc, 10*time.Second)
	if err != nil {
		return err
	}
	_, final, err := httpclient.Probe(ctx, client, config.SettingsURL())
	if err != nil {
		return err
	}
	if auth.OnLoginPage(final, config.Auth.LoginPath) {
		logger.Warn().Str("location", final).Msg("Admin session cookie was redirected to login, tests will fail to authenticate")
	}
	return nil
}

// runSuite execs go test for the UI suite and returns its exit code
func runSuite(config *common.Config, logger arbor.ILogger) int {
	startTime := time.Now()

	if err := os.MkdirAll(config.Output.ResultsDir, 0755); err != nil {
		logger.Error().Err(err).Msg("Failed to create results directory")
		return 1
	}
	runLog, err := os.Create(filepath.Join(config.Output.ResultsDir, "runner.log"))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create runner log")
		return 1
	}
	defer runLog.Close()

	args := []string{"test", "./" + suiteDir + "/...", "-run", *runPattern, "-v", "-count=1"}
	cmd := exec.Command("go", args...)
	cmd.Dir = "."
	cmd.Stdout = io.MultiWriter(os.Stdout, runLog)
	cmd.Stderr = io.MultiWriter(os.Stderr, runLog)

	// Pass environment variables to test process with ABSOLUTE paths
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("TEST_SERVER_URL=%s", config.Target.BaseURL),
		fmt.Sprintf("WIDGETCHECK_RESULTS_DIR=%s", config.Output.ResultsDir),
	)
	// The suite loads exactly these files, so it sees the config validated here.
	// An empty value makes it fall back to the same default file.
	paths, err := common.JoinConfigPaths(configFiles)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to resolve config paths")
		return 1
	}
	cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", common.ConfigPathsEnv, paths))

	logger.Info().Str("command", "go "+strings.Join(args, " ")).Msg("Running chat settings suite")
	err = cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			logger.Error().Err(err).Msg("Failed to run go test")
			exitCode = 1
		}
	}

	printSummary(exitCode == 0, time.Since(startTime), config.Output.ResultsDir)
	return exitCode
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func printSummary(passed bool, duration time.Duration, resultsDir string) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("TEST SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %.2fs\n", duration.Seconds())
	fmt.Printf("Results:  %s\n", resultsDir)

	if passed {
		fmt.Println("\n✓ ALL TESTS PASSED")
	} else {
		fmt.Println("\n✗ SOME TESTS FAILED")
	}
}
