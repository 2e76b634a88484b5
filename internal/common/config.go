package common

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// ErrNotConfigured is returned when no target application URL is available.
var ErrNotConfigured = errors.New("target base_url is not configured (set TEST_SERVER_URL or [target].base_url)")

// Config represents the suite configuration
type Config struct {
	Target  TargetConfig  `toml:"target"`
	Browser BrowserConfig `toml:"browser"`
	Waits   WaitsConfig   `toml:"waits"`
	Auth    AuthConfig    `toml:"auth"`
	Logging LoggingConfig `toml:"logging"`
	Output  OutputConfig  `toml:"output"`
}

// TargetConfig describes the application under test
type TargetConfig struct {
	BaseURL      string `toml:"base_url" validate:"required,url"`
	SettingsPath string `toml:"settings_path" validate:"required,startswith=/"`
	TitlePattern string `toml:"title_pattern" validate:"required"`
}

type BrowserConfig struct {
	Headless     bool   `toml:"headless"`
	WindowWidth  int    `toml:"window_width" validate:"gte=320"`
	WindowHeight int    `toml:"window_height" validate:"gte=240"`
	ExecPath     string `toml:"exec_path"`    // Optional Chrome binary, chromedp searches PATH when empty
	TestTimeout  string `toml:"test_timeout" validate:"required,duration"`
}

// WaitsConfig holds the fixed UI feedback timeouts, all Go duration strings
type WaitsConfig struct {
	SavedTimeout       string `toml:"saved_timeout" validate:"required,duration"`
	ElementTimeout     string `toml:"element_timeout" validate:"required,duration"`
	NetworkIdleQuiet   string `toml:"network_idle_quiet" validate:"required,duration"`
	NetworkIdleTimeout string `toml:"network_idle_timeout" validate:"required,duration"`
	PollInterval       string `toml:"poll_interval" validate:"required,duration"`
}

type AuthConfig struct {
	LoginPath string                `toml:"login_path" validate:"required,startswith=/"`
	Roles     map[string]RoleConfig `toml:"roles" validate:"dive"`
}

// RoleConfig holds credentials for one named role. Cookie injection takes
// priority over form login when both are present.
type RoleConfig struct {
	SessionCookieName  string `toml:"session_cookie_name" validate:"required_with=SessionCookieValue"`
	SessionCookieValue string `toml:"session_cookie_value"`
	Email              string `toml:"email" validate:"omitempty,email"`
	Password           string `toml:"password" validate:"required_with=Email"`
	EmailSelector      string `toml:"email_selector"`
	PasswordSelector   string `toml:"password_selector"`
	SubmitSelector     string `toml:"submit_selector"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output []string `toml:"output" validate:"dive,oneof=console stdout file"`
}

type OutputConfig struct {
	ResultsDir string `toml:"results_dir" validate:"required"`
}

// UsesCookie reports whether the role authenticates by cookie injection
func (r RoleConfig) UsesCookie() bool {
	return r.SessionCookieName != "" && r.SessionCookieValue != ""
}

// UsesForm reports whether the role authenticates through the login form
func (r RoleConfig) UsesForm() bool {
	return r.Email != "" && r.Password != ""
}

// NewDefaultConfig returns the configuration used when no file overrides a value
func NewDefaultConfig() *Config {
	return &Config{
		Target: TargetConfig{
			SettingsPath: "/settings/chat",
			TitlePattern: "Settings",
		},
		Browser: BrowserConfig{
			Headless:     true,
			WindowWidth:  1920,
			WindowHeight: 1080,
			TestTimeout:  "2m",
		},
		Waits: WaitsConfig{
			SavedTimeout:       "10s",
			ElementTimeout:     "5s",
			NetworkIdleQuiet:   "500ms",
			NetworkIdleTimeout: "30s",
			PollInterval:       "100ms",
		},
		Auth: AuthConfig{
			LoginPath: "/login",
			Roles:     map[string]RoleConfig{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"console"},
		},
		Output: OutputConfig{
			ResultsDir: "results",
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files. Missing paths are an error, empty paths are skipped.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)
	applyRoleDefaults(config)

	return config, nil
}

// ConfigPathsEnv carries the runner's ordered config files to the go test process
const ConfigPathsEnv = "WIDGETCHECK_CONFIG"

// JoinConfigPaths makes paths absolute and joins them in order with the OS
// path list separator, the value ConfigPathsEnv expects
func JoinConfigPaths(paths []string) (string, error) {
	abs := make([]string, 0, len(paths))
	for _, path := range paths {
		if path == "" {
			continue
		}
		p, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to resolve config path %s: %w", path, err)
		}
		abs = append(abs, p)
	}
	return strings.Join(abs, string(os.PathListSeparator)), nil
}

// SplitConfigPaths is the inverse of JoinConfigPaths. Empty entries are dropped.
func SplitConfigPaths(value string) []string {
	var paths []string
	for _, path := range filepath.SplitList(value) {
		if path = strings.TrimSpace(path); path != "" {
			paths = append(paths, path)
		}
	}
	return paths
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if baseURL := os.Getenv("TEST_SERVER_URL"); baseURL != "" {
		config.Target.BaseURL = baseURL
	}

	if headless := os.Getenv("WIDGETCHECK_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if execPath := os.Getenv("WIDGETCHECK_CHROME_PATH"); execPath != "" {
		config.Browser.ExecPath = execPath
	}

	if level := os.Getenv("WIDGETCHECK_LOG_LEVEL"); level != "" {
		config.Logging.Level = strings.ToLower(level)
	}
	if dir := os.Getenv("WIDGETCHECK_RESULTS_DIR"); dir != "" {
		config.Output.ResultsDir = dir
	}

	// Admin credentials are the common case for CI secrets
	email := os.Getenv("WIDGETCHECK_ADMIN_EMAIL")
	password := os.Getenv("WIDGETCHECK_ADMIN_PASSWORD")
	cookie := os.Getenv("WIDGETCHECK_ADMIN_COOKIE")
	if email == "" && password == "" && cookie == "" {
		return
	}

	if config.Auth.Roles == nil {
		config.Auth.Roles = map[string]RoleConfig{}
	}
	admin := config.Auth.Roles["admin"]
	if email != "" {
		admin.Email = email
	}
	if password != "" {
		admin.Password = password
	}
	if cookie != "" {
		// name=value
		name, value, found := strings.Cut(cookie, "=")
		if found {
			admin.SessionCookieName = strings.TrimSpace(name)
			admin.SessionCookieValue = strings.TrimSpace(value)
		}
	}
	config.Auth.Roles["admin"] = admin
}

func applyRoleDefaults(config *Config) {
	for name, role := range config.Auth.Roles {
		if role.EmailSelector == "" {
			role.EmailSelector = `input[type='email']`
		}
		if role.PasswordSelector == "" {
			role.PasswordSelector = `input[type='password']`
		}
		if role.SubmitSelector == "" {
			role.SubmitSelector = `button[type='submit']`
		}
		config.Auth.Roles[name] = role
	}
}

var configValidator = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})
	return v
}

// Validate checks the configuration. A missing base URL is reported as ErrNotConfigured
// so suites can skip instead of fail.
func (c *Config) Validate() error {
	if c.Target.BaseURL == "" {
		return ErrNotConfigured
	}

	if err := configValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	for name, role := range c.Auth.Roles {
		if !role.UsesCookie() && !role.UsesForm() {
			return fmt.Errorf("invalid config: role %q needs a session cookie or email and password", name)
		}
	}

	return nil
}

// URL joins a path onto the target base URL
func (c *Config) URL(path string) string {
	return strings.TrimRight(c.Target.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// SettingsURL returns the absolute URL of the chat settings page
func (c *Config) SettingsURL() string {
	return c.URL(c.Target.SettingsPath)
}

// TargetHost returns the host name of the base URL, used as the cookie domain
func (c *Config) TargetHost() (string, error) {
	u, err := url.Parse(c.Target.BaseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse base_url: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("base_url %q has no host", c.Target.BaseURL)
	}
	return u.Hostname(), nil
}

// Durations parsed from the [browser] and [waits] sections. Values are
// validated by Validate, unparsable values fall back to zero.
func (c *Config) TestTimeout() time.Duration        { return mustDuration(c.Browser.TestTimeout) }
func (c *Config) SavedTimeout() time.Duration       { return mustDuration(c.Waits.SavedTimeout) }
func (c *Config) ElementTimeout() time.Duration     { return mustDuration(c.Waits.ElementTimeout) }
func (c *Config) NetworkIdleQuiet() time.Duration   { return mustDuration(c.Waits.NetworkIdleQuiet) }
func (c *Config) NetworkIdleTimeout() time.Duration { return mustDuration(c.Waits.NetworkIdleTimeout) }
func (c *Config) PollInterval() time.Duration       { return mustDuration(c.Waits.PollInterval) }

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
