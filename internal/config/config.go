// Package config provides layered configuration loading.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
)

// Config holds the resolved configuration.
type Config struct {
	// Provider settings
	APIURL          string `json:"api_url"`
	ControlPanelURL string `json:"control_panel_url"`

	// Provider credentials. Usually kept in the credential store instead.
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`

	// Storage settings
	Store       string `json:"store"`
	DatabaseURL string `json:"database_url,omitempty"`
	RedisURL    string `json:"redis_url,omitempty"`

	// Cache settings
	CacheDir     string `json:"cache_dir"`
	CacheBackend string `json:"cache_backend"`

	// Notifications
	Events string `json:"events"`

	// Site defaults
	DefaultLocation      int    `json:"default_location"`
	DefaultAdminUsername string `json:"default_admin_username"`
	AccessTokenTTL       int    `json:"access_token_ttl"`

	// Collaborator server
	ListenAddr   string `json:"listen_addr"`
	ServerSecret string `json:"server_secret,omitempty"`

	// Output settings
	Format  string `json:"format"`
	Verbose bool   `json:"verbose"`

	// Sources tracks where each value came from (for debugging).
	Sources map[string]string `json:"-"`
}

// Source indicates where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceSystem  Source = "system"
	SourceGlobal  Source = "global"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
	SourcePrompt  Source = "prompt"
)

// Backend names accepted by the store, cache_backend, and events keys.
var (
	StoreBackends = []string{"keyring", "file", "sqlite", "postgres", "redis", "memory"}
	CacheBackends = []string{"file", "memory", "redis"}
	EventBackends = []string{"none", "memory", "redis"}
	Formats       = []string{"auto", "json", "styled", "text", "quiet", "ids"}
)

// Defaults for provider settings.
const (
	DefaultAPIURL          = "https://api.rocket.net/v1/"
	DefaultControlPanelURL = "https://my.rocket.net"
	DefaultLocation        = 21
	DefaultAdminUsername   = "admin"
	DefaultAccessTokenTTL  = 400
	DefaultListenAddr      = "127.0.0.1:8780"
)

// FlagOverrides holds command-line flag values.
type FlagOverrides struct {
	APIURL   string
	Store    string
	CacheDir string
	Format   string
	Verbose  bool
}

// Default returns the default configuration.
func Default() *Config {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}

	return &Config{
		APIURL:               DefaultAPIURL,
		ControlPanelURL:      DefaultControlPanelURL,
		Store:                "keyring",
		CacheDir:             filepath.Join(cacheDir, "rocketctl"),
		CacheBackend:         "file",
		Events:               "none",
		DefaultLocation:      DefaultLocation,
		DefaultAdminUsername: DefaultAdminUsername,
		AccessTokenTTL:       DefaultAccessTokenTTL,
		ListenAddr:           DefaultListenAddr,
		Format:               "auto",
		Sources:              make(map[string]string),
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence: flags > env > global > system > defaults
func Load(overrides FlagOverrides) (*Config, error) {
	cfg := Default()

	loadFromFile(cfg, systemConfigPath(), SourceSystem)
	loadFromFile(cfg, GlobalConfigPath(), SourceGlobal)

	LoadFromEnv(cfg)
	ApplyOverrides(cfg, overrides)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readFile parses a config file that may contain comments and trailing commas.
func readFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is from trusted config locations
	if err != nil {
		return nil, err
	}
	fileCfg := make(map[string]any)
	if len(strings.TrimSpace(string(data))) == 0 {
		return fileCfg, nil
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &fileCfg); err != nil {
		return nil, err
	}
	return fileCfg, nil
}

func loadFromFile(cfg *Config, path string, source Source) {
	fileCfg, err := readFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "warning: skipping malformed config at %s: %v\n", path, err)
		}
		return
	}

	for _, key := range Keys() {
		v, ok := fileCfg[key]
		if !ok || v == nil {
			continue
		}
		if err := cfg.set(key, v); err != nil {
			fmt.Fprintf(os.Stderr, "warning: ignoring %s from %s config at %s: %v\n", key, source, path, err)
			continue
		}
		cfg.Sources[key] = string(source)
	}
}

// envKeys maps environment variables to config keys.
var envKeys = map[string]string{
	"ROCKET_API_URL":                "api_url",
	"ROCKET_CONTROL_PANEL_URL":      "control_panel_url",
	"ROCKET_EMAIL":                  "email",
	"ROCKET_PASSWORD":               "password",
	"ROCKET_STORE":                  "store",
	"ROCKET_DATABASE_URL":           "database_url",
	"ROCKET_REDIS_URL":              "redis_url",
	"ROCKET_CACHE_DIR":              "cache_dir",
	"ROCKET_CACHE_BACKEND":          "cache_backend",
	"ROCKET_EVENTS":                 "events",
	"ROCKET_DEFAULT_LOCATION":       "default_location",
	"ROCKET_DEFAULT_ADMIN_USERNAME": "default_admin_username",
	"ROCKET_ACCESS_TOKEN_TTL":       "access_token_ttl",
	"ROCKET_LISTEN_ADDR":            "listen_addr",
	"ROCKET_SERVER_SECRET":          "server_secret",
	"ROCKET_FORMAT":                 "format",
	"ROCKET_DEBUG":                  "verbose",
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv(cfg *Config) {
	names := make([]string, 0, len(envKeys))
	for name := range envKeys {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		key := envKeys[name]
		if err := cfg.set(key, v); err != nil {
			fmt.Fprintf(os.Stderr, "warning: ignoring %s: %v\n", name, err)
			continue
		}
		cfg.Sources[key] = string(SourceEnv)
	}
}

// ApplyOverrides applies non-empty flag overrides to cfg.
func ApplyOverrides(cfg *Config, o FlagOverrides) {
	if o.APIURL != "" {
		cfg.APIURL = o.APIURL
		cfg.Sources["api_url"] = string(SourceFlag)
	}
	if o.Store != "" {
		cfg.Store = o.Store
		cfg.Sources["store"] = string(SourceFlag)
	}
	if o.CacheDir != "" {
		cfg.CacheDir = o.CacheDir
		cfg.Sources["cache_dir"] = string(SourceFlag)
	}
	if o.Format != "" {
		cfg.Format = o.Format
		cfg.Sources["format"] = string(SourceFlag)
	}
	if o.Verbose {
		cfg.Verbose = true
		cfg.Sources["verbose"] = string(SourceFlag)
	}
}

// Validate checks enumerated settings and backend requirements.
func (cfg *Config) Validate() error {
	if err := cfg.validateEnums(); err != nil {
		return err
	}
	if cfg.Store == "postgres" && cfg.DatabaseURL == "" {
		return fmt.Errorf("store %q requires database_url", cfg.Store)
	}
	return nil
}

func (cfg *Config) validateEnums() error {
	if !slices.Contains(StoreBackends, cfg.Store) {
		return fmt.Errorf("invalid store %q (valid: %s)", cfg.Store, strings.Join(StoreBackends, ", "))
	}
	if !slices.Contains(CacheBackends, cfg.CacheBackend) {
		return fmt.Errorf("invalid cache_backend %q (valid: %s)", cfg.CacheBackend, strings.Join(CacheBackends, ", "))
	}
	if !slices.Contains(EventBackends, cfg.Events) {
		return fmt.Errorf("invalid events %q (valid: %s)", cfg.Events, strings.Join(EventBackends, ", "))
	}
	if !slices.Contains(Formats, strings.ToLower(cfg.Format)) {
		return fmt.Errorf("invalid format %q (valid: %s)", cfg.Format, strings.Join(Formats, ", "))
	}
	return nil
}

// HasCredentials reports whether both provider credentials are configured.
func (cfg *Config) HasCredentials() bool {
	return cfg.Email != "" && cfg.Password != ""
}

// Keys returns every settable config key in display order.
func Keys() []string {
	return []string{
		"api_url", "control_panel_url", "email", "password",
		"store", "database_url", "redis_url",
		"cache_dir", "cache_backend", "events",
		"default_location", "default_admin_username", "access_token_ttl",
		"listen_addr", "server_secret", "format", "verbose",
	}
}

// Secret reports whether a key holds a secret that must be masked on display.
func Secret(key string) bool {
	return key == "password" || key == "server_secret"
}

// Get returns the display value of a key.
func (cfg *Config) Get(key string) string {
	switch key {
	case "api_url":
		return cfg.APIURL
	case "control_panel_url":
		return cfg.ControlPanelURL
	case "email":
		return cfg.Email
	case "password":
		return cfg.Password
	case "store":
		return cfg.Store
	case "database_url":
		return cfg.DatabaseURL
	case "redis_url":
		return cfg.RedisURL
	case "cache_dir":
		return cfg.CacheDir
	case "cache_backend":
		return cfg.CacheBackend
	case "events":
		return cfg.Events
	case "default_location":
		return strconv.Itoa(cfg.DefaultLocation)
	case "default_admin_username":
		return cfg.DefaultAdminUsername
	case "access_token_ttl":
		return strconv.Itoa(cfg.AccessTokenTTL)
	case "listen_addr":
		return cfg.ListenAddr
	case "server_secret":
		return cfg.ServerSecret
	case "format":
		return cfg.Format
	case "verbose":
		return strconv.FormatBool(cfg.Verbose)
	}
	return ""
}

// set assigns a raw value (string from env/flags, or a decoded JSON value).
func (cfg *Config) set(key string, v any) error {
	switch key {
	case "default_location", "access_token_ttl":
		n, err := toInt(v)
		if err != nil {
			return err
		}
		if n <= 0 {
			return fmt.Errorf("must be a positive integer")
		}
		if key == "default_location" {
			cfg.DefaultLocation = n
		} else {
			cfg.AccessTokenTTL = n
		}
		return nil
	case "verbose":
		b, err := toBool(v)
		if err != nil {
			return err
		}
		cfg.Verbose = b
		return nil
	}

	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("must be a string")
	}
	if s == "" {
		return nil
	}
	switch key {
	case "api_url":
		cfg.APIURL = s
	case "control_panel_url":
		cfg.ControlPanelURL = NormalizeBaseURL(s)
	case "email":
		cfg.Email = s
	case "password":
		cfg.Password = s
	case "store":
		cfg.Store = strings.ToLower(s)
	case "database_url":
		cfg.DatabaseURL = s
	case "redis_url":
		cfg.RedisURL = s
	case "cache_dir":
		cfg.CacheDir = s
	case "cache_backend":
		cfg.CacheBackend = strings.ToLower(s)
	case "events":
		cfg.Events = strings.ToLower(s)
	case "default_admin_username":
		cfg.DefaultAdminUsername = s
	case "listen_addr":
		cfg.ListenAddr = s
	case "server_secret":
		cfg.ServerSecret = s
	case "format":
		cfg.Format = s
	default:
		return fmt.Errorf("unknown key %q", key)
	}
	return nil
}

func toInt(v any) (int, error) {
	switch val := v.(type) {
	case float64:
		if val != float64(int(val)) {
			return 0, fmt.Errorf("must be an integer")
		}
		return int(val), nil
	case int:
		return val, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, fmt.Errorf("must be an integer")
		}
		return n, nil
	default:
		return 0, fmt.Errorf("must be an integer")
	}
}

func toBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		switch strings.ToLower(val) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
	}
	return false, fmt.Errorf("must be true/false (or 1/0)")
}

// SetGlobal validates key=value and writes it to the global config file.
// Comments in the existing file are not preserved.
func SetGlobal(key, value string) (string, error) {
	if !slices.Contains(Keys(), key) {
		return "", fmt.Errorf("invalid config key %q (valid: %s)", key, strings.Join(Keys(), ", "))
	}

	probe := Default()
	if err := probe.set(key, value); err != nil {
		return "", fmt.Errorf("%s %w", key, err)
	}
	if err := probe.validateEnums(); err != nil {
		return "", err
	}

	path := GlobalConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	configData, err := readFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		configData = make(map[string]any)
	}

	switch key {
	case "default_location", "access_token_ttl":
		n, _ := strconv.Atoi(value)
		configData[key] = n
	case "verbose":
		b, _ := toBool(value)
		configData[key] = b
	default:
		configData[key] = value
	}

	data, err := json.MarshalIndent(configData, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := AtomicWriteFile(path, append(data, '\n')); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return path, nil
}

// AtomicWriteFile writes data to a file atomically using temp+rename.
// Files are always created with 0600 permissions (owner read/write only).
func AtomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	// Windows: rename fails when destination exists.
	if err := os.Rename(tmpPath, path); err != nil && runtime.GOOS == "windows" {
		_ = os.Remove(path)
		return os.Rename(tmpPath, path)
	} else { //nolint:revive // else-with-return kept for clarity of the two-branch pattern
		return err
	}
}

// Path helpers

func systemConfigPath() string {
	return "/etc/rocketctl/config.json"
}

// GlobalConfigDir returns the global config directory path.
func GlobalConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "rocketctl")
}

// GlobalConfigPath returns the global config file path.
func GlobalConfigPath() string {
	return filepath.Join(GlobalConfigDir(), "config.json")
}

// NormalizeBaseURL ensures consistent URL format (no trailing slash).
func NormalizeBaseURL(url string) string {
	return strings.TrimSuffix(url, "/")
}
