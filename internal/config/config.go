package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort            = 8000
	DefaultShutdownTimeout = 5 * time.Second
	envPrefix              = "DEVSERVER_"
)

var (
	ErrInvalidPort     = errors.New("invalid port")
	ErrUnsupportedFile = errors.New("unsupported config file type")
)

// DefaultFallbackPorts are tried in order when the requested port is busy
var DefaultFallbackPorts = []int{8080, 8888, 3000, 5000}

// Config is resolved once at startup and not modified afterwards
type Config struct {
	Host            string            `toml:"host" yaml:"host"`
	Port            int               `toml:"port" yaml:"port"`
	Root            string            `toml:"root" yaml:"root"`
	OpenBrowser     bool              `toml:"open_browser" yaml:"open_browser"`
	FallbackPorts   []int             `toml:"fallback_ports" yaml:"fallback_ports"`
	MIMETypes       map[string]string `toml:"mime_types" yaml:"mime_types"`
	AccessDB        string            `toml:"access_db" yaml:"access_db"`
	LogLevel        string            `toml:"log_level" yaml:"log_level"`
	ShutdownTimeout time.Duration     `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Port:            DefaultPort,
		OpenBrowser:     true,
		FallbackPorts:   append([]int(nil), DefaultFallbackPorts...),
		LogLevel:        "info",
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// Candidates returns the requested port followed by the fallback ports, without duplicates
func (c *Config) Candidates() []int {
	ports := []int{c.Port}
	seen := map[int]bool{c.Port: true}
	for _, p := range c.FallbackPorts {
		if seen[p] {
			continue
		}
		seen[p] = true
		ports = append(ports, p)
	}
	return ports
}

// Load builds the configuration from, in increasing precedence: defaults,
// config file, environment, command line.
func Load(args []string, getenv func(string) string, stderr io.Writer) (*Config, error) {
	fs := flag.NewFlagSet("devserver", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: devserver [flags] [port]\n\n")
		fs.PrintDefaults()
	}

	dir := fs.String("dir", "", "directory to serve (default: directory of the executable)")
	host := fs.String("host", "", "interface to bind (default: all interfaces)")
	configPath := fs.String("config", "", "path to a .toml or .yaml config file")
	noBrowser := fs.Bool("no-browser", false, "do not open a browser tab after binding")
	noFallback := fs.Bool("no-fallback", false, "fail instead of trying fallback ports")
	accessDB := fs.String("access-db", "", "record requests to this SQLite database")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return nil, fmt.Errorf("expected at most one positional argument, got %d", fs.NArg())
	}

	cfg := Default()

	path := *configPath
	if path == "" {
		path = getenv(envPrefix + "CONFIG")
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["dir"] {
		cfg.Root = *dir
	}
	if set["host"] {
		cfg.Host = *host
	}
	if *noBrowser {
		cfg.OpenBrowser = false
	}
	if *noFallback {
		cfg.FallbackPorts = nil
	}
	if set["access-db"] {
		cfg.AccessDB = *accessDB
	}
	if set["log-level"] {
		cfg.LogLevel = *logLevel
	}
	if fs.NArg() == 1 {
		port, err := ParsePort(fs.Arg(0))
		if err != nil {
			return nil, err
		}
		cfg.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.resolveRoot(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile overlays the settings found in a TOML or YAML file
func (c *Config) LoadFile(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, c); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}

	// relative roots are relative to the config file
	if c.Root != "" && !filepath.IsAbs(c.Root) {
		c.Root = filepath.Join(filepath.Dir(path), c.Root)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(envPrefix + "PORT"); v != "" {
		port, err := ParsePort(v)
		if err != nil {
			return fmt.Errorf("%sPORT: %w", envPrefix, err)
		}
		c.Port = port
	}
	if v := getenv(envPrefix + "ROOT"); v != "" {
		c.Root = v
	}
	if v := getenv(envPrefix + "HOST"); v != "" {
		c.Host = v
	}
	if v := getenv(envPrefix + "OPEN_BROWSER"); v != "" {
		open, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sOPEN_BROWSER: %w", envPrefix, err)
		}
		c.OpenBrowser = open
	}
	if v := getenv(envPrefix + "ACCESS_DB"); v != "" {
		c.AccessDB = v
	}
	if v := getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate checks port numbers and durations
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	for _, p := range c.FallbackPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("%w: fallback port %d", ErrInvalidPort, p)
		}
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must not be negative, got %s", c.ShutdownTimeout)
	}
	return nil
}

func (c *Config) resolveRoot() error {
	if c.Root == "" {
		c.Root = DefaultRoot()
	}

	abs, err := filepath.Abs(c.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve directory %s: %w", c.Root, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("failed to access directory %s: %w", abs, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", abs)
	}

	c.Root = abs
	return nil
}

// ParsePort parses a decimal TCP port number
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || port < 0 || port > 65535 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, s)
	}
	return port, nil
}

// DefaultRoot is the directory holding the executable. Binaries built by
// `go run` live in the temp dir, so the working directory is used instead.
func DefaultRoot() string {
	wd, _ := os.Getwd()

	exe, err := os.Executable()
	if err != nil {
		return wd
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}

	dir := filepath.Dir(exe)
	tmp := os.TempDir()
	if resolved, err := filepath.EvalSymlinks(tmp); err == nil {
		tmp = resolved
	}
	if rel, err := filepath.Rel(tmp, dir); err == nil && !strings.HasPrefix(rel, "..") {
		return wd
	}
	return dir
}
