package devops

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DevConfig holds all configuration for the development bootstrap.
type DevConfig struct {
	// Server
	Port       int    `env:"DEVRUN_PORT" yaml:"port" default:"8000"`
	BindHost   string `env:"DEVRUN_BIND_HOST" yaml:"bind_host"`
	DocsPath   string `yaml:"docs_path" default:"/docs"`
	HealthPath string `yaml:"health_path" default:"/healthz"`

	// Application entry reference
	AppName    string   `yaml:"app_name" default:"nameday"`
	AppPackage string   `env:"DEVRUN_APP" yaml:"app_package" default:"./cmd/nameday"`
	AppArgs    []string `yaml:"app_args" default:"serve"`

	// Isolated environment, relative to ProjectDir
	EnvDir string `env:"DEVRUN_ENV_DIR" yaml:"env_dir" default:"venv"`

	// Browser
	OpenBrowser  bool          `env:"DEVRUN_OPEN_BROWSER" yaml:"open_browser" default:"true"`
	BrowserDelay time.Duration `env:"DEVRUN_BROWSER_DELAY" yaml:"browser_delay" default:"2s"`

	// Auto-reload
	Reload         bool          `env:"DEVRUN_RELOAD" yaml:"reload" default:"true"`
	ReloadDebounce time.Duration `yaml:"reload_debounce" default:"300ms"`
	WatchInclude   []string      `yaml:"watch_include" default:"**.go,go.mod,go.sum,**.json"`
	WatchIgnore    []string      `yaml:"watch_ignore" default:".git/**,.devrun/**,node_modules/**,**/node_modules/**"`

	// Lifecycle
	StartupTimeout time.Duration `yaml:"startup_timeout" default:"60s"`
	StopTimeout    time.Duration `yaml:"stop_timeout" default:"10s"`

	// Logging
	LogLevel  string `env:"DEVRUN_LOG_LEVEL" yaml:"log_level" default:"info"`
	LogFormat string `env:"DEVRUN_LOG_FORMAT" yaml:"log_format" default:"text"`

	// Directories
	ProjectDir string `yaml:"-"` // Set at runtime, not from config
	BuildDir   string `yaml:"build_dir" default:".devrun"`

	// Crash restarts in reload mode
	Restart RestartConfig `yaml:"restart"`
}

// RestartConfig bounds automatic restarts of a crashed application.
type RestartConfig struct {
	MaxInWindow int           `yaml:"max_in_window" default:"5"`
	Window      time.Duration `yaml:"window" default:"1m"`
}

// LoadDevConfig loads configuration with the priority:
// code defaults -> config file -> environment.
// ProjectDir defaults to the current working directory, which the path
// resolver has already switched to the bootstrap's own directory.
func LoadDevConfig(configPath string) (*DevConfig, error) {
	cfg := &DevConfig{}
	applyDefaults(cfg)

	if configPath != "" {
		if err := loadYAML(configPath, cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, &ConfigurationError{Path: configPath, Err: err}
			}
		}
	}

	applyEnv(cfg)

	if cfg.ProjectDir == "" {
		dir, err := os.Getwd()
		if err != nil {
			return nil, &ConfigurationError{Err: fmt.Errorf("get working directory: %w", err)}
		}
		cfg.ProjectDir = dir
	}

	cfg.BuildDir = cfg.resolvePath(cfg.BuildDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that cannot produce a working bootstrap.
func (c *DevConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return &ConfigurationError{Err: fmt.Errorf("port %d out of range", c.Port)}
	}
	if strings.TrimSpace(c.EnvDir) == "" {
		return &ConfigurationError{Err: errors.New("env_dir must not be empty")}
	}
	if strings.TrimSpace(c.AppPackage) == "" {
		return &ConfigurationError{Err: errors.New("app_package must not be empty")}
	}
	if !strings.HasPrefix(c.DocsPath, "/") {
		return &ConfigurationError{Err: fmt.Errorf("docs_path %q must start with /", c.DocsPath)}
	}
	return nil
}

// ListenAddr is the address the supervisor binds.
func (c *DevConfig) ListenAddr() string {
	return net.JoinHostPort(c.BindHost, strconv.Itoa(c.Port))
}

// BaseURL is the local URL of the served application.
func (c *DevConfig) BaseURL() string {
	return fmt.Sprintf("http://localhost:%d", c.Port)
}

// DocsURL is the page the browser is pointed at. It is derived from the same
// Port the supervisor binds.
func (c *DevConfig) DocsURL() string {
	return c.BaseURL() + c.DocsPath
}

// HealthURL is the readiness probe target.
func (c *DevConfig) HealthURL() string {
	return c.BaseURL() + c.HealthPath
}

// AppBinary is the promoted application binary path.
func (c *DevConfig) AppBinary() string {
	name := c.AppName
	if filepath.Separator == '\\' {
		name += ".exe"
	}
	return filepath.Join(c.BuildDir, "bin", name)
}

// WatchIgnorePatterns returns WatchIgnore plus the isolated environment
// directory when it lies inside the project.
func (c *DevConfig) WatchIgnorePatterns() []string {
	patterns := append([]string(nil), c.WatchIgnore...)
	env := strings.TrimSpace(c.EnvDir)
	if env == "" {
		return patterns
	}
	if filepath.IsAbs(env) {
		rel, err := filepath.Rel(c.ProjectDir, env)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return patterns
		}
		env = rel
	}
	env = filepath.ToSlash(filepath.Clean(env))
	if env == "." || env == ".." || strings.HasPrefix(env, "../") {
		return patterns
	}
	return append(patterns, env+"/**")
}

func (c *DevConfig) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.ProjectDir, p)
}

func loadYAML(path string, cfg *DevConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	section, ok := raw["devrun"]
	if !ok {
		return nil
	}

	sectionData, err := yaml.Marshal(section)
	if err != nil {
		return fmt.Errorf("re-marshal devrun section: %w", err)
	}

	return yaml.Unmarshal(sectionData, cfg)
}

var durationType = reflect.TypeOf(time.Duration(0))

func applyDefaults(v any) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fv := rv.Field(i)

		if !fv.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != durationType {
			applyDefaults(fv.Addr().Interface())
			continue
		}

		tag, ok := field.Tag.Lookup("default")
		if !ok {
			continue
		}

		if fv.IsZero() {
			setFieldFromString(fv, field.Type, tag)
		}
	}
}

func applyEnv(v any) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fv := rv.Field(i)

		if !fv.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != durationType {
			applyEnv(fv.Addr().Interface())
			continue
		}

		envKey := field.Tag.Get("env")
		if envKey == "" {
			continue
		}

		envVal, ok := os.LookupEnv(envKey)
		if !ok {
			continue
		}

		setFieldFromString(fv, field.Type, envVal)
	}
}

func setFieldFromString(fv reflect.Value, ft reflect.Type, val string) {
	switch ft.Kind() {
	case reflect.String:
		fv.SetString(val)
	case reflect.Int:
		if n, err := strconv.Atoi(val); err == nil {
			fv.SetInt(int64(n))
		}
	case reflect.Bool:
		switch strings.ToLower(val) {
		case "true", "1", "yes":
			fv.SetBool(true)
		case "false", "0", "no":
			fv.SetBool(false)
		}
	case reflect.Int64:
		if ft == durationType {
			if d, err := time.ParseDuration(val); err == nil {
				fv.SetInt(int64(d))
			}
		} else {
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				fv.SetInt(n)
			}
		}
	case reflect.Slice:
		if ft.Elem().Kind() != reflect.String {
			return
		}
		var items []string
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		fv.Set(reflect.ValueOf(items))
	}
}
