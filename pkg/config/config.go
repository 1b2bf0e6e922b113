// Package config loads server settings from defaults, a config file, a .env
// file, SUMMON_* environment variables and command line flags, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/wilhg/summon/pkg/stance"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SUMMON_"

// Config is the complete server configuration.
type Config struct {
	Addr        string `yaml:"addr" toml:"addr"`
	Catalog     string `yaml:"catalog" toml:"catalog"`
	ResourceURL string `yaml:"resource_url" toml:"resource_url"`
	// SessionTimeout closes idle /mcp sessions; zero never does.
	SessionTimeout    time.Duration `yaml:"-" toml:"-"`
	SessionTimeoutRaw string        `yaml:"session_timeout" toml:"session_timeout"`
	Auth              AuthConfig    `yaml:"auth" toml:"auth"`
	Audit             AuditConfig   `yaml:"audit" toml:"audit"`
	Log               LogConfig     `yaml:"log" toml:"log"`
	Trace             TraceConfig   `yaml:"trace" toml:"trace"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Secret              string        `yaml:"secret" toml:"secret"`
	Issuer              string        `yaml:"issuer" toml:"issuer"`
	Audience            string        `yaml:"audience" toml:"audience"`
	AuthorizationServer string        `yaml:"authorization_server" toml:"authorization_server"`
	TokenTTL            time.Duration `yaml:"-" toml:"-"`
	TokenTTLRaw         string        `yaml:"token_ttl" toml:"token_ttl"`
}

// AuditConfig selects audit sinks.
type AuditConfig struct {
	DatabaseURL string `yaml:"database_url" toml:"database_url"`
	Stderr      bool   `yaml:"stderr" toml:"stderr"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// TraceConfig holds tracing configuration.
type TraceConfig struct {
	Stdout bool `yaml:"stdout" toml:"stdout"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Addr:              ":8080",
		Catalog:           string(stance.DefaultVariant),
		SessionTimeout:    30 * time.Minute,
		SessionTimeoutRaw: "30m",
		Auth: AuthConfig{
			TokenTTL:    time.Hour,
			TokenTTLRaw: "1h",
		},
		Audit: AuditConfig{Stderr: true},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// key binds one setting to its environment variable and flag.
type key struct {
	name   string // dotted config key; the env var is derived from it
	flag   string // empty when the setting has no flag
	usage  string
	isBool bool
	get    func(*Config) string
	set    func(*Config, string) error
}

func (k key) env() string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(k.name, ".", "_"))
}

func strKey(name, flag, usage string, p func(*Config) *string) key {
	return key{
		name: name, flag: flag, usage: usage,
		get: func(c *Config) string { return *p(c) },
		set: func(c *Config, v string) error { *p(c) = v; return nil },
	}
}

func boolKey(name, flag, usage string, p func(*Config) *bool) key {
	return key{
		name: name, flag: flag, usage: usage, isBool: true,
		get: func(c *Config) string { return strconv.FormatBool(*p(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*p(c) = b
			return nil
		},
	}
}

var keys = []key{
	strKey("addr", "addr", "http listen address", func(c *Config) *string { return &c.Addr }),
	strKey("catalog", "catalog", "tool catalog: minimal or extended", func(c *Config) *string { return &c.Catalog }),
	strKey("resource_url", "resource-url", "public URL of this server, advertised in protected resource metadata", func(c *Config) *string { return &c.ResourceURL }),
	strKey("session_timeout", "session-timeout", "close /mcp sessions idle this long; 0 keeps them", func(c *Config) *string { return &c.SessionTimeoutRaw }),
	strKey("auth.secret", "", "", func(c *Config) *string { return &c.Auth.Secret }),
	strKey("auth.issuer", "auth-issuer", "required token issuer", func(c *Config) *string { return &c.Auth.Issuer }),
	strKey("auth.audience", "auth-audience", "required token audience", func(c *Config) *string { return &c.Auth.Audience }),
	strKey("auth.authorization_server", "authorization-server", "upstream OAuth server behind /authorize, /register and /token", func(c *Config) *string { return &c.Auth.AuthorizationServer }),
	strKey("auth.token_ttl", "token-ttl", "lifetime of tokens minted by the token command", func(c *Config) *string { return &c.Auth.TokenTTLRaw }),
	strKey("audit.database_url", "audit-database-url", "durable audit store DSN (postgres://... or sqlite:...)", func(c *Config) *string { return &c.Audit.DatabaseURL }),
	boolKey("audit.stderr", "audit-stderr", "write audit records as JSON lines to stderr", func(c *Config) *bool { return &c.Audit.Stderr }),
	strKey("log.level", "log-level", "debug, info, warn or error", func(c *Config) *string { return &c.Log.Level }),
	strKey("log.format", "log-format", "text or json", func(c *Config) *string { return &c.Log.Format }),
	boolKey("trace.stdout", "trace-stdout", "export spans to stdout", func(c *Config) *bool { return &c.Trace.Stdout }),
}

// Options controls where Load looks.
type Options struct {
	// Lookup reads environment variables; nil uses os.LookupEnv.
	Lookup func(string) (string, bool)
	// EnvFile is loaded when it exists. Empty means ".env".
	EnvFile string
}

// Load builds a Config for the given arguments. Flags are registered on fs,
// which must not be parsed yet. The config file comes from --config or
// SUMMON_CONFIG.
func Load(fs *pflag.FlagSet, args []string, opts Options) (*Config, error) {
	cfg := Default()
	configPath := fs.String("config", "", "config file (.yaml, .yml or .toml)")
	envFile := fs.String("env-file", opts.EnvFile, "dotenv file loaded when present")
	for _, k := range keys {
		if k.flag == "" {
			continue
		}
		usage := k.usage + " (env " + k.env() + ")"
		if k.isBool {
			fs.Bool(k.flag, k.get(&cfg) == "true", usage)
			continue
		}
		fs.String(k.flag, k.get(&cfg), usage)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	lookup, err := environment(opts.Lookup, *envFile)
	if err != nil {
		return nil, err
	}

	path := *configPath
	if path == "" {
		path, _ = lookup(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := LoadFile(path, &cfg, lookup); err != nil {
			return nil, err
		}
	}

	for _, k := range keys {
		if v, ok := lookup(k.env()); ok {
			if err := k.set(&cfg, v); err != nil {
				return nil, fmt.Errorf("%s: %w", k.env(), err)
			}
		}
	}

	var flagErr error
	fs.Visit(func(f *pflag.Flag) {
		for _, k := range keys {
			if k.flag == f.Name && flagErr == nil {
				if err := k.set(&cfg, f.Value.String()); err != nil {
					flagErr = fmt.Errorf("--%s: %w", f.Name, err)
				}
			}
		}
	})
	if flagErr != nil {
		return nil, flagErr
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// environment layers the process environment over the dotenv file.
func environment(lookup func(string) (string, bool), envFile string) (func(string) (string, bool), error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if envFile == "" {
		envFile = ".env"
	}
	dotenv, err := godotenv.Read(envFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return lookup, nil
		}
		return nil, fmt.Errorf("reading %s: %w", envFile, err)
	}
	return func(name string) (string, bool) {
		if v, ok := lookup(name); ok {
			return v, true
		}
		v, ok := dotenv[name]
		return v, ok
	}, nil
}

// LoadFile decodes a YAML or TOML file over cfg. ${VAR} references are
// expanded through lookup first; unset variables expand to "".
func LoadFile(path string, cfg *Config, lookup func(string) (string, bool)) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	expanded := os.Expand(string(data), func(name string) string {
		v, _ := lookup(name)
		return v
	})
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal([]byte(expanded), cfg)
	case ".toml":
		_, err = toml.Decode(expanded, cfg)
	default:
		return fmt.Errorf("unsupported config file type %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func (c *Config) finish() error {
	if c.SessionTimeoutRaw != "" {
		d, err := time.ParseDuration(c.SessionTimeoutRaw)
		if err != nil {
			return fmt.Errorf("session_timeout: %w", err)
		}
		c.SessionTimeout = d
	}
	if c.Auth.TokenTTLRaw != "" {
		d, err := time.ParseDuration(c.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("auth.token_ttl: %w", err)
		}
		c.Auth.TokenTTL = d
	}
	return nil
}

// Variant returns the parsed catalog variant.
func (c *Config) Variant() (stance.Variant, error) { return stance.ParseVariant(c.Catalog) }

// Validate reports every invalid setting at once. The signing secret is
// required: the gate cannot be switched off.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if _, err := c.Variant(); err != nil {
		errs = append(errs, fmt.Errorf("catalog: %w", err))
	}
	if len(c.Auth.Secret) < 32 {
		errs = append(errs, fmt.Errorf("auth.secret must be at least 32 bytes (env %sAUTH_SECRET)", EnvPrefix))
	}
	if c.SessionTimeout < 0 {
		errs = append(errs, errors.New("session_timeout must not be negative"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	for _, u := range []struct{ name, value string }{
		{"resource_url", c.ResourceURL},
		{"auth.authorization_server", c.Auth.AuthorizationServer},
	} {
		if u.value == "" {
			continue
		}
		if parsed, err := url.Parse(u.value); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute URL, got %q", u.name, u.value))
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}
	return errors.Join(errs...)
}
