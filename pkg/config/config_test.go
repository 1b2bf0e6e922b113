package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

const secret = "0123456789abcdef0123456789abcdef"

func env(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func load(t *testing.T, args []string, vars map[string]string) (*Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	return Load(fs, args, Options{Lookup: env(vars), EnvFile: filepath.Join(t.TempDir(), "absent.env")})
}

func mustLoad(t *testing.T, args []string, vars map[string]string) *Config {
	t.Helper()
	cfg, err := load(t, args, vars)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return cfg
}

func write(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func wantErr(t *testing.T, err error, substr string) {
	t.Helper()
	if err == nil || !strings.Contains(err.Error(), substr) {
		t.Fatalf("err=%v, want one mentioning %q", err, substr)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := mustLoad(t, nil, nil)
	if cfg.Addr != ":8080" || cfg.Catalog != "extended" {
		t.Fatalf("addr=%q catalog=%q", cfg.Addr, cfg.Catalog)
	}
	if !cfg.Audit.Stderr {
		t.Fatal("stderr audit should default on")
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Fatalf("token ttl=%v", cfg.Auth.TokenTTL)
	}
	if cfg.SessionTimeout != 30*time.Minute {
		t.Fatalf("session timeout=%v", cfg.SessionTimeout)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("log level=%q", cfg.Log.Level)
	}

	// no secret yet
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error without a secret")
	}
}

func TestLoad_Precedence(t *testing.T) {
	yml := write(t, "summon.yaml", `
addr: ":9000"
catalog: minimal
session_timeout: 5m
auth:
  secret: ${TEST_SECRET}
  issuer: file-issuer
log:
  level: debug
`)
	dotenv := write(t, "test.env", "SUMMON_AUTH_ISSUER=dotenv-issuer\nSUMMON_LOG_FORMAT=json\nSUMMON_ADDR=:7000\n")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg, err := Load(fs, []string{"--config", yml, "--addr", ":6000", "--trace-stdout", "extra"}, Options{
		Lookup: env(map[string]string{
			"TEST_SECRET":    secret,
			"SUMMON_ADDR":    ":5000",
			"SUMMON_CATALOG": "extended",
		}),
		EnvFile: dotenv,
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	checks := []struct{ what, got, want string }{
		{"flag beats env", cfg.Addr, ":6000"},
		{"env beats file", cfg.Catalog, "extended"},
		{"dotenv beats file", cfg.Auth.Issuer, "dotenv-issuer"},
		{"dotenv format", cfg.Log.Format, "json"},
		{"file beats default", cfg.Log.Level, "debug"},
		{"file expands ${VAR}", cfg.Auth.Secret, secret},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %q want %q", c.what, c.got, c.want)
		}
	}
	if cfg.SessionTimeout != 5*time.Minute {
		t.Errorf("session timeout=%v want 5m", cfg.SessionTimeout)
	}
	if !cfg.Trace.Stdout {
		t.Error("bare --trace-stdout should enable stdout tracing")
	}
	if !slices.Equal(fs.Args(), []string{"extra"}) {
		t.Errorf("args=%v", fs.Args())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoad_TOMLFromEnv(t *testing.T) {
	tml := write(t, "summon.toml", `
resource_url = "https://summon.example"

[auth]
secret = "`+secret+`"
token_ttl = "15m"

[audit]
database_url = "sqlite:file:audit?mode=memory"
stderr = false
`)
	cfg := mustLoad(t, nil, map[string]string{"SUMMON_CONFIG": tml})
	if cfg.ResourceURL != "https://summon.example" {
		t.Fatalf("resource url=%q", cfg.ResourceURL)
	}
	if cfg.Auth.TokenTTL != 15*time.Minute {
		t.Fatalf("token ttl=%v", cfg.Auth.TokenTTL)
	}
	if cfg.Audit.DatabaseURL != "sqlite:file:audit?mode=memory" || cfg.Audit.Stderr {
		t.Fatalf("audit=%+v", cfg.Audit)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoad_SessionTimeout(t *testing.T) {
	cfg := mustLoad(t, nil, map[string]string{"SUMMON_SESSION_TIMEOUT": "90s"})
	if cfg.SessionTimeout != 90*time.Second {
		t.Fatalf("env: session timeout=%v", cfg.SessionTimeout)
	}
	cfg = mustLoad(t, []string{"--session-timeout", "0"}, map[string]string{"SUMMON_SESSION_TIMEOUT": "90s"})
	if cfg.SessionTimeout != 0 {
		t.Fatalf("flag: session timeout=%v", cfg.SessionTimeout)
	}
	cfg.Auth.Secret = secret
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero keeps idle sessions and is valid: %v", err)
	}

	_, err := load(t, []string{"--session-timeout", "forever"}, nil)
	wantErr(t, err, "session_timeout")
}

func TestLoad_Errors(t *testing.T) {
	_, err := load(t, []string{"--config", write(t, "x.ini", "addr=1")}, nil)
	wantErr(t, err, "unsupported config file type")

	_, err = load(t, []string{"--config", write(t, "bad.yaml", "addr: [")}, nil)
	wantErr(t, err, "parsing config file")

	_, err = load(t, nil, map[string]string{"SUMMON_AUDIT_STDERR": "maybe"})
	wantErr(t, err, "SUMMON_AUDIT_STDERR")

	_, err = load(t, []string{"--token-ttl", "soon"}, nil)
	wantErr(t, err, "auth.token_ttl")

	if _, err = load(t, []string{"--no-such-flag"}, nil); err == nil {
		t.Fatal("expected unknown flag error")
	}
}

func TestValidate(t *testing.T) {
	good := Default()
	good.Auth.Secret = secret
	if err := good.Validate(); err != nil {
		t.Fatalf("defaults with secret: %v", err)
	}

	cases := map[string]func(*Config){
		"empty addr":      func(c *Config) { c.Addr = "" },
		"catalog":         func(c *Config) { c.Catalog = "maximal" },
		"short secret":    func(c *Config) { c.Auth.Secret = "short" },
		"ttl":             func(c *Config) { c.Auth.TokenTTL = 0 },
		"session timeout": func(c *Config) { c.SessionTimeout = -time.Second },
		"relative url":    func(c *Config) { c.ResourceURL = "/summon" },
		"upstream url":    func(c *Config) { c.Auth.AuthorizationServer = "auth.example" },
		"log level":       func(c *Config) { c.Log.Level = "trace" },
		"log format":      func(c *Config) { c.Log.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := good
			mutate(&c)
			if err := c.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	bad := Config{}
	err := bad.Validate()
	wantErr(t, err, "addr is required")
	wantErr(t, err, "auth.secret")
}
