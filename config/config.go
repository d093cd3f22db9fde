// Package config loads run configuration from the environment.
//
// Values come from the process environment first, then .env.local, then
// .env in the working directory. Every setting with historical aliases is
// looked up through its fallback chain.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Fallback chains, most preferred first.
var (
	URLVars = []string{"SUPABASE_URL", "VITE_SUPABASE_URL", "NEXT_PUBLIC_SUPABASE_URL"}
	KeyVars = []string{"SUPABASE_SERVICE_ROLE_KEY", "SUPABASE_SERVICE_KEY", "SERVICE_ROLE_KEY", "SUPABASE_SECRET_KEY"}
)

const (
	DatabaseURLVar   = "DATABASE_URL"
	SourceBaseURLVar = "SARPRAS_SOURCE_BASE_URL"
	LogLevelVar      = "LOG_LEVEL"
	LogFormatVar     = "LOG_FORMAT"
)

// MinKeyLength is the shortest accepted service credential.
const MinKeyLength = 32

// Store backends.
const (
	StorePostgREST = "postgrest"
	StorePostgres  = "postgres"
)

// Error is a configuration problem found before any I/O.
type Error struct {
	// Var is the variable at fault; for chains, the preferred name
	Var string

	// Checked lists the other names of the chain
	Checked []string

	Reason string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("config: %s: %s", e.Var, e.Reason)
	if len(e.Checked) > 0 {
		msg += fmt.Sprintf(" (also checked %s)", strings.Join(e.Checked, ", "))
	}
	return msg
}

// Config is the resolved run configuration.
type Config struct {
	SupabaseURL   string `validate:"omitempty,url"`
	ServiceKey    string `validate:"omitempty,min=32"`
	DatabaseURL   string `validate:"omitempty,url"`
	SourceBaseURL string `validate:"omitempty,url"`
	LogLevel      string `validate:"omitempty,oneof=debug info warn error"`
	LogFormat     string `validate:"omitempty,oneof=console json"`

	// Store is the backend the credentials were checked for
	Store string
}

// Options controls Load.
type Options struct {
	// Dir holds the .env files (default: working directory)
	Dir string

	// Store names the backend that must be configured: postgrest needs
	// the base URL and service key, postgres needs DATABASE_URL. Empty
	// requires neither.
	Store string

	// Lookup replaces os.LookupEnv
	Lookup func(string) (string, bool)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// fieldVars maps struct fields to the variable named in errors.
var fieldVars = map[string]string{
	"SupabaseURL":   URLVars[0],
	"ServiceKey":    KeyVars[0],
	"DatabaseURL":   DatabaseURLVar,
	"SourceBaseURL": SourceBaseURLVar,
	"LogLevel":      LogLevelVar,
	"LogFormat":     LogFormatVar,
}

// Load resolves and validates the configuration.
func Load(opts Options) (*Config, error) {
	lookup, err := newLookup(opts)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		SupabaseURL:   strings.TrimRight(first(lookup, URLVars), "/"),
		ServiceKey:    first(lookup, KeyVars),
		DatabaseURL:   first(lookup, []string{DatabaseURLVar}),
		SourceBaseURL: first(lookup, []string{SourceBaseURLVar}),
		LogLevel:      strings.ToLower(first(lookup, []string{LogLevelVar})),
		LogFormat:     strings.ToLower(first(lookup, []string{LogFormatVar})),
		Store:         opts.Store,
	}

	switch opts.Store {
	case "":
	case StorePostgREST:
		if cfg.SupabaseURL == "" {
			return nil, &Error{Var: URLVars[0], Checked: URLVars[1:], Reason: "not set"}
		}
		if cfg.ServiceKey == "" {
			return nil, &Error{Var: KeyVars[0], Checked: KeyVars[1:], Reason: "not set"}
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, &Error{Var: DatabaseURLVar, Reason: "not set (required for --store=postgres)"}
		}
	default:
		return nil, &Error{Var: "--store", Reason: fmt.Sprintf("unknown store %q", opts.Store)}
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, toError(err)
	}
	if cfg.SupabaseURL != "" {
		if err := checkHTTPURL(cfg.SupabaseURL); err != nil {
			return nil, &Error{Var: URLVars[0], Reason: err.Error()}
		}
	}
	return cfg, nil
}

func toError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	name := fieldVars[fe.StructField()]
	switch fe.Tag() {
	case "min":
		return &Error{Var: name, Reason: fmt.Sprintf("must be at least %s characters", fe.Param())}
	case "url":
		return &Error{Var: name, Reason: "not a valid URL"}
	case "oneof":
		return &Error{Var: name, Reason: fmt.Sprintf("must be one of: %s", fe.Param())}
	default:
		return &Error{Var: name, Reason: fmt.Sprintf("failed %q check", fe.Tag())}
	}
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("URL has no host")
	}
	return nil
}

func first(lookup func(string) (string, bool), names []string) string {
	for _, name := range names {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// newLookup layers the process environment over .env.local over .env.
func newLookup(opts Options) (func(string) (string, bool), error) {
	env := opts.Lookup
	if env == nil {
		env = os.LookupEnv
	}

	var files []map[string]string
	for _, name := range []string{".env.local", ".env"} {
		path := filepath.Join(opts.Dir, name)
		vals, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, &Error{Var: path, Reason: err.Error()}
		}
		files = append(files, vals)
	}

	return func(name string) (string, bool) {
		if v, ok := env(name); ok {
			return v, true
		}
		for _, vals := range files {
			if v, ok := vals[name]; ok {
				return v, true
			}
		}
		return "", false
	}, nil
}
