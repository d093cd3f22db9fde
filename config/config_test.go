package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validKey = strings.Repeat("k", 40)

func env(vals map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vals[name]
		return v, ok
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		store   string
		wantVar string
	}{
		{
			name:  "primary names",
			vars:  map[string]string{"SUPABASE_URL": "https://abc.supabase.co/", "SUPABASE_SERVICE_ROLE_KEY": validKey},
			store: StorePostgREST,
		},
		{
			name:  "fallback names",
			vars:  map[string]string{"NEXT_PUBLIC_SUPABASE_URL": "https://abc.supabase.co", "SUPABASE_SECRET_KEY": validKey},
			store: StorePostgREST,
		},
		{
			name:    "missing url",
			vars:    map[string]string{"SERVICE_ROLE_KEY": validKey},
			store:   StorePostgREST,
			wantVar: "SUPABASE_URL",
		},
		{
			name:    "missing key",
			vars:    map[string]string{"SUPABASE_URL": "https://abc.supabase.co"},
			store:   StorePostgREST,
			wantVar: "SUPABASE_SERVICE_ROLE_KEY",
		},
		{
			name:    "short key",
			vars:    map[string]string{"SUPABASE_URL": "https://abc.supabase.co", "SUPABASE_SERVICE_KEY": "short"},
			store:   StorePostgREST,
			wantVar: "SUPABASE_SERVICE_ROLE_KEY",
		},
		{
			name:    "non-http url",
			vars:    map[string]string{"SUPABASE_URL": "ftp://abc.supabase.co", "SUPABASE_SERVICE_KEY": validKey},
			store:   StorePostgREST,
			wantVar: "SUPABASE_URL",
		},
		{
			name:    "postgres needs database url",
			vars:    map[string]string{"SUPABASE_URL": "https://abc.supabase.co"},
			store:   StorePostgres,
			wantVar: "DATABASE_URL",
		},
		{
			name:  "postgres",
			vars:  map[string]string{"DATABASE_URL": "postgres://u:p@localhost:5432/sarpras"},
			store: StorePostgres,
		},
		{
			name: "no store needs nothing",
			vars: map[string]string{},
		},
		{
			name:    "bad log level",
			vars:    map[string]string{"LOG_LEVEL": "loud"},
			wantVar: "LOG_LEVEL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(Options{Dir: t.TempDir(), Store: tt.store, Lookup: env(tt.vars)})
			if tt.wantVar != "" {
				var cerr *Error
				require.True(t, errors.As(err, &cerr), "got %v", err)
				assert.Equal(t, tt.wantVar, cerr.Var)
				assert.Contains(t, err.Error(), tt.wantVar)
				return
			}
			require.NoError(t, err)
			assert.False(t, strings.HasSuffix(cfg.SupabaseURL, "/"))
		})
	}
}

func TestLoadDotEnvLayering(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("SUPABASE_URL=https://from-env.supabase.co\nSUPABASE_SERVICE_ROLE_KEY="+validKey+"\nLOG_LEVEL=warn\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"),
		[]byte("SUPABASE_URL=https://from-local.supabase.co\n"), 0o644))

	cfg, err := Load(Options{Dir: dir, Store: StorePostgREST, Lookup: env(map[string]string{"LOG_LEVEL": "debug"})})
	require.NoError(t, err)
	assert.Equal(t, "https://from-local.supabase.co", cfg.SupabaseURL)
	assert.Equal(t, validKey, cfg.ServiceKey)
	assert.Equal(t, "debug", cfg.LogLevel, "process env wins")
}

func TestErrorMessageListsChain(t *testing.T) {
	_, err := Load(Options{Dir: t.TempDir(), Store: StorePostgREST, Lookup: env(nil)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VITE_SUPABASE_URL")
}
