package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/sarpras-dashboard/sarpras-sync/format/jsondoc"
	"github.com/sarpras-dashboard/sarpras-sync/hub"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)
	require.Len(t, c.Sources, 4)
	assert.Equal(t, hub.JenjangPAUD, c.Sources[0].Level())

	_, err = c.URLFor(c.Sources[0])
	assert.Error(t, err, "no base URL configured")

	u, err := c.WithBaseURL("https://data.example.id/sarpras/").URLFor(c.Sources[1])
	require.NoError(t, err)
	assert.Equal(t, "https://data.example.id/sarpras/sd.json", u)
}

func TestParseCatalog(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{name: "jenjang normalized", yaml: "sources:\n  - {name: tk, jenjang: tk, file: tk.json}\n"},
		{name: "unknown jenjang", yaml: "sources:\n  - {name: x, jenjang: SMA, file: x.json}\n", wantErr: true},
		{name: "missing file", yaml: "sources:\n  - {name: x, jenjang: SD}\n", wantErr: true},
		{name: "bad url", yaml: "sources:\n  - {name: x, jenjang: SD, file: x.json, url: 'not a url'}\n", wantErr: true},
		{name: "duplicate", yaml: "sources:\n  - {name: x, jenjang: SD, file: a.json}\n  - {name: x, jenjang: SD, file: b.json}\n", wantErr: true},
		{name: "empty", yaml: "sources: []\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseCatalog([]byte(tt.yaml))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "PAUD", c.Sources[0].Jenjang)
		})
	}
}

func TestSelect(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	got, err := c.Select([]string{"SMP", "paud"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "smp", got[0].Name)
	assert.Equal(t, "paud", got[1].Name)

	_, err = c.Select([]string{"sma"})
	assert.Error(t, err)
}

func TestFetchAllRecoversPerSource(t *testing.T) {
	var smpCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sd.json":
			w.Write([]byte(`{"KecA":[{"npsn":"1"},{"npsn":"2"}]}`))
		case "/smp.json":
			smpCalls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "smp.json"), []byte(`[{"npsn":"3"}]`), 0o644))

	c, err := LoadCatalog("")
	require.NoError(t, err)
	c = c.WithBaseURL(srv.URL)

	f := NewFetcher(c, ModeRemote, WithDataDir(dir), WithRetries(1))
	docs := f.FetchAll(context.Background(), c.Sources)
	require.Len(t, docs, 4)

	paud, sd, smp := docs[0], docs[1], docs[2]

	var fe *FetchError
	require.True(t, errors.As(paud.Err, &fe))
	assert.Equal(t, http.StatusNotFound, fe.Status)
	assert.Empty(t, paud.Records)

	require.NoError(t, sd.Err)
	assert.Equal(t, OriginRemote, sd.Origin)
	assert.Equal(t, "grouped", sd.Shape)
	assert.Len(t, sd.Records, 2)
	cached, err := os.ReadFile(filepath.Join(dir, "sd.json"))
	require.NoError(t, err)
	assert.Contains(t, string(cached), "KecA")

	require.NoError(t, smp.Err)
	assert.Equal(t, OriginCache, smp.Origin)
	assert.Len(t, smp.Records, 1)
	assert.Equal(t, int32(2), smpCalls.Load(), "one retry on 5xx")
}

func TestFetchUnparseableBodyUsesCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	cachePath := filepath.Join(dir, "sd.json")
	require.NoError(t, os.WriteFile(cachePath, []byte(`[{"npsn":"3"}]`), 0o644))

	c, err := LoadCatalog("")
	require.NoError(t, err)
	c = c.WithBaseURL(srv.URL)
	sources, err := c.Select([]string{"sd", "smp"})
	require.NoError(t, err)

	docs := NewFetcher(c, ModeRemote, WithDataDir(dir), WithRetries(0)).FetchAll(context.Background(), sources)
	sd, smp := docs[0], docs[1]

	require.NoError(t, sd.Err)
	assert.Equal(t, OriginCache, sd.Origin)
	require.Len(t, sd.Records, 1)
	assert.Equal(t, "3", sd.Records[0]["npsn"])

	cached, err := os.ReadFile(cachePath)
	require.NoError(t, err)
	assert.Equal(t, `[{"npsn":"3"}]`, string(cached), "cache keeps the last good copy")

	assert.Error(t, smp.Err, "no cache to fall back on")
	assert.Equal(t, OriginRemote, smp.Origin)
	_, err = os.Stat(filepath.Join(dir, "smp.json"))
	assert.ErrorIs(t, err, os.ErrNotExist, "unparseable bodies are never cached")
}

func TestFetchLocal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sd.json"), []byte(`{"data":[{"npsn":"1"}]}`), 0o644))

	c, err := LoadCatalog("")
	require.NoError(t, err)
	sources, err := c.Select([]string{"sd", "smp"})
	require.NoError(t, err)

	docs := NewFetcher(c, ModeLocal, WithDataDir(dir)).FetchAll(context.Background(), sources)
	require.NoError(t, docs[0].Err)
	assert.Equal(t, OriginLocal, docs[0].Origin)
	assert.Equal(t, "container", docs[0].Shape)
	assert.Len(t, docs[0].Records, 1)
	assert.ErrorIs(t, docs[1].Err, os.ErrNotExist)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upload.json")
	require.NoError(t, os.WriteFile(path, []byte("{\"npsn\":\"1\"}\n{\"npsn\":\"2\"}\n"), 0o644))

	records, shape, err := ParseFile(path, "", "")
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, "array", shape)

	_, _, err = ParseFile(path, "bibtex", "")
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("local")
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, m)
	_, err = ParseMode("ftp")
	assert.Error(t, err)
}
