package postgrest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarpras-dashboard/sarpras-sync/store"
)

const testKey = "service-role-key-0123456789abcdef0123456789"

func TestSelectBuildsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/schools", r.URL.Path)
		assert.Equal(t, testKey, r.Header.Get("apikey"))
		assert.Equal(t, "Bearer "+testKey, r.Header.Get("Authorization"))

		q := r.URL.Query()
		assert.Equal(t, "id,npsn", q.Get("select"))
		assert.Equal(t, `in.(1,2,"a,b")`, q.Get("npsn"))
		assert.Equal(t, "id.asc", q.Get("order"))
		assert.Equal(t, "1000", q.Get("offset"))
		assert.Equal(t, "1000", q.Get("limit"))

		_, _ = io.WriteString(w, `[{"id":7,"npsn":"20212345678901234"}]`)
	}))
	defer srv.Close()

	c := New(srv.URL, testKey)
	rows, err := c.Select(context.Background(), "schools", store.Query{
		Columns: []string{"id", "npsn"},
		Filters: []store.Filter{store.In("npsn", "1", 2, "a,b")},
		Order:   []string{"id"},
		Offset:  1000,
		Limit:   1000,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, json.Number("7"), rows[0]["id"])
	assert.Equal(t, "20212345678901234", rows[0]["npsn"])
}

func TestUpsertSendsMergeHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "school_id,role", r.URL.Query().Get("on_conflict"))
		assert.Contains(t, r.Header.Get("Prefer"), "resolution=merge-duplicates")

		var body []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body, 2)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := New(srv.URL+"/", testKey).Upsert(context.Background(), "toilets", []store.Row{
		{"school_id": "1", "role": "guru", "good": 2},
		{"school_id": "1", "role": "siswa", "good": 4},
	}, "school_id,role")
	require.NoError(t, err)
}

func TestDeleteReturnsCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "in.(1,2)", r.URL.Query().Get("school_id"))
		w.Header().Set("Content-Range", "*/3")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n, err := New(srv.URL, testKey).Delete(context.Background(), "laboratories", store.In("school_id", "1", "2"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestUnfilteredWritesRefused(t *testing.T) {
	c := New("http://127.0.0.1:1", testKey)
	_, err := c.Delete(context.Background(), "laboratories")
	assert.Error(t, err)
	assert.Error(t, c.Update(context.Background(), "schools", store.Row{"name": "x"}))
}

func TestErrorBodyIsSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"code":"23505","message":"duplicate key value violates unique constraint","details":"Key (npsn)=(1) already exists."}`)
	}))
	defer srv.Close()

	err := New(srv.URL, testKey).Insert(context.Background(), "schools", []store.Row{{"npsn": "1"}})
	require.Error(t, err)

	var storeErr *store.Error
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, http.StatusConflict, storeErr.Status)
	assert.Contains(t, storeErr.Message, "23505")
	assert.Contains(t, storeErr.Message, "already exists")
}

func TestReadsRetryWritesDoNot(t *testing.T) {
	var reads, writes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if reads.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = io.WriteString(w, `[]`)
			return
		}
		writes.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, testKey, WithRetries(2), WithTimeout(5*time.Second))
	rows, err := c.Select(context.Background(), "schools", store.Query{})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, int32(3), reads.Load())

	err = c.Insert(context.Background(), "schools", []store.Row{{"npsn": "1"}})
	assert.Error(t, err)
	assert.Equal(t, int32(1), writes.Load())
}

func TestContentRangeTotal(t *testing.T) {
	tests := map[string]int{
		"0-24/3573": 3573,
		"*/0":       0,
		"*/*":       -1,
		"":          -1,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, contentRangeTotal(in))
		})
	}
}
