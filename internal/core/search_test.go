package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/search", r.URL.Path)
		assert.Equal(t, "pdf tools", r.URL.Query().Get("q"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"skills":[
			{"id":"acme/skills/pdf","name":"pdf","source":"acme/skills","installs":120},
			{"skillId":"other/docx","name":"docx","topSource":"other/repo","installs":3}
		]}`))
	}))
	defer srv.Close()

	client := NewSearchClient(srv.URL + "/")
	results, err := client.Search(context.Background(), "pdf tools", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, SearchResult{ID: "acme/skills/pdf", Name: "pdf", Source: "acme/skills", Installs: 120}, results[0])
	assert.Equal(t, "other/docx", results[1].ID)
	assert.Equal(t, "other/repo", results[1].Source)
	assert.Equal(t, "acme/skills@pdf", results[0].InstallSource())
}

func TestSearchClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"skills":[{"name":"pdf","source":"acme/skills"}]}`))
	}))
	defer srv.Close()

	client := NewSearchClient(srv.URL)
	results, err := client.Search(context.Background(), "pdf", 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearchClient_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewSearchClient(srv.URL).Search(context.Background(), "pdf", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSearchClient_MalformedResponse(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewSearchClient(srv.URL).Search(context.Background(), "pdf", 10)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSearchClient_Limit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"skills":[{"name":"a"},{"name":"b"},{"name":"c"}]}`))
	}))
	defer srv.Close()

	results, err := NewSearchClient(srv.URL).Search(context.Background(), "x", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, "a", results[0].InstallSource())
}
