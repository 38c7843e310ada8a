package utils

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	appconfig "pvp-duel-engine/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestR2Store_PutJSON(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, string(raw)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store, err := NewR2Store(context.Background(), appconfig.R2Config{
		AccountID:       "acc",
		AccessKeyID:     "key",
		AccessKeySecret: "secret",
		Bucket:          "duel-archive",
	}, srv.URL)
	require.NoError(t, err)

	err = store.PutJSON(context.Background(), "duels/2025/03/01/c1.json", map[string]string{"challenge_id": "c1"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/duel-archive/duels/2025/03/01/c1.json", path)
	assert.Contains(t, body, `"challenge_id":"c1"`)
}

func TestR2Store_PutJSONFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	store, err := NewR2Store(context.Background(), appconfig.R2Config{AccountID: "a", Bucket: "b", AccessKeyID: "k", AccessKeySecret: "s"}, srv.URL)
	require.NoError(t, err)
	assert.Error(t, store.PutJSON(context.Background(), "k.json", 1))
}
