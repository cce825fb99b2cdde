package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"context"
)

func TestHTTPProbe_FindsModelImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(modelsResponse{Data: []struct {
			ID string `json:"id"`
		}{{ID: "qwen-fast"}}})
	}))
	defer srv.Close()

	p := NewHTTPProbe(srv.URL, "secret", time.Millisecond)
	err := p.WaitModel(context.Background(), "qwen-fast", time.Second)
	require.NoError(t, err)
}

func TestHTTPProbe_FailsFastOn401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewHTTPProbe(srv.URL, "bad", time.Millisecond)
	err := p.WaitModel(context.Background(), "qwen-fast", time.Second)
	require.ErrorIs(t, err, ErrAuth)
}

func TestHTTPProbe_RetriesOn500ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(modelsResponse{Data: []struct {
			ID string `json:"id"`
		}{{ID: "deepseek"}}})
	}))
	defer srv.Close()

	p := NewHTTPProbe(srv.URL, "", time.Millisecond)
	err := p.WaitModel(context.Background(), "deepseek", time.Second)
	require.NoError(t, err)
	require.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(3))
}

func TestHTTPProbe_TimesOutWhenModelNeverAppears(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(modelsResponse{})
	}))
	defer srv.Close()

	p := NewHTTPProbe(srv.URL, "", time.Millisecond)
	err := p.WaitModel(context.Background(), "never-there", 20*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestFakeProbe_AvailableSet(t *testing.T) {
	f := NewFakeProbe()
	f.SetAvailable("qwen-max")

	require.NoError(t, f.WaitModel(context.Background(), "qwen-max", time.Second))
	require.Error(t, f.WaitModel(context.Background(), "qwen-fast", time.Second))
}
