package fallback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/nekomatic-tf/nekopricer/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestPricesTFKeyComponentSplit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/access", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"accessToken": "tok"}`))
	})
	mux.HandleFunc("/prices/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// 2 keys at 1080 half-scrap each plus 36 half-scrap of change.
		w.Write([]byte(`{
			"sku": "378;6",
			"buyHalfScrap": 2196, "buyKeys": 2, "buyKeyHalfScrap": 1080,
			"sellHalfScrap": 2300, "sellKeys": 2, "sellKeyHalfScrap": 1080
		}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewPricesTFClient(server.URL)
	rec, err := client.GetPrice(context.Background(), domain.Item{Name: "Team Captain", SKU: "378;6"})
	require.NoError(t, err)

	require.Equal(t, 2, rec.Buy.Keys)
	require.Equal(t, 2.0, rec.Buy.Metal)
	require.Equal(t, 2, rec.Sell.Keys)
}

func TestPricesTFReauthenticatesAfter401(t *testing.T) {
	var tokens atomic.Int32
	var rejected atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/access", func(w http.ResponseWriter, r *http.Request) {
		tokens.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"accessToken": "tok"}`))
	})
	mux.HandleFunc("/prices/", func(w http.ResponseWriter, r *http.Request) {
		if !rejected.Load() {
			rejected.Store(true)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sku": "378;6", "buyHalfScrap": 18, "sellHalfScrap": 36}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewPricesTFClient(server.URL)
	item := domain.Item{Name: "Team Captain", SKU: "378;6"}

	// First call hits the stale-token rejection and surfaces it.
	_, err := client.GetPrice(context.Background(), item)
	require.Error(t, err)

	// The next call re-authenticates and succeeds.
	rec, err := client.GetPrice(context.Background(), item)
	require.NoError(t, err)
	require.Equal(t, 1.0, rec.Buy.Metal)
	require.Equal(t, int32(2), tokens.Load())
}

func TestPricesTFAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewPricesTFClient(server.URL)
	_, err := client.GetPrice(context.Background(), domain.Item{SKU: "378;6"})
	require.Error(t, err)
}
