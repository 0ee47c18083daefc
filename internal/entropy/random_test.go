package entropy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSeedFromRandomOrg(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			Params struct {
				APIKey string `json:"apiKey"`
				N      int    `json:"n"`
			} `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Method != "generateIntegers" || req.Params.APIKey != "key" || req.Params.N != 2 {
			t.Errorf("unexpected request %+v", req)
		}
		w.Write([]byte(`{"jsonrpc":"2.0","result":{"random":{"data":[3,7]}},"id":1}`))
	}))
	defer srv.Close()

	s := NewSource("key")
	s.endpoint = srv.URL
	if got := s.Seed(context.Background()); got != 3*intRange+7 {
		t.Fatalf("Seed = %d", got)
	}
}

func TestSeedFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","error":{"message":"quota exceeded"},"id":1}`))
	}))
	defer srv.Close()

	s := NewSource("key")
	s.endpoint = srv.URL
	if got := s.Seed(context.Background()); got == 0 {
		t.Fatal("fallback seed is zero")
	}

	if NewSource("").Enabled() {
		t.Fatal("empty key should disable random.org")
	}
	if CryptoSeed() <= 0 {
		t.Fatal("CryptoSeed must be positive")
	}
}
