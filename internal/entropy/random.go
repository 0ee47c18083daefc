// Package entropy picks simulation seeds when none is configured: true
// randomness from random.org when an API key is present, crypto/rand
// otherwise.
package entropy

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultEndpoint = "https://api.random.org/json-rpc/4/invoke"
	// random.org integers are bounded by 1e9; two of them make a seed.
	intRange = 1_000_000_000
)

// Source produces non-zero seeds.
type Source struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewSource creates a seed source. An empty apiKey means crypto/rand only.
func NewSource(apiKey string) *Source {
	return &Source{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Enabled reports whether the source will ask random.org.
func (s *Source) Enabled() bool {
	return s != nil && s.apiKey != ""
}

// Seed returns a non-zero seed. Failures to reach random.org fall back to
// crypto/rand and are logged, never returned.
func (s *Source) Seed(ctx context.Context) int64 {
	if s.Enabled() {
		seed, err := s.fetch(ctx)
		if err == nil && seed != 0 {
			slog.Debug("seed from random.org", "seed", seed)
			return seed
		}
		slog.Warn("random.org unavailable, using crypto/rand", "error", err)
	}
	return CryptoSeed()
}

func (s *Source) fetch(ctx context.Context) (int64, error) {
	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateIntegers",
		"params": map[string]any{
			"apiKey": s.apiKey,
			"n":      2,
			"min":    0,
			"max":    intRange - 1,
		},
		"id": 1,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return 0, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("random.org fetch: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Result struct {
			Random struct {
				Data []int64 `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("random.org parse: %w", err)
	}
	if result.Error != nil {
		return 0, fmt.Errorf("random.org: %s", result.Error.Message)
	}
	data := result.Result.Random.Data
	if len(data) != 2 {
		return 0, fmt.Errorf("random.org: got %d integers, want 2", len(data))
	}
	return data[0]*intRange + data[1], nil
}

// CryptoSeed returns a non-zero seed from crypto/rand.
func CryptoSeed() int64 {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			// crypto/rand does not fail on supported platforms.
			return time.Now().UnixNano()
		}
		if n := int64(binary.LittleEndian.Uint64(buf[:]) >> 1); n != 0 {
			return n
		}
	}
}
