package entropy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	oracleEndpoint = "https://api.random.org/json-rpc/4/invoke"
	oracleBatch    = 100
	oracleLowWater = 10
	oracleTimeout  = 15 * time.Second
)

// Oracle draws true random fractions from random.org, buffered in a local
// pool. Draws never wait on the network: a low pool is topped up in the
// background and an empty one defers to the fallback source. A nil Oracle is
// valid and always defers to the fallback.
type Oracle struct {
	apiKey   string
	endpoint string
	client   *http.Client

	mu        sync.Mutex
	pool      []float64
	refilling bool
}

// NewOracle creates a random.org oracle. Returns nil if apiKey is empty.
func NewOracle(apiKey string) *Oracle {
	if apiKey == "" {
		return nil
	}
	return &Oracle{
		apiKey:   apiKey,
		endpoint: oracleEndpoint,
		client:   &http.Client{Timeout: oracleTimeout},
	}
}

// Enabled reports whether the oracle has credentials.
func (o *Oracle) Enabled() bool {
	return o != nil && o.apiKey != ""
}

// Prefetch fills the pool before the first draw. It blocks, so call it
// before the tick loop starts.
func (o *Oracle) Prefetch(ctx context.Context) error {
	if !o.Enabled() {
		return nil
	}
	return o.refill(ctx)
}

// Float returns a value in [0, 1) from the pool. When the oracle is disabled
// or the pool is empty, the draw comes from fallback instead.
func (o *Oracle) Float(fallback *Rand) float64 {
	if !o.Enabled() {
		return fallback.Float64()
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.pool) < oracleLowWater && !o.refilling {
		o.refilling = true
		go o.refillBackground()
	}
	if len(o.pool) == 0 {
		return fallback.Float64()
	}

	v := o.pool[0]
	o.pool = o.pool[1:]
	return v
}

func (o *Oracle) refillBackground() {
	ctx, cancel := context.WithTimeout(context.Background(), oracleTimeout)
	defer cancel()
	if err := o.refill(ctx); err != nil {
		slog.Debug("random.org refill failed", "error", err)
	}
	o.mu.Lock()
	o.refilling = false
	o.mu.Unlock()
}

type oracleRequest struct {
	JSONRPC string       `json:"jsonrpc"`
	Method  string       `json:"method"`
	Params  oracleParams `json:"params"`
	ID      int          `json:"id"`
}

type oracleParams struct {
	APIKey        string `json:"apiKey"`
	N             int    `json:"n"`
	DecimalPlaces int    `json:"decimalPlaces"`
}

type oracleResponse struct {
	Result struct {
		Random struct {
			Data []float64 `json:"data"`
		} `json:"random"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (o *Oracle) refill(ctx context.Context) error {
	data, err := o.fetch(ctx)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.pool = append(o.pool, data...)
	o.mu.Unlock()
	slog.Debug("random.org pool refilled", "count", len(data))
	return nil
}

func (o *Oracle) fetch(ctx context.Context) ([]float64, error) {
	body, err := json.Marshal(oracleRequest{
		JSONRPC: "2.0",
		Method:  "generateDecimalFractions",
		Params:  oracleParams{APIKey: o.apiKey, N: oracleBatch, DecimalPlaces: 6},
		ID:      1,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	var parsed oracleResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("api: %s", parsed.Error.Message)
	}
	return parsed.Result.Random.Data, nil
}
