package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hemiko/topup_reconciler/internal/config"
	"github.com/hemiko/topup_reconciler/internal/logging"
)

const (
	checkByPrimaryKeyPath  = "/check_transaction_by_md5"
	checkByFallbackKeyPath = "/check_transaction_by_external_ref"
)

// ErrEmptyKey rejects lookups before they reach the network.
var ErrEmptyKey = errors.New("lookup key must not be empty")

// recognized provider response codes. The provider answers 0 or 1 for a
// known transaction; presence of the settlement record is the actual
// confirmation signal, the code alone is not.
const (
	responseCodeSuccess = 0
	responseCodeKnown   = 1
)

// Lookup is the outcome of a settlement check. A nil error with
// Confirmed() == false means the network answered but has not settled the
// transaction yet. Transport failures, timeouts and malformed bodies are
// returned as errors and must be treated as inconclusive, never as a
// negative answer.
type Lookup struct {
	ResponseCode int            `json:"responseCode"`
	Data         map[string]any `json:"data"`
}

// Confirmed reports a recognized response code carrying a non-empty
// settlement record. An empty record is not a settlement.
func (l *Lookup) Confirmed() bool {
	if l.ResponseCode != responseCodeSuccess && l.ResponseCode != responseCodeKnown {
		return false
	}

	return len(l.Data) > 0
}

type Client interface {
	CheckByPrimaryKey(ctx context.Context, key string) (*Lookup, error)
	CheckByFallbackKey(ctx context.Context, ref string) (*Lookup, error)
}

// HTTPClient talks to the payment network settlement API with a bearer
// credential. Every call is bounded by the configured timeout.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
	lg      *logging.ZapLogger
}

func NewHTTPClient(cfg *config.Config, lg *logging.ZapLogger) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.VerificationAPIBaseURL,
		token:   cfg.VerificationAPIToken,
		client: &http.Client{
			Timeout: time.Duration(cfg.VerificationTimeout) * time.Millisecond,
		},
		lg: lg,
	}
}

func (c *HTTPClient) CheckByPrimaryKey(ctx context.Context, key string) (*Lookup, error) {
	return c.check(ctx, checkByPrimaryKeyPath, map[string]string{"md5": key}, key)
}

func (c *HTTPClient) CheckByFallbackKey(ctx context.Context, ref string) (*Lookup, error) {
	return c.check(ctx, checkByFallbackKeyPath, map[string]string{"externalRef": ref}, ref)
}

func (c *HTTPClient) check(ctx context.Context, path string, payload map[string]string, key string) (*Lookup, error) {
	if key == "" {
		return nil, fmt.Errorf("verification: %s error %w", path, ErrEmptyKey)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("verification: marshal %s request error %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("verification: build %s request error %w", path, err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verification: %s request error %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("verification: %s unexpected status %d", path, resp.StatusCode)
	}

	lookup := &Lookup{}
	if err := json.NewDecoder(resp.Body).Decode(lookup); err != nil {
		return nil, fmt.Errorf("verification: decode %s response error %w", path, err)
	}

	c.lg.DebugCtx(
		ctx,
		"settlement lookup answered",
		zap.String("path", path),
		zap.Int("response_code", lookup.ResponseCode),
		zap.Bool("confirmed", lookup.Confirmed()),
	)

	return lookup, nil
}
