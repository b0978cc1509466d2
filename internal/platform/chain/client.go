// Package chain is the outbound client for the practice's chain-automation
// service. A completed intake is handed off as a trigger request keyed by
// the patient's canonical source ID; the automation side runs its workflow
// chain and reports the run it started. Payloads are HMAC-signed so the
// receiving endpoint can authenticate the caller.
package chain

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrMissingSourceID rejects trigger requests without a canonical key. An
// identity that never completed must not reach the automation service, and
// the source ID doubles as the dedup key on the receiving side.
var ErrMissingSourceID = errors.New("chain trigger requires a source id")

// ErrDisabled is returned by the Noop client when chain triggering is
// switched off in configuration.
var ErrDisabled = errors.New("chain triggering disabled")

// TriggerRequest is the payload delivered to the chain endpoint. SourceID
// carries the canonical identity key and is consumed downstream as the
// cross-system Patient_ID.
type TriggerRequest struct {
	SourceID         string                 `json:"source_id"`
	ChainName        string                 `json:"chain_name,omitempty"`
	TranscriptText   string                 `json:"transcript_text"`
	StructuredFields map[string]interface{} `json:"structured_fields,omitempty"`
}

// TriggerResult is the chain service's answer: whether a run started, its
// identifier, and a human-viewable URL for it.
type TriggerResult struct {
	Success    bool   `json:"success"`
	ChainRunID string `json:"chain_run_id"`
	ViewURL    string `json:"view_url"`
}

// Triggerer is the boundary the intake pipeline calls. The HTTP Client and
// the Noop stand-in both satisfy it.
type Triggerer interface {
	Trigger(ctx context.Context, req TriggerRequest) (*TriggerResult, error)
}

// SignPayload computes an HMAC-SHA256 signature of the payload under the
// shared secret, hex encoded.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether the hex-encoded signature matches the
// HMAC-SHA256 of payload under the secret. Comparison is constant time.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client used for deliveries.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithMaxRetries sets how many times a failed delivery is retried after the
// initial attempt. Only transport errors and 5xx responses are retried.
func WithMaxRetries(n int) Option {
	return func(cl *Client) { cl.maxRetries = n }
}

// WithBackoff sets the base delay between retries; each retry doubles it.
func WithBackoff(d time.Duration) Option {
	return func(cl *Client) { cl.backoff = d }
}

// Client delivers trigger requests over HTTP.
type Client struct {
	url        string
	secret     string
	chainName  string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

// New creates a chain client for the given endpoint. chainName is the
// default workflow to run when a request does not name one.
func New(url, secret, chainName string, opts ...Option) *Client {
	c := &Client{
		url:        url,
		secret:     secret,
		chainName:  chainName,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		maxRetries: 2,
		backoff:    500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Trigger posts the request to the chain endpoint, signing the JSON body
// and decoding the service's TriggerResult. Transport errors and 5xx
// responses are retried with doubling backoff up to the configured limit;
// 4xx responses fail immediately.
func (c *Client) Trigger(ctx context.Context, req TriggerRequest) (*TriggerResult, error) {
	if req.SourceID == "" {
		return nil, ErrMissingSourceID
	}
	if req.ChainName == "" {
		req.ChainName = c.chainName
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal trigger request: %w", err)
	}
	sig := SignPayload(payload, c.secret)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, retryable, err := c.deliver(ctx, payload, sig)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable {
			return nil, err
		}
	}

	return nil, fmt.Errorf("chain trigger failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// deliver performs a single signed POST. The second return value reports
// whether the failure is worth retrying.
func (c *Client) deliver(ctx context.Context, payload []byte, sig string) (*TriggerResult, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("build trigger request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Chain-Signature", "sha256="+sig)
	httpReq.Header.Set("X-Chain-Timestamp", time.Now().UTC().Format(time.RFC3339))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, true, fmt.Errorf("deliver trigger: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read at most 1KB of the error body for the message.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("chain endpoint returned %d: %s", resp.StatusCode, string(body))
		return nil, resp.StatusCode >= 500, err
	}

	var result TriggerResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
		return nil, false, fmt.Errorf("decode trigger response: %w", err)
	}
	return &result, false, nil
}

// Noop satisfies Triggerer without performing any delivery. Wired when
// CHAIN_ENABLED is false so the rest of the pipeline keeps one code path.
type Noop struct{}

// Trigger always reports ErrDisabled.
func (Noop) Trigger(context.Context, TriggerRequest) (*TriggerResult, error) {
	return nil, ErrDisabled
}
