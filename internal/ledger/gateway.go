package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/taskbridge/marketplace/pkg/requestid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"

	txStatusPending   = "pending"
	txStatusConfirmed = "confirmed"
	txStatusFailed    = "failed"
)

// GatewayClient talks JSON over HTTP to a chain gateway which signs and broadcasts transactions.
type GatewayClient struct {
	endpoint   *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	idempotent bool
}

type GatewayOption func(g *GatewayClient)

func WithHTTPClient(c *http.Client) GatewayOption {
	return func(g *GatewayClient) {
		g.httpClient = c
	}
}

// WithRateLimit caps the request rate sent to the gateway. A non positive rps disables the limit.
func WithRateLimit(rps float64, burst int) GatewayOption {
	return func(g *GatewayClient) {
		if rps <= 0 {
			g.limiter = nil
			return
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithIdempotentSubmission declares whether the gateway deduplicates on the Idempotency-Key header.
func WithIdempotentSubmission(idempotent bool) GatewayOption {
	return func(g *GatewayClient) {
		g.idempotent = idempotent
	}
}

func NewGatewayClient(endpoint string, opts ...GatewayOption) (*GatewayClient, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger endpoint %q: %w", endpoint, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid ledger endpoint %q: scheme and host are required", endpoint)
	}

	g := &GatewayClient{
		endpoint:   u,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		idempotent: true,
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

var _ Client = (*GatewayClient)(nil)
var _ FeeSource = (*GatewayClient)(nil)
var _ Idempotent = (*GatewayClient)(nil)
var _ TokenResolver = (*GatewayClient)(nil)

type txResponse struct {
	TxID       string `json:"tx_id"`
	Status     string `json:"status,omitempty"`
	JobAddress string `json:"job_address,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type errorResponse struct {
	Message string `json:"message"`
}

type configResponse struct {
	FeeBps int64 `json:"fee_bps"`
}

func (g *GatewayClient) CreateFundedJob(ctx context.Context, params JobParams) (string, error) {
	var resp txResponse
	if err := g.do(ctx, http.MethodPost, "/v1/jobs", params.IdempotencyToken, params, &resp); err != nil {
		return "", err
	}
	if resp.TxID == "" {
		return "", fmt.Errorf("%w: gateway returned an empty transaction id", ErrUnavailable)
	}
	return resp.TxID, nil
}

func (g *GatewayClient) Confirm(ctx context.Context, txID string) (bool, string, error) {
	var resp txResponse
	if err := g.do(ctx, http.MethodGet, "/v1/transactions/"+url.PathEscape(txID), "", nil, &resp); err != nil {
		return false, "", err
	}

	switch resp.Status {
	case txStatusConfirmed:
		return true, resp.JobAddress, nil
	case txStatusFailed:
		return false, "", fmt.Errorf("%w: %s %s", ErrTransactionFailed, txID, resp.Reason)
	case txStatusPending:
		return false, "", nil
	default:
		return false, "", fmt.Errorf("%w: unknown transaction status %q", ErrUnavailable, resp.Status)
	}
}

func (g *GatewayClient) Refund(ctx context.Context, req RefundRequest) (string, error) {
	var resp txResponse
	if err := g.do(ctx, http.MethodPost, "/v1/refunds", req.IdempotencyToken, req, &resp); err != nil {
		return "", err
	}
	return resp.TxID, nil
}

func (g *GatewayClient) FeeBasisPoints(ctx context.Context) (int64, error) {
	var resp configResponse
	if err := g.do(ctx, http.MethodGet, "/v1/config", "", nil, &resp); err != nil {
		return 0, err
	}
	return resp.FeeBps, nil
}

func (g *GatewayClient) IdempotentSubmission() bool {
	return g.idempotent
}

func (g *GatewayClient) LookupToken(ctx context.Context, token string) (string, bool, error) {
	var resp txResponse
	err := g.do(ctx, http.MethodGet, "/v1/tokens/"+url.PathEscape(token), "", nil, &resp)
	switch {
	case errors.Is(err, ErrUnknownTransaction):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return resp.TxID, true, nil
}

func (g *GatewayClient) do(ctx context.Context, method, path, idempotencyKey string, body, out any) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %s", ErrUnavailable, err)
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	u := g.endpoint.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set(idempotencyKeyHeader, idempotencyKey)
	}
	requestid.Propagate(ctx, req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %s", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: decoding response: %s", ErrUnavailable, err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, path)
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusConflict,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrRejected, errorMessage(data, resp.Status))
	default:
		zap.S().Named("ledger_gateway").Warnw("gateway request failed", "method", method, "path", path, "status", resp.StatusCode)
		return fmt.Errorf("%w: %s", ErrUnavailable, errorMessage(data, resp.Status))
	}
}

func errorMessage(data []byte, fallback string) string {
	var e errorResponse
	if err := json.Unmarshal(data, &e); err == nil && e.Message != "" {
		return e.Message
	}
	if s := strings.TrimSpace(string(data)); s != "" {
		return s
	}
	return fallback
}
