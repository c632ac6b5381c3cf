package openpayments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shinyyama/paychat-backend/internal/config"
	"github.com/shinyyama/paychat-backend/internal/logger"
	"github.com/shinyyama/paychat-backend/internal/metrics"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker refuses calls to the network.
var ErrCircuitOpen = errors.New("openpayments: circuit open")

// APIError is a non-2xx answer from an authorization or resource server.
type APIError struct {
	Operation string
	Status    int
	Body      string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openpayments: %s: status %d: %s", e.Operation, e.Status, e.Body)
}

// Options configures a Client. Signer may be nil for unsigned requests.
type Options struct {
	WalletAddressURL string
	Signer           *Signer
	HTTPClient       *http.Client
	Breaker          config.BreakerConfig
	Metrics          *metrics.Metrics
}

// Client talks to Open Payments authorization and resource servers on
// behalf of this platform's client wallet address.
type Client struct {
	walletAddressURL string
	signer           *Signer
	http             *http.Client
	breaker          *gobreaker.CircuitBreaker
	metrics          *metrics.Metrics
}

func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	c := &Client{
		walletAddressURL: opts.WalletAddressURL,
		signer:           opts.Signer,
		http:             httpClient,
		metrics:          opts.Metrics,
	}
	if opts.Breaker.Enabled {
		c.breaker = gobreaker.NewCircuitBreaker(breakerSettings(opts.Breaker))
	}
	return c
}

// NewFromConfig builds a signing client from environment configuration.
func NewFromConfig(cfg *config.Config, m *metrics.Metrics) (*Client, error) {
	var signer *Signer
	if cfg.PrivateKeyBase64 != "" {
		s, err := NewSigner(cfg.KeyID, cfg.PrivateKeyBase64)
		if err != nil {
			return nil, err
		}
		signer = s
	}
	return New(Options{
		WalletAddressURL: cfg.ClientWalletAddressURL,
		Signer:           signer,
		HTTPClient:       &http.Client{Timeout: cfg.OpenPaymentsTimeout},
		Breaker:          cfg.Breaker,
		Metrics:          m,
	}), nil
}

func breakerSettings(cfg config.BreakerConfig) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "openpayments",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		// A 4xx means the network answered; only transport errors and 5xx trip.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *APIError
			return errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError
		},
	}
}

// BreakerState reports the breaker state, or "disabled".
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

// GetWalletAddress fetches the public wallet address document.
func (c *Client) GetWalletAddress(ctx context.Context, walletURL string) (*WalletAddress, error) {
	var out WalletAddress
	if err := c.do(ctx, "wallet_address.get", http.MethodGet, walletURL, "", nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestGrant posts a grant request to an authorization server.
func (c *Client) RequestGrant(ctx context.Context, authServer string, req GrantRequest) (*Grant, error) {
	if req.Client == "" {
		req.Client = c.walletAddressURL
	}
	var out Grant
	if err := c.do(ctx, "grant.request", http.MethodPost, authServer, "", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// ContinueGrant exchanges an interaction reference for a finalized grant.
func (c *Client) ContinueGrant(ctx context.Context, continueURI, continueToken, interactRef string) (*Grant, error) {
	body := map[string]string{"interact_ref": interactRef}
	var out Grant
	if err := c.do(ctx, "grant.continue", http.MethodPost, continueURI, continueToken, body, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelGrant revokes a pending or finalized grant.
func (c *Client) CancelGrant(ctx context.Context, continueURI, continueToken string) error {
	return c.do(ctx, "grant.cancel", http.MethodDelete, continueURI, continueToken, nil, nil, true)
}

// CreateIncomingPayment creates an incoming payment on the receiver's resource server.
func (c *Client) CreateIncomingPayment(ctx context.Context, resourceServer, token string, req IncomingPaymentRequest) (*IncomingPayment, error) {
	var out IncomingPayment
	if err := c.do(ctx, "incoming_payment.create", http.MethodPost, join(resourceServer, "incoming-payments"), token, req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateQuote creates a quote on the sender's resource server.
func (c *Client) CreateQuote(ctx context.Context, resourceServer, token string, req QuoteRequest) (*Quote, error) {
	if req.Method == "" {
		req.Method = "ilp"
	}
	var out Quote
	if err := c.do(ctx, "quote.create", http.MethodPost, join(resourceServer, "quotes"), token, req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetQuote reads a quote by its URL.
func (c *Client) GetQuote(ctx context.Context, quoteURL, token string) (*Quote, error) {
	var out Quote
	if err := c.do(ctx, "quote.get", http.MethodGet, quoteURL, token, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOutgoingPayment executes a quote with a finalized outgoing-payment grant.
func (c *Client) CreateOutgoingPayment(ctx context.Context, resourceServer, token string, req OutgoingPaymentRequest) (*OutgoingPayment, error) {
	var out OutgoingPayment
	if err := c.do(ctx, "outgoing_payment.create", http.MethodPost, join(resourceServer, "outgoing-payments"), token, req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op, method, url, token string, in, out any, sign bool) error {
	started := time.Now()
	log := logger.FromContext(ctx).With().Str("op", op).Logger()

	call := func() (interface{}, error) {
		return nil, c.roundTrip(ctx, op, method, url, token, in, out, sign)
	}

	var err error
	if c.breaker != nil {
		_, err = c.breaker.Execute(call)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %s", ErrCircuitOpen, op)
		}
	} else {
		_, err = call()
	}

	c.metrics.ObserveNetworkCall(op, started, err)
	if err != nil {
		log.Warn().Err(err).Dur("took", time.Since(started)).Msg("openpayments call failed")
		return err
	}
	log.Debug().Dur("took", time.Since(started)).Msg("openpayments call")
	return nil
}

func (c *Client) roundTrip(ctx context.Context, op, method, url, token string, in, out any, sign bool) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("openpayments: %s: encode: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("openpayments: %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "GNAP "+token)
	}
	if sign && c.signer != nil {
		if err := c.signer.Sign(req); err != nil {
			return fmt.Errorf("openpayments: %s: sign: %w", op, err)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("openpayments: %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("openpayments: %s: read: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Operation: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("openpayments: %s: decode: %w", op, err)
	}
	return nil
}

func join(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + path
}
