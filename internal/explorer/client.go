// Package explorer is a client for Etherscan-compatible contract
// verification APIs.
package explorer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/pendergraft/mintdeploy/internal/observability/metrics"
)

// Errors returned by the client.
var (
	ErrAlreadyVerified    = errors.New("contract source code already verified")
	ErrVerificationFailed = errors.New("explorer verification failed")
	ErrPollTimeout        = errors.New("timed out waiting for verification result")
	ErrRateLimited        = errors.New("explorer rate limit reached")
	ErrNotIndexed         = errors.New("explorer has not indexed the contract yet")
)

// Status is the state of a submitted verification.
type Status int

const (
	StatusPending Status = iota
	StatusVerified
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusVerified:
		return "verified"
	default:
		return "unknown"
	}
}

// VerifyRequest carries the fields of a verifysourcecode submission.
type VerifyRequest struct {
	Address         string
	ContractName    string // "sourcePath:Name"
	CompilerVersion string // solc long version, without the leading v
	StandardJSON    []byte
	ConstructorArgs []byte // ABI-encoded, no selector
}

// Client talks to one explorer API endpoint.
type Client struct {
	apiURL     string
	apiKey     string
	chainID    int64
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger

	pollInterval  time.Duration
	pollTimeout   time.Duration
	maxRetries    uint64
	retryInterval time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithChainID adds the chainid parameter used by multichain APIs.
func WithChainID(id int64) Option {
	return func(c *Client) { c.chainID = id }
}

// WithPollInterval sets the delay between status checks.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// WithPollTimeout bounds how long WaitForVerification polls.
func WithPollTimeout(d time.Duration) Option {
	return func(c *Client) { c.pollTimeout = d }
}

// WithRateLimit caps outgoing requests per second. Zero disables pacing.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithMaxRetries sets how often a failed request is retried.
func WithMaxRetries(n uint64) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithRetryInterval sets the initial retry backoff.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) { c.retryInterval = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the API at apiURL.
func New(apiURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		apiURL: apiURL,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: metrics.InstrumentTransport(nil),
		},
		limiter:       rate.NewLimiter(rate.Limit(4), 1),
		logger:        slog.Default(),
		pollInterval:  5 * time.Second,
		pollTimeout:   2 * time.Minute,
		maxRetries:    5,
		retryInterval: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Verify submits req and waits for the explorer's verdict.
func (c *Client) Verify(ctx context.Context, req VerifyRequest) error {
	guid, err := c.submitWhenIndexed(ctx, req)
	if err != nil {
		return err
	}
	c.logger.Info("verification submitted", slog.String("address", req.Address), slog.String("guid", guid))
	return c.WaitForVerification(ctx, guid)
}

// Submit sends a verifysourcecode request and returns the receipt GUID.
func (c *Client) Submit(ctx context.Context, req VerifyRequest) (string, error) {
	form := url.Values{}
	form.Set("apikey", c.apiKey)
	form.Set("module", "contract")
	form.Set("action", "verifysourcecode")
	form.Set("contractaddress", req.Address)
	form.Set("sourceCode", string(req.StandardJSON))
	form.Set("codeformat", "solidity-standard-json-input")
	form.Set("contractname", req.ContractName)
	form.Set("compilerversion", "v"+strings.TrimPrefix(req.CompilerVersion, "v"))
	// The misspelling is part of the API
	form.Set("constructorArguements", hex.EncodeToString(req.ConstructorArgs))

	resp, err := c.do(ctx, http.MethodPost, form, true)
	if err != nil {
		return "", err
	}
	if resp.Status != "1" {
		return "", classify(resp.Result)
	}
	if resp.Result == "" {
		return "", fmt.Errorf("%w: empty GUID in response", ErrVerificationFailed)
	}
	return resp.Result, nil
}

// submitWhenIndexed retries Submit while the explorer has not yet seen the
// contract, which is common right after deployment.
func (c *Client) submitWhenIndexed(ctx context.Context, req VerifyRequest) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	var guid string
	op := func() error {
		g, err := c.Submit(waitCtx, req)
		if errors.Is(err, ErrNotIndexed) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		guid = g
		return nil
	}
	notify := func(err error, next time.Duration) {
		c.logger.Info("waiting for explorer to index contract", slog.String("address", req.Address), slog.Duration("next", next))
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(c.pollInterval), waitCtx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		if ctx.Err() == nil && waitCtx.Err() != nil {
			return "", fmt.Errorf("%w: contract %s not indexed after %s", ErrPollTimeout, req.Address, c.pollTimeout)
		}
		return "", err
	}
	return guid, nil
}

// CheckStatus reports the state of the verification identified by guid.
func (c *Client) CheckStatus(ctx context.Context, guid string) (Status, error) {
	query := url.Values{}
	query.Set("apikey", c.apiKey)
	query.Set("module", "contract")
	query.Set("action", "checkverifystatus")
	query.Set("guid", guid)

	resp, err := c.do(ctx, http.MethodGet, query, false)
	if err != nil {
		return StatusPending, err
	}

	result := strings.TrimSpace(resp.Result)
	switch {
	case strings.EqualFold(result, "Pending in queue"):
		return StatusPending, nil
	case strings.HasPrefix(result, "Pass"):
		return StatusVerified, nil
	default:
		return StatusPending, classify(result)
	}
}

var errStillPending = errors.New("verification pending")

// WaitForVerification polls CheckStatus until the explorer reaches a verdict
// or the poll timeout elapses.
func (c *Client) WaitForVerification(ctx context.Context, guid string) error {
	pollCtx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	op := func() error {
		status, err := c.CheckStatus(pollCtx, guid)
		if err != nil {
			return backoff.Permanent(err)
		}
		if status == StatusPending {
			return errStillPending
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		c.logger.Debug("verification pending", slog.String("guid", guid), slog.Duration("next", next))
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(c.pollInterval), pollCtx)
	err := backoff.RetryNotify(op, b, notify)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && pollCtx.Err() != nil {
		return fmt.Errorf("%w after %s (guid %s)", ErrPollTimeout, c.pollTimeout, guid)
	}
	return err
}

// apiResponse is the envelope shared by all Etherscan-style endpoints.
type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Raw     json.RawMessage `json:"result"`
	Result  string          `json:"-"`
}

// do sends one API call, retrying transport errors, 5xx responses and rate
// limiting with exponential backoff. Explorer-level failures are returned
// in the envelope for the caller to classify.
func (c *Client) do(ctx context.Context, method string, params url.Values, form bool) (*apiResponse, error) {
	var out *apiResponse

	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := c.newRequest(ctx, method, params, form)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return ErrRateLimited
		case resp.StatusCode >= 500:
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
		}

		var r apiResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding explorer response: %w", err))
		}
		if err := json.Unmarshal(r.Raw, &r.Result); err != nil {
			r.Result = string(r.Raw)
		}
		if r.Status != "1" && isRateLimit(r.Result) {
			return ErrRateLimited
		}

		out = &r
		return nil
	}
	notify := func(err error, next time.Duration) {
		c.logger.Warn("explorer request failed, retrying",
			slog.String("error", err.Error()),
			slog.Duration("backoff", next),
		)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.retryInterval
	b := backoff.WithContext(backoff.WithMaxRetries(eb, c.maxRetries), ctx)

	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, method string, params url.Values, form bool) (*http.Request, error) {
	endpoint, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid explorer API URL: %w", err)
	}
	query := endpoint.Query()
	if c.chainID != 0 {
		query.Set("chainid", strconv.FormatInt(c.chainID, 10))
	}

	var body io.Reader
	if form {
		body = strings.NewReader(params.Encode())
	} else {
		for k, vs := range params {
			for _, v := range vs {
				query.Add(k, v)
			}
		}
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, err
	}
	if form {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// classify maps an explorer failure message to a sentinel error.
func classify(result string) error {
	lower := strings.ToLower(result)
	switch {
	case strings.Contains(lower, "already verified"):
		return ErrAlreadyVerified
	case strings.Contains(lower, "unable to locate contractcode"):
		return fmt.Errorf("%w: %s", ErrNotIndexed, result)
	default:
		return fmt.Errorf("%w: %s", ErrVerificationFailed, result)
	}
}

func isRateLimit(result string) bool {
	lower := strings.ToLower(result)
	return strings.Contains(lower, "rate limit")
}
