package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BradenHooton/tradeguard/internal/metrics"
	pkglogger "github.com/BradenHooton/tradeguard/pkg/logger"
)

const (
	DefaultStepTimeout  = 10 * time.Second
	DefaultChainTimeout = 45 * time.Second
	maxResponseBytes    = 1 << 20
)

// Endpoint paths
const (
	PathRegisterUser = "/api/v1/users/register"
	PathLogin        = "/api/v1/users/login"
	PathAccounts     = "/api/v1/accounts"
	PathDeleteUser   = "/api/v1/users"
)

type Config struct {
	BaseURL      string
	ClientID     string
	ConsumerKey  string
	StepTimeout  time.Duration
	ChainTimeout time.Duration
}

// Response is the accepted (or final) upstream answer
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	Method   SigningMethod
	Attempts []SigningAttemptResult
}

// Client performs signed calls against the broker API. It is safe for
// concurrent use; each call runs its own chain.
type Client struct {
	httpClient *http.Client
	baseURL    string
	creds      Credentials
	chain      []Strategy
	config     Config
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient fails with ErrConfigMissing when the signing secrets are absent
func NewClient(config Config, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if config.ClientID == "" || config.ConsumerKey == "" {
		return nil, ErrConfigMissing
	}
	if _, err := url.ParseRequestURI(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid broker base url: %w", err)
	}
	if config.StepTimeout <= 0 {
		config.StepTimeout = DefaultStepTimeout
	}
	if config.ChainTimeout <= 0 {
		config.ChainTimeout = DefaultChainTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger.Info("broker client configured",
		slog.String("base_url", config.BaseURL),
		slog.String("client_id", config.ClientID),
		slog.String("consumer_key", pkglogger.MaskSecret(config.ConsumerKey)))

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		creds:      Credentials{ClientID: config.ClientID, ConsumerKey: config.ConsumerKey},
		chain:      DefaultChain(),
		config:     config,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Do runs req through the signing chain. A 2xx answer is returned as a
// Response; any other final answer becomes an *AuthError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.ChainTimeout)
	defer cancel()

	var last *Response
	attempts, err := RunChain(ctx, c.chain, func(ctx context.Context, strategy Strategy) (int, error) {
		resp, err := c.send(ctx, strategy, req)
		if err != nil {
			c.metrics.SigningAttempt(strategy.Method.String(), metrics.OutcomeError)
			return 0, err
		}
		last = resp

		outcome := metrics.OutcomeFinal
		switch {
		case resp.Status >= 200 && resp.Status < 300:
			outcome = metrics.OutcomeAccepted
		case resp.Status == http.StatusUnauthorized:
			outcome = metrics.OutcomeRejected
		}
		c.metrics.SigningAttempt(strategy.Method.String(), outcome)

		c.logger.Debug("broker signing attempt",
			slog.String("path", req.Path),
			slog.String("method", strategy.Method.String()),
			slog.Int("status", resp.Status))
		return resp.Status, nil
	})

	if err != nil && !errors.Is(err, ErrAuthExhausted) {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
			return nil, ctxErr
		}
		c.logger.Warn("broker request failed",
			slog.String("path", req.Path),
			slog.Int("attempts", len(attempts)),
			slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	last.Attempts = attempts
	if last.Status >= 200 && last.Status < 300 {
		return last, nil
	}

	authErr := newAuthError(last.Status, last.Body, last.Method, errors.Is(err, ErrAuthExhausted))
	c.logger.Warn("broker rejected request",
		slog.String("path", req.Path),
		slog.Int("status", authErr.Status),
		slog.String("last_method", authErr.Method.String()),
		slog.Int("attempts", len(attempts)),
		slog.String("code", authErr.Code))
	return nil, authErr
}

// send performs one signed HTTP call under the per-step timeout. The
// timestamp is taken immediately before signing.
func (c *Client) send(ctx context.Context, strategy Strategy, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.StepTimeout)
	defer cancel()

	signed, err := strategy.Sign(c.creds, req, c.now().Unix())
	if err != nil {
		return nil, fmt.Errorf("signing with %s: %w", strategy.Method, err)
	}

	target := c.baseURL + req.Path
	if encoded := signed.Query.Encode(); encoded != "" {
		target += "?" + encoded
	}

	var body io.Reader
	if len(signed.Body) > 0 {
		body = bytes.NewReader(signed.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header = signed.Header

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading broker response: %w", err)
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
		Method: strategy.Method,
	}, nil
}

func (c *Client) doJSON(ctx context.Context, req Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decoding broker response from %s: %w", req.Path, err)
	}
	return nil
}

// RegisteredUser is returned once per user; UserSecret must be stored encrypted
type RegisteredUser struct {
	UserID     string `json:"userId"`
	UserSecret string `json:"userSecret"`
}

// RegisterUser creates the user upstream
func (c *Client) RegisterUser(ctx context.Context, userID string) (*RegisteredUser, error) {
	body, err := json.Marshal(map[string]string{"userId": userID})
	if err != nil {
		return nil, err
	}

	var out RegisteredUser
	if err := c.doJSON(ctx, Request{Method: http.MethodPost, Path: PathRegisterUser, Body: body}, &out); err != nil {
		return nil, err
	}
	if out.UserSecret == "" {
		return nil, fmt.Errorf("broker registration returned no user secret")
	}
	if out.UserID == "" {
		out.UserID = userID
	}
	return &out, nil
}

type loginResponse struct {
	RedirectURI string `json:"redirectURI"`
}

// Login returns the connection portal URI for the user
func (c *Client) Login(ctx context.Context, userID, userSecret string) (string, error) {
	var out loginResponse
	err := c.doJSON(ctx, Request{
		Method: http.MethodPost,
		Path:   PathLogin,
		Query:  userQuery(userID, userSecret),
	}, &out)
	if err != nil {
		return "", err
	}
	if out.RedirectURI == "" {
		return "", fmt.Errorf("broker login returned no redirect uri")
	}
	return out.RedirectURI, nil
}

// Account is a brokerage account connected by the user
type Account struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Number          string `json:"number"`
	InstitutionName string `json:"institution_name"`
}

func (c *Client) ListAccounts(ctx context.Context, userID, userSecret string) ([]Account, error) {
	accounts := []Account{}
	err := c.doJSON(ctx, Request{
		Method: http.MethodGet,
		Path:   PathAccounts,
		Query:  userQuery(userID, userSecret),
	}, &accounts)
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// DeleteUser removes the user and its connections upstream
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	return c.doJSON(ctx, Request{
		Method: http.MethodDelete,
		Path:   PathDeleteUser,
		Query:  url.Values{"userId": {userID}},
	}, nil)
}

func userQuery(userID, userSecret string) url.Values {
	return url.Values{"userId": {userID}, "userSecret": {userSecret}}
}
