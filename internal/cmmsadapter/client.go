package cmmsadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"efd-cmms-bridge/internal/observability/metrics"
)

const (
	// AuthHeader carries the CMDBuild session token.
	AuthHeader = "CMDBuild-Authorization"

	restPrefix     = "/services/rest/v3"
	defaultTimeout = 10 * time.Second
)

var (
	// ErrNotFound indicates a missing card or process instance.
	ErrNotFound = errors.New("cmms: not found")
	// ErrUnauthorized indicates a rejected or expired session.
	ErrUnauthorized = errors.New("cmms: unauthorized")
)

// HTTPError is returned for non-2xx registry responses.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("cmms: %s %s: http %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("cmms: %s %s: http %d: %s", e.Method, e.Path, e.Status, e.Body)
}

func (e *HTTPError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return nil
	}
}

// Config configures the registry client.
type Config struct {
	// BaseURL is the openMAINT root, e.g. https://cmms.example.org/openmaint.
	BaseURL string
	// AuthURL defaults to the CMDBuild sessions endpoint under BaseURL.
	AuthURL  string
	Username string
	Password string
	// Token is a pre-issued session token; it skips the first login.
	Token   string
	Timeout time.Duration

	AssetClass   string
	ConfigClass  string
	ProcessClass string
}

// Client is a CMDBuild / openMAINT REST v3 client.
type Client struct {
	baseURL  string
	authURL  string
	username string
	password string
	timeout  time.Duration
	client   *http.Client

	assetClass   string
	configClass  string
	processClass string

	mu    sync.Mutex
	token string
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewClient constructs a registry client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("cmms: empty base url")
	}
	if cfg.Token == "" && (cfg.Username == "" || cfg.Password == "") {
		return nil, errors.New("cmms: credentials or token required")
	}
	authURL := strings.TrimSpace(cfg.AuthURL)
	if authURL == "" {
		authURL = base + restPrefix + "/sessions?scope=service&returnId=true"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL:      base,
		authURL:      authURL,
		username:     cfg.Username,
		password:     cfg.Password,
		timeout:      timeout,
		client:       &http.Client{},
		assetClass:   orDefault(cfg.AssetClass, "Asset"),
		configClass:  orDefault(cfg.ConfigClass, "PrevMaintConfig"),
		processClass: orDefault(cfg.ProcessClass, "PreventiveMaint"),
		token:        cfg.Token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type loginResponse struct {
	Data struct {
		ID string `json:"_id"`
	} `json:"data"`
}

// Login opens a new session and stores its token.
func (c *Client) Login(ctx context.Context) error {
	if c.username == "" || c.password == "" {
		return errors.New("cmms: login without credentials")
	}
	start := time.Now()
	token, err := c.login(ctx)
	metrics.ObserveRemoteCall("cmms", "login", err, time.Since(start))
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

func (c *Client) login(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("cmms: login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", httpError(http.MethodPost, "login", resp)
	}
	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("cmms: decode login: %w", err)
	}
	if out.Data.ID == "" {
		return "", errors.New("cmms: login returned no session id")
	}
	return out.Data.ID, nil
}

func (c *Client) currentToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}
	if err := c.Login(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, nil
}

func (c *Client) canLogin() bool {
	return c.username != "" && c.password != ""
}

// doJSON sends one registry request. A 401 with credentials configured triggers
// one re-login and retry.
func (c *Client) doJSON(ctx context.Context, op, method, path string, body any, out any) error {
	start := time.Now()
	err := c.doWithRetry(ctx, method, path, body, out)
	metrics.ObserveRemoteCall("cmms", op, err, time.Since(start))
	return err
}

func (c *Client) doWithRetry(ctx context.Context, method, path string, body any, out any) error {
	token, err := c.currentToken(ctx)
	if err != nil {
		return err
	}
	err = c.do(ctx, token, method, path, body, out)
	if !errors.Is(err, ErrUnauthorized) || !c.canLogin() {
		return err
	}
	if err := c.Login(ctx); err != nil {
		return err
	}
	token, err = c.currentToken(ctx)
	if err != nil {
		return err
	}
	return c.do(ctx, token, method, path, body, out)
}

func (c *Client) do(ctx context.Context, token, method, path string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+restPrefix+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(AuthHeader, token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("cmms: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return httpError(method, path, resp)
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("cmms: decode %s %s: %w", method, path, err)
	}
	return nil
}

func httpError(method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &HTTPError{
		Method: method,
		Path:   path,
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(raw)),
	}
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
