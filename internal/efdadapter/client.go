package efdadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	monitoring "efd-cmms-bridge/internal/monitoring/domain"
	"efd-cmms-bridge/internal/observability/metrics"
)

const (
	// DefaultCredentialsURL is the segwarides service that hands out EFD credentials.
	DefaultCredentialsURL = "https://roundtable.lsst.codes/segwarides/creds/"
	defaultTimeout        = 60 * time.Second
)

// QueryError is returned when the EFD rejects a query.
type QueryError struct {
	Status  int
	Message string
}

func (e *QueryError) Error() string {
	if e.Status == 0 {
		return "efd: query error: " + e.Message
	}
	return fmt.Sprintf("efd: http %d: %s", e.Status, e.Message)
}

// Config configures the EFD client. When URL is empty the credentials are
// discovered for Site through the credentials service.
type Config struct {
	Site           string
	CredentialsURL string
	URL            string
	Username       string
	Password       string
	Timeout        time.Duration
}

// Client queries an InfluxDB 1.x EFD over HTTP.
type Client struct {
	queryURL string
	username string
	password string
	timeout  time.Duration
	client   *http.Client
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

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Path     string `json:"path"`
}

// NewClient constructs an EFD client, discovering credentials when needed.
func NewClient(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		username: cfg.Username,
		password: cfg.Password,
		timeout:  timeout,
		client:   &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if raw := strings.TrimSpace(cfg.URL); raw != "" {
		c.queryURL = queryEndpoint(raw)
		return c, nil
	}
	if strings.TrimSpace(cfg.Site) == "" {
		return nil, errors.New("efd: url or site required")
	}
	creds, err := c.discover(ctx, cfg.CredentialsURL, cfg.Site)
	if err != nil {
		return nil, err
	}
	c.queryURL = "https://" + creds.Host + creds.Path + "query"
	if c.username == "" {
		c.username = creds.Username
		c.password = creds.Password
	}
	return c, nil
}

// QueryURL returns the resolved query endpoint.
func (c *Client) QueryURL() string {
	return c.queryURL
}

func (c *Client) discover(ctx context.Context, base, site string) (credentials, error) {
	if base == "" {
		base = DefaultCredentialsURL
	}
	if site == "usdf-dev" {
		site = "usdf"
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := strings.TrimRight(base, "/") + "/" + url.PathEscape(site+"_efd")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return credentials{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return credentials{}, fmt.Errorf("efd: fetch credentials: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return credentials{}, fmt.Errorf("efd: fetch credentials: http %d", resp.StatusCode)
	}
	var creds credentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return credentials{}, fmt.Errorf("efd: decode credentials: %w", err)
	}
	if creds.Host == "" {
		return credentials{}, errors.New("efd: credentials without host")
	}
	return creds, nil
}

// Latest implements the monitoring telemetry port.
func (c *Client) Latest(ctx context.Context, q monitoring.LatestQuery) (any, error) {
	stmt, err := BuildLatestQuery(q)
	if err != nil {
		return nil, err
	}
	s, err := c.query(ctx, "latest", q.Database, stmt)
	if err != nil {
		return nil, err
	}
	rows := s.rows()
	if len(rows) == 0 {
		return nil, monitoring.ErrNoData
	}
	value, ok := rows[0].Values[q.Field]
	if !ok || value == nil {
		return nil, monitoring.ErrNoData
	}
	return value, nil
}

// Series implements the monitoring telemetry port.
func (c *Client) Series(ctx context.Context, q monitoring.SeriesQuery) ([]monitoring.Row, error) {
	stmt, err := BuildSeriesQuery(q)
	if err != nil {
		return nil, err
	}
	s, err := c.query(ctx, "series", q.Database, stmt)
	if err != nil {
		return nil, err
	}
	rows := s.rows()
	if len(rows) == 0 {
		return nil, monitoring.ErrNoData
	}
	return rows, nil
}

func (c *Client) query(ctx context.Context, op, database, stmt string) (series, error) {
	start := time.Now()
	s, err := c.doQuery(ctx, database, stmt)
	metrics.ObserveRemoteCall("efd", op, err, time.Since(start))
	return s, err
}

func (c *Client) doQuery(ctx context.Context, database, stmt string) (series, error) {
	if database == "" {
		database = "efd"
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("db", database)
	params.Set("q", stmt)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.queryURL+"?"+params.Encode(), nil)
	if err != nil {
		return series{}, err
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return series{}, fmt.Errorf("efd: query: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return series{}, &QueryError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	return decodeResponse(resp.Body)
}

type queryResponse struct {
	Results []struct {
		Series []series `json:"series"`
		Error  string   `json:"error"`
	} `json:"results"`
	Error string `json:"error"`
}

type series struct {
	Name    string            `json:"name"`
	Tags    map[string]string `json:"tags"`
	Columns []string          `json:"columns"`
	Values  [][]any           `json:"values"`
}

func decodeResponse(r io.Reader) (series, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var resp queryResponse
	if err := dec.Decode(&resp); err != nil {
		return series{}, fmt.Errorf("efd: decode response: %w", err)
	}
	if resp.Error != "" {
		return series{}, &QueryError{Message: resp.Error}
	}
	if len(resp.Results) == 0 {
		return series{}, nil
	}
	if resp.Results[0].Error != "" {
		return series{}, &QueryError{Message: resp.Results[0].Error}
	}
	if len(resp.Results[0].Series) == 0 {
		return series{}, nil
	}
	return resp.Results[0].Series[0], nil
}

// rows converts the series to rows, parsing the time column when present.
// Numeric values are returned as float64.
func (s series) rows() []monitoring.Row {
	rows := make([]monitoring.Row, 0, len(s.Values))
	for _, values := range s.Values {
		row := monitoring.Row{Values: make(map[string]any, len(s.Columns))}
		for i, col := range s.Columns {
			if i >= len(values) {
				break
			}
			value := values[i]
			if col == "time" {
				if text, ok := value.(string); ok {
					if ts, err := time.Parse(time.RFC3339Nano, text); err == nil {
						row.Time = ts.UTC()
						continue
					}
				}
			}
			if n, ok := value.(json.Number); ok {
				if f, err := n.Float64(); err == nil {
					value = f
				}
			}
			row.Values[col] = value
		}
		for k, v := range s.Tags {
			if _, exists := row.Values[k]; !exists {
				row.Values[k] = v
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func queryEndpoint(raw string) string {
	raw = strings.TrimRight(raw, "/")
	if strings.HasSuffix(raw, "/query") {
		return raw
	}
	return raw + "/query"
}
