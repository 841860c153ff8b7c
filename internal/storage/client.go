package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/skypro1111/voice-archive-bot/internal/metrics"
)

const (
	pathAdd = "/add/data"
	pathGet = "/get/data"

	maxResponseBytes = 256 << 20
)

// TransportError reports a failed exchange with the record store:
// a network error, a non-2xx status or an unreadable response
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("record store %s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("record store %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Ack is the record store's reply to a submission
type Ack struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body,omitempty"`
}

// Config contains record store client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the remote record store over HTTP
type Client struct {
	config     Config
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a record store client
func NewClient(logger *slog.Logger, config Config, m *metrics.Metrics) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", config.BaseURL, err)
	}

	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https, got %q", config.BaseURL)
	}

	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config:  config,
		baseURL: base,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger:  logger,
		metrics: m,
	}, nil
}

// Submit stores a record. It is not retried.
func (c *Client) Submit(ctx context.Context, record Record) (*Ack, error) {
	if record.Collection == "" {
		record.Collection = CollectionFor(record.Description)
	}

	ack, err := c.submit(ctx, record)
	c.metrics.RecordSubmit(record.Collection, err)
	return ack, err
}

func (c *Client) submit(ctx context.Context, record Record) (*Ack, error) {
	body, err := json.Marshal(toWire(record))
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(pathAdd, nil), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "submit", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Op: "submit", StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{
			Op:         "submit",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(respBody))),
		}
	}

	c.logger.Debug("Record submitted",
		slog.Int64("user_id", record.UserID),
		slog.String("collection", record.Collection),
		slog.Int("audio_bytes", len(record.Audio)),
	)

	return &Ack{StatusCode: resp.StatusCode, Body: string(respBody)}, nil
}

// QueryByTimeRange returns records captured between from and to
func (c *Client) QueryByTimeRange(ctx context.Context, from, to time.Time, collection string) ([]Record, error) {
	params := url.Values{}
	params.Set("time_from", FormatTimestamp(from))
	params.Set("time_to", FormatTimestamp(to))
	if collection != "" {
		params.Set("collection", collection)
	}

	records, err := c.query(ctx, params)
	c.metrics.RecordSearch(QueryByTimeRange.String(), len(records), err)
	return records, err
}

// QueryByIdentity returns records submitted by userID
func (c *Client) QueryByIdentity(ctx context.Context, userID int64, collection string) ([]Record, error) {
	params := url.Values{}
	params.Set("user_id", strconv.FormatInt(userID, 10))
	if collection != "" {
		params.Set("collection", collection)
	}

	records, err := c.query(ctx, params)
	c.metrics.RecordSearch(QueryByIdentity.String(), len(records), err)
	return records, err
}

// Search runs q against the record store
func (c *Client) Search(ctx context.Context, q Query) ([]Record, error) {
	if q.Kind == QueryByIdentity {
		return c.QueryByIdentity(ctx, q.UserID, q.Collection)
	}
	return c.QueryByTimeRange(ctx, q.From, q.To, q.Collection)
}

type queryResponse struct {
	Result []wireRecord `json:"result"`
}

func (c *Client) query(ctx context.Context, params url.Values) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(pathGet, params), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "query", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &TransportError{
			Op:         "query",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(msg))),
		}
	}

	var parsed queryResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&parsed); err != nil {
		return nil, &TransportError{Op: "query", StatusCode: resp.StatusCode, Err: fmt.Errorf("invalid response: %w", err)}
	}

	records := make([]Record, 0, len(parsed.Result))
	for i, w := range parsed.Result {
		r, err := fromWire(w)
		if err != nil {
			return nil, &TransportError{Op: "query", StatusCode: resp.StatusCode, Err: fmt.Errorf("record %d: %w", i, err)}
		}
		records = append(records, r)
	}

	return records, nil
}

func (c *Client) endpoint(path string, params url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if params != nil {
		u.RawQuery = params.Encode()
	}
	return u.String()
}

// Close releases idle connections
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
