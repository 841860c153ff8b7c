package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/voice-archive-bot/internal/metrics"
)

const userAgent = "Voice-Archive-Bot/1.0"

// HTTPRecognizer sends segments to a generic multipart transcription endpoint
type HTTPRecognizer struct {
	config     Config
	httpClient *http.Client
	metrics    *metrics.Metrics
	semaphore  chan struct{} // Rate limiting semaphore

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains HTTP recognizer configuration
type Config struct {
	Endpoint      string
	APIKey        string
	Model         string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
	OutputFormat  string        // "json" or "text"
	RetryBackoff  time.Duration // first retry delay, doubled per attempt
}

// Response represents a JSON response from the transcription endpoint
type Response struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// NewHTTPRecognizer creates a new multipart transcription client
func NewHTTPRecognizer(config Config, m *metrics.Metrics) (*HTTPRecognizer, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}

	if config.OutputFormat == "" {
		config.OutputFormat = "json"
	}

	if config.RetryBackoff <= 0 {
		config.RetryBackoff = time.Second
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &HTTPRecognizer{
		config:     config,
		httpClient: httpClient,
		metrics:    m,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Recognize uploads one segment and returns its transcript
func (c *HTTPRecognizer) Recognize(ctx context.Context, audio []byte, format, languageTag string) (string, error) {
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalRequests()
	requestID := uuid.NewString()

	var lastErr error

	// Retry loop with exponential backoff
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()
			c.metrics.RecordTranscriptionRetry()

			backoffTime := c.config.RetryBackoff << (attempt - 1)
			if backoffTime > 30*time.Second {
				backoffTime = 30 * time.Second
			}

			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := c.doRequest(ctx, requestID, audio, format, languageTag)
		if err == nil {
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(time.Since(startTime))
			if strings.TrimSpace(text) == "" {
				return "", ErrNoSpeech
			}
			return strings.TrimSpace(text), nil
		}

		lastErr = err

		if !isRetryableError(err) {
			break
		}
	}

	c.incrementFailedRequests()
	return "", fmt.Errorf("transcription failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// doRequest performs a single HTTP request to the transcription API
func (c *HTTPRecognizer) doRequest(ctx context.Context, requestID string, audio []byte, format, languageTag string) (string, error) {
	body, contentType, err := c.createMultipartRequest(requestID, audio, format, languageTag)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if c.config.OutputFormat == "text" {
		return string(respBody), nil
	}

	var parsed Response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response JSON: %w", err)
	}

	return parsed.Text, nil
}

// createMultipartRequest creates a multipart/form-data request body
func (c *HTTPRecognizer) createMultipartRequest(requestID string, audio []byte, format, languageTag string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", fmt.Sprintf("%s.%s", requestID, format))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := fileWriter.Write(audio); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := [][2]string{
		{"request_id", requestID},
		{"format", format},
		{"response_format", c.config.OutputFormat},
	}
	if languageTag != "" {
		fields = append(fields, [2]string{"language", LanguageCode(languageTag)})
	}
	if c.config.Model != "" {
		fields = append(fields, [2]string{"model", c.config.Model})
	}

	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// isRetryableError reports whether a failed request is worth repeating:
// 5xx and 429 responses, timeouts and connection failures
func isRetryableError(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// Statistics methods
func (c *HTTPRecognizer) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *HTTPRecognizer) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *HTTPRecognizer) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *HTTPRecognizer) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *HTTPRecognizer) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *HTTPRecognizer) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

// Close waits for in-flight requests and releases idle connections
func (c *HTTPRecognizer) Close() error {
	for i := 0; i < c.config.MaxConcurrent; i++ {
		c.semaphore <- struct{}{}
	}
	c.httpClient.CloseIdleConnections()
	return nil
}
