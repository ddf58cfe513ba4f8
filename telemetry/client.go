package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const contentType = "application/json"

type Client struct {
	workspaceId string
	sharedKey   string
	endpoint    string
	httpClient  *http.Client
	logger      *zap.Logger
	now         func() time.Time
}

type Option func(*Client)

// WithEndpoint overrides the ingestion URL; tests point it at a local server.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(workspaceId string, sharedKey string, opts ...Option) *Client {
	var c = &Client{
		workspaceId: workspaceId,
		sharedKey:   sharedKey,
		endpoint:    fmt.Sprintf("https://%s.ods.opinsights.azure.com/api/logs?api-version=2016-04-01", workspaceId),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Post signs and sends one JSON payload under the given custom log type.
func (c *Client) Post(ctx context.Context, logType string, payload any) (err error) {
	var data []byte
	if data, err = json.Marshal(payload); err != nil {
		return
	}

	var date = c.now().UTC().Format(http.TimeFormat)
	var signature string
	if signature, err = BuildSignature(c.workspaceId, c.sharedKey, "POST", len(data), contentType, date); err != nil {
		return
	}

	var rq *http.Request
	if rq, err = http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(data)); err != nil {
		return
	}
	rq.Header.Set("Content-Type", contentType)
	rq.Header.Set("Authorization", signature)
	rq.Header.Set("Log-Type", logType)
	rq.Header.Set("x-ms-date", date)

	var rs *http.Response
	if rs, err = c.httpClient.Do(rq); err != nil {
		return
	}
	defer func() {
		_ = rs.Body.Close()
	}()
	if rs.StatusCode >= 300 {
		var body, _ = io.ReadAll(rs.Body)
		return fmt.Errorf("telemetry post failed: status %d: %s", rs.StatusCode, bytes.TrimSpace(body))
	}
	c.logger.Info("telemetry shipped",
		zap.String("logType", logType),
		zap.Int("bytes", len(data)))
	return
}
