package azdo

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

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const apiVersion = "7.1-preview.1"

// PaginationPolicy controls what happens when a page after the first one
// fails. The original scripts silently kept whatever had been collected;
// lenient replicates that as an explicit, documented choice.
type PaginationPolicy int

const (
	PaginationLenient PaginationPolicy = iota
	PaginationStrict
)

type Options struct {
	Organization string
	PAT          string
	TokenSource  oauth2.TokenSource
	// BaseURL points both the core and graph endpoints at one host, for
	// on-premises Azure DevOps Server installations where the graph API
	// lives on the collection URL.
	BaseURL           string
	LegacyEndpoint    bool
	Timeout           time.Duration
	RetryAttempts     int
	RetryBackoff      time.Duration
	RequestsPerSecond float64
	PageLimit         int
	Pagination        PaginationPolicy
	Logger            *zap.Logger
}

// Client talks to the Azure DevOps core and graph REST endpoints. All calls
// are synchronous; one invocation never issues concurrent requests.
type Client struct {
	coreBase      *url.URL
	graphBase     *url.URL
	httpClient    *http.Client
	limiter       *rate.Limiter
	authorize     func(*http.Request) error
	retryAttempts int
	retryBackoff  time.Duration
	pageLimit     int
	pagination    PaginationPolicy
	logger        *zap.Logger
	sink          *DiagnosticSink
}

func NewClient(opts Options, sink *DiagnosticSink) (client *Client, err error) {
	if len(opts.Organization) == 0 {
		err = errors.New("organization is required")
		return
	}
	if len(opts.PAT) == 0 && opts.TokenSource == nil {
		err = errors.New("either a personal access token or a token source is required")
		return
	}

	var coreUrl, graphUrl string
	if len(opts.BaseURL) > 0 {
		if !strings.HasSuffix(opts.BaseURL, "/") {
			opts.BaseURL += "/"
		}
		coreUrl = opts.BaseURL
		graphUrl = opts.BaseURL
	} else if opts.LegacyEndpoint {
		coreUrl = fmt.Sprintf("https://%s.visualstudio.com/", opts.Organization)
		graphUrl = fmt.Sprintf("https://%s.vssps.visualstudio.com/", opts.Organization)
	} else {
		coreUrl = fmt.Sprintf("https://dev.azure.com/%s/", opts.Organization)
		graphUrl = fmt.Sprintf("https://vssps.dev.azure.com/%s/", opts.Organization)
	}

	client = &Client{
		retryAttempts: opts.RetryAttempts,
		retryBackoff:  opts.RetryBackoff,
		pageLimit:     opts.PageLimit,
		pagination:    opts.Pagination,
		logger:        opts.Logger,
		sink:          sink,
	}
	if client.coreBase, err = url.Parse(coreUrl); err != nil {
		return
	}
	if client.graphBase, err = url.Parse(graphUrl); err != nil {
		return
	}
	if client.retryAttempts <= 0 {
		client.retryAttempts = 3
	}
	if client.retryBackoff <= 0 {
		client.retryBackoff = 2 * time.Second
	}
	if client.pageLimit <= 0 {
		client.pageLimit = 10
	}
	if client.logger == nil {
		client.logger = zap.NewNop()
	}
	if client.sink == nil {
		client.sink = NewDiagnosticSink(client.logger)
	}

	var timeout = opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.httpClient = &http.Client{Timeout: timeout}

	var rps = opts.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	client.limiter = rate.NewLimiter(rate.Limit(rps), 1)

	if opts.TokenSource != nil {
		var ts = opts.TokenSource
		client.authorize = func(rq *http.Request) error {
			var token, er1 = ts.Token()
			if er1 != nil {
				return er1
			}
			token.SetAuthHeader(rq)
			return nil
		}
	} else {
		var pat = opts.PAT
		client.authorize = func(rq *http.Request) error {
			rq.SetBasicAuth("", pat)
			return nil
		}
	}
	return
}

func (c *Client) composeUrl(base *url.URL, paths ...string) (result *url.URL, err error) {
	var uri = new(url.URL)
	*uri = *base
	var ruri *url.URL
	for _, path := range paths {
		if ruri, err = url.Parse(path); err != nil {
			return
		}
		if !strings.HasSuffix(uri.Path, "/") {
			uri.Path += "/"
		}
		uri = uri.ResolveReference(ruri)
	}
	var query = uri.Query()
	query.Set("api-version", apiVersion)
	uri.RawQuery = query.Encode()
	result = uri
	return
}

// executeRequest runs one REST call with the retry budget applied. Transport
// errors, 429 and 5xx responses are retried with a fixed backoff; anything
// else is final.
func (c *Client) executeRequest(ctx context.Context, method string, uri *url.URL, payload any) (response map[string]any, header http.Header, err error) {
	var data []byte
	if payload != nil {
		if data, err = json.Marshal(payload); err != nil {
			return
		}
	}

	var attempt = 0
	for {
		attempt++
		var body []byte
		var status int
		body, status, header, err = c.executeOnce(ctx, method, uri, data)
		if err == nil && status < 300 {
			if len(body) > 0 {
				err = json.Unmarshal(body, &response)
			}
			return
		}
		var retryable = err != nil || status == http.StatusTooManyRequests || status >= 500
		if retryable && attempt < c.retryAttempts {
			c.logger.Debug("retrying request",
				zap.String("method", method),
				zap.String("path", uri.Path),
				zap.Int("attempt", attempt),
				zap.Int("status", status),
				zap.Error(err))
			select {
			case <-time.After(c.retryBackoff):
				continue
			case <-ctx.Done():
				err = ctx.Err()
			}
		}
		err = &RequestError{
			Method: method,
			Path:   uri.Path,
			Status: status,
			Body:   strings.TrimSpace(string(body)),
			Err:    err,
		}
		return
	}
}

func (c *Client) executeOnce(ctx context.Context, method string, uri *url.URL, data []byte) (body []byte, status int, header http.Header, err error) {
	if err = c.limiter.Wait(ctx); err != nil {
		return
	}
	var reader io.Reader
	if data != nil {
		reader = bytes.NewReader(data)
	}
	var rq *http.Request
	if rq, err = http.NewRequestWithContext(ctx, method, uri.String(), reader); err != nil {
		return
	}
	if err = c.authorize(rq); err != nil {
		return
	}
	rq.Header.Set("Accept", "application/json")
	if data != nil {
		rq.Header.Set("Content-Type", "application/json")
	}

	var rs *http.Response
	if rs, err = c.httpClient.Do(rq); err != nil {
		return
	}
	defer func() {
		_ = rs.Body.Close()
	}()
	status = rs.StatusCode
	header = rs.Header
	var contentType = rs.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/") || status >= 300 {
		body, err = io.ReadAll(rs.Body)
	}
	return
}
