package hub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	errs "github.com/sha5b/DynamiCrafter/pkg/errors"
	"github.com/sha5b/DynamiCrafter/pkg/logger"
)

// ErrRangeNotSupported reports a server that answered a ranged request with
// the whole file. The caller must restart the transfer from offset zero.
var ErrRangeNotSupported = errs.New(errs.ErrorTypeServerError, "server does not support range requests")

// FileInfo describes a remote file as reported by the hub.
type FileInfo struct {
	Size         int64
	ETag         string
	AcceptRanges bool
}

// Client is an HTTP client for the Hugging Face Hub file API.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	endpoint   string
	token      string
	logger     logger.Logger
}

// NewClient creates a hub client. An empty endpoint selects the public hub,
// an empty token sends unauthenticated requests.
func NewClient(endpoint, token, userAgent string, timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if userAgent == "" {
		userAgent = "dynamicrafter/2.0"
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		headers: map[string]string{
			"User-Agent": userAgent,
			"Accept":     "*/*",
		},
		endpoint: strings.TrimSuffix(endpoint, "/"),
		token:    token,
		logger:   log,
	}
}

// Endpoint returns the hub endpoint the client talks to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetHeaders sets multiple headers at once
func (c *Client) SetHeaders(headers map[string]string) {
	for key, value := range headers {
		c.headers[key] = value
	}
}

// FileURL returns the download URL for a file in a repository.
func (c *Client) FileURL(repoID, revision, file string) string {
	return ResolveURL(c.endpoint, repoID, revision, file)
}

// doRequest performs an HTTP request with the configured headers
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.New(errs.ErrorTypeNetwork, fmt.Sprintf("network error: %v", err))
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// Stat fetches the size and entity tag of a remote file without downloading it.
func (c *Client) Stat(ctx context.Context, repoID, revision, file string) (FileInfo, error) {
	url := c.FileURL(repoID, revision, file)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return FileInfo{}, errs.New(errs.ErrorTypeUnknown, fmt.Sprintf("failed to create request: %v", err))
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return FileInfo{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return FileInfo{}, errs.FromStatusCode(resp.StatusCode, fmt.Sprintf("HEAD %s/%s", repoID, file))
	}

	return fileInfoFromHeader(resp.Header, resp.ContentLength), nil
}

// Open starts a download of a remote file. A positive offset requests the
// byte range starting there, for resuming a partial file. The caller must
// close the returned body.
func (c *Client) Open(ctx context.Context, repoID, revision, file string, offset int64) (io.ReadCloser, FileInfo, error) {
	url := c.FileURL(repoID, revision, file)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, FileInfo{}, errs.New(errs.ErrorTypeUnknown, fmt.Sprintf("failed to create request: %v", err))
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, FileInfo{}, err
	}

	switch {
	case offset > 0 && resp.StatusCode == http.StatusPartialContent:
		// resuming where we left off
	case offset > 0 && resp.StatusCode == http.StatusOK:
		// server ignored the range, caller must restart from zero
		resp.Body.Close()
		return nil, FileInfo{}, ErrRangeNotSupported
	case resp.StatusCode == http.StatusOK:
	default:
		resp.Body.Close()
		return nil, FileInfo{}, errs.FromStatusCode(resp.StatusCode, fmt.Sprintf("GET %s/%s", repoID, file))
	}

	return resp.Body, fileInfoFromHeader(resp.Header, resp.ContentLength), nil
}

// OpenRange starts a download of an explicit byte range [start, end] of a
// remote file. Used by the chunked fast-transfer path.
func (c *Client) OpenRange(ctx context.Context, repoID, revision, file string, start, end int64) (io.ReadCloser, error) {
	url := c.FileURL(repoID, revision, file)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeUnknown, fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return nil, ErrRangeNotSupported
		}
		return nil, errs.FromStatusCode(resp.StatusCode, fmt.Sprintf("GET %s/%s", repoID, file))
	}

	return resp.Body, nil
}

func fileInfoFromHeader(h http.Header, contentLength int64) FileInfo {
	// LFS-backed files report their real etag in X-Linked-Etag.
	etag := h.Get("X-Linked-Etag")
	if etag == "" {
		etag = h.Get("ETag")
	}
	etag = strings.Trim(etag, `"`)
	etag = strings.TrimPrefix(etag, "W/")
	etag = strings.Trim(etag, `"`)

	size := contentLength
	if linked := h.Get("X-Linked-Size"); linked != "" {
		if n, err := strconv.ParseInt(linked, 10, 64); err == nil {
			size = n
		}
	}

	return FileInfo{
		Size:         size,
		ETag:         etag,
		AcceptRanges: strings.EqualFold(h.Get("Accept-Ranges"), "bytes"),
	}
}
