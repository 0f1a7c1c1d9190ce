package upnp

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/mm2d/go-upnp/internal/gena"
)

// Request is the collaborator contract's outgoing request shape,
// spec.md §6: "HttpClient: post(request) -> response".
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the collaborator contract's response shape. Body is
// always non-nil; callers must close it.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// HTTPClient is the collaborator contract for outgoing HTTP calls made
// by GENA subscribe/renew/unsubscribe, action invocation, and
// description/SCPD/icon downloads. The default implementation wraps
// net/http; hosting applications may substitute their own for custom
// transports, timeouts, or TLS policy.
type HTTPClient interface {
	Post(ctx context.Context, req Request) (Response, error)
	Get(ctx context.Context, url string) ([]byte, error)
}

// defaultHTTPClient is the default net/http-based HTTPClient.
type defaultHTTPClient struct {
	client *http.Client
}

// NewDefaultHTTPClient builds the default HTTPClient collaborator.
func NewDefaultHTTPClient() HTTPClient {
	return &defaultHTTPClient{client: &http.Client{Timeout: 30 * time.Second}}
}

func (c *defaultHTTPClient) Post(ctx context.Context, req Request) (Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Response{}, err
	}
	if req.Header != nil {
		httpReq.Header = req.Header
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	return Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}, nil
}

func (c *defaultHTTPClient) Get(ctx context.Context, url string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newError(Network, "GET "+url+" returned non-200 status", nil)
	}
	return io.ReadAll(resp.Body)
}

// genaHTTPClient adapts the public HTTPClient down to internal/gena's
// minimal HTTPClient interface. gena never imports this package; the
// dependency runs the other way, so this adapter simply translates
// request/response shapes (gena buffers its response body, this
// package streams it).
type genaHTTPClient struct {
	client HTTPClient
}

func (a *genaHTTPClient) Post(ctx context.Context, req gena.Request) (gena.Response, error) {
	resp, err := a.client.Post(ctx, Request{Method: req.Method, URL: req.URL, Header: req.Header, Body: req.Body})
	if err != nil {
		return gena.Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gena.Response{}, err
	}
	return gena.Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// loaderFetcher adapts the public HTTPClient down to internal/loader's
// Fetcher interface.
type loaderFetcher struct {
	client HTTPClient
}

func (f *loaderFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	return f.client.Get(ctx, url)
}
