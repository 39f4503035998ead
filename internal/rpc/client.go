// Package rpc provides a JSON-RPC 2.0 client for Tendermint-style HTTP
// RPC endpoints. It supports plain HTTP and HTTPS, HTTP(S) proxies via
// CONNECT, and SOCKS5 proxies.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	xproxy "golang.org/x/net/proxy"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "tmconn-rpc/1"
)

// Client is a JSON-RPC 2.0 HTTP client.
type Client struct {
	endpoint   *url.URL
	httpClient *http.Client
}

// New constructs a client for the given http:// or https:// endpoint.
func New(endpoint string) (*Client, error) {
	return newClient(endpoint, nil)
}

// NewWithProxy constructs a client that reaches the endpoint through the
// given proxy. http:// and https:// proxies use CONNECT for secured
// endpoints; socks5:// proxies are dialed through directly.
func NewWithProxy(endpoint, proxyURL string) (*Client, error) {
	proxy, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy URL: %w", err)
	}
	return newClient(endpoint, proxy)
}

func newClient(endpoint string, proxy *url.URL) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("cannot use URL %s with HTTP clients", endpoint)
	}

	transport := &http.Transport{}
	if proxy != nil {
		switch proxy.Scheme {
		case "http", "https":
			transport.Proxy = http.ProxyURL(proxy)
		case "socks5", "socks5h":
			dialer, err := xproxy.FromURL(proxy, xproxy.Direct)
			if err != nil {
				return nil, fmt.Errorf("build socks5 dialer: %w", err)
			}
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				if cd, ok := dialer.(xproxy.ContextDialer); ok {
					return cd.DialContext(ctx, network, addr)
				}
				return dialer.Dial(network, addr)
			}
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q", proxy.Scheme)
		}
	}

	return &Client{
		endpoint: u,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   defaultTimeout,
		},
	}, nil
}

// request is the JSON-RPC 2.0 request envelope.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// response is the JSON-RPC 2.0 response envelope.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Call performs a JSON-RPC request and unmarshals the result into
// result, which may be nil to discard it.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	id := uuid.NewString()

	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected HTTP status %d: %s", httpResp.StatusCode, bytes.TrimSpace(respBody))
	}

	var resp response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if resp.ID != id {
		return fmt.Errorf("response ID %q does not match request ID %q", resp.ID, id)
	}

	if result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("parse result: %w", err)
		}
	}
	return nil
}
