// Package odoo implements the remote catalog gateway: an XML-RPC client for
// one ERP instance exposing the product, stock and location operations the
// sync, transfer and reconciliation services are built on.
package odoo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Client is an authenticated session against one catalog instance. The uid
// and the product-kind probe result live for the lifetime of the session and
// are replaced wholesale on re-authentication.
type Client struct {
	creds      Credentials
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	uid     int64
	version string
	kind    KindFields
}

// NewClient constructs an unauthenticated client for one catalog instance.
func NewClient(creds Credentials, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		creds:  creds,
		logger: logger,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *Client) call(ctx context.Context, service, method string, params []any) (any, error) {
	body, err := marshalCall(method, params)
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(c.creds.URL, "/") + "/xmlrpc/2/" + service
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("odoo: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("odoo: %s.%s: %w", service, method, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("odoo: %s.%s: status %d", service, method, resp.StatusCode)
	}
	result, err := unmarshalResponse(resp.Body)
	if err != nil {
		if _, ok := err.(*Fault); ok {
			return nil, err
		}
		return nil, fmt.Errorf("odoo: %s.%s: %w", service, method, err)
	}
	return result, nil
}

// Authenticate establishes the session: reads the server version and resolves
// the uid for the configured account.
func (c *Client) Authenticate(ctx context.Context) (*ConnectionInfo, error) {
	version := ""
	if info, err := c.call(ctx, "common", "version", nil); err == nil {
		if m, ok := info.(map[string]any); ok {
			if v, ok := m["server_version"].(string); ok {
				version = v
			}
		}
	} else {
		c.logger.Warn("version probe failed", slog.String("url", c.creds.URL), slog.Any("error", err))
	}

	result, err := c.call(ctx, "common", "authenticate", []any{
		c.creds.Database, c.creds.Username, c.creds.Password, map[string]any{},
	})
	if err != nil {
		return nil, err
	}
	uid, ok := result.(int64)
	if !ok || uid <= 0 {
		return nil, ErrInvalidLogin
	}

	c.mu.Lock()
	c.uid = uid
	c.version = version
	c.kind = nil
	c.mu.Unlock()

	c.logger.Info("catalog session established",
		slog.String("url", c.creds.URL),
		slog.String("db", c.creds.Database),
		slog.String("version", version),
	)
	return &ConnectionInfo{Version: version, UID: uid}, nil
}

// Authenticated reports whether the session holds a uid.
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uid > 0
}

// Version returns the server version string captured during Authenticate.
func (c *Client) Version() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// URL returns the configured endpoint, for logging.
func (c *Client) URL() string {
	return c.creds.URL
}

// ExecuteKw invokes a model method through the object endpoint.
func (c *Client) ExecuteKw(ctx context.Context, model, method string, args []any, kw map[string]any) (any, error) {
	c.mu.Lock()
	uid := c.uid
	c.mu.Unlock()
	if uid <= 0 {
		return nil, ErrNotAuthenticated
	}
	params := []any{c.creds.Database, uid, c.creds.Password, model, method, args}
	if kw != nil {
		params = append(params, kw)
	}
	return c.call(ctx, "object", "execute_kw", params)
}

// versionAtLeast18 parses version strings like "18.0" or "saas~18.2+e".
func (c *Client) versionAtLeast18() bool {
	c.mu.Lock()
	v := c.version
	c.mu.Unlock()
	if v == "" {
		return true
	}
	if idx := strings.Index(v, "saas~"); idx >= 0 {
		v = v[idx+len("saas~"):]
		if plus := strings.Index(v, "+"); plus >= 0 {
			v = v[:plus]
		}
	}
	major := strings.SplitN(v, ".", 2)[0]
	n, err := strconv.Atoi(major)
	if err != nil {
		return true
	}
	return n >= 18
}

// asInt64 normalises numeric XML-RPC results.
func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case float64:
		return int64(t), true
	default:
		return 0, false
	}
}

// asFloat normalises numeric XML-RPC results.
func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	default:
		return 0
	}
}

// asString tolerates the false-instead-of-empty convention of the wire format.
func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}
