// Package aspace is a minimal ArchivesSpace API client covering the calls
// the container tools make.
//
// The client never retries. A non-success response is returned as an
// *APIError carrying the backend's body so callers can log it verbatim.
package aspace

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SessionHeader carries the token returned by Login.
const SessionHeader = "X-ArchivesSpace-Session"

// Config holds client configuration.
type Config struct {
	BaseURL  string
	Username string
	Password string

	// Session is a pre-issued token. When set, Login is not needed.
	Session string

	// RequestsPerSecond paces outgoing calls; 0 means unlimited.
	RequestsPerSecond float64

	Timeout    time.Duration      // per-request timeout of the default HTTP client (0 = none)
	HTTPClient *http.Client       // nil = default client
	Logger     *zap.SugaredLogger // nil = nop logger
}

// Client talks to one ArchivesSpace backend.
type Client struct {
	baseURL  *url.URL
	username string
	password string
	session  string
	http     *http.Client
	limiter  *rate.Limiter
	logger   *zap.SugaredLogger
}

// NewClient validates cfg and returns a client. It performs no I/O.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.WithHint(errors.New("aspace: base URL is required"),
			"set base_url in the config file or CONTAINERSYNC_BASE_URL")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "aspace: invalid base URL %q", cfg.BaseURL)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.Newf("aspace: base URL %q must be http or https", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	c := &Client{
		baseURL:  base,
		username: cfg.Username,
		password: cfg.Password,
		session:  cfg.Session,
		http:     httpClient,
		logger:   logger,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c, nil
}

// Authenticated reports whether the client holds a session token.
func (c *Client) Authenticated() bool {
	return c.session != ""
}

// Login exchanges the configured credentials for a session token.
func (c *Client) Login(ctx context.Context) error {
	if c.username == "" {
		return errors.WithHint(errors.New("aspace: no session and no username configured"),
			"set username and password, or provide a session token")
	}
	q := url.Values{"password": {c.password}}
	body, err := c.do(ctx, http.MethodPost, "/users/"+url.PathEscape(c.username)+"/login", q, nil)
	if err != nil {
		return errors.Wrap(err, "aspace: login failed")
	}
	var resp struct {
		Session string `json:"session"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return errors.Wrap(err, "aspace: failed to decode login response")
	}
	if resp.Session == "" {
		return errors.New("aspace: login response carried no session")
	}
	c.session = resp.Session
	c.logger.Debugw("Logged in", "user", c.username)
	return nil
}

// do performs one request and returns the body of a 200 response.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	return c.doExpect(ctx, method, path, query, payload, http.StatusOK)
}

func (c *Client) doExpect(ctx context.Context, method, path string, query url.Values, payload any, ok ...int) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limiter")
		}
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal request")
		}
		reqBody = bytes.NewReader(data)
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != "" {
		req.Header.Set(SessionHeader, c.session)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s: failed to read response", method, path)
	}
	c.logger.Debugw("ArchivesSpace request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	for _, code := range ok {
		if resp.StatusCode == code {
			return body, nil
		}
	}
	return nil, &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: body}
}
