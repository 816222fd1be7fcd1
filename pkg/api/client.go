// Package api talks to the stepwise persistence service over HTTP. Client
// implements persist.Client.
package api

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

	"github.com/chazu/stepwise/pkg/config"
	"github.com/chazu/stepwise/pkg/logger"
	"github.com/chazu/stepwise/pkg/persist"
	"github.com/chazu/stepwise/pkg/project"
)

// ErrUnauthorized is returned when the service rejects the session.
var ErrUnauthorized = errors.New("api: session rejected")

// Error is a non-2xx response decoded from the service error envelope.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Client is an HTTP persist.Client.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
	log   *logger.Logger
}

var _ persist.Client = (*Client)(nil)

// New builds a client from the api section of the config.
func New(cfg config.APIConfig, log *logger.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("api: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("api: parse base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		base:  base,
		token: cfg.SessionToken,
		http:  &http.Client{Timeout: timeout},
		log:   log.With("client", "api"),
	}, nil
}

func (c *Client) endpoint(parts ...string) string {
	u := *c.base
	u.Path = c.base.Path + "/" + strings.Join(parts, "/")
	u.RawPath = ""
	return u.String()
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &Error{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var env errorEnvelope
	if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
		apiErr.Message = env.Error.Message
		apiErr.Code = env.Error.Code
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", persist.ErrNotFound, apiErr)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", ErrUnauthorized, apiErr)
	}
	return apiErr
}

type listResponse struct {
	Projects []project.Project `json:"projects"`
}

type shareResponse struct {
	Token string `json:"token"`
}

func (c *Client) List(ctx context.Context) ([]project.Project, error) {
	var out listResponse
	if err := c.do(ctx, http.MethodGet, c.endpoint("api", "projects"), nil, &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

func (c *Client) Get(ctx context.Context, id string) (project.Project, error) {
	var out project.Project
	err := c.do(ctx, http.MethodGet, c.endpoint("api", "projects", id), nil, &out)
	return out, err
}

func (c *Client) GetShared(ctx context.Context, token string) (project.Project, error) {
	var out project.Project
	err := c.do(ctx, http.MethodGet, c.endpoint("api", "public", token), nil, &out)
	return out, err
}

func (c *Client) Create(ctx context.Context, p project.Project) (project.Project, error) {
	p.ID = ""
	var out project.Project
	if err := c.do(ctx, http.MethodPost, c.endpoint("api", "projects"), p, &out); err != nil {
		return project.Project{}, err
	}
	c.log.Debug("project created", "project", out.ID)
	return out, nil
}

func (c *Client) Update(ctx context.Context, p project.Project) (project.Project, error) {
	if p.ID == "" {
		return project.Project{}, persist.ErrNoProject
	}
	var out project.Project
	err := c.do(ctx, http.MethodPut, c.endpoint("api", "projects", p.ID), p, &out)
	return out, err
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.endpoint("api", "projects", id), nil, nil)
}

func (c *Client) Share(ctx context.Context, id string) (string, error) {
	var out shareResponse
	if err := c.do(ctx, http.MethodPost, c.endpoint("api", "projects", id, "share"), nil, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}
