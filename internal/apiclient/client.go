package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/authclient"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/events"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/logger"
)

const (
	sourceName     = "apiclient"
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

var tracer = otel.Tracer("github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/apiclient")

// TokenSource supplies the bearer token of the signed-in user.
type TokenSource interface {
	Token() (string, bool)
}

// ActivityRecorder is told about every successful authenticated call.
type ActivityRecorder interface {
	Touch(ctx context.Context)
}

// StatusError is a non-2xx response other than 401.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.Status)
}

// Options tunes a Client. Zero values pick defaults.
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	Activity   ActivityRecorder
	Logger     *slog.Logger
}

// Client calls CRM backend endpoints on behalf of the signed-in user.
// A 401 from the backend raises events.Unauthorized and is never retried.
type Client struct {
	baseURL  string
	http     *http.Client
	tokens   TokenSource
	bus      *events.Bus
	activity ActivityRecorder
	timeout  time.Duration
	log      *slog.Logger
}

func New(baseURL string, tokens TokenSource, bus *events.Bus, opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logger.With("api_client")
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     opts.HTTPClient,
		tokens:   tokens,
		bus:      bus,
		activity: opts.Activity,
		timeout:  opts.Timeout,
		log:      opts.Logger,
	}
}

// Get is Do with GET and no body.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post is Do with POST.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Do sends body as JSON and decodes a 2xx JSON response into out. A nil out
// discards the response; a *json.RawMessage out keeps it verbatim.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) (err error) {
	ctx, span := tracer.Start(ctx, "apiclient.Do", trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
	))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, authed := "", false
	if c.tokens != nil {
		token, authed = c.tokens.Token()
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s %s: %v", authclient.ErrTimeout, method, path, err)
		}
		return fmt.Errorf("%w: %s %s: %v", authclient.ErrNetwork, method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized {
		c.log.Info("backend rejected credentials", "method", method, "path", path)
		if c.bus != nil {
			c.bus.Emit(events.Unauthorized, sourceName, fmt.Sprintf("%s %s returned 401", method, path))
		}
		return authclient.ErrUnauthorized
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return decodeStatusError(res)
	}

	if authed && c.activity != nil {
		c.activity.Touch(ctx)
	}

	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		data, err := io.ReadAll(res.Body)
		if err != nil {
			return fmt.Errorf("%w: reading response: %v", authclient.ErrNetwork, err)
		}
		*raw = data
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: invalid response body: %v", authclient.ErrBackend, err)
	}
	return nil
}

func decodeStatusError(res *http.Response) error {
	var e struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	_ = json.NewDecoder(io.LimitReader(res.Body, maxErrorBody)).Decode(&e)
	return &StatusError{Status: res.StatusCode, Code: e.Code, Message: e.Error}
}
