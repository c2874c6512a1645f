package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	errs "github.com/savaki/socialauth/internal/errors"
)

const (
	defaultHTTPTimeout     = 10 * time.Second
	defaultMaxRetries      = 2
	defaultInitialInterval = 200 * time.Millisecond
	maxResponseBytes       = 1 << 20
)

// HTTPOptions controls the outbound calls a provider makes.
// Zero values fall back to defaults.
type HTTPOptions struct {
	Client          *http.Client  // optional, defaults to a client with Timeout
	Timeout         time.Duration // per-attempt timeout
	MaxRetries      int           // retries for idempotent GETs; negative disables
	InitialInterval time.Duration // first backoff interval
}

type httpCaller struct {
	client          *http.Client
	maxRetries      uint64
	initialInterval time.Duration
}

func newHTTPCaller(opts HTTPOptions) *httpCaller {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	retries := uint64(defaultMaxRetries)
	switch {
	case opts.MaxRetries < 0:
		retries = 0
	case opts.MaxRetries > 0:
		retries = uint64(opts.MaxRetries)
	}

	interval := opts.InitialInterval
	if interval <= 0 {
		interval = defaultInitialInterval
	}

	return &httpCaller{
		client:          client,
		maxRetries:      retries,
		initialInterval: interval,
	}
}

func (c *httpCaller) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)
}

// get issues an idempotent GET and returns the body of a 200 response.
// Transport failures and 5xx answers are retried; any other status is final.
func (c *httpCaller) get(ctx context.Context, op, rawURL string) ([]byte, error) {
	var body []byte

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(errs.New(errs.KindInvalidRequest, op, err))
		}
		req.Header.Set("Accept", "application/json, text/plain")

		resp, err := c.client.Do(req)
		if err != nil {
			return errs.New(errs.KindTransport, op, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return errs.New(errs.KindTransport, op, err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			body = data
			return nil
		case resp.StatusCode >= http.StatusInternalServerError:
			return errs.Newf(errs.KindRejected, op, "status %d: %s", resp.StatusCode, snippet(data))
		default:
			return backoff.Permanent(errs.Newf(errs.KindRejected, op, "status %d: %s", resp.StatusCode, snippet(data)))
		}
	}

	if err := backoff.Retry(operation, c.backOff(ctx)); err != nil {
		if errs.KindOf(err) == errs.KindUnknown {
			return nil, errs.New(errs.KindTransport, op, err)
		}
		return nil, err
	}
	return body, nil
}

// postForm sends form once and returns the response status code.
// The body is always drained and closed.
func (c *httpCaller) postForm(ctx context.Context, op, rawURL string, form url.Values) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, errs.New(errs.KindInvalidRequest, op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, errs.New(errs.KindTransport, op, err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes)); err != nil {
		return resp.StatusCode, errs.New(errs.KindTransport, op, err)
	}
	return resp.StatusCode, nil
}

// withQuery appends params to rawURL, keeping any query it already carries.
func withQuery(rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", rawURL, err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func snippet(data []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(data))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
