// Package moodle is a client for the Moodle REST web service API.
package moodle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/and161185/moodle-elt/internal/errs"
	"github.com/and161185/moodle-elt/internal/limiter"
	"github.com/and161185/moodle-elt/internal/metrics"
	"github.com/and161185/moodle-elt/internal/model"
)

// RESTPath is the web service endpoint relative to the instance base URL.
const RESTPath = "/webservice/rest/server.php"

const (
	maxErrorBody   = 64 << 10
	maxErrorInBody = 200
)

// Client calls one Moodle instance. Safe for concurrent use; calls are paced
// by the limiter so concurrency buys nothing against a single instance.
type Client struct {
	instance string
	baseURL  string
	endpoint string
	token    string

	http    *http.Client
	limiter limiter.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	opts    Options
	log     *zap.Logger
}

// New builds a client for cfg. The URL is normalized with ValidateURL rules.
func New(cfg model.InstanceConfig, opts Options) (*Client, error) {
	opts = opts.withDefaults()

	base, err := validateURL(cfg.URL, opts.Logger)
	if err != nil {
		return nil, err
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("%w: moodle token cannot be empty for instance %q", errs.ErrConfiguration, cfg.Instance)
	}

	log := opts.Logger.With(zap.String("instance", cfg.Instance))
	return &Client{
		instance: cfg.Instance,
		baseURL:  base,
		endpoint: base + RESTPath,
		token:    token,
		http:     newHTTPClient(opts.HTTPClient, opts.Timeout, log),
		limiter:  limiter.NewThrottle(opts.RateLimitDelay, opts.RequestsPerSecond, opts.Sleep),
		breaker:  newBreaker("moodle:"+cfg.Instance, opts.BreakerFailures, opts.BreakerCooldown, log),
		opts:     opts,
		log:      log,
	}, nil
}

// Instance returns the logical instance name.
func (c *Client) Instance() string { return c.instance }

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Call invokes a web service function and returns the normalized result:
// arrays as-is, objects wrapped in a one-element slice, null as empty.
//
// Errors are *errs.RemoteAPIError for application errors reported in a 200
// body and *errs.TransportError for everything HTTP-level. Context errors are
// returned unwrapped.
func (c *Client) Call(ctx context.Context, function string, params map[string]string) (_ []any, err error) {
	if function == "" {
		return nil, fmt.Errorf("%w: empty web service function", errs.ErrValidation)
	}
	ctx = withFunction(ctx, function)

	start := time.Now()
	outcome := metrics.OutcomeSuccess
	defer func() {
		metrics.APICallDuration.WithLabelValues(function).Observe(time.Since(start).Seconds())
		metrics.APICalls.WithLabelValues(function, outcome).Inc()
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		outcome = metrics.OutcomeRejected
		return nil, err
	}

	form := c.form(function, params)
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.fetch(ctx, function, form)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = metrics.OutcomeRejected
			return nil, &errs.TransportError{Function: function, Err: err}
		}
		outcome = metrics.OutcomeTransportError
		return nil, err
	}

	items, err := c.decode(function, body)
	if perr := c.limiter.Pause(ctx); perr != nil && err == nil {
		err = perr
	}
	if err != nil {
		var remote *errs.RemoteAPIError
		if errors.As(err, &remote) {
			outcome = metrics.OutcomeRemoteError
			c.log.Warn("moodle api error",
				zap.String("function", function),
				zap.String("errorcode", remote.ErrorCode),
				zap.String("exception", remote.Exception),
			)
		} else {
			outcome = metrics.OutcomeTransportError
		}
		return nil, err
	}
	return items, nil
}

func (c *Client) form(function string, params map[string]string) url.Values {
	form := make(url.Values, len(params)+3)
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set("wstoken", c.token)
	form.Set("wsfunction", function)
	form.Set("moodlewsrestformat", "json")
	return form
}

type attempt struct {
	body       []byte
	status     int
	retryAfter time.Duration
	err        error
}

// fetch posts the form until a 2xx body arrives or retries run out.
func (c *Client) fetch(ctx context.Context, function string, form url.Values) ([]byte, error) {
	encoded := form.Encode()
	for n := 0; ; n++ {
		res := c.do(ctx, encoded)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if res.err == nil && res.status >= 200 && res.status < 300 {
			return res.body, nil
		}

		tErr := &errs.TransportError{Function: function, StatusCode: res.status, Attempts: n + 1, Err: res.err}
		if res.status != 0 && !retryable(res.status) {
			return nil, tErr
		}
		if errors.Is(res.err, errInsecureRedirect) {
			return nil, tErr
		}
		if n >= c.opts.MaxRetries {
			return nil, tErr
		}

		wait := c.backoff(n)
		if res.retryAfter > 0 {
			wait = min(res.retryAfter, c.opts.MaxRetryWait)
		}
		metrics.APIRetries.WithLabelValues(function).Inc()
		c.log.Warn("retrying moodle call",
			zap.String("function", function),
			zap.Int("attempt", n+1),
			zap.Int("status", res.status),
			zap.Duration("wait", wait),
			zap.Error(res.err),
		)
		if err := c.opts.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// backoff returns BackoffBase doubled n times, capped at MaxRetryWait.
func (c *Client) backoff(n int) time.Duration {
	limit := c.opts.MaxRetryWait
	if n >= 62 {
		return limit
	}
	wait := c.opts.BackoffBase << n
	if wait <= 0 || wait>>n != c.opts.BackoffBase || wait > limit {
		return limit
	}
	return wait
}

func (c *Client) do(ctx context.Context, encoded string) attempt {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(encoded))
	if err != nil {
		return attempt{err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return attempt{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return attempt{err: fmt.Errorf("read body: %w", err)}
		}
		return attempt{body: body, status: resp.StatusCode}
	}

	res := attempt{status: resp.StatusCode, retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	if snippet := readBodyForError(resp.Body); snippet != "" {
		res.err = errors.New(snippet)
	}
	return res
}

// decode parses a 2xx body and classifies application errors.
func (c *Client) decode(function string, body []byte) ([]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &errs.TransportError{
			Function:   function,
			StatusCode: http.StatusOK,
			Attempts:   1,
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}
	return normalize(function, v)
}

func normalize(function string, v any) ([]any, error) {
	switch t := v.(type) {
	case nil:
		return []any{}, nil
	case []any:
		return t, nil
	case map[string]any:
		_, hasException := t["exception"]
		_, hasCode := t["errorcode"]
		if hasException || hasCode {
			return nil, &errs.RemoteAPIError{
				Function:  function,
				Exception: text(t["exception"]),
				ErrorCode: text(t["errorcode"]),
				Message:   text(t["message"]),
			}
		}
		return []any{t}, nil
	default:
		return []any{t}, nil
	}
}

func text(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// parseRetryAfter accepts the delta-seconds form only.
func parseRetryAfter(h string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || secs <= 0 {
		return 0
	}
	if int64(secs) > int64(math.MaxInt64/time.Second) {
		return math.MaxInt64
	}
	return time.Duration(secs) * time.Second
}

func readBodyForError(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorInBody {
		s = s[:maxErrorInBody] + "..."
	}
	return s
}
