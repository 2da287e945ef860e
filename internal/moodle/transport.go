package moodle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type functionKey struct{}

func withFunction(ctx context.Context, function string) context.Context {
	return context.WithValue(ctx, functionKey{}, function)
}

func functionFrom(ctx context.Context) string {
	s, _ := ctx.Value(functionKey{}).(string)
	return s
}

// loggingTransport logs every HTTP attempt: metadata only, never the form body (it carries the token).
type loggingTransport struct {
	next http.RoundTripper
	log  *zap.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)

	fields := []zap.Field{
		zap.String("function", functionFrom(req.Context())),
		zap.String("host", req.URL.Host),
		zap.Duration("dur", time.Since(start)),
	}
	if err != nil {
		t.log.Debug("moodle http", append(fields, zap.Error(err))...)
		return nil, err
	}
	t.log.Debug("moodle http", append(fields, zap.Int("status", resp.StatusCode))...)
	return resp, nil
}

const maxRedirects = 10

// errInsecureRedirect stops a redirect that would resend the form, token
// included, over plain HTTP.
var errInsecureRedirect = errors.New("redirect to non-https url refused")

func secureRedirect(next func(*http.Request, []*http.Request) error) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if req.URL.Scheme != "https" {
			return fmt.Errorf("%w: %s://%s", errInsecureRedirect, req.URL.Scheme, req.URL.Host)
		}
		if next != nil {
			return next(req, via)
		}
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}
}

func newHTTPClient(base *http.Client, timeout time.Duration, log *zap.Logger) *http.Client {
	var hc http.Client
	if base != nil {
		hc = *base
	}
	next := hc.Transport
	if next == nil {
		next = http.DefaultTransport.(*http.Transport).Clone()
	}
	hc.Transport = &loggingTransport{next: next, log: log}
	hc.CheckRedirect = secureRedirect(hc.CheckRedirect)
	hc.Timeout = timeout
	return &hc
}
